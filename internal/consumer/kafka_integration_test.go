//go:build integration

package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/insight/internal/analysis"
	"example.com/insight/internal/domain"
	"example.com/insight/internal/events"
	"example.com/insight/internal/persistence"
)

func TestKafkaImportLandsInStore(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             events.TopicActivityImports,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	repo := persistence.NewInMemoryRepository()
	service := domain.NewService(repo, nil)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "insight-integration",
		Topic:       events.TopicActivityImports,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()

	proc := NewProcessor(reader, NewImportHandler(service))
	go func() {
		_ = proc.Run(consumerCtx)
	}()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  events.TopicActivityImports,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	input := domain.ActivityInput{
		ID:          "act-int",
		TenantID:    "athlete-int",
		Sport:       "run",
		StartedAt:   time.Now().UTC().Add(-time.Hour),
		DistanceKm:  12,
		DurationSec: 3600,
		HRStream: &analysis.RawHRStream{
			HeartRate: []int{148, 152, 150, 149},
			Time:      []int{0, 60, 120, 180},
		},
		Source: "integration-test",
	}
	payload, err := json.Marshal(input)
	require.NoError(t, err)

	value := make([]byte, 5+len(payload))
	value[0] = 0
	binary.BigEndian.PutUint32(value[1:5], 1)
	copy(value[5:], payload)

	err = writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(input.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.TypeActivityImportRequested)},
			{Key: "tenant_id", Value: []byte(input.TenantID)},
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := service.GetActivity(ctx, input.TenantID, input.ID)
		return err == nil && stored.HRStream != nil
	}, 45*time.Second, time.Second, "expected the import to land in the store")
}
