package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityIngestGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "insight",
		Subsystem: "ingest",
		Name:      "last_activity_ingested_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity accepted into the store.",
	})
	activityIngestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insight",
		Subsystem: "ingest",
		Name:      "activities_total",
		Help:      "Activities accepted into the store, by provenance.",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(activityIngestGauge, activityIngestCounter)
}

// RecordActivityIngested updates the ingest watermark and the
// per-source counter.
func RecordActivityIngested(source string, startedAt time.Time) {
	activityIngestCounter.WithLabelValues(source).Inc()
	if startedAt.IsZero() {
		return
	}
	activityIngestGauge.Set(float64(startedAt.Unix()))
}
