package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"example.com/insight/internal/domain"
	"example.com/insight/internal/events"
)

// ImportHandler feeds activity payloads from the import topic into the
// ingest pipeline. Permanently bad records are counted and skipped, so
// redelivery is reserved for failures that can heal.
type ImportHandler struct {
	service *domain.Service
}

// NewImportHandler constructs a handler backed by the given service.
func NewImportHandler(service *domain.Service) Handler {
	return &ImportHandler{service: service}
}

// Handle ingests one import request. Returning nil commits the
// message; any returned error leaves it uncommitted for redelivery.
func (h *ImportHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeActivityImportRequested {
		recordImportSkipped("foreign_event")
		return nil
	}

	var input domain.ActivityInput
	if err := json.Unmarshal(msg.Payload, &input); err != nil {
		log.Printf("import: malformed payload (topic=%s, offset=%d): %v", msg.Topic, msg.Offset, err)
		recordImportSkipped("malformed")
		return nil
	}
	if input.TenantID == "" {
		input.TenantID = msg.TenantID
	}

	_, _, err := h.service.IngestActivity(ctx, input)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidActivity) {
			log.Printf("import: rejected activity (tenant=%s, offset=%d): %v", input.TenantID, msg.Offset, err)
			recordImportSkipped("invalid")
			return nil
		}
		return err
	}
	return nil
}
