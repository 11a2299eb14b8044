package strava

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"example.com/insight/internal/domain"
)

// ActivitySource is the slice of Client the syncer needs.
type ActivitySource interface {
	ActivitiesSince(ctx context.Context, after time.Time) ([]Activity, error)
	ActivityStreams(ctx context.Context, activityID int64) (*Streams, error)
}

// SyncOption configures optional behaviour for the Syncer.
type SyncOption func(*Syncer)

// WithLogger overrides the logger used to report per-activity problems.
func WithLogger(logger *log.Logger) SyncOption {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// Syncer pulls recent Strava activities into one tenant's store. A
// failed streams fetch degrades that activity to summary-only rather
// than aborting the run; the counters in Result say what happened.
type Syncer struct {
	source  ActivitySource
	service *domain.Service
	tenant  string
	logger  *log.Logger
}

// Result summarizes one sync run.
type Result struct {
	Fetched     int
	Created     int
	Updated     int
	SummaryOnly int
	Rejected    int
}

// NewSyncer constructs a Syncer writing into the given tenant.
func NewSyncer(source ActivitySource, service *domain.Service, tenant string, opts ...SyncOption) *Syncer {
	s := &Syncer{
		source:  source,
		service: service,
		tenant:  tenant,
		logger:  log.New(log.Writer(), "[sync] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run fetches every activity started after since and ingests it.
func (s *Syncer) Run(ctx context.Context, since time.Time) (*Result, error) {
	activities, err := s.source.ActivitiesSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	result := &Result{Fetched: len(activities)}
	for _, act := range activities {
		streams, err := s.source.ActivityStreams(ctx, act.ID)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Printf("streams unavailable for activity %d, keeping summary: %v", act.ID, err)
			streams = nil
			result.SummaryOnly++
		}

		input := MapActivity(act, streams)
		input.TenantID = s.tenant
		_, created, err := s.service.IngestActivity(ctx, input)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidActivity) {
				s.logger.Printf("rejected activity %d: %v", act.ID, err)
				result.Rejected++
				continue
			}
			return result, fmt.Errorf("ingest activity %d: %w", act.ID, err)
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}
	return result, nil
}
