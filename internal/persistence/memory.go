package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/insight/internal/analysis"
	"example.com/insight/internal/domain"
)

// InMemoryRepository keeps activities, settings, and outbox intents
// in process memory. It backs local development when no Postgres URL
// is configured, and the unit tests.
type InMemoryRepository struct {
	mu         sync.RWMutex
	activities map[string]domain.Activity
	settings   map[string]domain.Settings
	outbox     []domain.Event
}

// NewInMemoryRepository constructs an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		activities: make(map[string]domain.Activity),
		settings:   make(map[string]domain.Settings),
	}
}

func activityKey(tenantID, activityID string) string {
	return tenantID + "/" + activityID
}

// Get implements domain.Repository.
func (r *InMemoryRepository) Get(ctx context.Context, tenantID, activityID string) (*domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	act, ok := r.activities[activityKey(tenantID, activityID)]
	if !ok {
		return nil, nil
	}
	return &act, nil
}

// Save upserts the activity and appends its outbox intents. The two
// writes happen under one lock, mirroring the transactional contract
// of the Postgres repository.
func (r *InMemoryRepository) Save(ctx context.Context, activity domain.Activity, events []domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.activities[activityKey(activity.TenantID, activity.ID)] = activity
	r.outbox = append(r.outbox, events...)
	return nil
}

// List returns one page ordered by started_at descending with the ID
// as tiebreaker; the next cursor is set when the page is full.
func (r *InMemoryRepository) List(ctx context.Context, tenantID string, sport analysis.Sport, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]domain.Activity, 0)
	for _, act := range r.activities {
		if act.TenantID != tenantID {
			continue
		}
		if sport != "" && act.Sport != sport {
			continue
		}
		if !beforeCursor(act, cursor) {
			continue
		}
		matches = append(matches, act)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].StartedAt.Equal(matches[j].StartedAt) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].StartedAt.After(matches[j].StartedAt)
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	var next *domain.Cursor
	if limit > 0 && len(matches) == limit {
		last := matches[len(matches)-1]
		next = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return matches, next, nil
}

func beforeCursor(act domain.Activity, c *domain.Cursor) bool {
	if c == nil {
		return true
	}
	if act.StartedAt.Equal(c.StartedAt) {
		return act.ID < c.ID
	}
	return act.StartedAt.Before(c.StartedAt)
}

// ListSince returns every activity started on or after the cutoff,
// newest first. An empty sport matches all sports.
func (r *InMemoryRepository) ListSince(ctx context.Context, tenantID string, sport analysis.Sport, since time.Time) ([]domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]domain.Activity, 0)
	for _, act := range r.activities {
		if act.TenantID != tenantID {
			continue
		}
		if sport != "" && act.Sport != sport {
			continue
		}
		if act.StartedAt.Before(since) {
			continue
		}
		matches = append(matches, act)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].StartedAt.After(matches[j].StartedAt)
	})
	return matches, nil
}

// GetSettings implements domain.Repository.
func (r *InMemoryRepository) GetSettings(ctx context.Context, tenantID string) (*domain.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.settings[tenantID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// PutSettings implements domain.Repository.
func (r *InMemoryRepository) PutSettings(ctx context.Context, tenantID string, settings domain.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings[tenantID] = settings
	return nil
}

// Events returns the recorded outbox intents in insertion order.
func (r *InMemoryRepository) Events() []domain.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Event, len(r.outbox))
	copy(out, r.outbox)
	return out
}
