// Package domain defines the business logic for the insight service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/insight/internal/analysis"
	"example.com/insight/internal/cache"
	"example.com/insight/internal/events"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrInvalidActivity rejects records that fail basic validation.
	ErrInvalidActivity = errors.New("invalid activity record")
)

// Distribution signals.
const (
	SignalHR    = "hr"
	SignalPower = "power"
)

// Analysis windows, days.
const (
	weeklyAvgWindowDays = 14
	loadWindowDays      = 180
	zoneWindowDays      = 90
)

// Repository captures persistence operations. Save persists the
// activity and its outbox events in one transaction.
type Repository interface {
	Get(ctx context.Context, tenantID, activityID string) (*Activity, error)
	Save(ctx context.Context, activity Activity, events []Event) error
	List(ctx context.Context, tenantID string, sport analysis.Sport, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	ListSince(ctx context.Context, tenantID string, sport analysis.Sport, since time.Time) ([]Activity, error)
	GetSettings(ctx context.Context, tenantID string) (*Settings, error)
	PutSettings(ctx context.Context, tenantID string, settings Settings) error
}

// Service orchestrates ingest, analysis, and settings workflows.
type Service struct {
	repo  Repository
	cache cache.Invalidator
}

// NewService constructs a Service.
func NewService(repo Repository, invalidator cache.Invalidator) *Service {
	if invalidator == nil {
		invalidator = cache.NoopInvalidator{}
	}
	return &Service{repo: repo, cache: invalidator}
}

// ParseSport canonicalizes a sport label.
func ParseSport(raw string) (analysis.Sport, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "run", "running":
		return analysis.SportRun, nil
	case "ride", "cycling":
		return analysis.SportRide, nil
	case "swim", "swimming":
		return analysis.SportSwim, nil
	default:
		return "", fmt.Errorf("%w: unknown sport %q", ErrInvalidActivity, raw)
	}
}

// IngestActivity validates, normalizes, deduplicates, and persists
// one activity, recording the imported and analyzed events in the
// same transaction. The returned bool reports whether a new row was
// created; a dedup skip returns the stored record unchanged.
func (s *Service) IngestActivity(ctx context.Context, input ActivityInput) (*Activity, bool, error) {
	sport, err := ParseSport(input.Sport)
	if err != nil {
		return nil, false, err
	}
	if err := validateInput(input); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	act := Activity{
		ID:          input.ID,
		TenantID:    input.TenantID,
		Sport:       sport,
		StartedAt:   input.StartedAt.UTC(),
		DistanceKm:  input.DistanceKm,
		DurationSec: input.DurationSec,
		AvgHR:       input.AvgHR,
		MaxHR:       input.MaxHR,
		AvgWatts:    input.AvgWatts,
		MaxWatts:    input.MaxWatts,
		HRStream:    analysis.NormalizeHRStream(input.HRStream),
		PaceStream:  analysis.NormalizePaceStream(input.PaceStream),
		PowerStream: analysis.NormalizePowerStream(input.PowerStream),
		Source:      input.Source,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if act.ID == "" {
		act.ID = uuid.NewString()
	}
	if act.Source == "" {
		act.Source = SourceManual
	}
	act.HRKind = analysis.KindOf(intValue(act.AvgHR), hrSamples(act.HRStream))
	act.PowerKind = analysis.KindOf(intValue(act.AvgWatts), powerSamples(act.PowerStream))

	created := true
	if existing, err := s.repo.Get(ctx, act.TenantID, act.ID); err != nil {
		return nil, false, err
	} else if existing != nil {
		if !supersedes(&act, existing) {
			return existing, false, nil
		}
		act.CreatedAt = existing.CreatedAt
		created = false
	}

	outbound, err := s.ingestEvents(ctx, &act, now)
	if err != nil {
		return nil, false, err
	}
	if err := s.repo.Save(ctx, act, outbound); err != nil {
		return nil, false, err
	}
	if err := s.cache.Invalidate(ctx, act.ID, "insights/"+act.TenantID); err != nil {
		return nil, false, fmt.Errorf("cache invalidation: %w", err)
	}
	return &act, created, nil
}

// supersedes decides whether an incoming record replaces the stored
// copy with the same ID: cache-tier rows always lose; otherwise the
// incoming record must carry a stream the stored one lacks.
func supersedes(incoming, stored *Activity) bool {
	if stored.Source == SourceCache {
		return true
	}
	if incoming.HRStream != nil && stored.HRStream == nil {
		return true
	}
	if incoming.PaceStream != nil && stored.PaceStream == nil {
		return true
	}
	if incoming.PowerStream != nil && stored.PowerStream == nil {
		return true
	}
	return false
}

func (s *Service) ingestEvents(ctx context.Context, act *Activity, now time.Time) ([]Event, error) {
	actx, err := s.analysisContext(ctx, act.TenantID)
	if err != nil {
		return nil, err
	}
	weekly, err := s.weeklyAverageKm(ctx, act.TenantID, act.Sport, now)
	if err != nil {
		return nil, err
	}
	rec := act.Record()
	cls := analysis.Classify(rec, actx, weekly)
	report := analysis.DetectIntervals(rec.Pace)
	intervals := 0
	if report.IsInterval {
		intervals = report.Intervals
	}
	return []Event{
		{
			Type: events.TypeActivityImported,
			Key:  act.ID,
			Payload: events.ActivityImported{
				ActivityID:  act.ID,
				Sport:       string(act.Sport),
				StartedAt:   act.StartedAt,
				DistanceKm:  act.DistanceKm,
				DurationSec: act.DurationSec,
				Source:      act.Source,
				DataKind:    string(act.DataKind()),
			},
		},
		{
			Type: events.TypeActivityAnalyzed,
			Key:  act.ID,
			Payload: events.ActivityAnalyzed{
				ActivityID:    act.ID,
				Category:      string(cls.Category),
				Tendency:      string(cls.Tendency),
				IsLong:        cls.IsLong,
				DataKind:      string(cls.DataKind),
				IntervalCount: intervals,
				AnalyzedAt:    now,
			},
		},
	}, nil
}

// GetActivity fetches by ID.
func (s *Service) GetActivity(ctx context.Context, tenantID, activityID string) (*Activity, error) {
	act, err := s.repo.Get(ctx, tenantID, activityID)
	if err != nil {
		return nil, err
	}
	if act == nil {
		return nil, ErrActivityNotFound
	}
	return act, nil
}

// ListActivities fetches activities with cursor pagination. An empty
// sport matches all sports.
func (s *Service) ListActivities(ctx context.Context, tenantID string, sport analysis.Sport, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return s.repo.List(ctx, tenantID, sport, cursor, limit)
}

// Distribution buckets one activity's stream into the six zones. A
// nil distribution means the signal is absent; the returned data kind
// says how much of it the record carries.
func (s *Service) Distribution(ctx context.Context, tenantID, activityID, signal string) (*analysis.Distribution, analysis.DataKind, error) {
	act, err := s.GetActivity(ctx, tenantID, activityID)
	if err != nil {
		return nil, analysis.DataNone, err
	}
	actx, err := s.analysisContext(ctx, tenantID)
	if err != nil {
		return nil, analysis.DataNone, err
	}
	if signal == SignalPower {
		return analysis.AnalyzePowerStream(act.PowerStream, actx.PowerBounds()), act.PowerKind, nil
	}
	return analysis.AnalyzeHRStream(act.HRStream, actx.HRBounds()), act.HRKind, nil
}

// Classification derives the intensity label for one activity against
// the athlete's current zones and rolling weekly distance.
func (s *Service) Classification(ctx context.Context, tenantID, activityID string) (analysis.Classification, error) {
	act, err := s.GetActivity(ctx, tenantID, activityID)
	if err != nil {
		return analysis.Classification{}, err
	}
	actx, err := s.analysisContext(ctx, tenantID)
	if err != nil {
		return analysis.Classification{}, err
	}
	weekly, err := s.weeklyAverageKm(ctx, tenantID, act.Sport, time.Now().UTC())
	if err != nil {
		return analysis.Classification{}, err
	}
	return analysis.Classify(act.Record(), actx, weekly), nil
}

// Intervals runs interval detection over the activity's pace stream.
func (s *Service) Intervals(ctx context.Context, tenantID, activityID string) (analysis.IntervalReport, analysis.DataKind, error) {
	act, err := s.GetActivity(ctx, tenantID, activityID)
	if err != nil {
		return analysis.IntervalReport{}, analysis.DataNone, err
	}
	kind := analysis.DataNone
	if act.PaceStream != nil {
		kind = analysis.DataDetailed
	}
	return analysis.DetectIntervals(act.PaceStream), kind, nil
}

// AdvancedMetrics computes the secondary pace and stress metrics the
// activity's streams support. The returned data kind reflects the
// richest channel on the record.
func (s *Service) AdvancedMetrics(ctx context.Context, tenantID, activityID string) (analysis.AdvancedMetrics, analysis.DataKind, error) {
	act, err := s.GetActivity(ctx, tenantID, activityID)
	if err != nil {
		return analysis.AdvancedMetrics{}, analysis.DataNone, err
	}
	actx, err := s.analysisContext(ctx, tenantID)
	if err != nil {
		return analysis.AdvancedMetrics{}, analysis.DataNone, err
	}
	return analysis.ComputeAdvancedMetrics(act.Record(), actx), act.DataKind(), nil
}

// TrainingLoad classifies the athlete's recent history and runs the
// five traffic-light analyses against it.
func (s *Service) TrainingLoad(ctx context.Context, tenantID string, now time.Time) (map[string]analysis.Report, error) {
	actx, err := s.analysisContext(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListSince(ctx, tenantID, "", now.AddDate(0, 0, -loadWindowDays))
	if err != nil {
		return nil, err
	}
	classified := make([]analysis.ClassifiedActivity, 0, len(history))
	for _, act := range history {
		cls := analysis.Classify(act.Record(), actx, 0)
		classified = append(classified, analysis.ClassifiedActivity{
			Sport:      act.Sport,
			StartedAt:  act.StartedAt,
			DistanceKm: act.DistanceKm,
			Category:   cls.Category,
		})
	}
	return analysis.AnalyzeTrainingLoad(classified, now), nil
}

// ZoneDistribution aggregates distance per heart-rate zone over the
// trailing window. An empty sport matches all sports; days at or
// below zero falls back to the default window.
func (s *Service) ZoneDistribution(ctx context.Context, tenantID string, sport analysis.Sport, days int, now time.Time) (analysis.ZoneDistances, error) {
	if days <= 0 {
		days = zoneWindowDays
	}
	actx, err := s.analysisContext(ctx, tenantID)
	if err != nil {
		return analysis.ZoneDistances{}, err
	}
	history, err := s.repo.ListSince(ctx, tenantID, sport, now.AddDate(0, 0, -days))
	if err != nil {
		return analysis.ZoneDistances{}, err
	}
	records := make([]analysis.Record, 0, len(history))
	for _, act := range history {
		records = append(records, act.Record())
	}
	return analysis.CalculateZoneDistribution(records, actx), nil
}

// Settings returns the athlete configuration, seeding the defaults on
// first read so later reads and updates land on a real row.
func (s *Service) Settings(ctx context.Context, tenantID string) (Settings, error) {
	stored, err := s.repo.GetSettings(ctx, tenantID)
	if err != nil {
		return Settings{}, err
	}
	if stored != nil {
		return *stored, nil
	}
	seeded := DefaultSettings()
	seeded.UpdatedAt = time.Now().UTC()
	if err := s.repo.PutSettings(ctx, tenantID, seeded); err != nil {
		return Settings{}, err
	}
	return seeded, nil
}

// UpdateSettings validates and stores the configuration. A rejected
// update returns the validation error and leaves the prior settings
// in effect.
func (s *Service) UpdateSettings(ctx context.Context, tenantID string, settings Settings) (Settings, error) {
	if err := settings.AnalysisContext().Validate(); err != nil {
		return Settings{}, err
	}
	settings.UpdatedAt = time.Now().UTC()
	if err := s.repo.PutSettings(ctx, tenantID, settings); err != nil {
		return Settings{}, err
	}
	if err := s.cache.Invalidate(ctx, "settings/"+tenantID, "insights/"+tenantID); err != nil {
		return Settings{}, fmt.Errorf("cache invalidation: %w", err)
	}
	return settings, nil
}

func (s *Service) analysisContext(ctx context.Context, tenantID string) (analysis.Context, error) {
	settings, err := s.Settings(ctx, tenantID)
	if err != nil {
		return analysis.Context{}, err
	}
	return settings.AnalysisContext(), nil
}

// weeklyAverageKm is the trailing two-week distance halved, per
// sport.
func (s *Service) weeklyAverageKm(ctx context.Context, tenantID string, sport analysis.Sport, now time.Time) (float64, error) {
	history, err := s.repo.ListSince(ctx, tenantID, sport, now.AddDate(0, 0, -weeklyAvgWindowDays))
	if err != nil {
		return 0, err
	}
	var total float64
	for _, act := range history {
		total += act.DistanceKm
	}
	return total / 2, nil
}

func validateInput(input ActivityInput) error {
	if strings.TrimSpace(input.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidActivity)
	}
	if input.StartedAt.IsZero() {
		return fmt.Errorf("%w: started_at is required", ErrInvalidActivity)
	}
	if input.DistanceKm < 0 {
		return fmt.Errorf("%w: distance_km must be non-negative", ErrInvalidActivity)
	}
	if input.DurationSec < 0 {
		return fmt.Errorf("%w: duration_sec must be non-negative", ErrInvalidActivity)
	}
	if err := positiveOptional("avg_hr", input.AvgHR); err != nil {
		return err
	}
	if err := positiveOptional("max_hr", input.MaxHR); err != nil {
		return err
	}
	if err := positiveOptional("avg_watts", input.AvgWatts); err != nil {
		return err
	}
	return positiveOptional("max_watts", input.MaxWatts)
}

func positiveOptional(name string, v *int) error {
	if v != nil && *v <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidActivity, name)
	}
	return nil
}

func hrSamples(s *analysis.HRStream) int {
	if s == nil {
		return 0
	}
	return len(s.HeartRate)
}

func powerSamples(s *analysis.PowerStream) int {
	if s == nil {
		return 0
	}
	return len(s.Watts)
}
