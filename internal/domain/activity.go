package domain

import (
	"time"

	"example.com/insight/internal/analysis"
)

// Provenance tags. Dedup prefers richer sources; analysis never looks
// at them.
const (
	SourceManual = "manual"
	SourceImport = "import"
	SourceStrava = "strava"
	SourceCache  = "cache"
)

// Activity is the canonical workout record stored in PostgreSQL.
// Streams are persisted in normalized form; the raw samples are gone
// once ingest has run.
type Activity struct {
	ID          string
	TenantID    string
	Sport       analysis.Sport
	StartedAt   time.Time
	DistanceKm  float64
	DurationSec float64
	AvgHR       *int
	MaxHR       *int
	AvgWatts    *int
	MaxWatts    *int
	HRStream    *analysis.HRStream
	PaceStream  *analysis.PaceStream
	PowerStream *analysis.PowerStream
	HRKind      analysis.DataKind
	PowerKind   analysis.DataKind
	Source      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Record builds the analyzer-facing view of the activity.
func (a *Activity) Record() analysis.Record {
	return analysis.Record{
		Sport:       a.Sport,
		StartedAt:   a.StartedAt,
		DistanceKm:  a.DistanceKm,
		DurationSec: a.DurationSec,
		AvgHR:       intValue(a.AvgHR),
		MaxHR:       intValue(a.MaxHR),
		AvgWatts:    intValue(a.AvgWatts),
		MaxWatts:    intValue(a.MaxWatts),
		HR:          a.HRStream,
		Pace:        a.PaceStream,
		Power:       a.PowerStream,
		HRKind:      a.HRKind,
		PowerKind:   a.PowerKind,
	}
}

// DataKind reports the richest signal the record carries across both
// channels.
func (a *Activity) DataKind() analysis.DataKind {
	if a.HRKind == analysis.DataDetailed || a.PowerKind == analysis.DataDetailed {
		return analysis.DataDetailed
	}
	if a.HRKind == analysis.DataBasic || a.PowerKind == analysis.DataBasic {
		return analysis.DataBasic
	}
	return analysis.DataNone
}

// ActivityInput is the wire shape an activity arrives in, shared by
// the HTTP import endpoint, the Kafka imports topic, and the file
// parsers. Streams are raw; normalization happens exactly once, at
// ingest.
type ActivityInput struct {
	ID          string                `json:"id,omitempty"`
	TenantID    string                `json:"tenant_id,omitempty"`
	Sport       string                `json:"sport"`
	StartedAt   time.Time             `json:"started_at"`
	DistanceKm  float64               `json:"distance_km"`
	DurationSec float64               `json:"duration_sec"`
	AvgHR       *int                  `json:"avg_hr,omitempty"`
	MaxHR       *int                  `json:"max_hr,omitempty"`
	AvgWatts    *int                  `json:"avg_watts,omitempty"`
	MaxWatts    *int                  `json:"max_watts,omitempty"`
	HRStream    *analysis.RawHRStream `json:"hr_stream,omitempty"`
	PaceStream  *analysis.PaceStream  `json:"pace_stream,omitempty"`
	PowerStream *analysis.PowerStream `json:"power_stream,omitempty"`
	Source      string                `json:"source,omitempty"`
}

// Settings is the per-athlete analysis configuration. A row is seeded
// with defaults the first time it is read.
type Settings struct {
	Zones     analysis.Fractions
	MaxHR     int
	FTP       int
	UpdatedAt time.Time
}

// DefaultSettings mirrors analysis.DefaultContext.
func DefaultSettings() Settings {
	ctx := analysis.DefaultContext()
	return Settings{Zones: ctx.Zones, MaxHR: ctx.MaxHR, FTP: ctx.FTP}
}

// AnalysisContext converts the settings into the context the
// analyzers take.
func (s Settings) AnalysisContext() analysis.Context {
	return analysis.Context{Zones: s.Zones, MaxHR: s.MaxHR, FTP: s.FTP}
}

// Cursor models the pagination token.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

// Event is an outbox intent persisted in the same transaction as the
// activity it describes.
type Event struct {
	Type    string
	Key     string
	Payload any
}

func intValue(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
