// Package events defines the payloads exchanged on the activity
// topics.
package events

import "time"

// Topic names. Imports are consumed from upstream collectors; insight
// events are produced through the transactional outbox.
const (
	TopicActivityImports  = "activity_imports"
	TopicActivityInsights = "activity_insights"
)

// Event type identifiers, used as outbox event types and schema
// record names. Import requests are produced by upstream collectors
// and carry an activity payload rather than an insight event.
const (
	TypeActivityImportRequested = "activity.import_requested"
	TypeActivityImported        = "activity.imported"
	TypeActivityAnalyzed        = "activity.analyzed"
)

// ActivityImported is emitted when an activity record is accepted
// into the store, whether it arrived over HTTP, Kafka, or a file
// import.
type ActivityImported struct {
	ActivityID  string    `json:"activity_id"`
	Sport       string    `json:"sport"`
	StartedAt   time.Time `json:"started_at"`
	DistanceKm  float64   `json:"distance_km"`
	DurationSec float64   `json:"duration_sec"`
	Source      string    `json:"source"`
	DataKind    string    `json:"data_kind"`
}

// ActivityAnalyzed carries the classification computed at ingest
// time. Downstream dashboards treat it as a hint; the API recomputes
// on read so settings changes are never stale here.
type ActivityAnalyzed struct {
	ActivityID    string    `json:"activity_id"`
	Category      string    `json:"category,omitempty"`
	Tendency      string    `json:"tendency,omitempty"`
	IsLong        bool      `json:"is_long"`
	DataKind      string    `json:"data_kind"`
	IntervalCount int       `json:"interval_count"`
	AnalyzedAt    time.Time `json:"analyzed_at"`
}
