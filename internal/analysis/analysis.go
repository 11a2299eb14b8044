// Package analysis implements the activity analysis pipeline: stream
// normalization, zone distributions, interval detection, workout
// classification, training-load reports, and advanced pace metrics.
// Every function is a pure computation over its inputs. Missing data
// yields nil results or explicit data-kind tags, never errors.
package analysis

import (
	"errors"
	"fmt"
	"time"
)

// Sport identifies the activity discipline.
type Sport string

const (
	SportRun  Sport = "run"
	SportRide Sport = "ride"
	SportSwim Sport = "swim"
)

// ErrInvalidConfig rejects zone fractions or maxima that fail the
// validation contract. The previously active configuration stays in
// effect when an update is rejected.
var ErrInvalidConfig = errors.New("invalid analysis configuration")

// DataKind tags how much signal detail an activity carries for one
// channel (heart rate or power). It is computed once at
// normalization time and passed along explicitly so downstream rules
// never re-derive it.
type DataKind string

const (
	DataNone     DataKind = "none"
	DataBasic    DataKind = "basic"
	DataDetailed DataKind = "detailed"
)

// KindOf derives the data kind for one channel: a non-empty stream is
// detailed, a bare average is basic, otherwise none.
func KindOf(avg int, streamLen int) DataKind {
	switch {
	case streamLen > 0:
		return DataDetailed
	case avg > 0:
		return DataBasic
	default:
		return DataNone
	}
}

// Context carries the athlete configuration every analyzer needs.
// Callers pass it explicitly; the package keeps no ambient state, so
// re-running an analyzer with a fresh Context is the only cache
// invalidation there is.
type Context struct {
	Zones Fractions
	MaxHR int
	FTP   int
}

// DefaultContext is the configuration in effect before an athlete
// saves their own settings.
func DefaultContext() Context {
	return Context{Zones: DefaultFractions(), MaxHR: 190, FTP: 250}
}

// Validate checks the fractions plus positive maxima.
func (c Context) Validate() error {
	if err := c.Zones.Validate(); err != nil {
		return err
	}
	if c.MaxHR <= 0 {
		return fmt.Errorf("%w: max hr must be positive", ErrInvalidConfig)
	}
	if c.FTP <= 0 {
		return fmt.Errorf("%w: ftp must be positive", ErrInvalidConfig)
	}
	return nil
}

// HRBounds converts the fractional zones to absolute bpm boundaries.
func (c Context) HRBounds() Bounds { return c.Zones.BoundsFor(c.MaxHR) }

// PowerBounds converts the fractional zones to absolute watt
// boundaries.
func (c Context) PowerBounds() Bounds { return c.Zones.BoundsFor(c.FTP) }

// Record is the analyzer-facing view of one stored activity. Basic
// summary fields use zero for "not provided"; stream pointers are nil
// when the source carried none. The kind tags are fixed when the
// record is built and are the only place optionality is decided.
type Record struct {
	Sport       Sport
	StartedAt   time.Time
	DistanceKm  float64
	DurationSec float64
	AvgHR       int
	MaxHR       int
	AvgWatts    int
	MaxWatts    int
	HR          *HRStream
	Pace        *PaceStream
	Power       *PowerStream
	HRKind      DataKind
	PowerKind   DataKind
}
