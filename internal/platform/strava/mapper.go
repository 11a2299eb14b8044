package strava

import (
	"fmt"
	"math"
	"strings"
	"time"

	"example.com/insight/internal/analysis"
	"example.com/insight/internal/domain"
)

// Activity is the summary shape the activity list endpoint returns.
type Activity struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Type             string    `json:"type"`
	SportType        string    `json:"sport_type"`
	StartDate        time.Time `json:"start_date"`
	Distance         float64   `json:"distance"`    // meters
	MovingTime       int       `json:"moving_time"` // seconds
	ElapsedTime      int       `json:"elapsed_time"`
	AverageHeartrate float64   `json:"average_heartrate"`
	MaxHeartrate     float64   `json:"max_heartrate"`
	AverageWatts     float64   `json:"average_watts"`
	MaxWatts         float64   `json:"max_watts"`
	DeviceWatts      bool      `json:"device_watts"`
	HasHeartrate     bool      `json:"has_heartrate"`
}

// Streams is the key_by_type=true response shape.
type Streams struct {
	Time           *StreamData[int]     `json:"time"`
	Heartrate      *StreamData[int]     `json:"heartrate"`
	VelocitySmooth *StreamData[float64] `json:"velocity_smooth"`
	Altitude       *StreamData[float64] `json:"altitude"`
	Distance       *StreamData[float64] `json:"distance"`
	Cadence        *StreamData[int]     `json:"cadence"`
	Watts          *StreamData[int]     `json:"watts"`
}

// StreamData carries one stream type.
type StreamData[T any] struct {
	Data         []T    `json:"data"`
	SeriesType   string `json:"series_type"`
	OriginalSize int    `json:"original_size"`
	Resolution   string `json:"resolution"`
}

// MapActivity converts a Strava activity plus optional streams into an
// ingest record. Moving time is used over elapsed so derived pace
// lines up with the samples. A nil streams argument maps summary-only.
func MapActivity(act Activity, streams *Streams) domain.ActivityInput {
	input := domain.ActivityInput{
		ID:          fmt.Sprintf("strava-%d", act.ID),
		Sport:       mapSportType(act),
		StartedAt:   act.StartDate.UTC(),
		DistanceKm:  act.Distance / 1000,
		DurationSec: float64(act.MovingTime),
		Source:      domain.SourceStrava,
	}
	if v := roundPositive(act.AverageHeartrate); v > 0 {
		input.AvgHR = &v
	}
	if v := roundPositive(act.MaxHeartrate); v > 0 {
		input.MaxHR = &v
	}
	if act.DeviceWatts {
		if v := roundPositive(act.AverageWatts); v > 0 {
			input.AvgWatts = &v
		}
		if v := roundPositive(act.MaxWatts); v > 0 {
			input.MaxWatts = &v
		}
	}

	if streams == nil || streams.Time == nil || len(streams.Time.Data) == 0 {
		return input
	}
	offsets := streams.Time.Data
	input.HRStream = mapHRStream(streams.Heartrate, offsets)
	input.PaceStream = mapPaceStream(streams, offsets)
	input.PowerStream = mapPowerStream(streams.Watts, offsets)
	return input
}

// mapHRStream keeps the raw samples; normalization discards the
// physiologically impossible ones later.
func mapHRStream(hr *StreamData[int], offsets []int) *analysis.RawHRStream {
	if !aligned(hr, offsets) {
		return nil
	}
	return &analysis.RawHRStream{HeartRate: hr.Data, Time: offsets}
}

// mapPaceStream converts smoothed velocity to min/km. Stationary
// samples are dropped; the optional channels stay parallel by only
// contributing where they are aligned with the time stream.
func mapPaceStream(streams *Streams, offsets []int) *analysis.PaceStream {
	velocity := streams.VelocitySmooth
	if !aligned(velocity, offsets) {
		return nil
	}
	withAltitude := aligned(streams.Altitude, offsets)
	withDistance := aligned(streams.Distance, offsets)
	withCadence := aligned(streams.Cadence, offsets)

	out := &analysis.PaceStream{}
	for i, v := range velocity.Data {
		if v <= 0 {
			continue
		}
		out.Pace = append(out.Pace, (1000/v)/60)
		out.Time = append(out.Time, offsets[i])
		if withAltitude {
			out.Elevation = append(out.Elevation, streams.Altitude.Data[i])
		}
		if withDistance {
			out.Distance = append(out.Distance, streams.Distance.Data[i]/1000)
		}
		if withCadence {
			out.Cadence = append(out.Cadence, streams.Cadence.Data[i])
		}
	}
	if len(out.Pace) == 0 {
		return nil
	}
	return out
}

func mapPowerStream(watts *StreamData[int], offsets []int) *analysis.PowerStream {
	if !aligned(watts, offsets) {
		return nil
	}
	return &analysis.PowerStream{Watts: watts.Data, Time: offsets}
}

// aligned reports whether a channel exists and matches the time
// stream sample for sample.
func aligned[T any](stream *StreamData[T], offsets []int) bool {
	return stream != nil && len(stream.Data) == len(offsets)
}

// mapSportType folds Strava's sport taxonomy onto the three supported
// sports. Trail and virtual variants count as their base sport.
func mapSportType(act Activity) string {
	sport := act.SportType
	if sport == "" {
		sport = act.Type
	}
	switch {
	case strings.Contains(sport, "Run"):
		return "run"
	case strings.Contains(sport, "Ride"):
		return "ride"
	case strings.Contains(sport, "Swim"):
		return "swim"
	default:
		return strings.ToLower(sport)
	}
}

func roundPositive(v float64) int {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int(math.Round(v))
}
