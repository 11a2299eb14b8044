package ingest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/tormoder/fit"

	"example.com/insight/internal/analysis"
	"example.com/insight/internal/domain"
)

// ParseFIT decodes a FIT activity file. The first session provides
// the summary; record messages provide the streams. FIT marks absent
// fields with type-maximum sentinels, which are stripped here.
func ParseFIT(r io.Reader) ([]domain.ActivityInput, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode fit: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("fit file is not an activity: %w", err)
	}
	input, err := mapFITActivity(activity)
	if err != nil {
		return nil, err
	}
	return []domain.ActivityInput{input}, nil
}

func mapFITActivity(activity *fit.ActivityFile) (domain.ActivityInput, error) {
	if len(activity.Sessions) == 0 {
		return domain.ActivityInput{}, errors.New("fit activity has no session")
	}
	session := activity.Sessions[0]

	input := domain.ActivityInput{
		Sport:       fitSport(session.Sport),
		StartedAt:   fitTime(session.StartTime),
		DistanceKm:  finitePositive(session.GetTotalDistanceScaled()) / 1000,
		DurationSec: finitePositive(session.GetTotalTimerTimeScaled()),
		Source:      domain.SourceImport,
	}
	if hr := int(session.AvgHeartRate); session.AvgHeartRate != math.MaxUint8 && hr > 0 {
		input.AvgHR = &hr
	}
	if hr := int(session.MaxHeartRate); session.MaxHeartRate != math.MaxUint8 && hr > 0 {
		input.MaxHR = &hr
	}
	if w := int(session.AvgPower); session.AvgPower != math.MaxUint16 && w > 0 {
		input.AvgWatts = &w
	}
	if w := int(session.MaxPower); session.MaxPower != math.MaxUint16 && w > 0 {
		input.MaxWatts = &w
	}

	streams := collectFITStreams(activity.Records, input.StartedAt)
	if input.StartedAt.IsZero() {
		if streams.start.IsZero() {
			return domain.ActivityInput{}, errors.New("fit activity has no usable timestamp")
		}
		input.StartedAt = streams.start
	}
	if input.DurationSec == 0 {
		input.DurationSec = streams.lastOffset
	}
	if input.DistanceKm == 0 {
		input.DistanceKm = streams.lastDistanceKm
	}
	input.HRStream = streams.hr()
	input.PaceStream = streams.pace()
	input.PowerStream = streams.power()
	return input, nil
}

type fitStreams struct {
	start          time.Time
	lastOffset     float64
	lastDistanceKm float64

	hrValues  []int
	hrTimes   []int
	watts     []int
	wattTimes []int

	paces      []float64
	paceTimes  []int
	elevations []float64
	distances  []float64
	cadences   []int

	lastAlt float64
	sawAlt  bool
	lastCad int
	sawCad  bool
}

// collectFITStreams walks record messages in file order. Pace samples
// require a valid speed; altitude, cadence, and cumulative distance
// ride along carried forward so the arrays stay parallel.
func collectFITStreams(records []*fit.RecordMsg, start time.Time) *fitStreams {
	s := &fitStreams{}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		ts := fitTime(rec.Timestamp)
		if ts.IsZero() {
			continue
		}
		if s.start.IsZero() {
			s.start = ts
		}
		base := start
		if base.IsZero() {
			base = s.start
		}
		offset := int(ts.Sub(base).Seconds())
		s.lastOffset = float64(offset)

		if rec.HeartRate != math.MaxUint8 && rec.HeartRate > 0 {
			s.hrValues = append(s.hrValues, int(rec.HeartRate))
			s.hrTimes = append(s.hrTimes, offset)
		}
		if rec.Power != math.MaxUint16 {
			s.watts = append(s.watts, int(rec.Power))
			s.wattTimes = append(s.wattTimes, offset)
		}
		if alt := rec.GetAltitudeScaled(); isFinite(alt) {
			s.lastAlt = alt
			s.sawAlt = true
		}
		if cad, ok := fitCadence(rec); ok {
			s.lastCad = cad
			s.sawCad = true
		}
		if dist := rec.GetDistanceScaled(); isFinite(dist) && dist >= 0 {
			s.lastDistanceKm = dist / 1000
		}

		speed, ok := fitSpeed(rec)
		if !ok {
			continue
		}
		s.paces = append(s.paces, (1000/speed)/60)
		s.paceTimes = append(s.paceTimes, offset)
		s.elevations = append(s.elevations, s.lastAlt)
		s.distances = append(s.distances, s.lastDistanceKm)
		s.cadences = append(s.cadences, s.lastCad)
	}
	return s
}

func (s *fitStreams) hr() *analysis.RawHRStream {
	if len(s.hrValues) == 0 {
		return nil
	}
	return &analysis.RawHRStream{HeartRate: s.hrValues, Time: s.hrTimes}
}

func (s *fitStreams) pace() *analysis.PaceStream {
	if len(s.paces) == 0 {
		return nil
	}
	stream := &analysis.PaceStream{
		Pace:     s.paces,
		Time:     s.paceTimes,
		Distance: s.distances,
	}
	if s.sawAlt {
		stream.Elevation = s.elevations
	}
	if s.sawCad {
		stream.Cadence = s.cadences
	}
	return stream
}

func (s *fitStreams) power() *analysis.PowerStream {
	if len(s.watts) == 0 {
		return nil
	}
	return &analysis.PowerStream{Watts: s.watts, Time: s.wattTimes}
}

// fitSpeed prefers the enhanced field and never reports zero: pace is
// undefined while stationary.
func fitSpeed(rec *fit.RecordMsg) (float64, bool) {
	if v := rec.GetEnhancedSpeedScaled(); isFinite(v) && v > 0 {
		return v, true
	}
	if v := rec.GetSpeedScaled(); isFinite(v) && v > 0 {
		return v, true
	}
	return 0, false
}

func fitCadence(rec *fit.RecordMsg) (int, bool) {
	if v := rec.GetCadence256Scaled(); isFinite(v) && v > 0 {
		return int(math.Round(v)), true
	}
	if rec.Cadence != math.MaxUint8 {
		return int(rec.Cadence), true
	}
	return 0, false
}

func fitSport(sport fit.Sport) string {
	switch sport {
	case fit.SportRunning:
		return "run"
	case fit.SportCycling:
		return "ride"
	case fit.SportSwimming:
		return "swim"
	default:
		return strings.ToLower(fmt.Sprint(sport))
	}
}

// fitTime normalizes FIT timestamps: the epoch sentinel counts as
// absent.
func fitTime(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t.UTC()
}

func finitePositive(v float64) float64 {
	if !isFinite(v) || v < 0 {
		return 0
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
