package ingest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"example.com/insight/internal/analysis"
	"example.com/insight/internal/domain"
)

// Trackpoint extension elements (TPX) live in a separate namespace;
// encoding/xml matches them by local name, so no prefix appears here.
type tcxFile struct {
	XMLName    xml.Name      `xml:"TrainingCenterDatabase"`
	Activities []tcxActivity `xml:"Activities>Activity"`
}

type tcxActivity struct {
	Sport string   `xml:"Sport,attr"`
	ID    string   `xml:"Id"`
	Laps  []tcxLap `xml:"Lap"`
}

type tcxLap struct {
	StartTime   string          `xml:"StartTime,attr"`
	TotalTime   float64         `xml:"TotalTimeSeconds"`
	Distance    float64         `xml:"DistanceMeters"`
	AvgHR       int             `xml:"AverageHeartRateBpm>Value"`
	MaxHR       int             `xml:"MaximumHeartRateBpm>Value"`
	Trackpoints []tcxTrackpoint `xml:"Track>Trackpoint"`
}

type tcxTrackpoint struct {
	Time      string   `xml:"Time"`
	Altitude  *float64 `xml:"AltitudeMeters"`
	Distance  *float64 `xml:"DistanceMeters"`
	HeartRate int      `xml:"HeartRateBpm>Value"`
	Cadence   *int     `xml:"Cadence"`
	Watts     int      `xml:"Extensions>TPX>Watts"`
}

// tcxTimeLayouts mirror what exporters actually write; the schema says
// RFC3339 but fractional seconds and bare Z both occur in the wild.
var tcxTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
}

// ParseTCX reads a Training Center XML document. Each Activity element
// becomes one record; laps provide the summary, trackpoints the
// streams. Pace is derived from cumulative distance deltas.
func ParseTCX(r io.Reader) ([]domain.ActivityInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read tcx: %w", err)
	}
	var doc tcxFile
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tcx: %w", err)
	}
	if len(doc.Activities) == 0 {
		return nil, errors.New("tcx document has no activities")
	}

	inputs := make([]domain.ActivityInput, 0, len(doc.Activities))
	for i, act := range doc.Activities {
		input, err := mapTCXActivity(act)
		if err != nil {
			return nil, fmt.Errorf("tcx activity %d: %w", i+1, err)
		}
		inputs = append(inputs, input)
	}
	return inputs, nil
}

func mapTCXActivity(act tcxActivity) (domain.ActivityInput, error) {
	if len(act.Laps) == 0 {
		return domain.ActivityInput{}, errors.New("no laps")
	}

	input := domain.ActivityInput{
		Sport:  tcxSport(act.Sport),
		Source: domain.SourceImport,
	}

	var hrWeight, hrSum float64
	for _, lap := range act.Laps {
		input.DurationSec += lap.TotalTime
		input.DistanceKm += lap.Distance / 1000
		if lap.AvgHR > 0 && lap.TotalTime > 0 {
			hrSum += float64(lap.AvgHR) * lap.TotalTime
			hrWeight += lap.TotalTime
		}
		if lap.MaxHR > 0 && (input.MaxHR == nil || lap.MaxHR > *input.MaxHR) {
			maxHR := lap.MaxHR
			input.MaxHR = &maxHR
		}
	}
	if hrWeight > 0 {
		avgHR := int(math.Round(hrSum / hrWeight))
		input.AvgHR = &avgHR
	}

	started, ok := parseTCXTime(act.Laps[0].StartTime)
	if !ok {
		started, ok = parseTCXTime(act.ID)
	}

	streams := newTCXStreams()
	for _, lap := range act.Laps {
		for _, tp := range lap.Trackpoints {
			ts, tsOK := parseTCXTime(tp.Time)
			if !tsOK {
				continue
			}
			if !ok {
				started, ok = ts, true
			}
			streams.add(ts, started, tp)
		}
	}
	if !ok {
		return domain.ActivityInput{}, errors.New("no usable timestamp")
	}
	input.StartedAt = started
	input.HRStream = streams.hr()
	input.PaceStream = streams.pace()
	input.PowerStream = streams.power()
	return input, nil
}

// tcxStreams accumulates per-trackpoint samples. Altitude and cadence
// carry the last seen value forward so the pace arrays stay parallel.
type tcxStreams struct {
	hrValues  []int
	hrTimes   []int
	watts     []int
	wattTimes []int

	paces      []float64
	paceTimes  []int
	elevations []float64
	distances  []float64
	cadences   []int

	prevTime time.Time
	prevDist float64
	havePrev bool

	lastAlt float64
	sawAlt  bool
	lastCad int
	sawCad  bool
}

func newTCXStreams() *tcxStreams {
	return &tcxStreams{}
}

func (s *tcxStreams) add(ts, started time.Time, tp tcxTrackpoint) {
	offset := int(ts.Sub(started).Seconds())

	if tp.HeartRate > 0 {
		s.hrValues = append(s.hrValues, tp.HeartRate)
		s.hrTimes = append(s.hrTimes, offset)
	}
	if tp.Watts > 0 {
		s.watts = append(s.watts, tp.Watts)
		s.wattTimes = append(s.wattTimes, offset)
	}
	if tp.Altitude != nil {
		s.lastAlt = *tp.Altitude
		s.sawAlt = true
	}
	if tp.Cadence != nil {
		s.lastCad = *tp.Cadence
		s.sawCad = true
	}
	if tp.Distance == nil {
		return
	}

	dist := *tp.Distance
	if s.havePrev {
		dKm := (dist - s.prevDist) / 1000
		dMin := ts.Sub(s.prevTime).Minutes()
		if dKm > 0 && dMin > 0 {
			s.paces = append(s.paces, dMin/dKm)
			s.paceTimes = append(s.paceTimes, offset)
			s.elevations = append(s.elevations, s.lastAlt)
			s.distances = append(s.distances, dist/1000)
			s.cadences = append(s.cadences, s.lastCad)
		}
	}
	s.prevTime, s.prevDist, s.havePrev = ts, dist, true
}

func (s *tcxStreams) hr() *analysis.RawHRStream {
	if len(s.hrValues) == 0 {
		return nil
	}
	return &analysis.RawHRStream{HeartRate: s.hrValues, Time: s.hrTimes}
}

func (s *tcxStreams) pace() *analysis.PaceStream {
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

func (s *tcxStreams) power() *analysis.PowerStream {
	if len(s.watts) == 0 {
		return nil
	}
	return &analysis.PowerStream{Watts: s.watts, Time: s.wattTimes}
}

func tcxSport(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "running":
		return "run"
	case "biking":
		return "ride"
	case "swimming":
		return "swim"
	default:
		return strings.ToLower(strings.TrimSpace(raw))
	}
}

func parseTCXTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range tcxTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
