package analysis

// Validity windows for raw samples. Values on or outside the bounds
// are sensor noise and are dropped before any analysis sees them.
const (
	maxValidHR    = 250  // bpm, open interval (0, 250)
	maxValidPace  = 20.0 // min/km, open interval (0, 20)
	maxValidWatts = 2500 // watts, open interval (0, 2500)
)

// HRStream is a normalized heart-rate time series. Both slices have
// equal length; time is in seconds from activity start and ascends.
type HRStream struct {
	HeartRate []int `json:"heartrate"`
	Time      []int `json:"time"`
}

// PaceStream is a normalized pace time series in minutes per km. The
// optional parallel arrays (same length when present) feed the
// advanced metrics.
type PaceStream struct {
	Pace      []float64 `json:"pace"`
	Time      []int     `json:"time"`
	Elevation []float64 `json:"elevation,omitempty"`
	Distance  []float64 `json:"distance,omitempty"`
	Cadence   []int     `json:"cadence,omitempty"`
}

// PowerStream is a normalized power time series in watts.
type PowerStream struct {
	Watts []int `json:"watts"`
	Time  []int `json:"time"`
}

// RawHRStream is the shape heart-rate data arrives in. Canonical
// inputs fill HeartRate/Time; legacy exports instead carry a records
// list with per-sample fields.
type RawHRStream struct {
	HeartRate []int         `json:"heartrate,omitempty"`
	Time      []int         `json:"time,omitempty"`
	Records   []RawHRRecord `json:"records,omitempty"`
}

// RawHRRecord is one sample of the legacy records shape. Time is
// optional; missing times are synthesized as the sample index.
type RawHRRecord struct {
	HeartRate int  `json:"heart_rate"`
	Time      *int `json:"time,omitempty"`
}

// NormalizeHRStream coerces either raw shape into an HRStream,
// dropping samples outside (0,250) bpm. It returns nil when the input
// is absent or nothing survives filtering: nil is the explicit "no
// data" signal and is never conflated with an empty stream.
func NormalizeHRStream(raw *RawHRStream) *HRStream {
	if raw == nil {
		return nil
	}
	values := raw.HeartRate
	times := raw.Time
	if len(values) == 0 && len(raw.Records) > 0 {
		values = make([]int, 0, len(raw.Records))
		times = make([]int, 0, len(raw.Records))
		for i, rec := range raw.Records {
			values = append(values, rec.HeartRate)
			if rec.Time != nil {
				times = append(times, *rec.Time)
			} else {
				times = append(times, i)
			}
		}
	}
	if len(values) == 0 {
		return nil
	}
	out := &HRStream{
		HeartRate: make([]int, 0, len(values)),
		Time:      make([]int, 0, len(values)),
	}
	for i, v := range values {
		if v <= 0 || v >= maxValidHR {
			continue
		}
		t := i
		if i < len(times) {
			t = times[i]
		}
		out.HeartRate = append(out.HeartRate, v)
		out.Time = append(out.Time, t)
	}
	if len(out.HeartRate) == 0 {
		return nil
	}
	return out
}

// NormalizePaceStream drops pace samples outside (0,20) min/km and
// keeps the optional parallel arrays aligned with the survivors.
// Returns nil when the input is absent or fully filtered.
func NormalizePaceStream(raw *PaceStream) *PaceStream {
	if raw == nil || len(raw.Pace) == 0 {
		return nil
	}
	out := &PaceStream{
		Pace: make([]float64, 0, len(raw.Pace)),
		Time: make([]int, 0, len(raw.Pace)),
	}
	for i, p := range raw.Pace {
		if p <= 0 || p >= maxValidPace {
			continue
		}
		out.Pace = append(out.Pace, p)
		if i < len(raw.Time) {
			out.Time = append(out.Time, raw.Time[i])
		} else {
			out.Time = append(out.Time, i)
		}
		if i < len(raw.Elevation) {
			out.Elevation = append(out.Elevation, raw.Elevation[i])
		}
		if i < len(raw.Distance) {
			out.Distance = append(out.Distance, raw.Distance[i])
		}
		if i < len(raw.Cadence) {
			out.Cadence = append(out.Cadence, raw.Cadence[i])
		}
	}
	if len(out.Pace) == 0 {
		return nil
	}
	return out
}

// NormalizePowerStream drops power samples outside (0,2500) watts.
// Returns nil when the input is absent or fully filtered.
func NormalizePowerStream(raw *PowerStream) *PowerStream {
	if raw == nil || len(raw.Watts) == 0 {
		return nil
	}
	out := &PowerStream{
		Watts: make([]int, 0, len(raw.Watts)),
		Time:  make([]int, 0, len(raw.Watts)),
	}
	for i, w := range raw.Watts {
		if w <= 0 || w >= maxValidWatts {
			continue
		}
		out.Watts = append(out.Watts, w)
		if i < len(raw.Time) {
			out.Time = append(out.Time, raw.Time[i])
		} else {
			out.Time = append(out.Time, i)
		}
	}
	if len(out.Watts) == 0 {
		return nil
	}
	return out
}
