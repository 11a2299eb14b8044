package analysis

import "math"

const (
	gradeFactor          = 0.035
	ngpWindow            = 30
	minDecouplingSamples = 60
	// Threshold pace is inferred from the fastest 20 minutes of the
	// run, padded 5% toward sustainable.
	thresholdWindowSamples = 1200
	thresholdPaceScale     = 1.05
)

// AdvancedMetrics collects the optional secondary metrics for one
// activity. Nil fields mean the required inputs were missing, the
// normal outcome for basic records.
type AdvancedMetrics struct {
	NormalizedGradedPace *float64 `json:"normalized_graded_pace,omitempty"`
	PaceVariabilityIndex *float64 `json:"pace_variability_index,omitempty"`
	EfficiencyFactor     *float64 `json:"efficiency_factor,omitempty"`
	DecouplingPct        *float64 `json:"decoupling_pct,omitempty"`
	PaceTSS              *float64 `json:"pace_tss,omitempty"`
	PowerTSS             *float64 `json:"power_tss,omitempty"`
	HRTSS                *float64 `json:"hr_tss,omitempty"`
	TrainingStress       *float64 `json:"training_stress,omitempty"`
	TrainingStressSource string   `json:"training_stress_source,omitempty"`
}

// ComputeAdvancedMetrics derives every metric the record's streams
// support. The resolved TrainingStress prefers the pace variant, then
// power, with heart rate as the last fallback.
func ComputeAdvancedMetrics(rec Record, ctx Context) AdvancedMetrics {
	m := AdvancedMetrics{
		NormalizedGradedPace: NormalizedGradedPace(rec.Pace),
		PaceVariabilityIndex: PaceVariabilityIndex(rec.Pace),
		EfficiencyFactor:     EfficiencyFactor(rec.Pace, rec.HR),
		DecouplingPct:        AerobicDecoupling(rec.Pace, rec.HR),
		PaceTSS:              PaceTrainingStress(rec.Pace, rec.DurationSec),
		PowerTSS:             PowerTrainingStress(rec.Power, rec.DurationSec, ctx.FTP),
	}
	avgHR := rec.AvgHR
	if avgHR == 0 && rec.HR != nil {
		avgHR = int(math.Round(meanInt(rec.HR.HeartRate)))
	}
	m.HRTSS = HRTrainingStress(avgHR, rec.DurationSec, ctx)
	switch {
	case m.PaceTSS != nil:
		m.TrainingStress, m.TrainingStressSource = m.PaceTSS, "pace"
	case m.PowerTSS != nil:
		m.TrainingStress, m.TrainingStressSource = m.PowerTSS, "power"
	case m.HRTSS != nil:
		m.TrainingStress, m.TrainingStressSource = m.HRTSS, "hr"
	}
	return m
}

// GradeAdjustedPace flattens one pace sample: a positive grade makes
// the effective pace faster, a negative one slower.
func GradeAdjustedPace(pace, gradePct float64) float64 {
	return pace * (1 - gradePct*gradeFactor)
}

// gradePercents derives per-sample grades from the parallel elevation
// and distance arrays; all zeros when either is missing.
func gradePercents(stream *PaceStream) []float64 {
	grades := make([]float64, len(stream.Pace))
	if len(stream.Elevation) != len(stream.Pace) || len(stream.Distance) != len(stream.Pace) {
		return grades
	}
	for i := 1; i < len(stream.Pace); i++ {
		run := (stream.Distance[i] - stream.Distance[i-1]) * 1000
		if run <= 0 {
			continue
		}
		rise := stream.Elevation[i] - stream.Elevation[i-1]
		grades[i] = rise / run * 100
	}
	return grades
}

// NormalizedGradedPace mirrors cycling normalized power: grade-adjust
// every sample, smooth with a 30-sample trailing window, average the
// 4th powers, take the 4th root. Needs at least 30 samples.
func NormalizedGradedPace(stream *PaceStream) *float64 {
	if stream == nil || len(stream.Pace) < ngpWindow {
		return nil
	}
	grades := gradePercents(stream)
	adjusted := make([]float64, len(stream.Pace))
	for i, p := range stream.Pace {
		adjusted[i] = GradeAdjustedPace(p, grades[i])
	}
	v := fourthPowerMean(adjusted, ngpWindow)
	if v <= 0 {
		return nil
	}
	return &v
}

// normalizedPower is the same rolling 4th-power shape over watts.
func normalizedPower(stream *PowerStream) *float64 {
	if stream == nil || len(stream.Watts) < ngpWindow {
		return nil
	}
	values := make([]float64, len(stream.Watts))
	for i, w := range stream.Watts {
		values[i] = float64(w)
	}
	v := fourthPowerMean(values, ngpWindow)
	if v <= 0 {
		return nil
	}
	return &v
}

func fourthPowerMean(values []float64, window int) float64 {
	windowSum := 0.0
	fourthSum := 0.0
	n := 0
	for i, v := range values {
		windowSum += v
		if i >= window {
			windowSum -= values[i-window]
		}
		if i >= window-1 {
			avg := windowSum / float64(window)
			fourthSum += avg * avg * avg * avg
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Pow(fourthSum/float64(n), 0.25)
}

// PaceVariabilityIndex is NGP over average pace; near 1.0 means an
// even effort.
func PaceVariabilityIndex(stream *PaceStream) *float64 {
	ngp := NormalizedGradedPace(stream)
	if ngp == nil {
		return nil
	}
	avg := meanFloat(stream.Pace)
	if avg <= 0 {
		return nil
	}
	v := *ngp / avg
	return &v
}

// EfficiencyFactor divides NGP by the average heart rate.
func EfficiencyFactor(pace *PaceStream, hr *HRStream) *float64 {
	ngp := NormalizedGradedPace(pace)
	if ngp == nil || hr == nil || len(hr.HeartRate) == 0 {
		return nil
	}
	avgHR := meanInt(hr.HeartRate)
	if avgHR <= 0 {
		return nil
	}
	v := *ngp / avgHR
	return &v
}

// AerobicDecoupling compares pace-per-heartbeat efficiency between
// the two halves of an activity, split at the midpoint sample index.
// Positive drift means the second half cost more. Needs 60 paired
// samples; the result is rounded to one decimal.
func AerobicDecoupling(pace *PaceStream, hr *HRStream) *float64 {
	if pace == nil || hr == nil {
		return nil
	}
	n := len(pace.Pace)
	if len(hr.HeartRate) < n {
		n = len(hr.HeartRate)
	}
	if n < minDecouplingSamples {
		return nil
	}
	half := n / 2
	firstEF := halfEfficiency(pace.Pace[:half], hr.HeartRate[:half])
	secondEF := halfEfficiency(pace.Pace[half:n], hr.HeartRate[half:n])
	if firstEF == 0 {
		return nil
	}
	drift := (secondEF - firstEF) / firstEF * 100
	drift = math.Round(drift*10) / 10
	return &drift
}

func halfEfficiency(paces []float64, hrs []int) float64 {
	avgHR := meanInt(hrs)
	if avgHR == 0 {
		return 0
	}
	return meanFloat(paces) / avgHR
}

// tss is the standard hours × intensity² × 100 shape shared by every
// training-stress variant.
func tss(durationSec, intensity float64) float64 {
	return durationSec / 3600 * intensity * intensity * 100
}

// PaceTrainingStress estimates stress from NGP against a threshold
// pace inferred from the run's best 20 minutes. Runs shorter than the
// inference window yield nil and callers fall back to heart rate.
func PaceTrainingStress(stream *PaceStream, durationSec float64) *float64 {
	if stream == nil || durationSec <= 0 {
		return nil
	}
	ngp := NormalizedGradedPace(stream)
	if ngp == nil || *ngp <= 0 {
		return nil
	}
	threshold := thresholdPace(stream)
	if threshold == nil {
		return nil
	}
	v := tss(durationSec, *threshold / *ngp)
	return &v
}

// thresholdPace is the fastest 20-minute rolling pace padded 5%
// toward what the athlete could hold for an hour.
func thresholdPace(stream *PaceStream) *float64 {
	if len(stream.Pace) < thresholdWindowSamples {
		return nil
	}
	sum := 0.0
	best := math.MaxFloat64
	for i, v := range stream.Pace {
		sum += v
		if i >= thresholdWindowSamples {
			sum -= stream.Pace[i-thresholdWindowSamples]
		}
		if i >= thresholdWindowSamples-1 {
			avg := sum / thresholdWindowSamples
			if avg < best {
				best = avg
			}
		}
	}
	v := best * thresholdPaceScale
	return &v
}

// PowerTrainingStress uses normalized power against FTP.
func PowerTrainingStress(stream *PowerStream, durationSec float64, ftp int) *float64 {
	if stream == nil || durationSec <= 0 || ftp <= 0 {
		return nil
	}
	np := normalizedPower(stream)
	if np == nil {
		return nil
	}
	v := tss(durationSec, *np/float64(ftp))
	return &v
}

// HRTrainingStress falls back to the average heart rate against the
// upper aerobic boundary.
func HRTrainingStress(avgHR int, durationSec float64, ctx Context) *float64 {
	if avgHR <= 0 || durationSec <= 0 || ctx.MaxHR <= 0 {
		return nil
	}
	threshold := ctx.HRBounds().Z4Upper
	if threshold <= 0 {
		return nil
	}
	v := tss(durationSec, float64(avgHR)/threshold)
	return &v
}
