package analysis

import (
	"fmt"
	"math"
)

// Interval detector tuning. The structure of the algorithm matters
// more than the exact values; tests assert qualitative behavior.
const (
	minIntervalSamples  = 10
	stabilityWindow     = 5
	edgeSearchFraction  = 0.4
	warmupLowerBand     = 0.85
	warmupUpperBand     = 1.15
	warmupDeltaFloor    = -0.05
	cooldownDeltaFloor  = 0.03
	cooldownRelative    = 1.08
	speedThresholdSigma = 0.4
	minSegmentSeconds   = 30.0
	minSegmentSamples   = 3
	steadyStateRelDiff  = 0.06
	intervalCVThreshold = 0.12
)

// IntervalReport describes detected interval structure in a pace
// stream. Intervals counts the retained fast segments; Details is
// only set when the activity is judged to be interval training.
type IntervalReport struct {
	IsInterval             bool    `json:"is_interval"`
	Intervals              int     `json:"intervals"`
	Details                string  `json:"details,omitempty"`
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
}

// DetectIntervals decides whether a pace stream shows structured
// interval training. The detector trims warmup and cooldown from the
// run, segments the remaining core by a speed threshold, and requires
// the fast and slow groups to differ meaningfully before calling the
// run an interval session.
func DetectIntervals(stream *PaceStream) IntervalReport {
	if stream == nil {
		return IntervalReport{}
	}
	hasTime := len(stream.Time) > 0
	paces := make([]float64, 0, len(stream.Pace))
	times := make([]int, 0, len(stream.Pace))
	for i, p := range stream.Pace {
		if p <= 0 || p >= maxValidPace {
			continue
		}
		paces = append(paces, p)
		if i < len(stream.Time) {
			times = append(times, stream.Time[i])
		} else {
			times = append(times, i)
		}
	}
	if len(paces) < minIntervalSamples {
		return IntervalReport{}
	}

	window := len(paces) / 20
	if window < 5 {
		window = 5
	}
	smoothed := movingAverage(paces, window)
	start := warmupBoundary(paces, smoothed)
	end := cooldownBoundary(paces, smoothed)
	if end-start < minIntervalSamples {
		return IntervalReport{}
	}
	corePaces := paces[start:end]
	coreTimes := times[start:end]
	cv := coefficientOfVariation(corePaces)

	speeds := make([]float64, len(corePaces))
	for i, p := range corePaces {
		speeds[i] = 1 / p
	}
	meanSpeed := meanFloat(speeds)
	threshold := meanSpeed + speedThresholdSigma*stddev(speeds, meanSpeed)

	segmentSeconds := func(s, e int) float64 {
		if !hasTime {
			return float64(e - s)
		}
		return float64(coreTimes[e-1] - coreTimes[s])
	}

	var fastSegs, slowSegs []span
	flush := func(s, e int, fast bool) {
		if e-s < minSegmentSamples || segmentSeconds(s, e) < minSegmentSeconds {
			return
		}
		if fast {
			fastSegs = append(fastSegs, span{s, e})
		} else {
			slowSegs = append(slowSegs, span{s, e})
		}
	}
	segStart := 0
	fast := speeds[0] > threshold
	for i := 1; i < len(speeds); i++ {
		if (speeds[i] > threshold) != fast {
			flush(segStart, i, fast)
			segStart = i
			fast = speeds[i] > threshold
		}
	}
	flush(segStart, len(speeds), fast)

	report := IntervalReport{Intervals: len(fastSegs), CoefficientOfVariation: cv}

	// Fast and slow groups that sit within 6% of each other are one
	// steady effort chopped up by noise, not intervals.
	if len(fastSegs) > 0 && len(slowSegs) > 0 {
		fastSpeed := groupMean(speeds, fastSegs)
		slowSpeed := groupMean(speeds, slowSegs)
		if slowSpeed > 0 && (fastSpeed-slowSpeed)/slowSpeed < steadyStateRelDiff {
			return report
		}
	}

	if !((cv > intervalCVThreshold && len(fastSegs) >= 2) || len(fastSegs) >= 3) {
		return report
	}
	report.IsInterval = true

	fastPace := groupMean(corePaces, fastSegs)
	slowPace := meanFloat(corePaces)
	if len(slowSegs) > 0 {
		slowPace = groupMean(corePaces, slowSegs)
	}
	report.Details = fmt.Sprintf("%d intervals, fast %s/km, slow %s/km",
		len(fastSegs), FormatPace(fastPace), FormatPace(slowPace))
	return report
}

// warmupBoundary finds where the smoothed pace settles near the
// overall average and stops accelerating. Returns 0 (nothing trimmed)
// when no stable point shows up in the first 40% of the run.
func warmupBoundary(paces, smoothed []float64) int {
	overall := meanFloat(paces)
	if overall <= 0 {
		return 0
	}
	limit := int(float64(len(paces)) * edgeSearchFraction)
	stable := 0
	for i := 1; i < limit; i++ {
		ratio := smoothed[i] / overall
		delta := smoothed[i] - smoothed[i-1]
		if ratio >= warmupLowerBand && ratio <= warmupUpperBand && delta > warmupDeltaFloor {
			stable++
			if stable >= stabilityWindow {
				boundary := i - stabilityWindow
				if boundary < 0 {
					boundary = 0
				}
				return boundary
			}
		} else {
			stable = 0
		}
	}
	return 0
}

// cooldownBoundary finds the terminal fade: the longest suffix of the
// run whose smoothed pace keeps slowing (or stays slow) relative to
// the mid-run average. Returns len(paces) (nothing trimmed) when the
// suffix is shorter than the stability window or would reach past the
// last 40% of the run.
func cooldownBoundary(paces, smoothed []float64) int {
	n := len(paces)
	midLo := int(float64(n) * 0.3)
	midHi := int(float64(n) * 0.7)
	if midHi <= midLo {
		return n
	}
	mid := meanFloat(paces[midLo:midHi])
	if mid <= 0 {
		return n
	}
	earliest := int(float64(n) * (1 - edgeSearchFraction))
	boundary := n
	for i := n - 1; i > earliest && i > 0; i-- {
		delta := smoothed[i] - smoothed[i-1]
		relative := smoothed[i] / mid
		if delta > cooldownDeltaFloor || relative > cooldownRelative {
			boundary = i
			continue
		}
		break
	}
	if n-boundary < stabilityWindow {
		return n
	}
	return boundary
}

// span is a half-open index range into the core section.
type span struct{ start, end int }

// groupMean averages the values covered by the given spans.
func groupMean(values []float64, spans []span) float64 {
	sum := 0.0
	count := 0
	for _, s := range spans {
		for _, v := range values[s.start:s.end] {
			sum += v
		}
		count += s.end - s.start
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// movingAverage smooths values with a centered window, shrinking the
// window at the edges.
func movingAverage(values []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	half := window / 2
	out := make([]float64, len(values))
	for i := range values {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > len(values) {
			hi = len(values)
		}
		sum := 0.0
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

// FormatPace renders a pace in minutes per km as m:ss.
func FormatPace(pace float64) string {
	if pace <= 0 || math.IsNaN(pace) || math.IsInf(pace, 0) {
		return "-"
	}
	totalSec := int(math.Round(pace * 60))
	return fmt.Sprintf("%d:%02d", totalSec/60, totalSec%60)
}
