package analysis

import (
	"fmt"
	"time"
)

// Status is a traffic-light verdict.
type Status string

const (
	StatusGreen  Status = "green"
	StatusYellow Status = "yellow"
	StatusRed    Status = "red"
)

// Metric names for the five training-load analyses.
const (
	MetricRecovery    = "recovery"
	MetricIntensity   = "intensity_distribution"
	MetricVolume      = "volume_progression"
	MetricLongRuns    = "long_run_frequency"
	MetricRaceEfforts = "race_effort_frequency"
)

// Report is the outcome of one training-load analysis.
type Report struct {
	Metric  string `json:"metric"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// ClassifiedActivity pairs an activity summary with its category for
// the windowed load analyses.
type ClassifiedActivity struct {
	Sport      Sport     `json:"sport"`
	StartedAt  time.Time `json:"started_at"`
	DistanceKm float64   `json:"distance_km"`
	Category   Category  `json:"category"`
}

// AnalyzeTrainingLoad runs all five load analyses over the classified
// history and keys the reports by metric name. Each analysis reads
// only its own window; they are order-independent and an empty window
// is a yellow "no data" report, never an error.
func AnalyzeTrainingLoad(history []ClassifiedActivity, now time.Time) map[string]Report {
	return map[string]Report{
		MetricRecovery:    analyzeRecovery(history, now),
		MetricIntensity:   analyzeIntensity(history, now),
		MetricVolume:      analyzeVolume(history, now),
		MetricLongRuns:    analyzeLongRuns(history, now),
		MetricRaceEfforts: analyzeRaceEfforts(history, now),
	}
}

// within selects the activities inside the trailing window of whole
// days, excluding anything after now.
func within(history []ClassifiedActivity, now time.Time, days int) []ClassifiedActivity {
	cutoff := now.AddDate(0, 0, -days)
	out := make([]ClassifiedActivity, 0, len(history))
	for _, a := range history {
		if a.StartedAt.After(cutoff) && !a.StartedAt.After(now) {
			out = append(out, a)
		}
	}
	return out
}

func isHigh(c Category) bool { return c == CategoryIntensity || c == CategoryRace }
func isEasy(c Category) bool { return c == CategoryZ2 }

func sumDistance(window []ClassifiedActivity) float64 {
	total := 0.0
	for _, a := range window {
		total += a.DistanceKm
	}
	return total
}

func countCategory(window []ClassifiedActivity, c Category) int {
	n := 0
	for _, a := range window {
		if a.Category == c {
			n++
		}
	}
	return n
}

// weeklyAverageKm is the mean weekly distance over the trailing
// window, optionally restricted to one sport.
func weeklyAverageKm(history []ClassifiedActivity, now time.Time, days int, sport Sport) float64 {
	total := 0.0
	for _, a := range within(history, now, days) {
		if sport != "" && a.Sport != sport {
			continue
		}
		total += a.DistanceKm
	}
	return total / (float64(days) / 7)
}

// analyzeRecovery balances easy against high-intensity sessions in
// the trailing week.
func analyzeRecovery(history []ClassifiedActivity, now time.Time) Report {
	r := Report{Metric: MetricRecovery}
	week := within(history, now, 7)
	if len(week) == 0 {
		r.Status = StatusYellow
		r.Message = "no activities in the last 7 days"
		return r
	}
	easy, high := 0, 0
	for _, a := range week {
		if isEasy(a.Category) {
			easy++
		}
		if isHigh(a.Category) {
			high++
		}
	}
	switch {
	case high >= 4:
		r.Status = StatusRed
		r.Message = fmt.Sprintf("%d high-intensity sessions in 7 days, schedule recovery", high)
	case high >= 3 && easy < 2:
		r.Status = StatusYellow
		r.Message = "three high-intensity sessions with little easy running around them"
	case len(week) >= 6 && easy < 3:
		r.Status = StatusYellow
		r.Message = fmt.Sprintf("%d sessions this week but only %d easy", len(week), easy)
	case float64(easy)/float64(len(week)) >= 0.6:
		r.Status = StatusGreen
		r.Message = fmt.Sprintf("well-balanced week, %d of %d sessions easy", easy, len(week))
	default:
		r.Status = StatusGreen
		r.Message = "manageable load this week"
	}
	return r
}

// analyzeIntensity checks the 80/20 principle over four weeks.
func analyzeIntensity(history []ClassifiedActivity, now time.Time) Report {
	r := Report{Metric: MetricIntensity}
	window := within(history, now, 28)
	if len(window) == 0 {
		r.Status = StatusYellow
		r.Message = "no activities in the last 4 weeks"
		return r
	}
	easy, hard := 0, 0
	for _, a := range window {
		if isEasy(a.Category) {
			easy++
		}
		if isHigh(a.Category) {
			hard++
		}
	}
	total := float64(len(window))
	easyPct := float64(easy) / total * 100
	hardPct := float64(hard) / total * 100
	switch {
	case easyPct < 50 && hardPct > 40:
		r.Status = StatusRed
		r.Message = fmt.Sprintf("only %.0f%% easy against %.0f%% hard, too much intensity", easyPct, hardPct)
	case easyPct < 60 && hardPct > 30:
		r.Status = StatusYellow
		r.Message = fmt.Sprintf("%.0f%% easy is drifting below the 80/20 target", easyPct)
	case easyPct >= 75:
		r.Status = StatusGreen
		r.Message = fmt.Sprintf("excellent polarization, %.0f%% easy", easyPct)
	default:
		r.Status = StatusGreen
		r.Message = fmt.Sprintf("acceptable intensity mix, %.0f%% easy", easyPct)
	}
	return r
}

// analyzeVolume applies the 10% rule: the current week against the
// average of the trailing two weeks.
func analyzeVolume(history []ClassifiedActivity, now time.Time) Report {
	r := Report{Metric: MetricVolume}
	currentKm := sumDistance(within(history, now, 7))
	trailingKm := sumDistance(within(history, now, 14))
	if trailingKm == 0 {
		r.Status = StatusYellow
		r.Message = "no recent volume to compare against"
		return r
	}
	weeklyAvg := trailingKm / 2
	change := (currentKm - weeklyAvg) / weeklyAvg * 100
	switch {
	case change > 30:
		r.Status = StatusRed
		r.Message = fmt.Sprintf("weekly distance up %.1f%% on the recent average, ramp down", change)
	case change > 15:
		r.Status = StatusYellow
		r.Message = fmt.Sprintf("weekly distance up %.1f%%, building fast", change)
	case change < -40:
		r.Status = StatusYellow
		r.Message = fmt.Sprintf("weekly distance down %.1f%%, sharp drop", -change)
	default:
		r.Status = StatusGreen
		r.Message = fmt.Sprintf("weekly volume steady (%+.1f%%)", change)
	}
	return r
}

// analyzeLongRuns counts long runs in the trailing four weeks. Long
// is judged against the 180-day rolling weekly run distance.
func analyzeLongRuns(history []ClassifiedActivity, now time.Time) Report {
	r := Report{Metric: MetricLongRuns}
	weeklyAvg := weeklyAverageKm(history, now, 180, SportRun)
	var longRuns []ClassifiedActivity
	for _, a := range within(history, now, 28) {
		if a.Sport != SportRun {
			continue
		}
		if IsLong(SportRun, a.DistanceKm, weeklyAvg) {
			longRuns = append(longRuns, a)
		}
	}
	switch {
	case len(longRuns) == 0:
		r.Status = StatusYellow
		r.Message = "no long runs in the last 4 weeks"
	case len(longRuns) >= 4:
		r.Status = StatusYellow
		r.Message = fmt.Sprintf("%d long runs in 4 weeks, space them out", len(longRuns))
	default:
		latest := longRuns[0].StartedAt
		for _, a := range longRuns[1:] {
			if a.StartedAt.After(latest) {
				latest = a.StartedAt
			}
		}
		daysAgo := int(now.Sub(latest).Hours() / 24)
		r.Status = StatusGreen
		r.Message = fmt.Sprintf("%d long runs in 4 weeks, most recent %d days ago", len(longRuns), daysAgo)
	}
	return r
}

// analyzeRaceEfforts watches for race-intensity sessions stacking up
// across the 7/14/28-day windows.
func analyzeRaceEfforts(history []ClassifiedActivity, now time.Time) Report {
	r := Report{Metric: MetricRaceEfforts}
	month := within(history, now, 28)
	if len(month) == 0 {
		r.Status = StatusYellow
		r.Message = "no activities in the last 4 weeks"
		return r
	}
	week := within(history, now, 7)
	races7 := countCategory(week, CategoryRace)
	races14 := countCategory(within(history, now, 14), CategoryRace)
	races28 := countCategory(month, CategoryRace)
	switch {
	case races7 >= 3:
		r.Status = StatusRed
		r.Message = fmt.Sprintf("%d race efforts inside one week", races7)
	case races7 == 2 && len(week) <= 4:
		r.Status = StatusYellow
		r.Message = "two race efforts in a light week"
	case races14 >= 4:
		r.Status = StatusYellow
		r.Message = fmt.Sprintf("%d race efforts in 14 days", races14)
	case races28 > 3:
		r.Status = StatusYellow
		r.Message = fmt.Sprintf("%d race efforts in 4 weeks", races28)
	case races28 == 0:
		r.Status = StatusGreen
		r.Message = "no race efforts in the last 4 weeks"
	default:
		r.Status = StatusGreen
		r.Message = fmt.Sprintf("%d race efforts in 4 weeks, sustainable", races28)
	}
	return r
}
