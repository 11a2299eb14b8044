package analysis

// Category is a training-intensity label.
type Category string

const (
	CategoryZ2        Category = "Z2"
	CategoryIntensity Category = "Intensity Effort"
	CategoryRace      Category = "Race Effort"
	CategoryMixed     Category = "Mixed Effort"
)

// A tendency is only surfaced when the dominant share clears this
// percentage.
const tendencyFloor = 30.0

// Sport-specific distance floors for a "long" session, kilometers.
const (
	longRunKm  = 10.0
	longRideKm = 30.0
	longSwimKm = 2.0
)

// Classification is the derived intensity label for one activity.
// It is recomputed on demand and never persisted: zone or max-HR
// changes would silently invalidate a stored copy.
type Classification struct {
	Category Category `json:"category,omitempty"`
	Tendency Category `json:"tendency,omitempty"`
	IsLong   bool     `json:"is_long"`
	DataKind DataKind `json:"data_kind"`
}

// classificationRule pairs a predicate with the category it assigns.
// The slice order is the priority order; the first match wins.
type classificationRule struct {
	category Category
	matches  func(d *Distribution) bool
}

var classificationRules = []classificationRule{
	{CategoryZ2, func(d *Distribution) bool {
		return d.PercentZ2 >= 75 && d.PercentZ5+d.PercentZ6 <= 5
	}},
	{CategoryRace, func(d *Distribution) bool {
		return d.PercentZ5+d.PercentZ6 >= 80
	}},
	{CategoryIntensity, func(d *Distribution) bool {
		return d.PercentZ3+d.PercentZ4+d.PercentZ5 >= 80
	}},
}

// ClassifyDistribution applies the rule table to a detailed
// distribution. When no rule matches, the activity is a Mixed Effort
// with a tendency toward whichever range dominates, surfaced only
// above the 30% floor.
func ClassifyDistribution(d *Distribution) (Category, Category) {
	for _, rule := range classificationRules {
		if rule.matches(d) {
			return rule.category, ""
		}
	}
	tendencies := []struct {
		category Category
		percent  float64
	}{
		{CategoryZ2, d.PercentZ2},
		{CategoryIntensity, d.PercentZ3 + d.PercentZ4 + d.PercentZ5},
		{CategoryRace, d.PercentZ5 + d.PercentZ6},
	}
	best := tendencies[0]
	for _, t := range tendencies[1:] {
		if t.percent > best.percent {
			best = t
		}
	}
	if best.percent > tendencyFloor {
		return CategoryMixed, best.category
	}
	return CategoryMixed, ""
}

// classifyBasic is the coarse fallback when only average/max summary
// values exist. No tendency: a single average cannot support one.
func classifyBasic(avg, max float64, bounds Bounds) Category {
	avgZone := bounds.ZoneOf(avg)
	maxZone := avgZone
	if max > 0 {
		maxZone = bounds.ZoneOf(max)
	}
	switch {
	case avgZone == 2 && maxZone <= 4:
		return CategoryZ2
	case avgZone >= 5:
		return CategoryRace
	case avgZone == 3 || avgZone == 4:
		return CategoryIntensity
	default:
		return CategoryMixed
	}
}

// IsLong reports whether a session counts as long for its sport:
// past the sport's distance floor and more than half the athlete's
// rolling weekly distance.
func IsLong(sport Sport, distanceKm, weeklyAvgKm float64) bool {
	if distanceKm <= 0.5*weeklyAvgKm {
		return false
	}
	switch sport {
	case SportRun:
		return distanceKm > longRunKm
	case SportRide:
		return distanceKm > longRideKm
	case SportSwim:
		return distanceKm > longSwimKm
	default:
		return false
	}
}

// Classify derives the intensity label for one activity. A detailed
// heart-rate stream wins over a detailed power stream, which wins
// over the basic averages; with no signal at all the result carries
// DataKind none and no category. Classification never mutates the
// record or any shared state.
func Classify(rec Record, ctx Context, weeklyAvgKm float64) Classification {
	out := Classification{
		IsLong:   IsLong(rec.Sport, rec.DistanceKm, weeklyAvgKm),
		DataKind: DataNone,
	}
	if rec.HRKind == DataDetailed {
		if d := AnalyzeHRStream(rec.HR, ctx.HRBounds()); d != nil {
			out.Category, out.Tendency = ClassifyDistribution(d)
			out.DataKind = DataDetailed
			return out
		}
	}
	if rec.PowerKind == DataDetailed {
		if d := AnalyzePowerStream(rec.Power, ctx.PowerBounds()); d != nil {
			out.Category, out.Tendency = ClassifyDistribution(d)
			out.DataKind = DataDetailed
			return out
		}
	}
	if rec.AvgHR > 0 {
		out.Category = classifyBasic(float64(rec.AvgHR), float64(rec.MaxHR), ctx.HRBounds())
		out.DataKind = DataBasic
		return out
	}
	if rec.AvgWatts > 0 {
		out.Category = classifyBasic(float64(rec.AvgWatts), float64(rec.MaxWatts), ctx.PowerBounds())
		out.DataKind = DataBasic
		return out
	}
	return out
}
