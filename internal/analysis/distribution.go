package analysis

// Zone 1 covers values below this fraction of the Z2 upper boundary.
// It only exists inside distributions; the single-point ZoneOf lookup
// never returns 1.
const zone1Factor = 0.8

// Distribution reports time-in-zone percentages for one stream plus
// aggregate sample stats. Percentages are over valid samples, never
// over wall-clock time, so irregular sampling biases zones toward
// densely sampled spans. Accepted approximation.
type Distribution struct {
	PercentZ1    float64 `json:"percent_z1"`
	PercentZ2    float64 `json:"percent_z2"`
	PercentZ3    float64 `json:"percent_z3"`
	PercentZ4    float64 `json:"percent_z4"`
	PercentZ5    float64 `json:"percent_z5"`
	PercentZ6    float64 `json:"percent_z6"`
	TotalSamples int     `json:"total_samples"`
	Avg          float64 `json:"avg"`
	Max          float64 `json:"max"`
	Min          float64 `json:"min"`
}

// percents returns the six zone shares in order, for callers that
// iterate rather than name fields.
func (d *Distribution) percents() [6]float64 {
	return [6]float64{d.PercentZ1, d.PercentZ2, d.PercentZ3, d.PercentZ4, d.PercentZ5, d.PercentZ6}
}

// AnalyzeHRStream buckets every sample of a normalized heart-rate
// stream into the six zones. Returns nil for nil or empty input; a
// nil result means "no data", which downstream rules must keep
// distinct from a distribution with empty zones.
func AnalyzeHRStream(stream *HRStream, bounds Bounds) *Distribution {
	if stream == nil || len(stream.HeartRate) == 0 {
		return nil
	}
	values := make([]float64, len(stream.HeartRate))
	for i, v := range stream.HeartRate {
		values[i] = float64(v)
	}
	return analyzeValues(values, bounds)
}

// AnalyzePowerStream is the power twin of AnalyzeHRStream; the bounds
// are fractions of FTP instead of max HR.
func AnalyzePowerStream(stream *PowerStream, bounds Bounds) *Distribution {
	if stream == nil || len(stream.Watts) == 0 {
		return nil
	}
	values := make([]float64, len(stream.Watts))
	for i, v := range stream.Watts {
		values[i] = float64(v)
	}
	return analyzeValues(values, bounds)
}

func analyzeValues(values []float64, bounds Bounds) *Distribution {
	if len(values) == 0 {
		return nil
	}
	z1Upper := bounds.Z2Upper * zone1Factor
	var counts [6]int
	sum := 0.0
	minV := values[0]
	maxV := values[0]
	for _, v := range values {
		switch {
		case v <= z1Upper:
			counts[0]++
		case v <= bounds.Z2Upper:
			counts[1]++
		case v <= bounds.Z3Upper:
			counts[2]++
		case v <= bounds.Z4Upper:
			counts[3]++
		case v <= bounds.Z5Upper:
			counts[4]++
		default:
			counts[5]++
		}
		sum += v
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	total := float64(len(values))
	pct := func(c int) float64 { return float64(c) / total * 100 }
	return &Distribution{
		PercentZ1:    pct(counts[0]),
		PercentZ2:    pct(counts[1]),
		PercentZ3:    pct(counts[2]),
		PercentZ4:    pct(counts[3]),
		PercentZ5:    pct(counts[4]),
		PercentZ6:    pct(counts[5]),
		TotalSamples: len(values),
		Avg:          sum / total,
		Max:          maxV,
		Min:          minV,
	}
}

// ZoneDistances aggregates kilometers credited to each zone across a
// set of activities.
type ZoneDistances struct {
	KmZ1       float64 `json:"km_z1"`
	KmZ2       float64 `json:"km_z2"`
	KmZ3       float64 `json:"km_z3"`
	KmZ4       float64 `json:"km_z4"`
	KmZ5       float64 `json:"km_z5"`
	KmZ6       float64 `json:"km_z6"`
	TotalKm    float64 `json:"total_km"`
	Activities int     `json:"activities"`
}

func (z *ZoneDistances) add(zone int, km float64) {
	switch zone {
	case 1:
		z.KmZ1 += km
	case 2:
		z.KmZ2 += km
	case 3:
		z.KmZ3 += km
	case 4:
		z.KmZ4 += km
	case 5:
		z.KmZ5 += km
	case 6:
		z.KmZ6 += km
	}
}

// CalculateZoneDistribution distributes each activity's distance over
// the heart-rate zones. Detailed streams split distance
// proportionally to time in zone; basic-only activities credit their
// entire distance to the single zone holding the average. Activities
// without any heart-rate signal are skipped.
func CalculateZoneDistribution(records []Record, ctx Context) ZoneDistances {
	bounds := ctx.HRBounds()
	var out ZoneDistances
	for _, rec := range records {
		switch rec.HRKind {
		case DataDetailed:
			dist := AnalyzeHRStream(rec.HR, bounds)
			if dist == nil {
				continue
			}
			for zone, pct := range dist.percents() {
				out.add(zone+1, rec.DistanceKm*pct/100)
			}
		case DataBasic:
			out.add(bounds.ZoneOf(float64(rec.AvgHR)), rec.DistanceKm)
		default:
			continue
		}
		out.TotalKm += rec.DistanceKm
		out.Activities++
	}
	return out
}
