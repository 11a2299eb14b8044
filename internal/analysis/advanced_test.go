package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGradeAdjustedPace(t *testing.T) {
	require.InDelta(t, 5.58, GradeAdjustedPace(6.0, 2), 1e-9)
	require.InDelta(t, 6.42, GradeAdjustedPace(6.0, -2), 1e-9)
	require.InDelta(t, 5.0, GradeAdjustedPace(5.0, 0), 1e-9)
}

func TestNormalizedGradedPaceNeedsThirtySamples(t *testing.T) {
	require.Nil(t, NormalizedGradedPace(nil))
	require.Nil(t, NormalizedGradedPace(&PaceStream{Pace: repeatFloats(5.0, 29)}))
}

func TestNormalizedGradedPaceEvenRun(t *testing.T) {
	got := NormalizedGradedPace(&PaceStream{Pace: repeatFloats(5.0, 60)})
	require.NotNil(t, got)
	require.InDelta(t, 5.0, *got, 1e-9)
}

func TestNormalizedGradedPaceClimb(t *testing.T) {
	// 3% steady grade at 5:00/km: the graded pace comes out faster
	// than the raw pace.
	n := 60
	stream := &PaceStream{
		Pace:      repeatFloats(5.0, n),
		Elevation: make([]float64, n),
		Distance:  make([]float64, n),
	}
	for i := 0; i < n; i++ {
		stream.Elevation[i] = float64(i) * 0.1
		stream.Distance[i] = float64(i) / 300
	}
	got := NormalizedGradedPace(stream)
	require.NotNil(t, got)
	require.Less(t, *got, 5.0)
	require.InDelta(t, 4.475, *got, 0.01)
}

func TestPaceVariabilityIndexEvenRun(t *testing.T) {
	got := PaceVariabilityIndex(&PaceStream{Pace: repeatFloats(5.0, 60)})
	require.NotNil(t, got)
	require.InDelta(t, 1.0, *got, 1e-9)

	require.Nil(t, PaceVariabilityIndex(&PaceStream{Pace: repeatFloats(5.0, 10)}))
}

func TestEfficiencyFactor(t *testing.T) {
	pace := &PaceStream{Pace: repeatFloats(5.0, 60)}
	hr := &HRStream{HeartRate: repeatInts(150, 60)}

	got := EfficiencyFactor(pace, hr)
	require.NotNil(t, got)
	require.InDelta(t, 5.0/150.0, *got, 1e-9)

	require.Nil(t, EfficiencyFactor(pace, nil))
	require.Nil(t, EfficiencyFactor(nil, hr))
}

func TestAerobicDecouplingNeedsSixtyPairs(t *testing.T) {
	pace := &PaceStream{Pace: repeatFloats(5.0, 80)}
	hr := &HRStream{HeartRate: repeatInts(150, 59)}
	require.Nil(t, AerobicDecoupling(pace, hr))
	require.Nil(t, AerobicDecoupling(nil, hr))
	require.Nil(t, AerobicDecoupling(pace, nil))
}

func TestAerobicDecouplingDrift(t *testing.T) {
	pace := &PaceStream{Pace: repeatFloats(5.0, 120)}
	hr := &HRStream{HeartRate: append(repeatInts(140, 60), repeatInts(150, 60)...)}

	got := AerobicDecoupling(pace, hr)
	require.NotNil(t, got)
	// Same pace at a higher heart rate: efficiency fell 6.67%,
	// rounded to one decimal.
	require.InDelta(t, -6.7, *got, 1e-9)

	reversed := &HRStream{HeartRate: append(repeatInts(150, 60), repeatInts(140, 60)...)}
	got = AerobicDecoupling(pace, reversed)
	require.NotNil(t, got)
	require.InDelta(t, 7.1, *got, 1e-9)
}

func TestPaceTrainingStress(t *testing.T) {
	require.Nil(t, PaceTrainingStress(&PaceStream{Pace: repeatFloats(5.0, 1199)}, 1199))

	got := PaceTrainingStress(&PaceStream{Pace: repeatFloats(5.0, 1500)}, 1500)
	require.NotNil(t, got)
	// Threshold 5:15, NGP 5:00, IF 1.05 over 25 minutes.
	require.InDelta(t, 45.9375, *got, 1e-9)
}

func TestPowerTrainingStressHourAtFTP(t *testing.T) {
	stream := &PowerStream{Watts: repeatInts(250, 3600)}
	got := PowerTrainingStress(stream, 3600, 250)
	require.NotNil(t, got)
	require.InDelta(t, 100.0, *got, 1e-9)

	require.Nil(t, PowerTrainingStress(stream, 3600, 0))
	require.Nil(t, PowerTrainingStress(&PowerStream{Watts: repeatInts(250, 10)}, 600, 250))
}

func TestHRTrainingStressAtThreshold(t *testing.T) {
	ctx := DefaultContext()
	ctx.MaxHR = 200 // zone 4 tops at 176

	got := HRTrainingStress(176, 3600, ctx)
	require.NotNil(t, got)
	require.InDelta(t, 100.0, *got, 1e-9)

	require.Nil(t, HRTrainingStress(0, 3600, ctx))
	require.Nil(t, HRTrainingStress(150, 0, ctx))
}

func TestComputeAdvancedMetricsSourceResolution(t *testing.T) {
	ctx := DefaultContext()

	basic := Record{AvgHR: 150, DurationSec: 3600}
	m := ComputeAdvancedMetrics(basic, ctx)
	require.Nil(t, m.PaceTSS)
	require.Nil(t, m.PowerTSS)
	require.NotNil(t, m.HRTSS)
	require.Equal(t, "hr", m.TrainingStressSource)
	require.Equal(t, m.HRTSS, m.TrainingStress)

	ride := Record{
		AvgHR:       150,
		DurationSec: 3600,
		Power:       &PowerStream{Watts: repeatInts(250, 3600)},
	}
	m = ComputeAdvancedMetrics(ride, ctx)
	require.Nil(t, m.PaceTSS)
	require.NotNil(t, m.PowerTSS)
	require.Equal(t, "power", m.TrainingStressSource)
	require.Equal(t, m.PowerTSS, m.TrainingStress)

	run := Record{
		AvgHR:       150,
		DurationSec: 1500,
		Pace:        &PaceStream{Pace: repeatFloats(5.0, 1500)},
	}
	m = ComputeAdvancedMetrics(run, ctx)
	require.NotNil(t, m.PaceTSS)
	require.Equal(t, "pace", m.TrainingStressSource)
	require.Equal(t, m.PaceTSS, m.TrainingStress)
}

func TestComputeAdvancedMetricsAvgHRFromStream(t *testing.T) {
	rec := Record{
		DurationSec: 3600,
		HR:          &HRStream{HeartRate: repeatInts(150, 60)},
	}
	m := ComputeAdvancedMetrics(rec, DefaultContext())
	require.NotNil(t, m.HRTSS)
	require.Equal(t, "hr", m.TrainingStressSource)
}
