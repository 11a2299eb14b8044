package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyDistributionZ2Priority(t *testing.T) {
	d := &Distribution{PercentZ1: 10, PercentZ2: 80, PercentZ3: 10}
	cat, tendency := ClassifyDistribution(d)
	require.Equal(t, CategoryZ2, cat)
	require.Empty(t, tendency)
}

func TestClassifyDistributionZ2BlockedByHighEnd(t *testing.T) {
	// 80% easy but 6% at the top end: not a pure Z2 session.
	d := &Distribution{PercentZ1: 14, PercentZ2: 80, PercentZ5: 6}
	cat, tendency := ClassifyDistribution(d)
	require.Equal(t, CategoryMixed, cat)
	require.Equal(t, CategoryZ2, tendency)
}

func TestClassifyDistributionRace(t *testing.T) {
	d := &Distribution{PercentZ2: 15, PercentZ5: 50, PercentZ6: 35}
	cat, tendency := ClassifyDistribution(d)
	require.Equal(t, CategoryRace, cat)
	require.Empty(t, tendency)
}

func TestClassifyDistributionIntensity(t *testing.T) {
	d := &Distribution{PercentZ2: 15, PercentZ3: 30, PercentZ4: 30, PercentZ5: 25}
	cat, _ := ClassifyDistribution(d)
	require.Equal(t, CategoryIntensity, cat)
}

func TestClassifyDistributionMixedWithTendency(t *testing.T) {
	d := &Distribution{PercentZ1: 30, PercentZ2: 40, PercentZ3: 20, PercentZ4: 5, PercentZ5: 3, PercentZ6: 2}
	cat, tendency := ClassifyDistribution(d)
	require.Equal(t, CategoryMixed, cat)
	require.Equal(t, CategoryZ2, tendency)
}

func TestClassifyDistributionMixedWithoutTendency(t *testing.T) {
	// Best range sits exactly at the 30% floor, which is not enough.
	d := &Distribution{PercentZ1: 40, PercentZ2: 25, PercentZ3: 15, PercentZ4: 10, PercentZ5: 5, PercentZ6: 5}
	cat, tendency := ClassifyDistribution(d)
	require.Equal(t, CategoryMixed, cat)
	require.Empty(t, tendency)
}

func TestClassifyBasicFallback(t *testing.T) {
	bounds := DefaultFractions().BoundsFor(190)

	require.Equal(t, CategoryZ2, classifyBasic(120, 0, bounds))
	require.Equal(t, CategoryZ2, classifyBasic(120, 160, bounds))
	require.Equal(t, CategoryMixed, classifyBasic(120, 170, bounds))
	require.Equal(t, CategoryIntensity, classifyBasic(145, 150, bounds))
	require.Equal(t, CategoryIntensity, classifyBasic(160, 0, bounds))
	require.Equal(t, CategoryRace, classifyBasic(185, 0, bounds))
}

func TestClassifySteadyAerobicStream(t *testing.T) {
	// An hour locked at 150 bpm with max HR 190 sits entirely in zone
	// 3: clearly not an easy session.
	rec := Record{
		Sport:      SportRun,
		DistanceKm: 12,
		HR:         &HRStream{HeartRate: repeatInts(150, 600)},
		HRKind:     DataDetailed,
	}
	got := Classify(rec, DefaultContext(), 40)

	require.Equal(t, DataDetailed, got.DataKind)
	require.Equal(t, CategoryIntensity, got.Category)
	require.NotEqual(t, CategoryZ2, got.Category)
}

func TestClassifyPowerStreamWhenNoHR(t *testing.T) {
	rec := Record{
		Sport:     SportRide,
		Power:     &PowerStream{Watts: repeatInts(160, 60)},
		PowerKind: DataDetailed,
	}
	got := Classify(rec, DefaultContext(), 0) // FTP 250, zone 2 tops at 175
	require.Equal(t, DataDetailed, got.DataKind)
	require.Equal(t, CategoryZ2, got.Category)
}

func TestClassifyBasicWhenNoStreams(t *testing.T) {
	rec := Record{Sport: SportRun, AvgHR: 120}
	got := Classify(rec, DefaultContext(), 0)
	require.Equal(t, DataBasic, got.DataKind)
	require.Equal(t, CategoryZ2, got.Category)
	require.Empty(t, got.Tendency)

	rec = Record{Sport: SportRide, AvgWatts: 160}
	got = Classify(rec, DefaultContext(), 0)
	require.Equal(t, DataBasic, got.DataKind)
	require.Equal(t, CategoryZ2, got.Category)
}

func TestClassifyNoSignal(t *testing.T) {
	got := Classify(Record{Sport: SportRun, DistanceKm: 8}, DefaultContext(), 0)
	require.Equal(t, DataNone, got.DataKind)
	require.Empty(t, got.Category)
	require.Empty(t, got.Tendency)
}

func TestClassifyIdempotent(t *testing.T) {
	rec := Record{
		Sport:  SportRun,
		HR:     &HRStream{HeartRate: []int{120, 130, 150, 165, 170}},
		HRKind: DataDetailed,
	}
	first := Classify(rec, DefaultContext(), 25)
	second := Classify(rec, DefaultContext(), 25)
	require.Equal(t, first, second)
}

func TestIsLong(t *testing.T) {
	cases := []struct {
		sport    Sport
		distance float64
		weekly   float64
		want     bool
	}{
		{SportRun, 12, 20, true},
		{SportRun, 10, 10, false}, // at the floor, not past it
		{SportRun, 15, 40, false}, // under half the weekly average
		{SportRide, 35, 60, true},
		{SportRide, 29, 40, false},
		{SportSwim, 2.5, 4, true},
		{SportSwim, 1.8, 2, false},
		{Sport("row"), 50, 10, false},
	}
	for _, tc := range cases {
		got := IsLong(tc.sport, tc.distance, tc.weekly)
		require.Equal(t, tc.want, got, "%s %.1fkm weekly %.1f", tc.sport, tc.distance, tc.weekly)
	}
}
