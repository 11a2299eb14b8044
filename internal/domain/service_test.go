package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/insight/internal/analysis"
	"example.com/insight/internal/domain"
	"example.com/insight/internal/events"
	"example.com/insight/internal/persistence"
)

const testTenant = "athlete-1"

var testStart = time.Date(2025, time.June, 2, 6, 30, 0, 0, time.UTC)

func TestIngestActivityNormalizesAndPublishes(t *testing.T) {
	repo := persistence.NewInMemoryRepository()
	svc := domain.NewService(repo, nil)

	act, created, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
		TenantID:    testTenant,
		Sport:       "Run",
		StartedAt:   testStart,
		DistanceKm:  12,
		DurationSec: 3600,
		HRStream:    steadyHR(600, 150),
	})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, act.ID)
	require.Equal(t, analysis.SportRun, act.Sport)
	require.Equal(t, domain.SourceManual, act.Source)
	require.Equal(t, analysis.DataDetailed, act.HRKind)
	require.Equal(t, analysis.DataNone, act.PowerKind)

	stored, err := repo.Get(context.Background(), testTenant, act.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, stored.HRStream.HeartRate, 600)

	evts := repo.Events()
	require.Len(t, evts, 2)

	require.Equal(t, events.TypeActivityImported, evts[0].Type)
	require.Equal(t, act.ID, evts[0].Key)
	imported, ok := evts[0].Payload.(events.ActivityImported)
	require.True(t, ok)
	require.Equal(t, "run", imported.Sport)
	require.Equal(t, "detailed", imported.DataKind)
	require.Equal(t, domain.SourceManual, imported.Source)

	require.Equal(t, events.TypeActivityAnalyzed, evts[1].Type)
	analyzed, ok := evts[1].Payload.(events.ActivityAnalyzed)
	require.True(t, ok)
	// An hour locked at 150 bpm with max HR 190 sits in zone 3.
	require.Equal(t, string(analysis.CategoryIntensity), analyzed.Category)
	require.Equal(t, "detailed", analyzed.DataKind)
	// First session on record: any run past the 10 km floor is long.
	require.True(t, analyzed.IsLong)

	seeded, err := repo.GetSettings(context.Background(), testTenant)
	require.NoError(t, err)
	require.NotNil(t, seeded)
	require.Equal(t, 190, seeded.MaxHR)
}

func TestIngestActivityRejectsBadRecords(t *testing.T) {
	repo := persistence.NewInMemoryRepository()
	svc := domain.NewService(repo, nil)

	cases := []struct {
		name  string
		input domain.ActivityInput
	}{
		{"unknown sport", domain.ActivityInput{TenantID: testTenant, Sport: "rowing", StartedAt: testStart}},
		{"missing tenant", domain.ActivityInput{Sport: "run", StartedAt: testStart}},
		{"zero start time", domain.ActivityInput{TenantID: testTenant, Sport: "run"}},
		{"negative distance", domain.ActivityInput{TenantID: testTenant, Sport: "run", StartedAt: testStart, DistanceKm: -1}},
		{"negative duration", domain.ActivityInput{TenantID: testTenant, Sport: "run", StartedAt: testStart, DurationSec: -5}},
		{"non-positive avg hr", domain.ActivityInput{TenantID: testTenant, Sport: "run", StartedAt: testStart, AvgHR: intPtr(0)}},
		{"non-positive max watts", domain.ActivityInput{TenantID: testTenant, Sport: "ride", StartedAt: testStart, MaxWatts: intPtr(-10)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.IngestActivity(context.Background(), tc.input)
			require.ErrorIs(t, err, domain.ErrInvalidActivity)
		})
	}
	require.Empty(t, repo.Events())
}

func TestIngestKeepsRicherStoredRecord(t *testing.T) {
	repo := persistence.NewInMemoryRepository()
	svc := domain.NewService(repo, nil)

	first, created, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
		ID:          "act-1",
		TenantID:    testTenant,
		Sport:       "run",
		StartedAt:   testStart,
		DistanceKm:  12,
		DurationSec: 3600,
		HRStream:    steadyHR(600, 150),
		Source:      domain.SourceStrava,
	})
	require.NoError(t, err)
	require.True(t, created)

	// A summary-only replay of the same ID must not clobber the stream.
	replay, created, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
		ID:          "act-1",
		TenantID:    testTenant,
		Sport:       "run",
		StartedAt:   testStart,
		DistanceKm:  12,
		DurationSec: 3600,
		AvgHR:       intPtr(150),
		Source:      domain.SourceImport,
	})
	require.NoError(t, err)
	require.False(t, created)
	require.NotNil(t, replay.HRStream)
	require.Equal(t, domain.SourceStrava, replay.Source)
	require.Equal(t, first.CreatedAt, replay.CreatedAt)
	require.Len(t, repo.Events(), 2, "a skipped replay publishes nothing")
}

func TestIngestReplacesCacheTierRecord(t *testing.T) {
	repo := persistence.NewInMemoryRepository()
	svc := domain.NewService(repo, nil)

	cached, created, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
		ID:          "act-2",
		TenantID:    testTenant,
		Sport:       "ride",
		StartedAt:   testStart,
		DistanceKm:  40,
		DurationSec: 5400,
		AvgHR:       intPtr(138),
		Source:      domain.SourceCache,
	})
	require.NoError(t, err)
	require.True(t, created)

	act, created, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
		ID:          "act-2",
		TenantID:    testTenant,
		Sport:       "ride",
		StartedAt:   testStart,
		DistanceKm:  40,
		DurationSec: 5400,
		AvgHR:       intPtr(141),
		Source:      domain.SourceStrava,
	})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, domain.SourceStrava, act.Source)
	require.Equal(t, 141, *act.AvgHR)
	require.Equal(t, cached.CreatedAt, act.CreatedAt)

	stored, err := repo.Get(context.Background(), testTenant, "act-2")
	require.NoError(t, err)
	require.Equal(t, domain.SourceStrava, stored.Source)
	require.Len(t, repo.Events(), 4, "a replacement publishes a fresh pair")
}

func TestIngestUpgradesWithNewStream(t *testing.T) {
	repo := persistence.NewInMemoryRepository()
	svc := domain.NewService(repo, nil)

	_, _, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
		ID:          "act-3",
		TenantID:    testTenant,
		Sport:       "run",
		StartedAt:   testStart,
		DistanceKm:  8,
		DurationSec: 2400,
		AvgHR:       intPtr(150),
	})
	require.NoError(t, err)

	act, created, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
		ID:          "act-3",
		TenantID:    testTenant,
		Sport:       "run",
		StartedAt:   testStart,
		DistanceKm:  8,
		DurationSec: 2400,
		HRStream:    steadyHR(300, 151),
	})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, analysis.DataDetailed, act.HRKind)

	stored, err := repo.Get(context.Background(), testTenant, "act-3")
	require.NoError(t, err)
	require.NotNil(t, stored.HRStream)
}

func TestDistributionPerSignal(t *testing.T) {
	repo := persistence.NewInMemoryRepository()
	svc := domain.NewService(repo, nil)

	watts := make([]int, 600)
	for i := range watts {
		watts[i] = 200
	}
	act, _, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
		TenantID:    testTenant,
		Sport:       "ride",
		StartedAt:   testStart,
		DistanceKm:  30,
		DurationSec: 3600,
		HRStream:    steadyHR(600, 150),
		PowerStream: &analysis.PowerStream{Watts: watts},
	})
	require.NoError(t, err)

	dist, kind, err := svc.Distribution(context.Background(), testTenant, act.ID, domain.SignalHR)
	require.NoError(t, err)
	require.Equal(t, analysis.DataDetailed, kind)
	require.NotNil(t, dist)
	require.InDelta(t, 100, dist.PercentZ3, 0.001)

	dist, kind, err = svc.Distribution(context.Background(), testTenant, act.ID, domain.SignalPower)
	require.NoError(t, err)
	require.Equal(t, analysis.DataDetailed, kind)
	require.NotNil(t, dist)
	// 200 W against the default 250 FTP lands on the zone 3 boundary.
	require.InDelta(t, 100, dist.PercentZ3, 0.001)

	basic, _, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
		TenantID:    testTenant,
		Sport:       "run",
		StartedAt:   testStart.Add(time.Hour),
		DistanceKm:  8,
		DurationSec: 2400,
		AvgHR:       intPtr(150),
	})
	require.NoError(t, err)

	dist, kind, err = svc.Distribution(context.Background(), testTenant, basic.ID, domain.SignalHR)
	require.NoError(t, err)
	require.Nil(t, dist)
	require.Equal(t, analysis.DataBasic, kind)

	_, _, err = svc.Distribution(context.Background(), testTenant, "missing", domain.SignalHR)
	require.ErrorIs(t, err, domain.ErrActivityNotFound)
}

func TestClassificationFollowsSettings(t *testing.T) {
	repo := persistence.NewInMemoryRepository()
	svc := domain.NewService(repo, nil)

	act, _, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
		TenantID:    testTenant,
		Sport:       "run",
		StartedAt:   testStart,
		DistanceKm:  12,
		DurationSec: 3600,
		HRStream:    steadyHR(600, 150),
	})
	require.NoError(t, err)

	cls, err := svc.Classification(context.Background(), testTenant, act.ID)
	require.NoError(t, err)
	require.Equal(t, analysis.CategoryIntensity, cls.Category)
	require.Equal(t, analysis.DataDetailed, cls.DataKind)

	// Raising max HR to 215 drops the same 150 bpm stream into zone 2.
	_, err = svc.UpdateSettings(context.Background(), testTenant, domain.Settings{
		Zones: analysis.DefaultFractions(),
		MaxHR: 215,
		FTP:   250,
	})
	require.NoError(t, err)

	cls, err = svc.Classification(context.Background(), testTenant, act.ID)
	require.NoError(t, err)
	require.Equal(t, analysis.CategoryZ2, cls.Category)
}

func TestIntervalsThroughStoredStream(t *testing.T) {
	repo := persistence.NewInMemoryRepository()
	svc := domain.NewService(repo, nil)

	paces := make([]float64, 0, 480)
	times := make([]int, 0, 480)
	for rep := 0; rep < 4; rep++ {
		for i := 0; i < 60; i++ {
			paces = append(paces, 4.0)
			times = append(times, len(times))
		}
		for i := 0; i < 60; i++ {
			paces = append(paces, 6.0)
			times = append(times, len(times))
		}
	}
	act, _, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
		TenantID:    testTenant,
		Sport:       "run",
		StartedAt:   testStart,
		DistanceKm:  10,
		DurationSec: 2880,
		PaceStream:  &analysis.PaceStream{Pace: paces, Time: times},
	})
	require.NoError(t, err)

	report, kind, err := svc.Intervals(context.Background(), testTenant, act.ID)
	require.NoError(t, err)
	require.Equal(t, analysis.DataDetailed, kind)
	require.True(t, report.IsInterval)

	basic, _, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
		TenantID:    testTenant,
		Sport:       "run",
		StartedAt:   testStart.Add(time.Hour),
		DistanceKm:  8,
		DurationSec: 2400,
		AvgHR:       intPtr(140),
	})
	require.NoError(t, err)

	report, kind, err = svc.Intervals(context.Background(), testTenant, basic.ID)
	require.NoError(t, err)
	require.Equal(t, analysis.DataNone, kind)
	require.False(t, report.IsInterval)
}

func TestTrainingLoadOverHistory(t *testing.T) {
	repo := persistence.NewInMemoryRepository()
	svc := domain.NewService(repo, nil)

	seed := []struct {
		daysAgo int
		avgHR   int
		km      float64
	}{
		{1, 120, 8},
		{2, 160, 7},
		{3, 120, 10},
		{5, 120, 6},
	}
	for i, s := range seed {
		_, _, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
			ID:          "load-" + string(rune('a'+i)),
			TenantID:    testTenant,
			Sport:       "run",
			StartedAt:   testStart.AddDate(0, 0, -s.daysAgo),
			DistanceKm:  s.km,
			DurationSec: 3000,
			AvgHR:       intPtr(s.avgHR),
		})
		require.NoError(t, err)
	}

	reports, err := svc.TrainingLoad(context.Background(), testTenant, testStart)
	require.NoError(t, err)
	require.Len(t, reports, 5)
	for metric, report := range reports {
		require.Equal(t, metric, report.Metric)
		require.NotEmpty(t, report.Status)
		require.NotEmpty(t, report.Message)
	}

	recovery := reports[analysis.MetricRecovery]
	require.Equal(t, analysis.StatusGreen, recovery.Status)
	require.Contains(t, recovery.Message, "well-balanced")
}

func TestZoneDistributionAggregates(t *testing.T) {
	repo := persistence.NewInMemoryRepository()
	svc := domain.NewService(repo, nil)

	_, _, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
		TenantID:    testTenant,
		Sport:       "run",
		StartedAt:   testStart.AddDate(0, 0, -2),
		DistanceKm:  12,
		DurationSec: 3600,
		HRStream:    steadyHR(600, 150),
	})
	require.NoError(t, err)
	_, _, err = svc.IngestActivity(context.Background(), domain.ActivityInput{
		TenantID:    testTenant,
		Sport:       "ride",
		StartedAt:   testStart.AddDate(0, 0, -4),
		DistanceKm:  30,
		DurationSec: 5400,
		AvgHR:       intPtr(120),
	})
	require.NoError(t, err)
	// No heart-rate signal at all: skipped by the aggregation.
	_, _, err = svc.IngestActivity(context.Background(), domain.ActivityInput{
		TenantID:    testTenant,
		Sport:       "swim",
		StartedAt:   testStart.AddDate(0, 0, -6),
		DistanceKm:  2,
		DurationSec: 2400,
	})
	require.NoError(t, err)

	zd, err := svc.ZoneDistribution(context.Background(), testTenant, "", 0, testStart)
	require.NoError(t, err)
	require.Equal(t, 2, zd.Activities)
	require.InDelta(t, 42, zd.TotalKm, 0.001)
	require.InDelta(t, 12, zd.KmZ3, 0.001)
	require.InDelta(t, 30, zd.KmZ2, 0.001)

	runsOnly, err := svc.ZoneDistribution(context.Background(), testTenant, analysis.SportRun, 30, testStart)
	require.NoError(t, err)
	require.Equal(t, 1, runsOnly.Activities)
	require.InDelta(t, 12, runsOnly.TotalKm, 0.001)
}

func TestSettingsLifecycle(t *testing.T) {
	repo := persistence.NewInMemoryRepository()
	svc := domain.NewService(repo, nil)

	first, err := svc.Settings(context.Background(), testTenant)
	require.NoError(t, err)
	require.Equal(t, 190, first.MaxHR)
	require.Equal(t, 250, first.FTP)
	require.Equal(t, analysis.DefaultFractions(), first.Zones)

	seeded, err := repo.GetSettings(context.Background(), testTenant)
	require.NoError(t, err)
	require.NotNil(t, seeded, "first read seeds the row")

	_, err = svc.UpdateSettings(context.Background(), testTenant, domain.Settings{
		Zones: analysis.Fractions{Z2Upper: 0.9, Z3Upper: 0.8, Z4Upper: 0.88, Z5Upper: 0.95},
		MaxHR: 190,
		FTP:   250,
	})
	require.ErrorIs(t, err, analysis.ErrInvalidConfig)

	after, err := svc.Settings(context.Background(), testTenant)
	require.NoError(t, err)
	require.Equal(t, first.Zones, after.Zones, "rejected update keeps prior settings")

	updated, err := svc.UpdateSettings(context.Background(), testTenant, domain.Settings{
		Zones: analysis.DefaultFractions(),
		MaxHR: 200,
		FTP:   280,
	})
	require.NoError(t, err)
	require.False(t, updated.UpdatedAt.IsZero())

	round, err := svc.Settings(context.Background(), testTenant)
	require.NoError(t, err)
	require.Equal(t, 200, round.MaxHR)
	require.Equal(t, 280, round.FTP)
}

func TestCacheInvalidationKeys(t *testing.T) {
	repo := persistence.NewInMemoryRepository()
	rec := &recordingInvalidator{}
	svc := domain.NewService(repo, rec)

	act, _, err := svc.IngestActivity(context.Background(), domain.ActivityInput{
		TenantID:    testTenant,
		Sport:       "run",
		StartedAt:   testStart,
		DistanceKm:  5,
		DurationSec: 1500,
	})
	require.NoError(t, err)
	require.Contains(t, rec.keys, act.ID)
	require.Contains(t, rec.keys, "insights/"+testTenant)

	_, err = svc.UpdateSettings(context.Background(), testTenant, domain.Settings{
		Zones: analysis.DefaultFractions(),
		MaxHR: 195,
		FTP:   260,
	})
	require.NoError(t, err)
	require.Contains(t, rec.keys, "settings/"+testTenant)
}

func steadyHR(n, bpm int) *analysis.RawHRStream {
	hr := make([]int, n)
	times := make([]int, n)
	for i := range hr {
		hr[i] = bpm
		times[i] = i
	}
	return &analysis.RawHRStream{HeartRate: hr, Time: times}
}

func intPtr(v int) *int { return &v }

type recordingInvalidator struct {
	keys []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, keys ...string) error {
	r.keys = append(r.keys, keys...)
	return nil
}
