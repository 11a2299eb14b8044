package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/insight/internal/domain"
)

func TestParseCSVMapsColumns(t *testing.T) {
	raw := strings.Join([]string{
		"id,Sport,started_at,distance_km,duration_sec,avg_hr,max_hr,notes",
		"run-1,run,2026-03-01T09:00:00Z,10.5,3600,148,171,morning long run",
		",ride,2026-03-02 18:30:00,40,5400,,,evening spin",
	}, "\n")

	inputs, err := ParseCSV(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, inputs, 2)

	first := inputs[0]
	require.Equal(t, "run-1", first.ID)
	require.Equal(t, "run", first.Sport)
	require.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), first.StartedAt)
	require.Equal(t, 10.5, first.DistanceKm)
	require.Equal(t, 3600.0, first.DurationSec)
	require.NotNil(t, first.AvgHR)
	require.Equal(t, 148, *first.AvgHR)
	require.NotNil(t, first.MaxHR)
	require.Equal(t, 171, *first.MaxHR)
	require.Equal(t, domain.SourceImport, first.Source)

	second := inputs[1]
	require.Empty(t, second.ID)
	require.Equal(t, "ride", second.Sport)
	require.Nil(t, second.AvgHR)
	require.Nil(t, second.MaxHR)
	require.Nil(t, second.AvgWatts)
}

func TestParseCSVSkipsBlankRows(t *testing.T) {
	raw := "sport,started_at,distance_km,duration_sec\n" +
		"run,2026-03-01T09:00:00Z,5,1500\n" +
		",,,\n" +
		"ride,2026-03-02T09:00:00Z,20,2400\n"

	inputs, err := ParseCSV(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, inputs, 2)
}

func TestParseCSVRejectsMissingColumns(t *testing.T) {
	raw := "sport,started_at,distance_km\nrun,2026-03-01T09:00:00Z,5\n"

	_, err := ParseCSV(strings.NewReader(raw))
	require.Error(t, err)
	require.Contains(t, err.Error(), "duration_sec")
}

func TestParseCSVRejectsBadCells(t *testing.T) {
	cases := map[string]string{
		"distance":   "sport,started_at,distance_km,duration_sec\nrun,2026-03-01T09:00:00Z,far,1500\n",
		"started_at": "sport,started_at,distance_km,duration_sec\nrun,yesterday,5,1500\n",
		"avg_hr":     "sport,started_at,distance_km,duration_sec,avg_hr\nrun,2026-03-01T09:00:00Z,5,1500,high\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(raw))
			require.Error(t, err)
			require.Contains(t, err.Error(), "row 2")
		})
	}
}
