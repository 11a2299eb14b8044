// Package export archives one tenant's normalized streams and
// per-activity analysis summaries as Parquet for the offline
// analytics path.
package export

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"example.com/insight/internal/domain"
)

const (
	samplesFile   = "samples.parquet"
	summariesFile = "summaries.parquet"

	listPageSize    = 200
	parallelWriters = 4
)

// Option configures optional behaviour for the Archiver.
type Option func(*Archiver)

// WithLogger overrides the logger used for progress reporting.
func WithLogger(logger *log.Logger) Option {
	return func(a *Archiver) {
		a.logger = logger
	}
}

// Archiver snapshots one tenant's activities into two Parquet files:
// one row per stream sample and one row per activity. Reruns
// overwrite; the archive is a snapshot, not a journal.
type Archiver struct {
	service *domain.Service
	tenant  string
	outDir  string
	logger  *log.Logger
}

// Summary reports what a run produced.
type Summary struct {
	Activities    int
	Samples       int
	SamplesPath   string
	SummariesPath string
}

// NewArchiver constructs an Archiver writing into outDir.
func NewArchiver(service *domain.Service, tenant, outDir string, opts ...Option) *Archiver {
	a := &Archiver{
		service: service,
		tenant:  tenant,
		outDir:  outDir,
		logger:  log.New(log.Writer(), "[export] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run archives every activity started on or after since. A zero since
// archives everything.
func (a *Archiver) Run(ctx context.Context, since time.Time) (*Summary, error) {
	activities, err := a.collect(ctx, since)
	if err != nil {
		return nil, err
	}

	summaries := make([]summaryRow, 0, len(activities))
	var samples []sampleRow
	for i := range activities {
		act := &activities[i]
		row, err := a.summarize(ctx, act)
		if err != nil {
			return nil, fmt.Errorf("summarize activity %s: %w", act.ID, err)
		}
		summaries = append(summaries, row)
		samples = append(samples, sampleRows(act)...)
	}

	if err := os.MkdirAll(a.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	result := &Summary{
		Activities:    len(summaries),
		Samples:       len(samples),
		SamplesPath:   filepath.Join(a.outDir, samplesFile),
		SummariesPath: filepath.Join(a.outDir, summariesFile),
	}
	if err := writeParquet(result.SummariesPath, summaries); err != nil {
		return nil, fmt.Errorf("write summaries: %w", err)
	}
	if err := writeParquet(result.SamplesPath, samples); err != nil {
		return nil, fmt.Errorf("write samples: %w", err)
	}
	a.logger.Printf("archived %d activities (%d samples) to %s", result.Activities, result.Samples, a.outDir)
	return result, nil
}

// collect pages newest-first and stops at the first activity older
// than the window.
func (a *Archiver) collect(ctx context.Context, since time.Time) ([]domain.Activity, error) {
	var all []domain.Activity
	var cursor *domain.Cursor
	for {
		page, next, err := a.service.ListActivities(ctx, a.tenant, "", cursor, listPageSize)
		if err != nil {
			return nil, fmt.Errorf("list activities: %w", err)
		}
		for _, act := range page {
			if act.StartedAt.Before(since) {
				return all, nil
			}
			all = append(all, act)
		}
		if next == nil {
			return all, nil
		}
		cursor = next
	}
}

func (a *Archiver) summarize(ctx context.Context, act *domain.Activity) (summaryRow, error) {
	cls, err := a.service.Classification(ctx, a.tenant, act.ID)
	if err != nil {
		return summaryRow{}, err
	}
	intervals, _, err := a.service.Intervals(ctx, a.tenant, act.ID)
	if err != nil {
		return summaryRow{}, err
	}
	metrics, _, err := a.service.AdvancedMetrics(ctx, a.tenant, act.ID)
	if err != nil {
		return summaryRow{}, err
	}

	return summaryRow{
		ActivityID:           act.ID,
		Sport:                string(act.Sport),
		StartedAtISO:         act.StartedAt.UTC().Format(time.RFC3339),
		DistanceKm:           act.DistanceKm,
		DurationS:            act.DurationSec,
		AvgHR:                intOrNaN(act.AvgHR),
		MaxHR:                intOrNaN(act.MaxHR),
		AvgWatts:             intOrNaN(act.AvgWatts),
		MaxWatts:             intOrNaN(act.MaxWatts),
		HRKind:               string(act.HRKind),
		PowerKind:            string(act.PowerKind),
		Source:               act.Source,
		Category:             string(cls.Category),
		Tendency:             string(cls.Tendency),
		IsLong:               cls.IsLong,
		IsInterval:           intervals.IsInterval,
		Intervals:            int64(intervals.Intervals),
		NormalizedGradedPace: orNaN(metrics.NormalizedGradedPace),
		PaceVariability:      orNaN(metrics.PaceVariabilityIndex),
		EfficiencyFactor:     orNaN(metrics.EfficiencyFactor),
		DecouplingPct:        orNaN(metrics.DecouplingPct),
		TrainingStress:       orNaN(metrics.TrainingStress),
		StressSource:         metrics.TrainingStressSource,
	}, nil
}

// sampleRows merges the three per-signal series onto one offset axis.
// Absent channels stay NaN with the valid flag down, mirroring how
// the streams were recorded independently.
func sampleRows(act *domain.Activity) []sampleRow {
	rows := map[int]*sampleRow{}
	at := func(offset int) *sampleRow {
		if row, ok := rows[offset]; ok {
			return row
		}
		row := &sampleRow{
			ActivityID: act.ID,
			Sport:      string(act.Sport),
			OffsetS:    int64(offset),
			HRBPM:      math.NaN(),
			PaceMinKm:  math.NaN(),
			PowerW:     math.NaN(),
			ElevationM: math.NaN(),
			DistanceKm: math.NaN(),
			CadenceRPM: math.NaN(),
		}
		rows[offset] = row
		return row
	}

	if hr := act.HRStream; hr != nil {
		for i, v := range hr.HeartRate {
			row := at(hr.Time[i])
			row.HRBPM = float64(v)
			row.ValidHR = true
		}
	}
	if pace := act.PaceStream; pace != nil {
		for i, p := range pace.Pace {
			row := at(pace.Time[i])
			row.PaceMinKm = p
			row.ValidPace = true
			if i < len(pace.Elevation) {
				row.ElevationM = pace.Elevation[i]
			}
			if i < len(pace.Distance) {
				row.DistanceKm = pace.Distance[i]
			}
			if i < len(pace.Cadence) {
				row.CadenceRPM = float64(pace.Cadence[i])
			}
		}
	}
	if power := act.PowerStream; power != nil {
		for i, w := range power.Watts {
			row := at(power.Time[i])
			row.PowerW = float64(w)
			row.ValidPower = true
		}
	}

	offsets := make([]int, 0, len(rows))
	for offset := range rows {
		offsets = append(offsets, offset)
	}
	sort.Ints(offsets)

	out := make([]sampleRow, 0, len(offsets))
	for _, offset := range offsets {
		out = append(out, *rows[offset])
	}
	return out
}

func writeParquet[T any](path string, rows []T) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewParquetWriter(fw, new(T), parallelWriters)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

type sampleRow struct {
	ActivityID string  `parquet:"name=activity_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Sport      string  `parquet:"name=sport, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	OffsetS    int64   `parquet:"name=offset_s, type=INT64"`
	HRBPM      float64 `parquet:"name=hr_bpm, type=DOUBLE"`
	PaceMinKm  float64 `parquet:"name=pace_min_km, type=DOUBLE"`
	PowerW     float64 `parquet:"name=power_w, type=DOUBLE"`
	ElevationM float64 `parquet:"name=elevation_m, type=DOUBLE"`
	DistanceKm float64 `parquet:"name=distance_km, type=DOUBLE"`
	CadenceRPM float64 `parquet:"name=cadence_rpm, type=DOUBLE"`
	ValidHR    bool    `parquet:"name=valid_hr, type=BOOLEAN"`
	ValidPace  bool    `parquet:"name=valid_pace, type=BOOLEAN"`
	ValidPower bool    `parquet:"name=valid_power, type=BOOLEAN"`
}

type summaryRow struct {
	ActivityID           string  `parquet:"name=activity_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Sport                string  `parquet:"name=sport, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	StartedAtISO         string  `parquet:"name=started_at_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	DistanceKm           float64 `parquet:"name=distance_km, type=DOUBLE"`
	DurationS            float64 `parquet:"name=duration_s, type=DOUBLE"`
	AvgHR                float64 `parquet:"name=avg_hr, type=DOUBLE"`
	MaxHR                float64 `parquet:"name=max_hr, type=DOUBLE"`
	AvgWatts             float64 `parquet:"name=avg_watts, type=DOUBLE"`
	MaxWatts             float64 `parquet:"name=max_watts, type=DOUBLE"`
	HRKind               string  `parquet:"name=hr_kind, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	PowerKind            string  `parquet:"name=power_kind, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Source               string  `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Category             string  `parquet:"name=category, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Tendency             string  `parquet:"name=tendency, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	IsLong               bool    `parquet:"name=is_long, type=BOOLEAN"`
	IsInterval           bool    `parquet:"name=is_interval, type=BOOLEAN"`
	Intervals            int64   `parquet:"name=intervals, type=INT64"`
	NormalizedGradedPace float64 `parquet:"name=normalized_graded_pace, type=DOUBLE"`
	PaceVariability      float64 `parquet:"name=pace_variability_index, type=DOUBLE"`
	EfficiencyFactor     float64 `parquet:"name=efficiency_factor, type=DOUBLE"`
	DecouplingPct        float64 `parquet:"name=decoupling_pct, type=DOUBLE"`
	TrainingStress       float64 `parquet:"name=training_stress, type=DOUBLE"`
	StressSource         string  `parquet:"name=stress_source, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func intOrNaN(p *int) float64 {
	if p == nil {
		return math.NaN()
	}
	return float64(*p)
}
