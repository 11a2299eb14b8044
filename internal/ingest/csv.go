package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"example.com/insight/internal/domain"
)

// csvTimeLayouts are tried in order when parsing started_at cells.
var csvTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCSV reads a summary-level export: one activity per row, columns
// resolved by header name. Required columns are sport, started_at,
// distance_km, and duration_sec; id, avg_hr, max_hr, avg_watts, and
// max_watts are optional. Unknown columns are ignored.
func ParseCSV(r io.Reader) ([]domain.ActivityInput, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"sport", "started_at", "distance_km", "duration_sec"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("csv header missing column %s", required)
		}
	}

	var inputs []domain.ActivityInput
	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row, err)
		}
		if blankRow(record) {
			continue
		}

		cell := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		startedAt, err := parseCSVTime(cell("started_at"))
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", row, err)
		}
		distance, err := strconv.ParseFloat(cell("distance_km"), 64)
		if err != nil {
			return nil, fmt.Errorf("csv row %d: distance_km: %w", row, err)
		}
		duration, err := strconv.ParseFloat(cell("duration_sec"), 64)
		if err != nil {
			return nil, fmt.Errorf("csv row %d: duration_sec: %w", row, err)
		}

		input := domain.ActivityInput{
			ID:          cell("id"),
			Sport:       cell("sport"),
			StartedAt:   startedAt,
			DistanceKm:  distance,
			DurationSec: duration,
			Source:      domain.SourceImport,
		}
		for name, dst := range map[string]**int{
			"avg_hr":    &input.AvgHR,
			"max_hr":    &input.MaxHR,
			"avg_watts": &input.AvgWatts,
			"max_watts": &input.MaxWatts,
		} {
			raw := cell(name)
			if raw == "" {
				continue
			}
			value, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("csv row %d: %s: %w", row, name, err)
			}
			*dst = &value
		}

		inputs = append(inputs, input)
	}
	return inputs, nil
}

func parseCSVTime(raw string) (time.Time, error) {
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("started_at %q not in a recognized layout", raw)
}

func blankRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
