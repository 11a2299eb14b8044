// Package postgres provides the PostgreSQL-backed repository for
// activities, settings, and outbox events. Every statement runs with
// app.tenant_id set so row-level security confines it to the caller's
// tenant.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/insight/internal/analysis"
	"example.com/insight/internal/domain"
	"example.com/insight/internal/events"
	"example.com/insight/internal/observability"
)

const activityColumns = `activity_id, tenant_id, sport, started_at, distance_km, duration_sec,
        avg_hr, max_hr, avg_watts, max_watts, hr_stream, pace_stream, power_stream,
        hr_kind, power_kind, source, created_at, updated_at`

// Repository provides Postgres-backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get retrieves an activity by ID. A missing row returns nil, nil.
func (r *Repository) Get(ctx context.Context, tenantID, activityID string) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=$1 AND activity_id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	act, err := scanActivity(tx.QueryRow(ctx, query, tenantID, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return act, nil
}

// Save upserts the activity and records its outbox events inside a
// single transaction.
func (r *Repository) Save(ctx context.Context, activity domain.Activity, outbound []domain.Event) error {
	hrRaw, err := streamJSON(activity.HRStream)
	if err != nil {
		return err
	}
	paceRaw, err := streamJSON(activity.PaceStream)
	if err != nil {
		return err
	}
	powerRaw, err := streamJSON(activity.PowerStream)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", activity.TenantID); err != nil {
		return err
	}

	const upsert = `INSERT INTO activities (activity_id, tenant_id, sport, started_at, distance_km, duration_sec,
            avg_hr, max_hr, avg_watts, max_watts, hr_stream, pace_stream, power_stream,
            hr_kind, power_kind, source, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
        ON CONFLICT (tenant_id, activity_id) DO UPDATE SET
            sport=EXCLUDED.sport, started_at=EXCLUDED.started_at,
            distance_km=EXCLUDED.distance_km, duration_sec=EXCLUDED.duration_sec,
            avg_hr=EXCLUDED.avg_hr, max_hr=EXCLUDED.max_hr,
            avg_watts=EXCLUDED.avg_watts, max_watts=EXCLUDED.max_watts,
            hr_stream=EXCLUDED.hr_stream, pace_stream=EXCLUDED.pace_stream,
            power_stream=EXCLUDED.power_stream, hr_kind=EXCLUDED.hr_kind,
            power_kind=EXCLUDED.power_kind, source=EXCLUDED.source,
            updated_at=EXCLUDED.updated_at`

	_, err = tx.Exec(ctx, upsert,
		activity.ID,
		activity.TenantID,
		activity.Sport,
		activity.StartedAt,
		activity.DistanceKm,
		activity.DurationSec,
		activity.AvgHR,
		activity.MaxHR,
		activity.AvgWatts,
		activity.MaxWatts,
		hrRaw,
		paceRaw,
		powerRaw,
		activity.HRKind,
		activity.PowerKind,
		activity.Source,
		activity.CreatedAt,
		activity.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for _, evt := range outbound {
		if err = r.insertOutbox(ctx, tx, activity, evt); err != nil {
			return err
		}
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordActivityIngested(activity.Source, activity.StartedAt)
	return nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, activity domain.Activity, evt domain.Event) error {
	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[evt.Type]
	if !ok {
		return fmt.Errorf("unknown event type: %s", evt.Type)
	}

	// Re-imports publish again, so the dedupe key includes the write
	// timestamp.
	dedupeKey := fmt.Sprintf("%s:%s:%d", activity.ID, evt.Type, activity.UpdatedAt.UnixNano())

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		activity.TenantID,
		"activity",
		activity.ID,
		evt.Type,
		meta.Topic,
		meta.SchemaSubject,
		evt.Key,
		body,
		dedupeKey,
	)
	return err
}

// List returns one page of activities ordered by started_at
// descending with the activity ID as tiebreaker.
func (r *Repository) List(ctx context.Context, tenantID string, sport analysis.Sport, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=$1`
	args := []interface{}{tenantID}

	if sport != "" {
		args = append(args, sport)
		query += fmt.Sprintf(" AND sport=$%d", len(args))
	}
	if cursor != nil {
		args = append(args, cursor.StartedAt, cursor.ID)
		query += fmt.Sprintf(" AND (started_at, activity_id) < ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY started_at DESC, activity_id DESC LIMIT $%d", len(args))

	results, err := r.queryActivities(ctx, tenantID, query, args...)
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

// ListSince returns every activity started on or after the cutoff,
// newest first.
func (r *Repository) ListSince(ctx context.Context, tenantID string, sport analysis.Sport, since time.Time) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=$1 AND started_at >= $2`
	args := []interface{}{tenantID, since}

	if sport != "" {
		args = append(args, sport)
		query += fmt.Sprintf(" AND sport=$%d", len(args))
	}
	query += " ORDER BY started_at DESC, activity_id DESC"

	return r.queryActivities(ctx, tenantID, query, args...)
}

func (r *Repository) queryActivities(ctx context.Context, tenantID, query string, args ...interface{}) ([]domain.Activity, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0)
	for rows.Next() {
		act, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *act)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// GetSettings reads the athlete configuration row. A missing row
// returns nil, nil; the domain layer seeds defaults.
func (r *Repository) GetSettings(ctx context.Context, tenantID string) (*domain.Settings, error) {
	const query = `SELECT z2_upper, z3_upper, z4_upper, z5_upper, max_hr, ftp, updated_at
        FROM settings WHERE tenant_id=$1`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	var s domain.Settings
	row := tx.QueryRow(ctx, query, tenantID)
	if err := row.Scan(&s.Zones.Z2Upper, &s.Zones.Z3Upper, &s.Zones.Z4Upper, &s.Zones.Z5Upper, &s.MaxHR, &s.FTP, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &s, nil
}

// PutSettings upserts the athlete configuration row.
func (r *Repository) PutSettings(ctx context.Context, tenantID string, settings domain.Settings) error {
	const stmt = `INSERT INTO settings (tenant_id, z2_upper, z3_upper, z4_upper, z5_upper, max_hr, ftp, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (tenant_id) DO UPDATE SET
            z2_upper=EXCLUDED.z2_upper, z3_upper=EXCLUDED.z3_upper,
            z4_upper=EXCLUDED.z4_upper, z5_upper=EXCLUDED.z5_upper,
            max_hr=EXCLUDED.max_hr, ftp=EXCLUDED.ftp, updated_at=EXCLUDED.updated_at`

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, stmt,
		tenantID,
		settings.Zones.Z2Upper,
		settings.Zones.Z3Upper,
		settings.Zones.Z4Upper,
		settings.Zones.Z5Upper,
		settings.MaxHR,
		settings.FTP,
		settings.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActivity(row rowScanner) (*domain.Activity, error) {
	var (
		act      domain.Activity
		hrRaw    []byte
		paceRaw  []byte
		powerRaw []byte
	)
	if err := row.Scan(
		&act.ID, &act.TenantID, &act.Sport, &act.StartedAt, &act.DistanceKm, &act.DurationSec,
		&act.AvgHR, &act.MaxHR, &act.AvgWatts, &act.MaxWatts,
		&hrRaw, &paceRaw, &powerRaw,
		&act.HRKind, &act.PowerKind, &act.Source, &act.CreatedAt, &act.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := streamFromJSON(hrRaw, &act.HRStream); err != nil {
		return nil, err
	}
	if err := streamFromJSON(paceRaw, &act.PaceStream); err != nil {
		return nil, err
	}
	if err := streamFromJSON(powerRaw, &act.PowerStream); err != nil {
		return nil, err
	}
	return &act, nil
}

func streamJSON[T any](s *T) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func streamFromJSON[T any](raw []byte, dest **T) error {
	if len(raw) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dest = &v
	return nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

// Both insight events share a topic, so the schema subjects follow
// the record-name strategy.
var eventCatalog = map[string]EventMetadata{
	events.TypeActivityImported: {
		Topic:         events.TopicActivityInsights,
		SchemaSubject: events.TypeActivityImported + "-value",
	},
	events.TypeActivityAnalyzed: {
		Topic:         events.TopicActivityInsights,
		SchemaSubject: events.TypeActivityAnalyzed + "-value",
	},
}
