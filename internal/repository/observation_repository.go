package repository

import (
	"context"
	"time"

	"stackcast/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ObservationRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewObservationRepository(pool PgxPool, tracer trace.Tracer) *ObservationRepository {
	return &ObservationRepository{pool: pool, tracer: tracer}
}

// UpsertObservations writes a batch of observations, replacing values on
// timestamp collisions so late corrections win.
func (r *ObservationRepository) UpsertObservations(ctx context.Context, observations []*domain.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "observation-repo.upsert-observations")
	defer span.End()

	batch := &pgx.Batch{}
	for _, o := range observations {
		batch.Queue(
			`INSERT INTO observations (series_key, interval, ts, value)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (series_key, ts) DO UPDATE SET
			     interval = EXCLUDED.interval,
			     value = EXCLUDED.value`,
			o.SeriesKey, o.Interval, o.Timestamp.UTC(), o.Value,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range observations {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// GetRecent returns the newest observations for a series, newest first.
func (r *ObservationRepository) GetRecent(ctx context.Context, seriesKey string, limit int) ([]*domain.Observation, error) {
	_, span := r.tracer.Start(ctx, "observation-repo.get-recent")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT series_key, interval, ts, value
		 FROM observations
		 WHERE series_key = $1
		 ORDER BY ts DESC
		 LIMIT $2`,
		seriesKey, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

// GetRange returns observations inside [from, to], newest first.
func (r *ObservationRepository) GetRange(ctx context.Context, seriesKey string, from, to time.Time) ([]*domain.Observation, error) {
	_, span := r.tracer.Start(ctx, "observation-repo.get-range")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT series_key, interval, ts, value
		 FROM observations
		 WHERE series_key = $1 AND ts >= $2 AND ts <= $3
		 ORDER BY ts DESC`,
		seriesKey, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

// GetAt returns the observation at an exact timestamp, or nil when absent.
func (r *ObservationRepository) GetAt(ctx context.Context, seriesKey string, ts time.Time) (*domain.Observation, error) {
	_, span := r.tracer.Start(ctx, "observation-repo.get-at")
	defer span.End()

	var o domain.Observation
	err := r.pool.QueryRow(ctx,
		`SELECT series_key, interval, ts, value
		 FROM observations
		 WHERE series_key = $1 AND ts = $2`,
		seriesKey, ts.UTC(),
	).Scan(&o.SeriesKey, &o.Interval, &o.Timestamp, &o.Value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	o.Timestamp = o.Timestamp.UTC()
	return &o, nil
}

// ListSeriesKeys returns the distinct series keys currently ingested.
func (r *ObservationRepository) ListSeriesKeys(ctx context.Context) ([]string, error) {
	_, span := r.tracer.Start(ctx, "observation-repo.list-series-keys")
	defer span.End()

	rows, err := r.pool.Query(ctx, `SELECT DISTINCT series_key FROM observations ORDER BY series_key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func scanObservations(rows pgx.Rows) ([]*domain.Observation, error) {
	var observations []*domain.Observation
	for rows.Next() {
		o := &domain.Observation{}
		if err := rows.Scan(&o.SeriesKey, &o.Interval, &o.Timestamp, &o.Value); err != nil {
			return nil, err
		}
		o.Timestamp = o.Timestamp.UTC()
		observations = append(observations, o)
	}
	return observations, rows.Err()
}
