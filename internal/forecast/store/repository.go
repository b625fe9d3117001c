// Package store persists forecast rows and resolves them against actuals
// once their target timestamps pass.
package store

import (
	"context"
	"time"

	"stackcast/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/trace"
)

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRepository(pool pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

// UpsertRows writes one forecast horizon as individual step rows, replacing
// an earlier forecast for the same (series, model, version, timestamp).
func (r *Repository) UpsertRows(ctx context.Context, rows []domain.ForecastRow) error {
	if len(rows) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "forecast-store.upsert-rows")
	defer span.End()

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
INSERT INTO forecast_rows (
    series_key, interval, model_key, model_version,
    generated_at, ts, value, lower_bound, upper_bound
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (series_key, model_key, model_version, ts) DO UPDATE SET
    generated_at = EXCLUDED.generated_at,
    value = EXCLUDED.value,
    lower_bound = EXCLUDED.lower_bound,
    upper_bound = EXCLUDED.upper_bound,
    actual = NULL,
    abs_error = NULL,
    resolved_at = NULL`,
			row.SeriesKey, row.Interval, row.ModelKey, row.ModelVersion,
			row.GeneratedAt.UTC(), row.Timestamp.UTC(), row.Value, row.Lower, row.Upper,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range rows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListLatest returns the most recently generated forecast rows for one
// series and model key, ordered by target timestamp.
func (r *Repository) ListLatest(ctx context.Context, seriesKey, modelKey string) ([]domain.ForecastRow, error) {
	_, span := r.tracer.Start(ctx, "forecast-store.list-latest")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT id, series_key, interval, model_key, model_version,
       generated_at, ts, value, lower_bound, upper_bound,
       actual, abs_error, resolved_at, created_at
FROM forecast_rows
WHERE series_key = $1
  AND model_key = $2
  AND generated_at = (
      SELECT MAX(generated_at) FROM forecast_rows
      WHERE series_key = $1 AND model_key = $2
  )
ORDER BY ts ASC`, seriesKey, modelKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanForecastRows(rows)
}

// ListUnresolvedDue returns rows whose target timestamps have passed but
// have not yet been matched to an actual observation.
func (r *Repository) ListUnresolvedDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.ForecastRow, error) {
	_, span := r.tracer.Start(ctx, "forecast-store.list-unresolved-due")
	defer span.End()

	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, series_key, interval, model_key, model_version,
       generated_at, ts, value, lower_bound, upper_bound,
       actual, abs_error, resolved_at, created_at
FROM forecast_rows
WHERE resolved_at IS NULL
  AND ts <= $1
ORDER BY ts ASC
LIMIT $2`, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanForecastRows(rows)
}

// ResolveRow records the realized value and absolute error for one row.
func (r *Repository) ResolveRow(ctx context.Context, rowID int64, actual, absError float64) error {
	_, span := r.tracer.Start(ctx, "forecast-store.resolve-row")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `
UPDATE forecast_rows
SET resolved_at = NOW(),
    actual = $2,
    abs_error = $3
WHERE id = $1
  AND resolved_at IS NULL`, rowID, actual, absError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Accuracy aggregates resolved rows per model key for a series over a
// trailing window. Coverage is the share of actuals inside the interval.
func (r *Repository) Accuracy(ctx context.Context, seriesKey string, since time.Time) ([]domain.AccuracySummary, error) {
	_, span := r.tracer.Start(ctx, "forecast-store.accuracy")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT model_key,
       COUNT(*) AS resolved,
       AVG(abs_error) AS mae,
       SQRT(AVG(abs_error * abs_error)) AS rmse,
       AVG(CASE WHEN actual BETWEEN lower_bound AND upper_bound THEN 1.0 ELSE 0.0 END) AS coverage
FROM forecast_rows
WHERE series_key = $1
  AND resolved_at IS NOT NULL
  AND ts >= $2
GROUP BY model_key
ORDER BY model_key ASC`, seriesKey, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AccuracySummary
	for rows.Next() {
		s := domain.AccuracySummary{SeriesKey: seriesKey}
		if err := rows.Scan(&s.ModelKey, &s.Resolved, &s.MAE, &s.RMSE, &s.Coverage); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanForecastRows(rows pgx.Rows) ([]domain.ForecastRow, error) {
	var out []domain.ForecastRow
	for rows.Next() {
		var row domain.ForecastRow
		var actual pgtype.Float8
		var absError pgtype.Float8
		var resolvedAt pgtype.Timestamptz
		if err := rows.Scan(
			&row.ID,
			&row.SeriesKey,
			&row.Interval,
			&row.ModelKey,
			&row.ModelVersion,
			&row.GeneratedAt,
			&row.Timestamp,
			&row.Value,
			&row.Lower,
			&row.Upper,
			&actual,
			&absError,
			&resolvedAt,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		row.GeneratedAt = row.GeneratedAt.UTC()
		row.Timestamp = row.Timestamp.UTC()
		row.CreatedAt = row.CreatedAt.UTC()
		if actual.Valid {
			v := actual.Float64
			row.Actual = &v
		}
		if absError.Valid {
			v := absError.Float64
			row.AbsError = &v
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time.UTC()
			row.ResolvedAt = &t
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
