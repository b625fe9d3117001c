package registry

import (
	"context"
	"errors"
	"time"

	"stackcast/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository stores versioned model artifacts per (series_key, model_key).
type Repository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRepository(pool pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

func (r *Repository) NextVersion(ctx context.Context, seriesKey, modelKey string) (int, error) {
	_, span := r.tracer.Start(ctx, "model-registry.next-version")
	defer span.End()

	var version int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM forecast_model_versions WHERE series_key = $1 AND model_key = $2`,
		seriesKey, modelKey).Scan(&version)
	return version, err
}

func (r *Repository) InsertModelVersion(ctx context.Context, model domain.ModelVersion) (*domain.ModelVersion, error) {
	_, span := r.tracer.Start(ctx, "model-registry.insert")
	defer span.End()

	if model.SeriesKey == "" || model.ModelKey == "" || model.Version <= 0 {
		return nil, errors.New("invalid model version payload")
	}
	var out domain.ModelVersion
	err := r.pool.QueryRow(ctx, `
INSERT INTO forecast_model_versions (
    series_key, model_key, version, interval,
    trained_from, trained_to, trained_at,
    hyperparams_json, metrics_json,
    artifact_format, artifact_blob,
    is_active, activated_at
) VALUES (
    $1, $2, $3, $4,
    $5, $6, COALESCE($7, NOW()),
    $8, $9,
    $10, $11,
    $12, $13
)
RETURNING id, series_key, model_key, version, interval,
          trained_from, trained_to, trained_at,
          hyperparams_json, metrics_json,
          artifact_format, artifact_blob,
          is_active, activated_at, created_at`,
		model.SeriesKey,
		model.ModelKey,
		model.Version,
		model.Interval,
		model.TrainedFrom.UTC(),
		model.TrainedTo.UTC(),
		nullIfZeroTime(model.TrainedAt),
		fallbackJSON(model.HyperparamsJSON),
		fallbackJSON(model.MetricsJSON),
		model.ArtifactFormat,
		model.ArtifactBlob,
		model.IsActive,
		nullTime(model.ActivatedAt),
	).Scan(
		&out.ID,
		&out.SeriesKey,
		&out.ModelKey,
		&out.Version,
		&out.Interval,
		&out.TrainedFrom,
		&out.TrainedTo,
		&out.TrainedAt,
		&out.HyperparamsJSON,
		&out.MetricsJSON,
		&out.ArtifactFormat,
		&out.ArtifactBlob,
		&out.IsActive,
		&out.ActivatedAt,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	normalizeModelTimes(&out)
	return &out, nil
}

func (r *Repository) GetActiveModel(ctx context.Context, seriesKey, modelKey string) (*domain.ModelVersion, error) {
	_, span := r.tracer.Start(ctx, "model-registry.get-active")
	defer span.End()

	return r.getOne(ctx, `
SELECT id, series_key, model_key, version, interval,
       trained_from, trained_to, trained_at,
       hyperparams_json, metrics_json,
       artifact_format, artifact_blob,
       is_active, activated_at, created_at
FROM forecast_model_versions
WHERE series_key = $1 AND model_key = $2 AND is_active = TRUE
ORDER BY version DESC
LIMIT 1`, seriesKey, modelKey)
}

func (r *Repository) GetLatestModel(ctx context.Context, seriesKey, modelKey string) (*domain.ModelVersion, error) {
	_, span := r.tracer.Start(ctx, "model-registry.get-latest")
	defer span.End()

	return r.getOne(ctx, `
SELECT id, series_key, model_key, version, interval,
       trained_from, trained_to, trained_at,
       hyperparams_json, metrics_json,
       artifact_format, artifact_blob,
       is_active, activated_at, created_at
FROM forecast_model_versions
WHERE series_key = $1 AND model_key = $2
ORDER BY version DESC
LIMIT 1`, seriesKey, modelKey)
}

// GetModelVersion fetches one pinned version, blob included.
func (r *Repository) GetModelVersion(ctx context.Context, seriesKey, modelKey string, version int) (*domain.ModelVersion, error) {
	_, span := r.tracer.Start(ctx, "model-registry.get-version")
	defer span.End()

	return r.getOne(ctx, `
SELECT id, series_key, model_key, version, interval,
       trained_from, trained_to, trained_at,
       hyperparams_json, metrics_json,
       artifact_format, artifact_blob,
       is_active, activated_at, created_at
FROM forecast_model_versions
WHERE series_key = $1 AND model_key = $2 AND version = $3`, seriesKey, modelKey, version)
}

// ListModels returns version metadata for a series without artifact blobs.
func (r *Repository) ListModels(ctx context.Context, seriesKey string) ([]domain.ModelVersion, error) {
	_, span := r.tracer.Start(ctx, "model-registry.list")
	defer span.End()

	rs, err := r.pool.Query(ctx, `
SELECT id, series_key, model_key, version, interval,
       trained_from, trained_to, trained_at,
       hyperparams_json, metrics_json,
       artifact_format, is_active, activated_at, created_at
FROM forecast_model_versions
WHERE series_key = $1
ORDER BY model_key ASC, version DESC`, seriesKey)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []domain.ModelVersion
	for rs.Next() {
		var m domain.ModelVersion
		if err := rs.Scan(
			&m.ID, &m.SeriesKey, &m.ModelKey, &m.Version, &m.Interval,
			&m.TrainedFrom, &m.TrainedTo, &m.TrainedAt,
			&m.HyperparamsJSON, &m.MetricsJSON,
			&m.ArtifactFormat, &m.IsActive, &m.ActivatedAt, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		normalizeModelTimes(&m)
		out = append(out, m)
	}
	return out, rs.Err()
}

// ActivateModel flips the single-active flag to the given version inside a
// transaction.
func (r *Repository) ActivateModel(ctx context.Context, seriesKey, modelKey string, version int) error {
	_, span := r.tracer.Start(ctx, "model-registry.activate")
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE forecast_model_versions SET is_active = FALSE, activated_at = NULL WHERE series_key = $1 AND model_key = $2`,
		seriesKey, modelKey); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE forecast_model_versions SET is_active = TRUE, activated_at = NOW() WHERE series_key = $1 AND model_key = $2 AND version = $3`,
		seriesKey, modelKey, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

func (r *Repository) getOne(ctx context.Context, query string, args ...any) (*domain.ModelVersion, error) {
	var out domain.ModelVersion
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&out.ID,
		&out.SeriesKey,
		&out.ModelKey,
		&out.Version,
		&out.Interval,
		&out.TrainedFrom,
		&out.TrainedTo,
		&out.TrainedAt,
		&out.HyperparamsJSON,
		&out.MetricsJSON,
		&out.ArtifactFormat,
		&out.ArtifactBlob,
		&out.IsActive,
		&out.ActivatedAt,
		&out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	normalizeModelTimes(&out)
	return &out, nil
}

func normalizeModelTimes(model *domain.ModelVersion) {
	model.TrainedFrom = model.TrainedFrom.UTC()
	model.TrainedTo = model.TrainedTo.UTC()
	model.TrainedAt = model.TrainedAt.UTC()
	model.CreatedAt = model.CreatedAt.UTC()
	if model.ActivatedAt != nil {
		t := model.ActivatedAt.UTC()
		model.ActivatedAt = &t
	}
}

func fallbackJSON(v string) string {
	if v == "" {
		return "{}"
	}
	return v
}

func nullIfZeroTime(v time.Time) any {
	if v.IsZero() {
		return nil
	}
	return v.UTC()
}

func nullTime(v *time.Time) any {
	if v == nil || v.IsZero() {
		return nil
	}
	t := v.UTC()
	return t
}
