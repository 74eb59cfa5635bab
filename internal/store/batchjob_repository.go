package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/models"
)

// BatchJobRepository persists BatchJob rows: one per (portfolio, date,
// engine) execution, driving the orchestrator's state machine
// (spec.md §4.J).
type BatchJobRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewBatchJobRepository creates a new batch job repository.
func NewBatchJobRepository(db *sql.DB, log zerolog.Logger) *BatchJobRepository {
	return &BatchJobRepository{db: db, log: log.With().Str("repository", "batch_job").Logger()}
}

// Upsert writes a BatchJob row, keyed by its own id (not the
// (portfolio,date,engine) tuple) so reruns create a fresh audit row per
// attempt while idx_batch_jobs_lookup still supports the common query.
func (r *BatchJobRepository) Upsert(ctx context.Context, j models.BatchJob) error {
	if j.ID == "" {
		j.ID = models.NewID()
	}
	now := time.Now().Unix()

	var startedAt, finishedAt sql.NullInt64
	if j.StartedAt != nil {
		startedAt = sql.NullInt64{Int64: j.StartedAt.Unix(), Valid: true}
	}
	if j.FinishedAt != nil {
		finishedAt = sql.NullInt64{Int64: j.FinishedAt.Unix(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO batch_jobs (id, portfolio_id, calculation_date, engine, status, started_at, finished_at, duration_seconds, retry_count, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, started_at = excluded.started_at, finished_at = excluded.finished_at,
			duration_seconds = excluded.duration_seconds, retry_count = excluded.retry_count,
			error = excluded.error, updated_at = excluded.updated_at
	`, models.EnsureID(j.ID), models.EnsureID(j.PortfolioID), j.CalculationDate, j.Engine, string(j.Status),
		startedAt, finishedAt, j.DurationSeconds, j.RetryCount, nullIfEmpty(j.Error), now)
	if err != nil {
		return fmt.Errorf("upsert batch job %s: %w", j.ID, err)
	}
	return nil
}

// ListForPortfolioDate returns every engine's BatchJob row for a
// portfolio/date, most recently updated first.
func (r *BatchJobRepository) ListForPortfolioDate(ctx context.Context, portfolioID, date string) ([]models.BatchJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, portfolio_id, calculation_date, engine, status, started_at, finished_at, duration_seconds, retry_count, COALESCE(error, '')
		FROM batch_jobs WHERE portfolio_id = ? AND calculation_date = ?
		ORDER BY updated_at DESC
	`, models.EnsureID(portfolioID), date)
	if err != nil {
		return nil, fmt.Errorf("list batch jobs for %s/%s: %w", portfolioID, date, err)
	}
	defer rows.Close()

	var out []models.BatchJob
	for rows.Next() {
		var j models.BatchJob
		var status string
		var startedAt, finishedAt sql.NullInt64
		if err := rows.Scan(&j.ID, &j.PortfolioID, &j.CalculationDate, &j.Engine, &status, &startedAt, &finishedAt, &j.DurationSeconds, &j.RetryCount, &j.Error); err != nil {
			return nil, fmt.Errorf("scan batch job: %w", err)
		}
		j.Status = models.BatchJobStatus(status)
		if startedAt.Valid {
			t := time.Unix(startedAt.Int64, 0).UTC()
			j.StartedAt = &t
		}
		if finishedAt.Valid {
			t := time.Unix(finishedAt.Int64, 0).UTC()
			j.FinishedAt = &t
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
