package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/models"
	"github.com/aristath/riskengine/internal/money"
)

// GreeksRepository persists PositionGreeks rows, including the
// null-on-error case (all columns null) the spec mandates (spec.md §9).
type GreeksRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewGreeksRepository creates a new Greeks repository.
func NewGreeksRepository(db *sql.DB, log zerolog.Logger) *GreeksRepository {
	return &GreeksRepository{db: db, log: log.With().Str("repository", "greeks").Logger()}
}

// BulkUpsertResult reports how many rows succeeded vs failed in a chunked
// upsert, per spec.md §4.C's `{updated, failed, errors}` return shape.
type BulkUpsertResult struct {
	Updated int
	Failed  int
	Errors  []error
}

// BulkUpsert writes rows in chunks of chunkSize, matching the teacher's
// batch-upsert pattern. A nil Values means the calculation failed; all
// Greek columns are stored as SQL NULL for that row.
func (r *GreeksRepository) BulkUpsert(ctx context.Context, rows []models.PositionGreeks, chunkSize int) BulkUpsertResult {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	result := BulkUpsertResult{}

	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		err := withTx(ctx, r.db, func(tx *sql.Tx) error {
			for _, row := range chunk {
				if err := upsertOneGreeks(ctx, tx, row); err != nil {
					return err
				}
			}
			return nil
		})

		if err != nil {
			result.Failed += len(chunk)
			result.Errors = append(result.Errors, fmt.Errorf("chunk [%d:%d]: %w", start, end, err))
			continue
		}
		result.Updated += len(chunk)
	}

	return result
}

func upsertOneGreeks(ctx context.Context, tx *sql.Tx, row models.PositionGreeks) error {
	now := time.Now().Unix()
	var delta, gamma, theta, vega, rho sql.NullFloat64
	if row.Values != nil {
		delta = sql.NullFloat64{Float64: money.Round4(row.Values.Delta), Valid: true}
		gamma = sql.NullFloat64{Float64: money.Round4(row.Values.Gamma), Valid: true}
		theta = sql.NullFloat64{Float64: money.Round4(row.Values.Theta), Valid: true}
		vega = sql.NullFloat64{Float64: money.Round4(row.Values.Vega), Valid: true}
		rho = sql.NullFloat64{Float64: money.Round4(row.Values.Rho), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO position_greeks (position_id, calculation_date, delta, gamma, theta, vega, rho, dollar_delta, dollar_gamma, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(position_id, calculation_date) DO UPDATE SET
			delta = excluded.delta, gamma = excluded.gamma, theta = excluded.theta,
			vega = excluded.vega, rho = excluded.rho,
			dollar_delta = excluded.dollar_delta, dollar_gamma = excluded.dollar_gamma,
			updated_at = excluded.updated_at
	`, models.EnsureID(row.PositionID), row.CalculationDate, delta, gamma, theta, vega, rho,
		money.Round2(row.DollarDelta), money.Round2(row.DollarGamma), now)
	if err != nil {
		return fmt.Errorf("upsert greeks %s/%s: %w", row.PositionID, row.CalculationDate, err)
	}
	return nil
}

// ListForPortfolio returns every position's Greeks row for a portfolio on
// a date. A nil Values field means the row exists with all-null Greeks.
func (r *GreeksRepository) ListForPortfolio(ctx context.Context, portfolioID, date string) ([]models.PositionGreeks, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT g.position_id, g.calculation_date, g.delta, g.gamma, g.theta, g.vega, g.rho, g.dollar_delta, g.dollar_gamma
		FROM position_greeks g
		JOIN positions p ON p.id = g.position_id
		WHERE p.portfolio_id = ? AND g.calculation_date = ?
	`, models.EnsureID(portfolioID), date)
	if err != nil {
		return nil, fmt.Errorf("list greeks for %s/%s: %w", portfolioID, date, err)
	}
	defer rows.Close()

	var out []models.PositionGreeks
	for rows.Next() {
		var pg models.PositionGreeks
		var delta, gamma, theta, vega, rho sql.NullFloat64
		if err := rows.Scan(&pg.PositionID, &pg.CalculationDate, &delta, &gamma, &theta, &vega, &rho, &pg.DollarDelta, &pg.DollarGamma); err != nil {
			return nil, fmt.Errorf("scan greeks: %w", err)
		}
		if delta.Valid {
			pg.Values = &models.Greeks{Delta: delta.Float64, Gamma: gamma.Float64, Theta: theta.Float64, Vega: vega.Float64, Rho: rho.Float64}
		}
		out = append(out, pg)
	}
	return out, rows.Err()
}

// withTx runs fn inside a transaction, committing on success.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
