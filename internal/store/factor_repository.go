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

// FactorRepository persists PositionFactorExposure rows (spec.md §4.E).
type FactorRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewFactorRepository creates a new factor exposure repository.
func NewFactorRepository(db *sql.DB, log zerolog.Logger) *FactorRepository {
	return &FactorRepository{db: db, log: log.With().Str("repository", "factor_exposure").Logger()}
}

// Upsert writes one PositionFactorExposure row. A nil Beta means the
// factor proxy series was unavailable for this position/date.
func (r *FactorRepository) Upsert(ctx context.Context, e models.PositionFactorExposure) error {
	now := time.Now().Unix()
	var beta sql.NullFloat64
	if e.Beta != nil {
		beta = sql.NullFloat64{Float64: money.Round4(*e.Beta), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO position_factor_exposures (position_id, factor, calculation_date, beta, r_squared, tracking_error, data_points, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(position_id, factor, calculation_date) DO UPDATE SET
			beta = excluded.beta, r_squared = excluded.r_squared,
			tracking_error = excluded.tracking_error, data_points = excluded.data_points,
			updated_at = excluded.updated_at
	`, models.EnsureID(e.PositionID), e.Factor, e.CalculationDate, beta, money.Round4(e.RSquared), money.Round4(e.TrackingError), e.DataPoints, now)
	if err != nil {
		return fmt.Errorf("upsert factor exposure %s/%s/%s: %w", e.PositionID, e.Factor, e.CalculationDate, err)
	}
	return nil
}

// ListForPortfolio returns every position-factor exposure row for a
// portfolio on a date.
func (r *FactorRepository) ListForPortfolio(ctx context.Context, portfolioID, date string) ([]models.PositionFactorExposure, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.position_id, f.factor, f.calculation_date, f.beta, f.r_squared, f.tracking_error, f.data_points
		FROM position_factor_exposures f
		JOIN positions p ON p.id = f.position_id
		WHERE p.portfolio_id = ? AND f.calculation_date = ?
	`, models.EnsureID(portfolioID), date)
	if err != nil {
		return nil, fmt.Errorf("list factor exposures for %s/%s: %w", portfolioID, date, err)
	}
	defer rows.Close()

	var out []models.PositionFactorExposure
	for rows.Next() {
		var e models.PositionFactorExposure
		var beta sql.NullFloat64
		if err := rows.Scan(&e.PositionID, &e.Factor, &e.CalculationDate, &beta, &e.RSquared, &e.TrackingError, &e.DataPoints); err != nil {
			return nil, fmt.Errorf("scan factor exposure: %w", err)
		}
		if beta.Valid {
			v := beta.Float64
			e.Beta = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
