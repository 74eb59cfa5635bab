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

// ValuationRepository persists PositionValuation rows (spec.md §4.B).
type ValuationRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewValuationRepository creates a new valuation repository.
func NewValuationRepository(db *sql.DB, log zerolog.Logger) *ValuationRepository {
	return &ValuationRepository{db: db, log: log.With().Str("repository", "valuation").Logger()}
}

// Upsert writes one PositionValuation row, idempotent per (position, date).
func (r *ValuationRepository) Upsert(ctx context.Context, v models.PositionValuation) error {
	now := time.Now().Unix()
	stale := 0
	if v.Stale {
		stale = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO position_valuations (position_id, calculation_date, last_price, market_value, exposure, daily_pnl, stale, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(position_id, calculation_date) DO UPDATE SET
			last_price = excluded.last_price,
			market_value = excluded.market_value,
			exposure = excluded.exposure,
			daily_pnl = excluded.daily_pnl,
			stale = excluded.stale,
			updated_at = excluded.updated_at
	`, models.EnsureID(v.PositionID), v.CalculationDate, money.Round2(v.LastPrice), money.Round2(v.MarketValue), money.Round2(v.Exposure), money.Round2(v.DailyPnL), stale, now)
	if err != nil {
		return fmt.Errorf("upsert position valuation %s/%s: %w", v.PositionID, v.CalculationDate, err)
	}
	return nil
}

// Get returns a position's valuation for a date, or (nil, nil) if absent.
func (r *ValuationRepository) Get(ctx context.Context, positionID, date string) (*models.PositionValuation, error) {
	var v models.PositionValuation
	var stale int
	err := r.db.QueryRowContext(ctx, `
		SELECT position_id, calculation_date, last_price, market_value, exposure, daily_pnl, stale
		FROM position_valuations WHERE position_id = ? AND calculation_date = ?
	`, models.EnsureID(positionID), date).Scan(&v.PositionID, &v.CalculationDate, &v.LastPrice, &v.MarketValue, &v.Exposure, &v.DailyPnL, &stale)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position valuation %s/%s: %w", positionID, date, err)
	}
	v.Stale = stale != 0
	return &v, nil
}

// ListForPortfolio returns every position's valuation for a portfolio on a
// date, joined through the positions table.
func (r *ValuationRepository) ListForPortfolio(ctx context.Context, portfolioID, date string) ([]models.PositionValuation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT v.position_id, v.calculation_date, v.last_price, v.market_value, v.exposure, v.daily_pnl, v.stale
		FROM position_valuations v
		JOIN positions p ON p.id = v.position_id
		WHERE p.portfolio_id = ? AND v.calculation_date = ?
	`, models.EnsureID(portfolioID), date)
	if err != nil {
		return nil, fmt.Errorf("list valuations for %s/%s: %w", portfolioID, date, err)
	}
	defer rows.Close()

	var out []models.PositionValuation
	for rows.Next() {
		var v models.PositionValuation
		var stale int
		if err := rows.Scan(&v.PositionID, &v.CalculationDate, &v.LastPrice, &v.MarketValue, &v.Exposure, &v.DailyPnL, &stale); err != nil {
			return nil, fmt.Errorf("scan valuation: %w", err)
		}
		v.Stale = stale != 0
		out = append(out, v)
	}
	return out, rows.Err()
}

// LatestBefore returns a position's most recent valuation strictly before
// date, or (nil, nil) if this is the position's first-ever valuation.
// Used by the valuation engine to compute per-position daily_pnl.
func (r *ValuationRepository) LatestBefore(ctx context.Context, positionID, beforeDate string) (*models.PositionValuation, error) {
	var v models.PositionValuation
	var stale int
	err := r.db.QueryRowContext(ctx, `
		SELECT position_id, calculation_date, last_price, market_value, exposure, daily_pnl, stale
		FROM position_valuations
		WHERE position_id = ? AND calculation_date < ?
		ORDER BY calculation_date DESC LIMIT 1
	`, models.EnsureID(positionID), beforeDate).Scan(&v.PositionID, &v.CalculationDate, &v.LastPrice, &v.MarketValue, &v.Exposure, &v.DailyPnL, &stale)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest valuation before %s for %s: %w", beforeDate, positionID, err)
	}
	v.Stale = stale != 0
	return &v, nil
}
