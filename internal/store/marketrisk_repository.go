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

// MarketRiskRepository persists MarketRiskResult rows (spec.md §4.F).
type MarketRiskRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMarketRiskRepository creates a new market risk repository.
func NewMarketRiskRepository(db *sql.DB, log zerolog.Logger) *MarketRiskRepository {
	return &MarketRiskRepository{db: db, log: log.With().Str("repository", "market_risk").Logger()}
}

// Upsert writes one MarketRiskResult row, idempotent per (portfolio, date).
func (r *MarketRiskRepository) Upsert(ctx context.Context, m models.MarketRiskResult) error {
	var betaTalib sql.NullFloat64
	if m.BetaTalib != nil {
		betaTalib = sql.NullFloat64{Float64: money.Round4(*m.BetaTalib), Valid: true}
	}

	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO market_risk_results (portfolio_id, calculation_date, var_1d_99, es_1d_99, annualized_vol, beta, beta_talib, sharpe, max_drawdown, data_points, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, calculation_date) DO UPDATE SET
			var_1d_99 = excluded.var_1d_99, es_1d_99 = excluded.es_1d_99,
			annualized_vol = excluded.annualized_vol, beta = excluded.beta,
			beta_talib = excluded.beta_talib, sharpe = excluded.sharpe,
			max_drawdown = excluded.max_drawdown, data_points = excluded.data_points,
			updated_at = excluded.updated_at
	`, models.EnsureID(m.PortfolioID), m.CalculationDate, money.Round2(m.VaR1d99), money.Round2(m.ES1d99), money.Round4(m.AnnualizedVol),
		money.Round4(m.Beta), betaTalib, money.Round4(m.Sharpe), money.Round2(m.MaxDrawdown), m.DataPoints, now)
	if err != nil {
		return fmt.Errorf("upsert market risk result %s/%s: %w", m.PortfolioID, m.CalculationDate, err)
	}
	return nil
}

// Get returns the market risk result for a portfolio on a date, or (nil, nil) if absent.
func (r *MarketRiskRepository) Get(ctx context.Context, portfolioID, date string) (*models.MarketRiskResult, error) {
	var m models.MarketRiskResult
	var betaTalib sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT portfolio_id, calculation_date, var_1d_99, es_1d_99, annualized_vol, beta, beta_talib, sharpe, max_drawdown, data_points
		FROM market_risk_results WHERE portfolio_id = ? AND calculation_date = ?
	`, models.EnsureID(portfolioID), date).Scan(&m.PortfolioID, &m.CalculationDate, &m.VaR1d99, &m.ES1d99,
		&m.AnnualizedVol, &m.Beta, &betaTalib, &m.Sharpe, &m.MaxDrawdown, &m.DataPoints)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get market risk result %s/%s: %w", portfolioID, date, err)
	}
	if betaTalib.Valid {
		v := betaTalib.Float64
		m.BetaTalib = &v
	}
	return &m, nil
}
