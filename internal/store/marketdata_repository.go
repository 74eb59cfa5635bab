package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/models"
)

// MarketDataRepository reads and writes the shared MarketDataPoint cache
// in marketdata.db (spec.md §3): one row per (symbol, date), overwritten
// by same-day refreshes.
type MarketDataRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMarketDataRepository creates a new market data repository.
func NewMarketDataRepository(db *sql.DB, log zerolog.Logger) *MarketDataRepository {
	return &MarketDataRepository{
		db:  db,
		log: log.With().Str("repository", "marketdata").Logger(),
	}
}

// Upsert stores a MarketDataPoint, overwriting same-day refreshes.
func (r *MarketDataRepository) Upsert(ctx context.Context, p models.MarketDataPoint) error {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO market_data_points (symbol, date, open, high, low, close, volume, sector, industry, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume,
			sector = excluded.sector, industry = excluded.industry
	`, p.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume, p.Sector, p.Industry, now)
	if err != nil {
		return fmt.Errorf("upsert market data point %s/%s: %w", p.Symbol, p.Date, err)
	}
	return nil
}

// Latest returns the most recent point on or before date, or (nil, nil) if none exists.
func (r *MarketDataRepository) Latest(ctx context.Context, symbol, date string) (*models.MarketDataPoint, error) {
	var p models.MarketDataPoint
	var sector, industry sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT symbol, date, open, high, low, close, volume, sector, industry
		FROM market_data_points
		WHERE symbol = ? AND date <= ?
		ORDER BY date DESC LIMIT 1
	`, symbol, date).Scan(&p.Symbol, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume, &sector, &industry)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest market data for %s: %w", symbol, err)
	}
	p.Sector = sector.String
	p.Industry = industry.String
	return &p, nil
}

// History returns points for symbol within [start, end] ordered oldest-first.
func (r *MarketDataRepository) History(ctx context.Context, symbol, start, end string) ([]models.MarketDataPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, date, open, high, low, close, volume, sector, industry
		FROM market_data_points
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", symbol, err)
	}
	defer rows.Close()

	var points []models.MarketDataPoint
	for rows.Next() {
		var p models.MarketDataPoint
		var sector, industry sql.NullString
		if err := rows.Scan(&p.Symbol, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume, &sector, &industry); err != nil {
			return nil, fmt.Errorf("scan market data point: %w", err)
		}
		p.Sector = sector.String
		p.Industry = industry.String
		points = append(points, p)
	}
	return points, rows.Err()
}

// UpsertSymbolMetadata persists the fallback-eligible per-symbol fields
// (implied volatility, risk-free rate, dividend yield) used when a live
// provider call fails.
func (r *MarketDataRepository) UpsertSymbolMetadata(ctx context.Context, symbol string, iv, rfr, divYield *float64) error {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO symbol_metadata (symbol, implied_volatility, risk_free_rate, dividend_yield, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			implied_volatility = excluded.implied_volatility,
			risk_free_rate = excluded.risk_free_rate,
			dividend_yield = excluded.dividend_yield,
			updated_at = excluded.updated_at
	`, symbol, iv, rfr, divYield, now)
	if err != nil {
		return fmt.Errorf("upsert symbol metadata %s: %w", symbol, err)
	}
	return nil
}

// SymbolMetadata returns the cached fallback fields for symbol, or (nil, nil) if none cached.
func (r *MarketDataRepository) SymbolMetadata(ctx context.Context, symbol string) (*models.MarketSnapshot, error) {
	var iv, rfr, divYield sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT implied_volatility, risk_free_rate, dividend_yield FROM symbol_metadata WHERE symbol = ?
	`, symbol).Scan(&iv, &rfr, &divYield)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("symbol metadata %s: %w", symbol, err)
	}
	snap := &models.MarketSnapshot{Symbol: symbol}
	if iv.Valid {
		snap.ImpliedVolatility = iv.Float64
	}
	if rfr.Valid {
		snap.RiskFreeRate = rfr.Float64
	}
	if divYield.Valid {
		snap.DividendYield = divYield.Float64
	}
	return snap, nil
}
