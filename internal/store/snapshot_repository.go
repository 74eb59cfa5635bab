package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/models"
	"github.com/aristath/riskengine/internal/money"
)

// SnapshotRepository persists PortfolioSnapshot rows (spec.md §4.I).
// Writes are restricted to trading days by the caller (the snapshot
// engine), not by this repository.
type SnapshotRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{db: db, log: log.With().Str("repository", "snapshot").Logger()}
}

// Upsert writes one PortfolioSnapshot row, idempotent per (portfolio, date).
func (r *SnapshotRepository) Upsert(ctx context.Context, s models.PortfolioSnapshot) error {
	warnings, err := json.Marshal(s.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	now := time.Now().Unix()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO portfolio_snapshots (
			portfolio_id, calculation_date, total_value, gross_exposure, net_exposure,
			long_exposure, short_exposure, long_count, short_count, delta_adjusted_exposure,
			delta, gamma, theta, vega, daily_pnl, warnings, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, calculation_date) DO UPDATE SET
			total_value = excluded.total_value, gross_exposure = excluded.gross_exposure,
			net_exposure = excluded.net_exposure, long_exposure = excluded.long_exposure,
			short_exposure = excluded.short_exposure, long_count = excluded.long_count,
			short_count = excluded.short_count, delta_adjusted_exposure = excluded.delta_adjusted_exposure,
			delta = excluded.delta, gamma = excluded.gamma, theta = excluded.theta, vega = excluded.vega,
			daily_pnl = excluded.daily_pnl, warnings = excluded.warnings, updated_at = excluded.updated_at
	`, models.EnsureID(s.PortfolioID), s.CalculationDate, money.Round2(s.TotalValue), money.Round2(s.GrossExposure), money.Round2(s.NetExposure),
		money.Round2(s.LongExposure), money.Round2(s.ShortExposure), s.LongCount, s.ShortCount, money.Round2(s.DeltaAdjustedExposure),
		money.Round2(s.Delta), money.Round2(s.Gamma), money.Round2(s.Theta), money.Round2(s.Vega), money.Round2(s.DailyPnL), string(warnings), now)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s/%s: %w", s.PortfolioID, s.CalculationDate, err)
	}
	return nil
}

// Latest returns the most recent snapshot for a portfolio strictly before
// date, used by the snapshot engine to compute daily_pnl. Returns (nil,
// nil) for a portfolio's first-ever snapshot.
func (r *SnapshotRepository) Latest(ctx context.Context, portfolioID, beforeDate string) (*models.PortfolioSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT portfolio_id, calculation_date, total_value, gross_exposure, net_exposure,
		       long_exposure, short_exposure, long_count, short_count, delta_adjusted_exposure,
		       delta, gamma, theta, vega, daily_pnl, warnings
		FROM portfolio_snapshots
		WHERE portfolio_id = ? AND calculation_date < ?
		ORDER BY calculation_date DESC LIMIT 1
	`, models.EnsureID(portfolioID), beforeDate)
	return scanSnapshot(row)
}

// Get returns the snapshot for a portfolio on an exact date, or (nil, nil) if absent.
func (r *SnapshotRepository) Get(ctx context.Context, portfolioID, date string) (*models.PortfolioSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT portfolio_id, calculation_date, total_value, gross_exposure, net_exposure,
		       long_exposure, short_exposure, long_count, short_count, delta_adjusted_exposure,
		       delta, gamma, theta, vega, daily_pnl, warnings
		FROM portfolio_snapshots WHERE portfolio_id = ? AND calculation_date = ?
	`, models.EnsureID(portfolioID), date)
	return scanSnapshot(row)
}

// HistoryRange returns every snapshot for a portfolio within [start, end]
// in ascending date order, used by Market Risk (F) to build the
// portfolio value series for VaR/ES/vol/drawdown.
func (r *SnapshotRepository) HistoryRange(ctx context.Context, portfolioID, start, end string) ([]models.PortfolioSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT portfolio_id, calculation_date, total_value, gross_exposure, net_exposure,
		       long_exposure, short_exposure, long_count, short_count, delta_adjusted_exposure,
		       delta, gamma, theta, vega, daily_pnl, warnings
		FROM portfolio_snapshots
		WHERE portfolio_id = ? AND calculation_date BETWEEN ? AND ?
		ORDER BY calculation_date ASC
	`, models.EnsureID(portfolioID), start, end)
	if err != nil {
		return nil, fmt.Errorf("history range for %s: %w", portfolioID, err)
	}
	defer rows.Close()

	var out []models.PortfolioSnapshot
	for rows.Next() {
		var s models.PortfolioSnapshot
		var warnings sql.NullString
		if err := rows.Scan(&s.PortfolioID, &s.CalculationDate, &s.TotalValue, &s.GrossExposure, &s.NetExposure,
			&s.LongExposure, &s.ShortExposure, &s.LongCount, &s.ShortCount, &s.DeltaAdjustedExposure,
			&s.Delta, &s.Gamma, &s.Theta, &s.Vega, &s.DailyPnL, &warnings); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if warnings.Valid && warnings.String != "" {
			_ = json.Unmarshal([]byte(warnings.String), &s.Warnings)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSnapshot(row *sql.Row) (*models.PortfolioSnapshot, error) {
	var s models.PortfolioSnapshot
	var warnings sql.NullString
	err := row.Scan(&s.PortfolioID, &s.CalculationDate, &s.TotalValue, &s.GrossExposure, &s.NetExposure,
		&s.LongExposure, &s.ShortExposure, &s.LongCount, &s.ShortCount, &s.DeltaAdjustedExposure,
		&s.Delta, &s.Gamma, &s.Theta, &s.Vega, &s.DailyPnL, &warnings)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	if warnings.Valid && warnings.String != "" {
		_ = json.Unmarshal([]byte(warnings.String), &s.Warnings)
	}
	return &s, nil
}
