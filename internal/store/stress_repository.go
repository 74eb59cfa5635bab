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

// StressRepository persists StressTestResult rows (spec.md §4.G).
type StressRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStressRepository creates a new stress-test repository.
func NewStressRepository(db *sql.DB, log zerolog.Logger) *StressRepository {
	return &StressRepository{db: db, log: log.With().Str("repository", "stress_test").Logger()}
}

// Upsert writes one scenario result, idempotent per (portfolio, scenario, date).
func (r *StressRepository) Upsert(ctx context.Context, s models.StressTestResult) error {
	attribution, err := json.Marshal(s.Attribution)
	if err != nil {
		return fmt.Errorf("marshal attribution: %w", err)
	}
	snapshot, err := json.Marshal(s.ScenarioSnapshot)
	if err != nil {
		return fmt.Errorf("marshal scenario snapshot: %w", err)
	}

	now := time.Now().Unix()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO stress_test_results (portfolio_id, scenario, calculation_date, projected_value, pnl, pnl_percent, attribution, scenario_snapshot, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, scenario, calculation_date) DO UPDATE SET
			projected_value = excluded.projected_value, pnl = excluded.pnl,
			pnl_percent = excluded.pnl_percent, attribution = excluded.attribution,
			scenario_snapshot = excluded.scenario_snapshot, updated_at = excluded.updated_at
	`, models.EnsureID(s.PortfolioID), s.Scenario, s.CalculationDate, money.Round2(s.ProjectedValue), money.Round2(s.PnL), money.Round4(s.PnLPercent),
		string(attribution), string(snapshot), now)
	if err != nil {
		return fmt.Errorf("upsert stress result %s/%s/%s: %w", s.PortfolioID, s.Scenario, s.CalculationDate, err)
	}
	return nil
}

// ListForPortfolio returns every scenario result for a portfolio on a date.
func (r *StressRepository) ListForPortfolio(ctx context.Context, portfolioID, date string) ([]models.StressTestResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT portfolio_id, scenario, calculation_date, projected_value, pnl, pnl_percent, attribution, scenario_snapshot
		FROM stress_test_results WHERE portfolio_id = ? AND calculation_date = ?
	`, models.EnsureID(portfolioID), date)
	if err != nil {
		return nil, fmt.Errorf("list stress results for %s/%s: %w", portfolioID, date, err)
	}
	defer rows.Close()

	var out []models.StressTestResult
	for rows.Next() {
		var s models.StressTestResult
		var attribution, snapshot sql.NullString
		if err := rows.Scan(&s.PortfolioID, &s.Scenario, &s.CalculationDate, &s.ProjectedValue, &s.PnL, &s.PnLPercent, &attribution, &snapshot); err != nil {
			return nil, fmt.Errorf("scan stress result: %w", err)
		}
		if attribution.Valid && attribution.String != "" {
			_ = json.Unmarshal([]byte(attribution.String), &s.Attribution)
		}
		if snapshot.Valid && snapshot.String != "" {
			_ = json.Unmarshal([]byte(snapshot.String), &s.ScenarioSnapshot)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
