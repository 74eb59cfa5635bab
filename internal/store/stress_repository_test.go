package store

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskengine/internal/models"
	risktesting "github.com/aristath/riskengine/internal/testing"
)

func TestStressRepository_UpsertAndList_RoundTripsAttributionAndSnapshot(t *testing.T) {
	db, cleanup := risktesting.NewTestDB(t, "risk")
	defer cleanup()
	log := zerolog.Nop()

	portfolioRepo := NewPortfolioRepository(db.Conn(), log)
	require.NoError(t, portfolioRepo.Upsert(context.Background(), models.Portfolio{ID: "port-1", OwnerRef: "owner-1"}))

	repo := NewStressRepository(db.Conn(), log)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, models.StressTestResult{
		PortfolioID: "port-1", Scenario: "market_crash_2008", CalculationDate: "2026-03-20",
		ProjectedValue: 87654.321, PnL: -12345.678, PnLPercent: -12.3456,
		Attribution:      map[string]float64{"pos-1": -5000.5, "pos-2": -7345.178},
		ScenarioSnapshot: map[string]interface{}{"market_shock": -0.35},
	}))

	rows, err := repo.ListForPortfolio(ctx, "port-1", "2026-03-20")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "market_crash_2008", rows[0].Scenario)
	assert.Equal(t, 87654.32, rows[0].ProjectedValue)
	assert.Equal(t, -12.3456, rows[0].PnLPercent)
	assert.InDelta(t, -5000.5, rows[0].Attribution["pos-1"], 0.001)
}

func TestStressRepository_Upsert_IsIdempotentPerScenarioAndDate(t *testing.T) {
	db, cleanup := risktesting.NewTestDB(t, "risk")
	defer cleanup()
	log := zerolog.Nop()

	portfolioRepo := NewPortfolioRepository(db.Conn(), log)
	require.NoError(t, portfolioRepo.Upsert(context.Background(), models.Portfolio{ID: "port-1", OwnerRef: "owner-1"}))

	repo := NewStressRepository(db.Conn(), log)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, models.StressTestResult{PortfolioID: "port-1", Scenario: "rates_up_200bp", CalculationDate: "2026-03-20", PnL: -100}))
	require.NoError(t, repo.Upsert(ctx, models.StressTestResult{PortfolioID: "port-1", Scenario: "rates_up_200bp", CalculationDate: "2026-03-20", PnL: -200}))

	rows, err := repo.ListForPortfolio(ctx, "port-1", "2026-03-20")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, -200.0, rows[0].PnL)
}
