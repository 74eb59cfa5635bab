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

func TestSnapshotRepository_UpsertAndGet_RoundsMonetaryAndGreekFields(t *testing.T) {
	db, cleanup := risktesting.NewTestDB(t, "risk")
	defer cleanup()
	log := zerolog.Nop()

	portfolioRepo := NewPortfolioRepository(db.Conn(), log)
	require.NoError(t, portfolioRepo.Upsert(context.Background(), models.Portfolio{ID: "port-1", OwnerRef: "owner-1"}))

	repo := NewSnapshotRepository(db.Conn(), log)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, models.PortfolioSnapshot{
		PortfolioID: "port-1", CalculationDate: "2026-03-20",
		TotalValue: 100000.125, GrossExposure: 50000.555, NetExposure: 25000.005,
		Delta: 123.45678, Gamma: 0.123456, Warnings: []string{"stale price for AAPL"},
	}))

	got, err := repo.Get(ctx, "port-1", "2026-03-20")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 100000.13, got.TotalValue)
	assert.Equal(t, 123.46, got.Delta)
	assert.Equal(t, []string{"stale price for AAPL"}, got.Warnings)
}

func TestSnapshotRepository_Latest_ReturnsNilForFirstSnapshot(t *testing.T) {
	db, cleanup := risktesting.NewTestDB(t, "risk")
	defer cleanup()
	log := zerolog.Nop()

	portfolioRepo := NewPortfolioRepository(db.Conn(), log)
	require.NoError(t, portfolioRepo.Upsert(context.Background(), models.Portfolio{ID: "port-1", OwnerRef: "owner-1"}))

	repo := NewSnapshotRepository(db.Conn(), log)
	ctx := context.Background()

	got, err := repo.Latest(ctx, "port-1", "2026-03-20")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.Upsert(ctx, models.PortfolioSnapshot{PortfolioID: "port-1", CalculationDate: "2026-03-19", TotalValue: 1000}))
	got, err = repo.Latest(ctx, "port-1", "2026-03-20")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2026-03-19", got.CalculationDate)
}

func TestSnapshotRepository_HistoryRange_ReturnsAscendingDateOrder(t *testing.T) {
	db, cleanup := risktesting.NewTestDB(t, "risk")
	defer cleanup()
	log := zerolog.Nop()

	portfolioRepo := NewPortfolioRepository(db.Conn(), log)
	require.NoError(t, portfolioRepo.Upsert(context.Background(), models.Portfolio{ID: "port-1", OwnerRef: "owner-1"}))

	repo := NewSnapshotRepository(db.Conn(), log)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, models.PortfolioSnapshot{PortfolioID: "port-1", CalculationDate: "2026-03-18", TotalValue: 1000}))
	require.NoError(t, repo.Upsert(ctx, models.PortfolioSnapshot{PortfolioID: "port-1", CalculationDate: "2026-03-20", TotalValue: 1200}))
	require.NoError(t, repo.Upsert(ctx, models.PortfolioSnapshot{PortfolioID: "port-1", CalculationDate: "2026-03-19", TotalValue: 1100}))

	rows, err := repo.HistoryRange(ctx, "port-1", "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "2026-03-18", rows[0].CalculationDate)
	assert.Equal(t, "2026-03-19", rows[1].CalculationDate)
	assert.Equal(t, "2026-03-20", rows[2].CalculationDate)
}
