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

func TestGreeksRepository_BulkUpsert_ChunksAndRoundsToFourDecimals(t *testing.T) {
	db, cleanup := risktesting.NewTestDB(t, "risk")
	defer cleanup()
	log := zerolog.Nop()

	portfolioRepo := NewPortfolioRepository(db.Conn(), log)
	seedPortfolioAndPosition(t, portfolioRepo, "port-1", "pos-1")

	repo := NewGreeksRepository(db.Conn(), log)
	ctx := context.Background()

	rows := []models.PositionGreeks{
		{
			PositionID: "pos-1", CalculationDate: "2026-03-20",
			Values:      &models.Greeks{Delta: 0.52346, Gamma: 0.01234, Theta: -0.05678, Vega: 0.12349, Rho: 0.0321},
			DollarDelta: 523.456, DollarGamma: 12.345,
		},
	}

	result := repo.BulkUpsert(ctx, rows, 100)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.Errors)

	got, err := repo.ListForPortfolio(ctx, "port-1", "2026-03-20")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Values)
	assert.Equal(t, 0.5235, got[0].Values.Delta)
	assert.Equal(t, 523.46, got[0].DollarDelta)
}

func TestGreeksRepository_BulkUpsert_NilValuesPersistAsAllNullColumns(t *testing.T) {
	db, cleanup := risktesting.NewTestDB(t, "risk")
	defer cleanup()
	log := zerolog.Nop()

	portfolioRepo := NewPortfolioRepository(db.Conn(), log)
	seedPortfolioAndPosition(t, portfolioRepo, "port-1", "pos-1")

	repo := NewGreeksRepository(db.Conn(), log)
	ctx := context.Background()

	rows := []models.PositionGreeks{
		{PositionID: "pos-1", CalculationDate: "2026-03-20", Values: nil},
	}
	result := repo.BulkUpsert(ctx, rows, 100)
	assert.Equal(t, 1, result.Updated)

	got, err := repo.ListForPortfolio(ctx, "port-1", "2026-03-20")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Values)
}

func TestGreeksRepository_BulkUpsert_SplitsAcrossChunksOfGivenSize(t *testing.T) {
	db, cleanup := risktesting.NewTestDB(t, "risk")
	defer cleanup()
	log := zerolog.Nop()

	portfolioRepo := NewPortfolioRepository(db.Conn(), log)
	seedPortfolioAndPosition(t, portfolioRepo, "port-1", "pos-1")
	require.NoError(t, portfolioRepo.UpsertPosition(context.Background(), models.Position{
		ID: "pos-2", PortfolioID: "port-1", Symbol: "MSFT", Type: models.PositionLong,
		Quantity: 10, EntryPrice: 300, EntryDate: "2026-01-01",
	}))

	repo := NewGreeksRepository(db.Conn(), log)
	ctx := context.Background()

	rows := []models.PositionGreeks{
		{PositionID: "pos-1", CalculationDate: "2026-03-20", Values: &models.Greeks{Delta: 1}},
		{PositionID: "pos-2", CalculationDate: "2026-03-20", Values: &models.Greeks{Delta: 2}},
	}
	result := repo.BulkUpsert(ctx, rows, 1)
	assert.Equal(t, 2, result.Updated)
}
