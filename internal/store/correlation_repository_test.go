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

func TestCorrelationRepository_UpsertAndGet_RoundTripsMsgpackMatrix(t *testing.T) {
	db, cleanup := risktesting.NewTestDB(t, "risk")
	defer cleanup()
	log := zerolog.Nop()

	portfolioRepo := NewPortfolioRepository(db.Conn(), log)
	require.NoError(t, portfolioRepo.Upsert(context.Background(), models.Portfolio{ID: "port-1", OwnerRef: "owner-1"}))

	repo := NewCorrelationRepository(db.Conn(), log)
	ctx := context.Background()

	symbols := []string{"AAPL", "MSFT"}
	matrix := [][]float64{{1, 0.65}, {0.65, 1}}
	require.NoError(t, repo.Upsert(ctx, models.CorrelationCalculation{
		PortfolioID: "port-1", CalculationDate: "2026-03-24", Symbols: symbols, Matrix: matrix,
	}))

	got, err := repo.Get(ctx, "port-1", "2026-03-24")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, symbols, got.Symbols)
	assert.Equal(t, matrix, got.Matrix)
}

func TestCorrelationRepository_Get_ReturnsNilWhenAbsent(t *testing.T) {
	db, cleanup := risktesting.NewTestDB(t, "risk")
	defer cleanup()
	log := zerolog.Nop()

	repo := NewCorrelationRepository(db.Conn(), log)
	got, err := repo.Get(context.Background(), "port-1", "2026-03-24")
	require.NoError(t, err)
	assert.Nil(t, got)
}
