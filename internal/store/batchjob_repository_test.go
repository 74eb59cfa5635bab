package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskengine/internal/models"
	risktesting "github.com/aristath/riskengine/internal/testing"
)

func TestBatchJobRepository_Upsert_MintsIDWhenAbsent(t *testing.T) {
	db, cleanup := risktesting.NewTestDB(t, "risk")
	defer cleanup()
	log := zerolog.Nop()

	portfolioRepo := NewPortfolioRepository(db.Conn(), log)
	require.NoError(t, portfolioRepo.Upsert(context.Background(), models.Portfolio{ID: "port-1", OwnerRef: "owner-1"}))

	repo := NewBatchJobRepository(db.Conn(), log)
	ctx := context.Background()

	started := time.Now().Add(-time.Second)
	require.NoError(t, repo.Upsert(ctx, models.BatchJob{
		PortfolioID: "port-1", CalculationDate: "2026-03-20", Engine: "position_valuation",
		Status: models.JobRunning, StartedAt: &started,
	}))

	rows, err := repo.ListForPortfolioDate(ctx, "port-1", "2026-03-20")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotEmpty(t, rows[0].ID)
	assert.Equal(t, models.JobRunning, rows[0].Status)
}

func TestBatchJobRepository_Upsert_SameIDUpdatesInPlace(t *testing.T) {
	db, cleanup := risktesting.NewTestDB(t, "risk")
	defer cleanup()
	log := zerolog.Nop()

	portfolioRepo := NewPortfolioRepository(db.Conn(), log)
	require.NoError(t, portfolioRepo.Upsert(context.Background(), models.Portfolio{ID: "port-1", OwnerRef: "owner-1"}))

	repo := NewBatchJobRepository(db.Conn(), log)
	ctx := context.Background()

	job := models.BatchJob{ID: models.NewID(), PortfolioID: "port-1", CalculationDate: "2026-03-20", Engine: "greeks", Status: models.JobRunning}
	require.NoError(t, repo.Upsert(ctx, job))

	finished := time.Now()
	job.Status = models.JobCompleted
	job.FinishedAt = &finished
	job.DurationSeconds = 1.5
	require.NoError(t, repo.Upsert(ctx, job))

	rows, err := repo.ListForPortfolioDate(ctx, "port-1", "2026-03-20")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.JobCompleted, rows[0].Status)
	require.NotNil(t, rows[0].FinishedAt)
}

func TestBatchJobRepository_Upsert_DistinctIDsCreateSeparateAuditRows(t *testing.T) {
	db, cleanup := risktesting.NewTestDB(t, "risk")
	defer cleanup()
	log := zerolog.Nop()

	portfolioRepo := NewPortfolioRepository(db.Conn(), log)
	require.NoError(t, portfolioRepo.Upsert(context.Background(), models.Portfolio{ID: "port-1", OwnerRef: "owner-1"}))

	repo := NewBatchJobRepository(db.Conn(), log)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, models.BatchJob{PortfolioID: "port-1", CalculationDate: "2026-03-20", Engine: "greeks", Status: models.JobFailed, Error: "boom"}))
	require.NoError(t, repo.Upsert(ctx, models.BatchJob{PortfolioID: "port-1", CalculationDate: "2026-03-20", Engine: "greeks", Status: models.JobCompleted}))

	rows, err := repo.ListForPortfolioDate(ctx, "port-1", "2026-03-20")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
