package correlation

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskengine/internal/models"
)

type fakeRepo struct {
	rows []models.CorrelationCalculation
}

func (f *fakeRepo) Upsert(ctx context.Context, c models.CorrelationCalculation) error {
	f.rows = append(f.rows, c)
	return nil
}

func TestRun_DiagonalIsAlwaysOne(t *testing.T) {
	repo := &fakeRepo{}
	engine := NewEngine(repo, zerolog.Nop())

	series := map[string][]float64{
		"AAPL": {0.01, -0.02, 0.015, 0.003, -0.01, 0.02, 0.005, -0.004},
		"MSFT": {0.008, -0.015, 0.012, 0.001, -0.012, 0.018, 0.006, -0.003},
	}

	result, err := engine.Run(context.Background(), "port-1", "2026-03-24", series)
	require.NoError(t, err)
	require.Len(t, result.Symbols, 2)
	for i := range result.Symbols {
		assert.Equal(t, 1.0, result.Matrix[i][i])
	}
	require.Len(t, repo.rows, 1)
}

func TestRun_MatrixIsSymmetric(t *testing.T) {
	repo := &fakeRepo{}
	engine := NewEngine(repo, zerolog.Nop())

	series := map[string][]float64{
		"AAPL": {0.01, -0.02, 0.015, 0.003, -0.01, 0.02},
		"MSFT": {0.008, -0.015, 0.012, 0.001, -0.012, 0.018},
		"XOM":  {-0.01, 0.01, -0.02, 0.02, 0.005, -0.005},
	}

	result, err := engine.Run(context.Background(), "port-1", "2026-03-24", series)
	require.NoError(t, err)
	n := len(result.Symbols)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			assert.Equal(t, result.Matrix[i][j], result.Matrix[j][i])
		}
	}
}

func TestRun_HighlyCorrelatedSeriesNearOne(t *testing.T) {
	repo := &fakeRepo{}
	engine := NewEngine(repo, zerolog.Nop())

	a := []float64{0.01, -0.02, 0.015, 0.003, -0.01, 0.02, 0.005, -0.004}
	b := make([]float64, len(a))
	for i, v := range a {
		b[i] = v * 1.02
	}

	series := map[string][]float64{"AAPL": a, "MSFT": b}
	result, err := engine.Run(context.Background(), "port-1", "2026-03-24", series)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, result.Matrix[0][1], 0.01)
}

func TestRun_EmptySeriesPersistsEmptyMatrix(t *testing.T) {
	repo := &fakeRepo{}
	engine := NewEngine(repo, zerolog.Nop())

	result, err := engine.Run(context.Background(), "port-1", "2026-03-24", map[string][]float64{})
	require.NoError(t, err)
	assert.Empty(t, result.Symbols)
	require.Len(t, repo.rows, 1)
}
