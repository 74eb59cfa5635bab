// Package correlation implements Component H: the pairwise
// cross-position correlation matrix (spec.md §4.H). Runs weekly rather
// than daily; the day-of-week gate lives in the batch orchestrator, not
// here — this engine only computes, given a rolling window of aligned
// return series.
package correlation

import (
	"context"
	"fmt"
	"sort"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/riskengine/internal/models"
)

// CorrelationRepository is the subset of store.CorrelationRepository the engine needs.
type CorrelationRepository interface {
	Upsert(ctx context.Context, c models.CorrelationCalculation) error
}

// Engine computes the pairwise correlation matrix across a portfolio's
// position return series.
type Engine struct {
	repo CorrelationRepository
	log  zerolog.Logger
}

// NewEngine builds a correlation engine.
func NewEngine(repo CorrelationRepository, log zerolog.Logger) *Engine {
	return &Engine{repo: repo, log: log.With().Str("engine", "correlation").Logger()}
}

// Run computes the symmetric correlation matrix across returnSeries
// (symbol -> aligned daily return series, identical length and ordering
// required across all entries) and persists it.
func (e *Engine) Run(ctx context.Context, portfolioID, date string, returnSeries map[string][]float64) (*models.CorrelationCalculation, error) {
	symbols := make([]string, 0, len(returnSeries))
	for symbol := range returnSeries {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	n := len(symbols)
	if n == 0 {
		result := &models.CorrelationCalculation{PortfolioID: portfolioID, CalculationDate: date}
		if err := e.repo.Upsert(ctx, *result); err != nil {
			return nil, fmt.Errorf("upsert correlation matrix: %w", err)
		}
		return result, nil
	}
	dense := mat.NewDense(n, n, nil)

	for i := 0; i < n; i++ {
		dense.Set(i, i, 1.0)
		for j := i + 1; j < n; j++ {
			a, b := returnSeries[symbols[i]], returnSeries[symbols[j]]
			corr := pairwiseCorrelation(a, b)
			dense.Set(i, j, corr)
			dense.Set(j, i, corr)
		}
	}

	matrix := make([][]float64, n)
	for i := 0; i < n; i++ {
		matrix[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			matrix[i][j] = dense.At(i, j)
		}
	}

	result := &models.CorrelationCalculation{
		PortfolioID:     portfolioID,
		CalculationDate: date,
		Symbols:         symbols,
		Matrix:          matrix,
	}

	if err := e.repo.Upsert(ctx, *result); err != nil {
		return nil, fmt.Errorf("upsert correlation matrix: %w", err)
	}
	return result, nil
}

// pairwiseCorrelation computes the correlation of two equal-length return
// series. With at least 5 points, the last value of talib.Correl over a
// window of n-1 points (the most recent n-1 returns) is used unless it is
// NaN; otherwise gonum's sample correlation over the whole series is
// used. Series of unequal length or with fewer than 2 points yield 0.
func pairwiseCorrelation(a, b []float64) float64 {
	n := len(a)
	if n != len(b) || n < 2 {
		return 0
	}

	gonumCorr := stat.Correlation(a, b, nil)

	if n >= 5 {
		talibCorr := talib.Correl(a, b, n-1)
		if len(talibCorr) > 0 {
			last := talibCorr[len(talibCorr)-1]
			if !isNaN(last) {
				return last
			}
		}
	}
	return gonumCorr
}

func isNaN(f float64) bool { return f != f }
