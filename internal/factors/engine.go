// Package factors implements Component E: per-position and portfolio-level
// regression against a fixed set of seven style-factor proxies
// (spec.md §4.E).
package factors

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/riskengine/internal/marketdata"
	"github.com/aristath/riskengine/internal/models"
)

// MinHistoryPoints is the minimum number of aligned return observations
// required to run a regression (spec.md §4.E: insufficient history < 60
// points is not a failure, just an empty result).
const MinHistoryPoints = 60

// FactorRepository is the subset of store.FactorRepository the engine needs.
type FactorRepository interface {
	Upsert(ctx context.Context, e models.PositionFactorExposure) error
}

// Engine computes per-position factor betas against the fixed proxy set.
type Engine struct {
	source        marketdata.Source
	repo          FactorRepository
	historyDays   int
	minHistory    int
	factorProxies map[string]string
	log           zerolog.Logger
}

// NewEngine builds a factor analysis engine. historyDays is the rolling
// window target (spec.md default 252); minHistory overrides
// MinHistoryPoints if positive.
func NewEngine(source marketdata.Source, repo FactorRepository, historyDays, minHistory int, log zerolog.Logger) *Engine {
	if minHistory <= 0 {
		minHistory = MinHistoryPoints
	}
	return &Engine{
		source:        source,
		repo:          repo,
		historyDays:   historyDays,
		minHistory:    minHistory,
		factorProxies: marketdata.FactorProxies,
		log:           log.With().Str("engine", "factor_analysis").Logger(),
	}
}

// PositionResult is one position's result across every factor.
type PositionResult struct {
	PositionID string
	Exposures  []models.PositionFactorExposure
}

// Result is the full engine output: per-position exposures, the
// portfolio-level exposure-weighted beta per factor (not persisted; no
// PositionFactorExposure row models a whole portfolio), and warnings.
type Result struct {
	Positions      []PositionResult
	PortfolioBetas map[string]float64
	Warnings       []string
}

// Run computes factor exposures for every position as of date.
// exposureByID maps position ID to signed exposure; its absolute values
// weight the portfolio-level beta.
func (e *Engine) Run(ctx context.Context, positions []models.Position, exposureByID map[string]float64, date string) (*Result, error) {
	result := &Result{PortfolioBetas: map[string]float64{}}

	calcDate, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("parse calculation date: %w", err)
	}
	start := calcDate.AddDate(0, 0, -e.historyDays)

	factorReturns := map[string][]point{}
	for factor, proxySymbol := range e.factorProxies {
		series, err := e.returnSeries(ctx, proxySymbol, start, calcDate)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("factor %s proxy %s unavailable: %v", factor, proxySymbol, err))
			continue
		}
		factorReturns[factor] = series
	}

	totalExposure := 0.0
	for _, exp := range exposureByID {
		totalExposure += absFloat(exp)
	}

	for _, pos := range positions {
		symbol := pos.Symbol
		if models.IsOption(pos.NormalizedType()) && pos.UnderlyingSymbol != "" {
			symbol = pos.UnderlyingSymbol
		}

		posReturns, err := e.returnSeries(ctx, symbol, start, calcDate)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("position %s: return series unavailable for %s: %v", pos.ID, symbol, err))
			continue
		}

		posResult := PositionResult{PositionID: pos.ID}
		for factor := range e.factorProxies {
			series, ok := factorReturns[factor]
			if !ok {
				posResult.Exposures = append(posResult.Exposures, models.PositionFactorExposure{
					PositionID: pos.ID, Factor: factor, CalculationDate: date, Beta: nil,
				})
				continue
			}

			aligned := alignSeries(posReturns, series)
			if len(aligned) < e.minHistory {
				result.Warnings = append(result.Warnings, fmt.Sprintf("position %s factor %s: insufficient history (%d points)", pos.ID, factor, len(aligned)))
				posResult.Exposures = append(posResult.Exposures, models.PositionFactorExposure{
					PositionID: pos.ID, Factor: factor, CalculationDate: date, Beta: nil, DataPoints: len(aligned),
				})
				continue
			}

			exposure := regress(aligned)
			exposure.PositionID = pos.ID
			exposure.Factor = factor
			exposure.CalculationDate = date
			posResult.Exposures = append(posResult.Exposures, exposure)

			if exposure.Beta != nil && totalExposure > 0 {
				weight := absFloat(exposureByID[pos.ID]) / totalExposure
				result.PortfolioBetas[factor] += weight * (*exposure.Beta)
			}
		}

		for _, exposure := range posResult.Exposures {
			if err := e.repo.Upsert(ctx, exposure); err != nil {
				return nil, fmt.Errorf("upsert factor exposure: %w", err)
			}
		}
		result.Positions = append(result.Positions, posResult)
	}

	return result, nil
}

type point struct {
	Date   string
	Return float64
}

func (e *Engine) returnSeries(ctx context.Context, symbol string, start, end time.Time) ([]point, error) {
	history, err := e.source.PriceHistory(ctx, symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	if len(history) < 2 {
		return nil, fmt.Errorf("no price history for %s", symbol)
	}

	var series []point
	for i := 1; i < len(history); i++ {
		prev, curr := history[i-1], history[i]
		if prev.Close == 0 {
			continue
		}
		series = append(series, point{Date: curr.Date, Return: (curr.Close - prev.Close) / prev.Close})
	}
	return series, nil
}

func alignSeries(a, b []point) [][2]float64 {
	byDate := make(map[string]float64, len(b))
	for _, p := range b {
		byDate[p.Date] = p.Return
	}
	var aligned [][2]float64
	for _, p := range a {
		if bv, ok := byDate[p.Date]; ok {
			aligned = append(aligned, [2]float64{p.Return, bv})
		}
	}
	return aligned
}

func regress(aligned [][2]float64) models.PositionFactorExposure {
	xs := make([]float64, len(aligned))
	ys := make([]float64, len(aligned))
	for i, pair := range aligned {
		ys[i] = pair[0] // position return is the dependent variable
		xs[i] = pair[1] // factor return is the independent variable
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	rSquared := stat.RSquared(xs, ys, nil, alpha, beta)

	residualSumSquares := 0.0
	for i := range xs {
		predicted := alpha + beta*xs[i]
		diff := ys[i] - predicted
		residualSumSquares += diff * diff
	}
	trackingError := 0.0
	if len(xs) > 1 {
		trackingError = math.Sqrt(residualSumSquares / float64(len(xs)-1))
	}

	return models.PositionFactorExposure{
		Beta:          &beta,
		RSquared:      rSquared,
		TrackingError: trackingError,
		DataPoints:    len(xs),
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
