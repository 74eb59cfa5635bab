// Package stress implements Component G: scenario stress testing against
// factor/sector shocks and position Greeks (spec.md §4.G).
package stress

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/models"
)

// StressRepository is the subset of store.StressRepository the engine needs.
type StressRepository interface {
	Upsert(ctx context.Context, s models.StressTestResult) error
}

// Scenario is a named shock mapping (spec.md §4.G): factor_shocks and
// sector_shocks are fractional moves (e.g. -0.10 = -10%) keyed by factor
// or sector name; RateShock/VolShock are absolute decimal shifts (e.g.
// 0.01 = +100bps, 0.05 = +5 vol points) applied portfolio-wide.
// Probability is metadata only, never used in computation.
type Scenario struct {
	Name         string
	FactorShocks map[string]float64
	SectorShocks map[string]float64
	RateShock    float64
	VolShock     float64
	Probability  float64
}

// PositionInput is the per-position data the engine needs: current
// exposure, sector (for sector shocks), factor betas (from Component E),
// and Greeks (for option repricing under vol/rate shocks).
type PositionInput struct {
	PositionID  string
	Sector      string
	Exposure    float64
	IsOption    bool
	FactorBetas map[string]float64 // factor name -> beta, nil entries skipped
	Greeks      *models.Greeks
}

// Engine computes projected P&L for each scenario against the current
// portfolio composition.
type Engine struct {
	repo StressRepository
	log  zerolog.Logger
}

// NewEngine builds a stress-test engine.
func NewEngine(repo StressRepository, log zerolog.Logger) *Engine {
	return &Engine{repo: repo, log: log.With().Str("engine", "stress_test").Logger()}
}

// Result is one scenario's projected outcome.
type Result struct {
	Scenario       string
	ProjectedValue float64
	PnL            float64
	PnLPercent     float64
	Attribution    map[string]float64
}

// Run evaluates every scenario against currentValue (the portfolio's
// current total market value) and positions, persisting one row per
// scenario.
func (e *Engine) Run(ctx context.Context, portfolioID, date string, currentValue float64, positions []PositionInput, scenarios []Scenario) ([]Result, error) {
	var results []Result
	for _, scenario := range scenarios {
		result := e.evaluate(scenario, currentValue, positions)

		snapshot := map[string]interface{}{
			"factor_shocks": scenario.FactorShocks,
			"sector_shocks": scenario.SectorShocks,
			"rate_shock":    scenario.RateShock,
			"vol_shock":     scenario.VolShock,
			"probability":   scenario.Probability,
		}

		row := models.StressTestResult{
			PortfolioID:      portfolioID,
			Scenario:         scenario.Name,
			CalculationDate:  date,
			ProjectedValue:   round2(result.ProjectedValue),
			PnL:              round2(result.PnL),
			PnLPercent:       round2(result.PnLPercent),
			Attribution:      result.Attribution,
			ScenarioSnapshot: snapshot,
		}
		if err := e.repo.Upsert(ctx, row); err != nil {
			return nil, fmt.Errorf("upsert stress result %s: %w", scenario.Name, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *Engine) evaluate(scenario Scenario, currentValue float64, positions []PositionInput) Result {
	attribution := map[string]float64{}
	totalPnL := 0.0

	for _, pos := range positions {
		for factor, shock := range scenario.FactorShocks {
			beta, ok := pos.FactorBetas[factor]
			if !ok {
				continue
			}
			contribution := pos.Exposure * beta * shock
			totalPnL += contribution
			attribution["factor:"+factor] += contribution
		}

		if shock, ok := scenario.SectorShocks[pos.Sector]; ok && pos.Sector != "" {
			contribution := pos.Exposure * shock
			totalPnL += contribution
			attribution["sector:"+pos.Sector] += contribution
		}

		if pos.IsOption && pos.Greeks != nil {
			if scenario.VolShock != 0 {
				contribution := pos.Greeks.Vega * (scenario.VolShock / 0.01)
				totalPnL += contribution
				attribution["vol"] += contribution
			}
			if scenario.RateShock != 0 {
				contribution := pos.Greeks.Rho * (scenario.RateShock / 0.01)
				totalPnL += contribution
				attribution["rate"] += contribution
			}
		}
	}

	projectedValue := currentValue + totalPnL
	pnlPercent := 0.0
	if currentValue != 0 {
		pnlPercent = (totalPnL / currentValue) * 100
	}

	return Result{
		Scenario:       scenario.Name,
		ProjectedValue: projectedValue,
		PnL:            totalPnL,
		PnLPercent:     pnlPercent,
		Attribution:    attribution,
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
