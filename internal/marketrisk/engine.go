// Package marketrisk implements Component F: parametric VaR/ES, annualized
// volatility, beta, Sharpe, and max drawdown over the portfolio's P&L
// history (spec.md §4.F).
package marketrisk

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/riskengine/internal/marketdata"
	"github.com/aristath/riskengine/internal/models"
)

const (
	tradingDaysPerYear = 252
	// confidenceLevel is the one-day VaR/ES confidence; the VaR z-score is
	// distuv.Normal{Mu:0,Sigma:1}.Quantile(1 - confidenceLevel).
	confidenceLevel = 0.99
)

// MarketRiskRepository is the subset of store.MarketRiskRepository the engine needs.
type MarketRiskRepository interface {
	Upsert(ctx context.Context, m models.MarketRiskResult) error
}

// PnLPoint is one day of portfolio value used to build the return series.
type PnLPoint struct {
	Date  string
	Value float64
}

// Engine computes the daily market risk summary for a portfolio.
type Engine struct {
	source      marketdata.Source
	repo        MarketRiskRepository
	marketProxy string
	log         zerolog.Logger
}

// NewEngine builds a market risk engine. marketProxy defaults to the
// "market" factor proxy symbol (SPY) when empty.
func NewEngine(source marketdata.Source, repo MarketRiskRepository, marketProxy string, log zerolog.Logger) *Engine {
	if marketProxy == "" {
		marketProxy = marketdata.FactorProxies["market"]
	}
	return &Engine{source: source, repo: repo, marketProxy: marketProxy, log: log.With().Str("engine", "market_risk").Logger()}
}

// Run computes VaR/ES/vol/beta/Sharpe/drawdown for a portfolio given its
// historical daily value series (history is in ascending date order,
// ending at or before date) and persists the result.
func (e *Engine) Run(ctx context.Context, portfolioID, date string, history []PnLPoint) (*models.MarketRiskResult, error) {
	if len(history) < 2 {
		e.log.Warn().Str("portfolio_id", portfolioID).Msg("insufficient value history for market risk calculation")
		result := &models.MarketRiskResult{PortfolioID: portfolioID, CalculationDate: date}
		if err := e.repo.Upsert(ctx, *result); err != nil {
			return nil, fmt.Errorf("upsert market risk result: %w", err)
		}
		return result, nil
	}

	returns := make([]float64, 0, len(history)-1)
	values := make([]float64, len(history))
	for i, p := range history {
		values[i] = p.Value
		if i == 0 || history[i-1].Value == 0 {
			continue
		}
		returns = append(returns, (p.Value-history[i-1].Value)/history[i-1].Value)
	}

	mean := stat.Mean(returns, nil)
	stdDev := stat.StdDev(returns, nil)

	normal := distuv.Normal{Mu: 0, Sigma: 1}
	z := normal.Quantile(1 - confidenceLevel)

	// One-day 99% parametric VaR, expressed as a positive loss amount
	// against the latest portfolio value.
	latestValue := values[len(values)-1]
	varReturn := mean + z*stdDev
	var1d99 := -varReturn * latestValue
	if var1d99 < 0 {
		var1d99 = 0
	}

	es1d99 := expectedShortfall(mean, stdDev, confidenceLevel) * latestValue
	if es1d99 < 0 {
		es1d99 = 0
	}

	annualizedVol := stdDev * math.Sqrt(float64(tradingDaysPerYear))

	proxyReturns, err := e.proxyReturns(ctx, history)
	if err != nil {
		e.log.Warn().Err(err).Msg("market proxy history unavailable, beta omitted")
	}

	beta := 0.0
	var betaTalib *float64
	if len(proxyReturns) == len(returns) && len(returns) > 1 {
		_, beta = stat.LinearRegression(proxyReturns, returns, nil, false)
		talibBeta := talib.Beta(returns, proxyReturns, len(returns)-1)
		if len(talibBeta) > 0 {
			v := talibBeta[len(talibBeta)-1]
			if !math.IsNaN(v) {
				betaTalib = &v
			}
		}
	}

	riskFreeDaily := 0.0
	if rate, ok, rfErr := e.source.RiskFreeRate(ctx, date); rfErr == nil && ok {
		riskFreeDaily = rate / float64(tradingDaysPerYear)
	}
	sharpe := 0.0
	if stdDev > 0 {
		sharpe = ((mean - riskFreeDaily) / stdDev) * math.Sqrt(float64(tradingDaysPerYear))
	}

	maxDrawdown := computeMaxDrawdown(values)

	result := &models.MarketRiskResult{
		PortfolioID:     portfolioID,
		CalculationDate: date,
		VaR1d99:         round2(var1d99),
		ES1d99:          round2(es1d99),
		AnnualizedVol:   round4(annualizedVol),
		Beta:            round4(beta),
		BetaTalib:       betaTalib,
		Sharpe:          round4(sharpe),
		MaxDrawdown:     round4(maxDrawdown),
		DataPoints:      len(returns),
	}

	if err := e.repo.Upsert(ctx, *result); err != nil {
		return nil, fmt.Errorf("upsert market risk result: %w", err)
	}
	return result, nil
}

// expectedShortfall returns the 1-day ES as a (positive) fraction of
// portfolio value for a Normal(mean, stdDev) return distribution: the
// conditional expectation of loss beyond the VaR quantile.
func expectedShortfall(mean, stdDev, confidence float64) float64 {
	if stdDev == 0 {
		return 0
	}
	normal := distuv.Normal{Mu: 0, Sigma: 1}
	alpha := 1 - confidence
	z := normal.Quantile(alpha)
	phi := math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
	esReturn := mean - stdDev*phi/alpha
	return -esReturn
}

func computeMaxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	peak := values[0]
	maxDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak == 0 {
			continue
		}
		dd := (peak - v) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func (e *Engine) proxyReturns(ctx context.Context, history []PnLPoint) ([]float64, error) {
	if len(history) == 0 {
		return nil, nil
	}
	start := history[0].Date
	end := history[len(history)-1].Date
	points, err := e.source.PriceHistory(ctx, e.marketProxy, start, end)
	if err != nil {
		return nil, err
	}
	if len(points) < 2 {
		return nil, fmt.Errorf("insufficient market proxy history")
	}
	byDate := make(map[string]float64, len(points))
	for _, p := range points {
		byDate[p.Date] = p.Close
	}

	var returns []float64
	for i := 1; i < len(history); i++ {
		prevClose, prevOK := byDate[history[i-1].Date]
		currClose, currOK := byDate[history[i].Date]
		if !prevOK || !currOK || prevClose == 0 {
			continue
		}
		returns = append(returns, (currClose-prevClose)/prevClose)
	}
	return returns, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
