// Package valuation implements Component B: per-position mark-to-market,
// signed exposure, and daily P&L vs the prior trading day (spec.md §4.B).
package valuation

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/marketdata"
	"github.com/aristath/riskengine/internal/models"
)

// ValuationRepository is the subset of store.ValuationRepository the engine needs.
type ValuationRepository interface {
	Upsert(ctx context.Context, v models.PositionValuation) error
	LatestBefore(ctx context.Context, positionID, beforeDate string) (*models.PositionValuation, error)
}

// Engine revalues every position in a portfolio for a calculation date.
type Engine struct {
	source marketdata.Source
	repo   ValuationRepository
	log    zerolog.Logger
}

// NewEngine builds a valuation engine.
func NewEngine(source marketdata.Source, repo ValuationRepository, log zerolog.Logger) *Engine {
	return &Engine{source: source, repo: repo, log: log.With().Str("engine", "valuation").Logger()}
}

// Result is the per-run outcome: per-position valuations plus warnings
// for any position whose price could not be refreshed.
type Result struct {
	Valuations []models.PositionValuation
	Warnings   []string
}

// Run revalues every position as of date, upserting PositionValuation rows.
func (e *Engine) Run(ctx context.Context, positions []models.Position, date string) (*Result, error) {
	result := &Result{}

	for _, pos := range positions {
		symbol := pos.Symbol
		if models.IsOption(pos.NormalizedType()) && pos.UnderlyingSymbol != "" {
			symbol = pos.UnderlyingSymbol
		}

		prior, err := e.repo.LatestBefore(ctx, pos.ID, date)
		if err != nil {
			return nil, fmt.Errorf("prior valuation for %s: %w", pos.ID, err)
		}

		price, _, ok, err := e.source.LatestPrice(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("latest price for %s: %w", symbol, err)
		}

		var v models.PositionValuation
		stale := false
		if !ok {
			stale = true
			warning := fmt.Sprintf("missing market data for %s, carrying prior price forward", symbol)
			result.Warnings = append(result.Warnings, warning)
			e.log.Warn().Str("position_id", pos.ID).Str("symbol", symbol).Msg(warning)

			if prior != nil {
				v = models.PositionValuation{
					PositionID:      pos.ID,
					CalculationDate: date,
					LastPrice:       prior.LastPrice,
					MarketValue:     prior.MarketValue,
					Exposure:        prior.Exposure,
					DailyPnL:        0,
					Stale:           stale,
				}
			} else {
				multiplier := models.Multiplier(pos.NormalizedType())
				sign := models.ExposureSign(pos.NormalizedType(), pos.Quantity)
				v = models.PositionValuation{
					PositionID:      pos.ID,
					CalculationDate: date,
					LastPrice:       pos.EntryPrice,
					MarketValue:     math.Abs(pos.Quantity) * pos.EntryPrice * multiplier,
					Exposure:        sign * math.Abs(pos.Quantity) * pos.EntryPrice * multiplier,
					DailyPnL:        0,
					Stale:           stale,
				}
			}
		} else {
			multiplier := models.Multiplier(pos.NormalizedType())
			marketValue := math.Abs(pos.Quantity) * price * multiplier
			sign := models.ExposureSign(pos.NormalizedType(), pos.Quantity)
			exposure := sign * math.Abs(pos.Quantity) * price * multiplier

			dailyPnL := 0.0
			if prior != nil {
				dailyPnL = marketValue - prior.MarketValue
			}

			v = models.PositionValuation{
				PositionID:      pos.ID,
				CalculationDate: date,
				LastPrice:       price,
				MarketValue:     marketValue,
				Exposure:        exposure,
				DailyPnL:        dailyPnL,
				Stale:           stale,
			}
		}
		if err := e.repo.Upsert(ctx, v); err != nil {
			return nil, fmt.Errorf("upsert valuation: %w", err)
		}
		result.Valuations = append(result.Valuations, v)
	}

	return result, nil
}
