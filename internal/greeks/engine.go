// Package greeks implements Component C: per-option Greeks via
// Black-Scholes with a strict null-on-error policy (spec.md §4.C) — no
// mock values are ever fabricated when an input is missing or the model
// cannot be evaluated.
package greeks

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/marketdata"
	"github.com/aristath/riskengine/internal/models"
	"github.com/aristath/riskengine/internal/store"
)

// GreeksRepository is the subset of store.GreeksRepository the engine needs.
type GreeksRepository interface {
	BulkUpsert(ctx context.Context, rows []models.PositionGreeks, chunkSize int) store.BulkUpsertResult
}

// Engine computes PositionGreeks for every option (and trivially for
// every stock) position in a portfolio.
type Engine struct {
	source    marketdata.Source
	repo      GreeksRepository
	chunkSize int
	log       zerolog.Logger
}

// NewEngine builds a Greeks engine. chunkSize controls the bulk-upsert
// batch size (spec.md §4.C: chunks of 100).
func NewEngine(source marketdata.Source, repo GreeksRepository, chunkSize int, log zerolog.Logger) *Engine {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	return &Engine{source: source, repo: repo, chunkSize: chunkSize, log: log.With().Str("engine", "greeks").Logger()}
}

// Result carries the computed rows plus warnings for the portfolio run.
type Result struct {
	Rows     []models.PositionGreeks
	Bulk     store.BulkUpsertResult
	Warnings []string
}

// Run computes and persists Greeks for every position as of date.
func (e *Engine) Run(ctx context.Context, positions []models.Position, date string) (*Result, error) {
	result := &Result{}
	calcDate, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("parse calculation date: %w", err)
	}

	for _, pos := range positions {
		row, warning := e.computeOne(ctx, pos, calcDate, date)
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}
		result.Rows = append(result.Rows, row)
	}

	bulk := e.repo.BulkUpsert(ctx, result.Rows, e.chunkSize)
	result.Bulk = bulk
	return result, nil
}

func (e *Engine) computeOne(ctx context.Context, pos models.Position, calcDate time.Time, date string) (models.PositionGreeks, string) {
	row := models.PositionGreeks{PositionID: pos.ID, CalculationDate: date}
	normType := pos.NormalizedType()

	if models.IsStock(normType) {
		sign := 1.0
		if pos.Quantity < 0 {
			sign = -1.0
		}
		row.Values = &models.Greeks{Delta: sign}
		return row, ""
	}

	if !models.IsOption(normType) {
		return row, fmt.Sprintf("unknown position type %q for position %s, skipping Greeks", pos.Type, pos.ID)
	}

	expiry, err := time.Parse("2006-01-02", pos.ExpirationDate)
	if err != nil {
		e.log.Warn().Str("position_id", pos.ID).Err(err).Msg("unparseable expiration date")
		return row, fmt.Sprintf("unparseable expiration date for position %s", pos.ID)
	}

	if !expiry.After(calcDate) {
		row.Values = &models.Greeks{}
		return row, ""
	}

	snap, err := e.source.Snapshot(ctx, pos.UnderlyingSymbol, date)
	if err != nil {
		e.log.Warn().Str("position_id", pos.ID).Err(err).Msg("market snapshot lookup failed")
		return row, fmt.Sprintf("market data lookup failed for %s (position %s)", pos.UnderlyingSymbol, pos.ID)
	}
	if snap == nil {
		return row, fmt.Sprintf("missing market data for %s, Greeks not computed for position %s", pos.UnderlyingSymbol, pos.ID)
	}

	timeToExpiry := expiry.Sub(calcDate).Hours() / 24 / 365
	if timeToExpiry <= 0 || snap.ImpliedVolatility <= 0 {
		return row, fmt.Sprintf("insufficient inputs to price position %s, Greeks not computed", pos.ID)
	}

	isCall := normType == string(models.PositionLongCall) || normType == string(models.PositionShortCall)
	raw := blackScholes(bsInputs{
		Spot:          snap.Spot,
		Strike:        pos.Strike,
		TimeToExpiry:  timeToExpiry,
		RiskFreeRate:  snap.RiskFreeRate,
		DividendYield: snap.DividendYield,
		Volatility:    snap.ImpliedVolatility,
		IsCall:        isCall,
	})

	sign := models.ExposureSign(normType, pos.Quantity)
	contracts := math.Abs(pos.Quantity)
	scale := sign * contracts * models.Multiplier(normType)

	values := &models.Greeks{
		Delta: raw.Delta * scale,
		Gamma: raw.Gamma * scale,
		Theta: (raw.Theta / 365) * scale,
		Vega:  (raw.Vega / 100) * scale,
		Rho:   (raw.Rho / 100) * scale,
	}
	row.Values = values
	row.DollarDelta = values.Delta * snap.Spot
	row.DollarGamma = values.Gamma * snap.Spot * snap.Spot
	return row, ""
}
