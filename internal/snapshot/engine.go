// Package snapshot implements Component I: the dated portfolio snapshot
// write, gated on the trading calendar (spec.md §4.I).
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/calendar"
	"github.com/aristath/riskengine/internal/models"
)

// SnapshotRepository is the subset of store.SnapshotRepository the engine needs.
type SnapshotRepository interface {
	Upsert(ctx context.Context, s models.PortfolioSnapshot) error
	Latest(ctx context.Context, portfolioID, beforeDate string) (*models.PortfolioSnapshot, error)
}

// Archiver is the subset of reliability.SnapshotArchiver the engine
// triggers after a successful trading-day write; nil disables archival.
type Archiver interface {
	ArchiveStores(ctx context.Context, calculationDate string, dbNames []string) error
}

// Engine writes exactly one PortfolioSnapshot row per (portfolio, date)
// on a trading day, and logs-and-skips on weekends/holidays.
type Engine struct {
	repo     SnapshotRepository
	calendar calendar.Calendar
	archiver Archiver
	dbNames  []string
	log      zerolog.Logger
}

// NewEngine builds a snapshot engine. archiver may be nil to disable the
// post-write archival hook; dbNames are passed through to the archiver.
func NewEngine(repo SnapshotRepository, cal calendar.Calendar, archiver Archiver, dbNames []string, log zerolog.Logger) *Engine {
	return &Engine{repo: repo, calendar: cal, archiver: archiver, dbNames: dbNames, log: log.With().Str("engine", "snapshot").Logger()}
}

// Input is the aggregated state the orchestrator assembles from the
// preceding engines' outputs for this (portfolio, date) run.
type Input struct {
	PortfolioID           string
	CalculationDate       string
	TotalValue            float64
	GrossExposure         float64
	NetExposure           float64
	LongExposure          float64
	ShortExposure         float64
	LongCount             int
	ShortCount            int
	DeltaAdjustedExposure float64
	Delta                 float64
	Gamma                 float64
	Theta                 float64
	Vega                  float64
	Warnings              []string
}

// Status is the engine's outcome for the BatchJob record.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
)

// Run writes the snapshot if CalculationDate is a trading day, otherwise
// skips without writing. daily_pnl is computed against the prior
// snapshot; a portfolio's first-ever snapshot gets daily_pnl = 0.
func (e *Engine) Run(ctx context.Context, in Input) (Status, *models.PortfolioSnapshot, error) {
	date, err := time.Parse("2006-01-02", in.CalculationDate)
	if err != nil {
		return "", nil, fmt.Errorf("parse calculation date: %w", err)
	}

	if !e.calendar.IsTradingDay(date) {
		e.log.Info().Str("portfolio_id", in.PortfolioID).Str("date", in.CalculationDate).Msg("not a trading day, skipping snapshot")
		return StatusSkipped, nil, nil
	}

	prior, err := e.repo.Latest(ctx, in.PortfolioID, in.CalculationDate)
	if err != nil {
		return "", nil, fmt.Errorf("lookup prior snapshot: %w", err)
	}
	dailyPnL := 0.0
	if prior != nil {
		dailyPnL = in.TotalValue - prior.TotalValue
	}

	row := models.PortfolioSnapshot{
		PortfolioID:           in.PortfolioID,
		CalculationDate:       in.CalculationDate,
		TotalValue:            in.TotalValue,
		GrossExposure:         in.GrossExposure,
		NetExposure:           in.NetExposure,
		LongExposure:          in.LongExposure,
		ShortExposure:         in.ShortExposure,
		LongCount:             in.LongCount,
		ShortCount:            in.ShortCount,
		DeltaAdjustedExposure: in.DeltaAdjustedExposure,
		Delta:                 in.Delta,
		Gamma:                 in.Gamma,
		Theta:                 in.Theta,
		Vega:                  in.Vega,
		DailyPnL:              dailyPnL,
		Warnings:              in.Warnings,
	}

	if err := e.repo.Upsert(ctx, row); err != nil {
		return "", nil, fmt.Errorf("upsert snapshot: %w", err)
	}

	if e.archiver != nil {
		if err := e.archiver.ArchiveStores(ctx, in.CalculationDate, e.dbNames); err != nil {
			e.log.Warn().Err(err).Str("portfolio_id", in.PortfolioID).Msg("snapshot archival failed, snapshot write still succeeded")
		}
	}

	return StatusCompleted, &row, nil
}
