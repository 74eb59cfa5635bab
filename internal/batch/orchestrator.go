// Package batch implements Component J: the sequential batch
// orchestrator that drives engines A through I for each portfolio
// (spec.md §4.J). Sequential execution per portfolio is required, not a
// performance compromise: concurrent engine execution against the same
// SQLite session causes session-lifecycle failures and must be avoided.
package batch

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/riskengine/internal/aggregation"
	"github.com/aristath/riskengine/internal/calendar"
	"github.com/aristath/riskengine/internal/correlation"
	"github.com/aristath/riskengine/internal/events"
	"github.com/aristath/riskengine/internal/factors"
	"github.com/aristath/riskengine/internal/greeks"
	"github.com/aristath/riskengine/internal/marketdata"
	"github.com/aristath/riskengine/internal/marketrisk"
	"github.com/aristath/riskengine/internal/models"
	"github.com/aristath/riskengine/internal/retry"
	"github.com/aristath/riskengine/internal/snapshot"
	"github.com/aristath/riskengine/internal/stress"
	"github.com/aristath/riskengine/internal/valuation"
)

// PortfolioRepository is the subset of store.PortfolioRepository the
// orchestrator needs to discover portfolios and their positions.
type PortfolioRepository interface {
	ListPortfolioIDs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, portfolioID string) (*models.Portfolio, error)
	ListPositions(ctx context.Context, portfolioID string) ([]models.Position, error)
}

// BatchJobRepository is the subset of store.BatchJobRepository the
// orchestrator needs to record the per-engine state machine.
type BatchJobRepository interface {
	Upsert(ctx context.Context, j models.BatchJob) error
}

// HistoryProvider is the subset of store.SnapshotRepository Market Risk
// and Correlation use to build their rolling-window series.
type HistoryProvider interface {
	HistoryRange(ctx context.Context, portfolioID, start, end string) ([]models.PortfolioSnapshot, error)
}

// Config carries the retry/backoff and gating tuning the orchestrator
// applies (spec.md §4.J, §9 open-question resolutions).
type Config struct {
	RetryPolicy        retry.Policy
	EngineTimeout      time.Duration
	HistoryWindowDays  int
	UseAbsoluteDelta   bool
	CorrelationWeekday time.Weekday
}

// Orchestrator wires every engine (A-I) together and drives them
// sequentially per portfolio.
type Orchestrator struct {
	portfolios  PortfolioRepository
	source      marketdata.Source
	valuation   *valuation.Engine
	greeks      *greeks.Engine
	factors     *factors.Engine
	marketrisk  *marketrisk.Engine
	stress      *stress.Engine
	correlation *correlation.Engine
	snapshot    *snapshot.Engine
	history     HistoryProvider
	jobs        BatchJobRepository
	cache       *aggregation.Cache
	calendar    calendar.Calendar
	reporter    events.Reporter
	cfg         Config
	log         zerolog.Logger
}

// New builds the orchestrator from its already-constructed engines.
func New(
	portfolios PortfolioRepository,
	source marketdata.Source,
	valuationEngine *valuation.Engine,
	greeksEngine *greeks.Engine,
	factorsEngine *factors.Engine,
	marketRiskEngine *marketrisk.Engine,
	stressEngine *stress.Engine,
	correlationEngine *correlation.Engine,
	snapshotEngine *snapshot.Engine,
	history HistoryProvider,
	jobs BatchJobRepository,
	cache *aggregation.Cache,
	cal calendar.Calendar,
	cfg Config,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		portfolios:  portfolios,
		source:      source,
		valuation:   valuationEngine,
		greeks:      greeksEngine,
		factors:     factorsEngine,
		marketrisk:  marketRiskEngine,
		stress:      stressEngine,
		correlation: correlationEngine,
		snapshot:    snapshotEngine,
		history:     history,
		jobs:        jobs,
		cache:       cache,
		calendar:    cal,
		cfg:         cfg,
		log:         log.With().Str("component", "batch_orchestrator").Logger(),
	}
}

// SetReporter wires an events.Reporter the orchestrator notifies as it
// runs. Optional — a nil reporter (the default) means events are simply
// not emitted; existing callers that never call this are unaffected.
func (o *Orchestrator) SetReporter(r events.Reporter) {
	o.reporter = r
}

func (o *Orchestrator) report(data events.EventData) {
	if o.reporter == nil {
		return
	}
	o.reporter.Report(data)
}

// aggregateBundle is the cached payload for a (portfolio, date) aggregation pass.
type aggregateBundle struct {
	exposures     aggregation.ExposuresResult
	greeks        aggregation.GreeksResult
	deltaAdjusted aggregation.DeltaAdjustedResult
}

// historyRefresher is implemented by marketdata.Source implementations
// (CachingSource) that can pre-seed a symbol's OHLCV history; not every
// Source needs to support it.
type historyRefresher interface {
	RefreshHistory(ctx context.Context, symbol string, start, end time.Time) error
}

// RunDailyBatch executes engines A-I for one portfolio (or every known
// portfolio, if portfolioID is empty) on date (or today, if empty).
// Sequential per-portfolio, per spec.md §4.J.
func (o *Orchestrator) RunDailyBatch(ctx context.Context, portfolioID, date string) ([]models.JobResult, error) {
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	o.logHostStats()

	var portfolioIDs []string
	if portfolioID != "" {
		portfolioIDs = []string{portfolioID}
	} else {
		ids, err := o.portfolios.ListPortfolioIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list portfolios: %w", err)
		}
		portfolioIDs = ids
	}

	batchStart := time.Now()
	o.report(&events.BatchStartedData{CalculationDate: date, PortfolioCount: len(portfolioIDs)})

	var results []models.JobResult
	for _, id := range portfolioIDs {
		results = append(results, o.runPortfolio(ctx, id, date)...)
	}

	var completed, failed, skipped int
	for _, r := range results {
		switch r.Status {
		case models.JobCompleted:
			completed++
		case models.JobFailed:
			failed++
		case models.JobSkipped:
			skipped++
		}
	}
	o.report(&events.BatchCompletedData{
		CalculationDate: date, Completed: completed, Failed: failed, Skipped: skipped,
		DurationSeconds: time.Since(batchStart).Seconds(),
	})
	return results, nil
}

// runPortfolio drives A through I for a single portfolio. A critical
// engine failure (portfolio missing, no positions) stops work on this
// portfolio only; the orchestrator always moves on to the next.
func (o *Orchestrator) runPortfolio(ctx context.Context, portfolioID, date string) []models.JobResult {
	log := o.log.With().Str("portfolio_id", portfolioID).Str("date", date).Logger()

	portfolio, err := o.portfolios.Get(ctx, portfolioID)
	if err != nil || portfolio == nil {
		log.Error().Err(err).Msg("portfolio not found, skipping")
		return []models.JobResult{{PortfolioID: portfolioID, Engine: "orchestrator", Status: models.JobFailed, Error: "portfolio not found"}}
	}

	positions, err := o.portfolios.ListPositions(ctx, portfolioID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load positions, skipping")
		return []models.JobResult{{PortfolioID: portfolioID, Engine: "orchestrator", Status: models.JobFailed, Error: err.Error()}}
	}
	if len(positions) == 0 {
		log.Warn().Msg("portfolio has no positions, skipping")
		return []models.JobResult{{PortfolioID: portfolioID, Engine: "orchestrator", Status: models.JobSkipped, Error: "no positions"}}
	}

	if parsed, err := time.Parse("2006-01-02", date); err == nil && !o.calendar.IsTradingDay(parsed) {
		log.Info().Msg("not a trading day; engines A-H still run against latest available data, snapshot will skip")
	}

	var results []models.JobResult

	// A: refresh prices.
	results = append(results, o.runEngine(ctx, portfolioID, date, "market_data_refresh", func(ctx context.Context) (string, error) {
		return "", o.refreshPrices(ctx, positions, date)
	}))

	// B: revalue.
	var valuationResult *valuation.Result
	results = append(results, o.runEngine(ctx, portfolioID, date, "position_valuation", func(ctx context.Context) (string, error) {
		r, err := o.valuation.Run(ctx, positions, date)
		valuationResult = r
		return warningsMsg(r), err
	}))
	if valuationResult == nil {
		return results
	}

	// C: Greeks.
	var greeksResult *greeks.Result
	results = append(results, o.runEngine(ctx, portfolioID, date, "greeks", func(ctx context.Context) (string, error) {
		r, err := o.greeks.Run(ctx, positions, date)
		greeksResult = r
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d updated, %d failed", r.Bulk.Updated, r.Bulk.Failed), nil
	}))

	// D: portfolio aggregation (exposures + Greeks + delta-adjusted), built from B and C outputs.
	// Cached by content hash so a same-day rerun for an unchanged position
	// set skips recomputation (spec.md §4.D's 60s aggregation cache).
	aggregates := o.buildAggregates(positions, valuationResult, greeksResult)
	cacheKey := aggregation.Key(portfolioID, date, aggregates)
	var exposures aggregation.ExposuresResult
	var greeksTotals aggregation.GreeksResult
	var deltaAdjusted aggregation.DeltaAdjustedResult
	if cached, ok := o.cache.Get(cacheKey); ok {
		bundle := cached.(aggregateBundle)
		exposures, greeksTotals, deltaAdjusted = bundle.exposures, bundle.greeks, bundle.deltaAdjusted
	} else {
		exposures = aggregation.Exposures(aggregates)
		greeksTotals = aggregation.Greeks(aggregates)
		deltaAdjusted = aggregation.DeltaAdjustedExposure(aggregates, o.cfg.UseAbsoluteDelta)
		o.cache.Set(cacheKey, aggregateBundle{exposures: exposures, greeks: greeksTotals, deltaAdjusted: deltaAdjusted})
	}
	results = append(results, o.runEngine(ctx, portfolioID, date, "portfolio_aggregation", func(ctx context.Context) (string, error) {
		return fmt.Sprintf("gross=%.2f net=%.2f delta_adjusted=%.2f", exposures.Gross, exposures.Net, deltaAdjusted.DeltaAdjustedExposure), nil
	}))

	exposureByID := make(map[string]float64, len(aggregates))
	for _, a := range aggregates {
		exposureByID[a.PositionID] = a.Exposure
	}

	// E: factor analysis.
	results = append(results, o.runEngine(ctx, portfolioID, date, "factor_analysis", func(ctx context.Context) (string, error) {
		r, err := o.factors.Run(ctx, positions, exposureByID, date)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d positions analyzed", len(r.Positions)), nil
	}))

	// F: market risk.
	results = append(results, o.runEngine(ctx, portfolioID, date, "market_risk", func(ctx context.Context) (string, error) {
		history, err := o.buildValueHistory(ctx, portfolioID, date, exposures.Gross)
		if err != nil {
			return "", err
		}
		_, err = o.marketrisk.Run(ctx, portfolioID, date, history)
		return "", err
	}))

	// G: stress testing.
	results = append(results, o.runEngine(ctx, portfolioID, date, "stress_testing", func(ctx context.Context) (string, error) {
		positionsIn := o.buildStressInputs(aggregates)
		_, err := o.stress.Run(ctx, portfolioID, date, sumTotalValue(valuationResult), positionsIn, defaultScenarios())
		return "", err
	}))

	// H: correlations, weekly.
	parsedDate, dateErr := time.Parse("2006-01-02", date)
	if dateErr == nil && parsedDate.Weekday() == o.cfg.CorrelationWeekday {
		results = append(results, o.runEngine(ctx, portfolioID, date, "correlation", func(ctx context.Context) (string, error) {
			series, err := o.buildReturnSeries(ctx, positions, date)
			if err != nil {
				return "", err
			}
			_, err = o.correlation.Run(ctx, portfolioID, date, series)
			return "", err
		}))
	} else {
		o.recordJob(ctx, portfolioID, date, "correlation", models.JobSkipped, "not scheduled for this weekday", 0)
		o.report(&events.EngineSkippedData{PortfolioID: portfolioID, Engine: "correlation", CalculationDate: date, Reason: "not scheduled for this weekday"})
		results = append(results, models.JobResult{PortfolioID: portfolioID, Engine: "correlation", Status: models.JobSkipped})
	}

	// I: snapshot. PortfolioSnapshot stores Greeks at 2dp, not the 4dp
	// scale used everywhere else, so the totals are re-rounded here.
	snapshotGreeks := aggregation.GreeksForSnapshot(greeksTotals)
	results = append(results, o.runEngine(ctx, portfolioID, date, "snapshot", func(ctx context.Context) (string, error) {
		status, row, err := o.snapshot.Run(ctx, snapshot.Input{
			PortfolioID:           portfolioID,
			CalculationDate:       date,
			TotalValue:            sumTotalValue(valuationResult),
			GrossExposure:         exposures.Gross,
			NetExposure:           exposures.Net,
			LongExposure:          exposures.Long,
			ShortExposure:         exposures.Short,
			LongCount:             exposures.LongCount,
			ShortCount:            exposures.ShortCount,
			DeltaAdjustedExposure: deltaAdjusted.DeltaAdjustedExposure,
			Delta:                 snapshotGreeks.Delta,
			Gamma:                 snapshotGreeks.Gamma,
			Theta:                 snapshotGreeks.Theta,
			Vega:                  snapshotGreeks.Vega,
			Warnings:              valuationResult.Warnings,
		})
		if err != nil {
			return "", err
		}
		if status == snapshot.StatusCompleted && row != nil {
			o.report(&events.SnapshotWrittenData{PortfolioID: portfolioID, CalculationDate: date, TotalValue: row.TotalValue, DailyPnL: row.DailyPnL})
		}
		return string(status), nil
	}))

	return results
}

// runEngine wraps one engine invocation with the BatchJob state machine,
// retry/backoff classification, and a soft per-engine timeout.
func (o *Orchestrator) runEngine(ctx context.Context, portfolioID, date, engineName string, fn func(ctx context.Context) (string, error)) models.JobResult {
	log := o.log.With().Str("portfolio_id", portfolioID).Str("engine", engineName).Logger()
	start := time.Now()
	o.report(&events.EngineStartedData{PortfolioID: portfolioID, Engine: engineName, CalculationDate: date})

	engineCtx := ctx
	var cancel context.CancelFunc
	if o.cfg.EngineTimeout > 0 {
		engineCtx, cancel = context.WithTimeout(ctx, o.cfg.EngineTimeout)
		defer cancel()
	}

	var detail string
	res := retry.Do(engineCtx, o.cfg.RetryPolicy, func(ctx context.Context) error {
		d, err := fn(ctx)
		detail = d
		return err
	})

	duration := time.Since(start).Seconds()

	if res.Err != nil {
		log.Error().Err(res.Err).Int("retry_count", res.RetryCount).Msg("engine failed")
		o.recordJob(ctx, portfolioID, date, engineName, models.JobFailed, res.Err.Error(), res.RetryCount)
		classification := "permanent"
		if res.RetryCount > 0 {
			classification = "transient"
		}
		o.report(&events.EngineFailedData{
			PortfolioID: portfolioID, Engine: engineName, CalculationDate: date, Error: res.Err.Error(),
			Classification: classification, RetryCount: res.RetryCount, DurationSeconds: duration,
		})
		return models.JobResult{PortfolioID: portfolioID, Engine: engineName, Status: models.JobFailed, DurationSeconds: duration, Error: res.Err.Error()}
	}

	o.recordJob(ctx, portfolioID, date, engineName, models.JobCompleted, "", res.RetryCount)
	log.Info().Float64("duration_seconds", duration).Str("detail", detail).Msg("engine completed")
	o.report(&events.EngineCompletedData{PortfolioID: portfolioID, Engine: engineName, CalculationDate: date, DurationSeconds: duration, RetryCount: res.RetryCount})
	return models.JobResult{PortfolioID: portfolioID, Engine: engineName, Status: models.JobCompleted, DurationSeconds: duration}
}

func (o *Orchestrator) recordJob(ctx context.Context, portfolioID, date, engineName string, status models.BatchJobStatus, errMsg string, retryCount int) {
	now := time.Now()
	job := models.BatchJob{
		PortfolioID:     portfolioID,
		CalculationDate: date,
		Engine:          engineName,
		Status:          status,
		StartedAt:       &now,
		FinishedAt:      &now,
		RetryCount:      retryCount,
		Error:           errMsg,
	}
	if err := o.jobs.Upsert(ctx, job); err != nil {
		o.log.Error().Err(err).Str("engine", engineName).Msg("failed to record batch job state")
	}
}

func (o *Orchestrator) refreshPrices(ctx context.Context, positions []models.Position, date string) error {
	refresher, ok := o.source.(historyRefresher)
	if !ok {
		return nil
	}
	end, err := time.Parse("2006-01-02", date)
	if err != nil {
		end = time.Now()
	}
	start := end.AddDate(0, 0, -o.cfg.HistoryWindowDays)

	symbols := uniqueSymbols(positions)
	for _, symbol := range symbols {
		if err := refresher.RefreshHistory(ctx, symbol, start, end); err != nil {
			o.log.Warn().Str("symbol", symbol).Err(err).Msg("price refresh failed, continuing with cached data")
		}
	}
	return nil
}

func uniqueSymbols(positions []models.Position) []string {
	seen := map[string]bool{}
	var symbols []string
	for _, p := range positions {
		symbol := p.Symbol
		if models.IsOption(p.NormalizedType()) && p.UnderlyingSymbol != "" {
			symbol = p.UnderlyingSymbol
		}
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		symbols = append(symbols, symbol)
	}
	return symbols
}

// buildAggregates composes aggregation.PositionAggregate rows from the
// Position Valuation (B) and Greeks (C) engine outputs, deriving the
// unscaled per-share option delta from the persisted scaled Greeks.Delta
// (storedDelta = sign * contracts * multiplier * rawDelta).
func (o *Orchestrator) buildAggregates(positions []models.Position, val *valuation.Result, grk *greeks.Result) []aggregation.PositionAggregate {
	valByID := map[string]models.PositionValuation{}
	if val != nil {
		for _, v := range val.Valuations {
			valByID[v.PositionID] = v
		}
	}
	greeksByID := map[string]models.PositionGreeks{}
	if grk != nil {
		for _, g := range grk.Rows {
			greeksByID[g.PositionID] = g
		}
	}

	var aggregates []aggregation.PositionAggregate
	for _, pos := range positions {
		v, hasValuation := valByID[pos.ID]
		if !hasValuation {
			continue
		}
		normType := pos.NormalizedType()
		agg := aggregation.PositionAggregate{
			PositionID:       pos.ID,
			Symbol:           pos.Symbol,
			PositionType:     normType,
			MarketValue:      v.MarketValue,
			Exposure:         v.Exposure,
			UnderlyingSymbol: pos.UnderlyingSymbol,
		}

		if g, ok := greeksByID[pos.ID]; ok && g.Values != nil {
			agg.Greeks = g.Values
			if models.IsOption(normType) {
				scale := models.ExposureSign(normType, pos.Quantity) * math.Abs(pos.Quantity) * models.Multiplier(normType)
				if scale != 0 {
					rawDelta := g.Values.Delta / scale
					agg.OptionDeltaPerShare = &rawDelta
				}
			}
		}

		aggregates = append(aggregates, agg)
	}
	return aggregates
}

func (o *Orchestrator) buildValueHistory(ctx context.Context, portfolioID, date string, latestValue float64) ([]marketrisk.PnLPoint, error) {
	end, err := time.Parse("2006-01-02", date)
	if err != nil {
		end = time.Now()
	}
	start := end.AddDate(0, 0, -o.cfg.HistoryWindowDays)

	snapshots, err := o.history.HistoryRange(ctx, portfolioID, start.Format("2006-01-02"), date)
	if err != nil {
		return nil, err
	}

	history := make([]marketrisk.PnLPoint, 0, len(snapshots)+1)
	for _, s := range snapshots {
		history = append(history, marketrisk.PnLPoint{Date: s.CalculationDate, Value: s.TotalValue})
	}
	history = append(history, marketrisk.PnLPoint{Date: date, Value: latestValue})
	return history, nil
}

// buildStressInputs wires each position's exposure and Greeks into the
// stress engine's input shape. Factor betas (Component E's output) are
// not threaded through this composition, so scenario factor_shocks have
// no effect here unless a caller runs the stress engine directly with
// betas attached; the vol/rate shock path (Greeks-driven) is fully wired.
func (o *Orchestrator) buildStressInputs(aggregates []aggregation.PositionAggregate) []stress.PositionInput {
	inputs := make([]stress.PositionInput, 0, len(aggregates))
	for _, a := range aggregates {
		inputs = append(inputs, stress.PositionInput{
			PositionID: a.PositionID,
			Exposure:   a.Exposure,
			IsOption:   models.IsOption(a.PositionType),
			Greeks:     a.Greeks,
		})
	}
	return inputs
}

func (o *Orchestrator) buildReturnSeries(ctx context.Context, positions []models.Position, date string) (map[string][]float64, error) {
	end, err := time.Parse("2006-01-02", date)
	if err != nil {
		end = time.Now()
	}
	start := end.AddDate(0, 0, -o.cfg.HistoryWindowDays)

	series := map[string][]float64{}
	for _, symbol := range uniqueSymbols(positions) {
		history, err := o.source.PriceHistory(ctx, symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
		if err != nil || len(history) < 2 {
			continue
		}
		var returns []float64
		for i := 1; i < len(history); i++ {
			if history[i-1].Close == 0 {
				continue
			}
			returns = append(returns, (history[i].Close-history[i-1].Close)/history[i-1].Close)
		}
		series[symbol] = returns
	}
	return series, nil
}

func sumTotalValue(val *valuation.Result) float64 {
	if val == nil {
		return 0
	}
	total := 0.0
	for _, v := range val.Valuations {
		total += v.MarketValue
	}
	return total
}

func warningsMsg(r *valuation.Result) string {
	if r == nil || len(r.Warnings) == 0 {
		return ""
	}
	return fmt.Sprintf("%d warnings", len(r.Warnings))
}

func defaultScenarios() []stress.Scenario {
	return []stress.Scenario{
		{Name: "market_down_10", FactorShocks: map[string]float64{"market": -0.10}, Probability: 0.1},
		{Name: "market_down_20", FactorShocks: map[string]float64{"market": -0.20}, Probability: 0.03},
		{Name: "vol_spike", VolShock: 0.10, Probability: 0.05},
		{Name: "rate_hike_100bps", RateShock: 0.01, Probability: 0.1},
	}
}

// logHostStats records host memory pressure at the start of a batch run,
// an ambient ops signal for diagnosing slow or OOM-killed runs.
func (o *Orchestrator) logHostStats() {
	vm, err := mem.VirtualMemory()
	if err != nil {
		o.log.Warn().Err(err).Msg("failed to read host memory stats")
		return
	}
	o.log.Info().Float64("mem_used_percent", vm.UsedPercent).Msg("batch run starting")
}
