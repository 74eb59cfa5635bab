// Package main is the entry point for the portfolio risk analytics batch
// engine. It wires the market data source, every risk engine (A-I), the
// sequential orchestrator (J), and a cron schedule that drives the daily
// batch and the weekly correlation run, then blocks until SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/aggregation"
	"github.com/aristath/riskengine/internal/batch"
	"github.com/aristath/riskengine/internal/calendar"
	"github.com/aristath/riskengine/internal/config"
	"github.com/aristath/riskengine/internal/correlation"
	"github.com/aristath/riskengine/internal/database"
	"github.com/aristath/riskengine/internal/events"
	"github.com/aristath/riskengine/internal/factors"
	"github.com/aristath/riskengine/internal/greeks"
	"github.com/aristath/riskengine/internal/marketdata"
	"github.com/aristath/riskengine/internal/marketrisk"
	"github.com/aristath/riskengine/internal/models"
	"github.com/aristath/riskengine/internal/reliability"
	"github.com/aristath/riskengine/internal/retry"
	"github.com/aristath/riskengine/internal/scheduler"
	"github.com/aristath/riskengine/internal/snapshot"
	"github.com/aristath/riskengine/internal/store"
	"github.com/aristath/riskengine/internal/stress"
	"github.com/aristath/riskengine/internal/valuation"
	"github.com/aristath/riskengine/pkg/logger"
)

// dailyBatchJob adapts Orchestrator.RunDailyBatch to scheduler.Job so it
// can be registered on a cron schedule.
type dailyBatchJob struct {
	orchestrator *batch.Orchestrator
	timeout      time.Duration
	log          zerolog.Logger
}

func (j *dailyBatchJob) Name() string { return "daily_risk_batch" }

func (j *dailyBatchJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	results, err := j.orchestrator.RunDailyBatch(ctx, "", "")
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Status == models.JobFailed {
			j.log.Warn().Str("portfolio_id", r.PortfolioID).Str("engine", r.Engine).Str("error", r.Error).Msg("engine failed during scheduled run")
		}
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Str("data_dir", cfg.DataDir).Msg("starting risk analytics batch engine")

	riskDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "risk.db"),
		Profile: database.ProfileStandard,
		Name:    "risk",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open risk database")
	}
	defer riskDB.Close()

	marketDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "marketdata.db"),
		Profile: database.ProfileStandard,
		Name:    "marketdata",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open marketdata database")
	}
	defer marketDB.Close()

	portfolioRepo := store.NewPortfolioRepository(riskDB.Conn(), log)
	valuationRepo := store.NewValuationRepository(riskDB.Conn(), log)
	greeksRepo := store.NewGreeksRepository(riskDB.Conn(), log)
	factorRepo := store.NewFactorRepository(riskDB.Conn(), log)
	marketRiskRepo := store.NewMarketRiskRepository(riskDB.Conn(), log)
	stressRepo := store.NewStressRepository(riskDB.Conn(), log)
	correlationRepo := store.NewCorrelationRepository(riskDB.Conn(), log)
	snapshotRepo := store.NewSnapshotRepository(riskDB.Conn(), log)
	batchJobRepo := store.NewBatchJobRepository(riskDB.Conn(), log)
	marketDataRepo := store.NewMarketDataRepository(marketDB.Conn(), log)

	providerRetryPolicy := retry.Policy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBaseDelay}
	provider := marketdata.NewYahooProvider(log)
	source := marketdata.NewCachingSource(provider, marketDataRepo, providerRetryPolicy, log)

	tradingCalendar := calendar.NewUSEquityCalendar()

	valuationEngine := valuation.NewEngine(source, valuationRepo, log)
	greeksEngine := greeks.NewEngine(source, greeksRepo, cfg.ChunkSize, log)
	factorsEngine := factors.NewEngine(source, factorRepo, cfg.HistoryWindow, cfg.MinHistoryPoint, log)
	marketRiskEngine := marketrisk.NewEngine(source, marketRiskRepo, "", log)
	stressEngine := stress.NewEngine(stressRepo, log)
	correlationEngine := correlation.NewEngine(correlationRepo, log)

	var archiver *reliability.SnapshotArchiver
	if cfg.Archive.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		archiver, err = reliability.NewSnapshotArchiver(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix,
			cfg.Archive.Endpoint, cfg.Archive.Region, os.Getenv("ARCHIVE_ACCESS_KEY_ID"), os.Getenv("ARCHIVE_SECRET_ACCESS_KEY"),
			cfg.DataDir, log)
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize snapshot archiver, continuing without archival")
			archiver = nil
		}
	}

	var archiverAdapter snapshot.Archiver
	if archiver != nil {
		archiverAdapter = archiver
	}
	snapshotEngine := snapshot.NewEngine(snapshotRepo, tradingCalendar, archiverAdapter, []string{"risk", "marketdata"}, log)

	orchestratorCfg := batch.Config{
		RetryPolicy:        retry.Policy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBaseDelay},
		EngineTimeout:      cfg.EngineTimeout,
		HistoryWindowDays:  cfg.HistoryWindow,
		UseAbsoluteDelta:   cfg.UseAbsoluteDelta,
		CorrelationWeekday: cfg.CorrelationWeekday,
	}

	cache := aggregation.NewCache(cfg.AggregationTTL)

	orchestrator := batch.New(
		portfolioRepo, source, valuationEngine, greeksEngine, factorsEngine,
		marketRiskEngine, stressEngine, correlationEngine, snapshotEngine,
		snapshotRepo, batchJobRepo, cache, tradingCalendar, orchestratorCfg, log,
	)
	orchestrator.SetReporter(events.NewLogReporter(log))

	maintenanceDatabases := map[string]*database.DB{"risk": riskDB, "marketdata": marketDB}

	sched := scheduler.New(log)
	if err := sched.AddJob("0 0 6 * * *", &dailyBatchJob{orchestrator: orchestrator, timeout: cfg.BatchTimeout, log: log}); err != nil {
		log.Fatal().Err(err).Msg("failed to register daily batch job")
	}
	if err := sched.AddJob("0 30 5 * * *", reliability.NewDailyMaintenanceJob(maintenanceDatabases, cfg.DataDir, log)); err != nil {
		log.Fatal().Err(err).Msg("failed to register daily maintenance job")
	}
	if err := sched.AddJob("0 0 3 * * 0", reliability.NewWeeklyMaintenanceJob(maintenanceDatabases, log)); err != nil {
		log.Fatal().Err(err).Msg("failed to register weekly maintenance job")
	}
	sched.Start()
	log.Info().Msg("scheduler started: daily batch at 06:00, daily maintenance at 05:30, weekly VACUUM Sunday 03:00")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if getEnvBool("RUN_BATCH_ON_STARTUP") {
		log.Info().Msg("running initial batch on startup")
		if _, err := orchestrator.RunDailyBatch(ctx, "", ""); err != nil {
			log.Error().Err(err).Msg("startup batch run failed")
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()
	sched.Stop()
	log.Info().Msg("risk analytics batch engine stopped")
}

func getEnvBool(key string) bool {
	return os.Getenv(key) == "true" || os.Getenv(key) == "1"
}
