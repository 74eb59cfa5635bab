package models

import "time"

// Greeks holds the five Black-Scholes sensitivities. A nil *Greeks on
// PositionGreeks.Values means the calculation failed and all columns are
// null; aggregators must skip such rows rather than treating them as zero.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
}

// PositionValuation is the per-(position, date) mark-to-market output of
// the valuation engine (spec.md §4.B). Stale is set when a price refresh
// failed and the prior value was carried forward unchanged.
type PositionValuation struct {
	PositionID      string
	CalculationDate string
	LastPrice       float64
	MarketValue     float64
	Exposure        float64 // signed
	DailyPnL        float64
	Stale           bool
}

// MarketRiskResult is the per-(portfolio, date) parametric risk summary
// (spec.md §4.F). Persisted as an accompanying record alongside
// PortfolioSnapshot rather than inline, since it carries fields (VaR, ES,
// beta, Sharpe, drawdown) the snapshot schema does not.
type MarketRiskResult struct {
	PortfolioID     string
	CalculationDate string
	VaR1d99         float64
	ES1d99          float64
	AnnualizedVol   float64
	Beta            float64
	BetaTalib       *float64 // talib.Beta cross-check, nil if unavailable
	Sharpe          float64
	MaxDrawdown     float64
	DataPoints      int
}

// PositionGreeks is the per-(position, date) Greeks engine result.
// DollarDelta (Delta x underlying price) and DollarGamma (Gamma x underlying
// price squared) are convenience columns stored alongside the raw Greeks.
type PositionGreeks struct {
	PositionID      string
	CalculationDate string
	Values          *Greeks // nil when calculation failed or inputs missing
	DollarDelta     float64
	DollarGamma     float64
}

// PositionFactorExposure is the per-(position, factor, date) regression result.
type PositionFactorExposure struct {
	PositionID      string
	Factor          string
	CalculationDate string
	Beta            *float64 // nil when the factor proxy series was unavailable
	RSquared        float64
	TrackingError   float64
	DataPoints      int
}

// StressTestResult is the per-(portfolio, scenario, date) stress-test output.
type StressTestResult struct {
	PortfolioID      string
	Scenario         string
	CalculationDate  string
	ProjectedValue   float64
	PnL              float64
	PnLPercent       float64
	Attribution      map[string]float64 // per-position or per-factor P&L contribution
	ScenarioSnapshot map[string]interface{}
}

// CorrelationCalculation is the per-(portfolio, date) pairwise correlation matrix.
type CorrelationCalculation struct {
	PortfolioID     string
	CalculationDate string
	Symbols         []string    // row/column order for Matrix
	Matrix          [][]float64 // Matrix[i][j] = correlation(Symbols[i], Symbols[j])
}

// PortfolioSnapshot is the per-(portfolio, date) dated aggregate state.
// Rho is deliberately not included here: it is computed at the position level
// but not persisted on snapshots (spec §9).
type PortfolioSnapshot struct {
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
	DailyPnL              float64
	Warnings              []string
}

// BatchJobStatus is the BatchJob state-machine value.
type BatchJobStatus string

const (
	JobQueued    BatchJobStatus = "queued"
	JobRunning   BatchJobStatus = "running"
	JobCompleted BatchJobStatus = "completed"
	JobFailed    BatchJobStatus = "failed"
	JobSkipped   BatchJobStatus = "skipped"
)

// BatchJob is a per-(portfolio, date, engine) execution record.
type BatchJob struct {
	ID              string
	PortfolioID     string
	CalculationDate string
	Engine          string
	Status          BatchJobStatus
	StartedAt       *time.Time
	FinishedAt      *time.Time
	DurationSeconds float64
	RetryCount      int
	Error           string
}

// JobResult is the control-surface return shape of run_daily_batch/rerun_engine.
type JobResult struct {
	PortfolioID     string
	Engine          string
	Status          BatchJobStatus
	DurationSeconds float64
	Error           string
	Warnings        []string
}
