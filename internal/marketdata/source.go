// Package marketdata implements Component A: the MarketDataSource
// capability (spec.md §4.A). The core depends only on the Source
// interface; swapping providers is a configuration change.
package marketdata

import (
	"context"
	"time"

	"github.com/aristath/riskengine/internal/models"
)

// Provider is the pluggable upstream data feed. Implementations talk to
// whatever external quote/fundamentals service is configured; the core
// never imports a provider package directly.
type Provider interface {
	// FetchLatestPrice returns the most recent trade price for symbol.
	FetchLatestPrice(ctx context.Context, symbol string) (price float64, asOf time.Time, err error)
	// FetchHistory returns the OHLCV series for symbol within [start, end].
	FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.MarketDataPoint, error)
	// FetchDividendYield returns the trailing dividend yield as a fraction.
	FetchDividendYield(ctx context.Context, symbol string) (float64, error)
	// FetchRiskFreeRate returns the risk-free rate as a fraction for the given date.
	FetchRiskFreeRate(ctx context.Context, date time.Time) (float64, error)
}

// Source is the capability the rest of the core consumes (spec.md §4.A):
// latest_price, price_history, dividend_yield, risk_free_rate. It never
// fabricates values — unavailable data returns ok=false.
type Source interface {
	LatestPrice(ctx context.Context, symbol string) (price float64, asOf string, ok bool, err error)
	PriceHistory(ctx context.Context, symbol string, start, end string) ([]models.MarketDataPoint, error)
	DividendYield(ctx context.Context, symbol string) (yield float64, ok bool, err error)
	RiskFreeRate(ctx context.Context, date string) (rate float64, ok bool, err error)
	// Snapshot bundles the fields the Greeks engine needs, applying the
	// documented fallbacks (iv 0.25, rfr 0.05, dividend 0) and recording
	// which fields used a fallback.
	Snapshot(ctx context.Context, symbol string, date string) (*models.MarketSnapshot, error)
}

// FactorProxies is the fixed set of seven style-factor ETF proxies used
// by Factor Analysis (Component E). The symbols are a fixed reference
// mapping; they are not read from configuration.
var FactorProxies = map[string]string{
	"market":         "SPY",
	"value":          "VTV",
	"growth":         "VUG",
	"momentum":       "MTUM",
	"quality":        "QUAL",
	"size":           "IWM",
	"low_volatility": "USMV",
}
