package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/models"
	"github.com/aristath/riskengine/internal/retry"
	"github.com/aristath/riskengine/internal/store"
)

// Repository is the subset of store.MarketDataRepository CachingSource needs.
type Repository interface {
	Upsert(ctx context.Context, p models.MarketDataPoint) error
	Latest(ctx context.Context, symbol, date string) (*models.MarketDataPoint, error)
	History(ctx context.Context, symbol, start, end string) ([]models.MarketDataPoint, error)
	UpsertSymbolMetadata(ctx context.Context, symbol string, iv, rfr, divYield *float64) error
	SymbolMetadata(ctx context.Context, symbol string) (*models.MarketSnapshot, error)
}

var _ Repository = (*store.MarketDataRepository)(nil)

const dateLayout = "2006-01-02"

// CachingSource is the reference Source implementation: it calls the
// configured Provider with retry-on-transient backoff, caches results in
// the MarketDataPoint/symbol_metadata tables, and falls back to the last
// cached value (with a staleness indicator) when the provider is down.
type CachingSource struct {
	provider Provider
	repo     Repository
	retryCfg retry.Policy
	log      zerolog.Logger
}

// NewCachingSource builds a CachingSource. retryCfg controls the backoff
// applied to provider calls on transient failure (spec.md §4.A).
func NewCachingSource(provider Provider, repo Repository, retryCfg retry.Policy, log zerolog.Logger) *CachingSource {
	return &CachingSource{
		provider: provider,
		repo:     repo,
		retryCfg: retryCfg,
		log:      log.With().Str("component", "marketdata_source").Logger(),
	}
}

// LatestPrice resolves symbol's latest price, preferring a fresh provider
// call and falling back to the cache on provider failure. ok=false means
// no value is available anywhere — never fabricated.
func (s *CachingSource) LatestPrice(ctx context.Context, symbol string) (float64, string, bool, error) {
	var price float64
	var asOf time.Time
	res := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		p, t, err := s.provider.FetchLatestPrice(ctx, symbol)
		if err != nil {
			return err
		}
		price, asOf = p, t
		return nil
	})

	if res.Err == nil {
		dateStr := asOf.Format(dateLayout)
		_ = s.repo.Upsert(ctx, models.MarketDataPoint{
			Symbol: symbol, Date: dateStr, Open: price, High: price, Low: price, Close: price,
		})
		return price, dateStr, true, nil
	}

	s.log.Warn().Str("symbol", symbol).Err(res.Err).Msg("provider unavailable, falling back to cache")
	cached, err := s.repo.Latest(ctx, symbol, time.Now().Format(dateLayout))
	if err != nil {
		return 0, "", false, err
	}
	if cached == nil {
		return 0, "", false, nil
	}
	return cached.Close, cached.Date, true, nil
}

// PriceHistory returns the cached OHLCV series for symbol. It does not
// itself page a provider's full history API; callers seed history via
// RefreshHistory.
func (s *CachingSource) PriceHistory(ctx context.Context, symbol string, start, end string) ([]models.MarketDataPoint, error) {
	return s.repo.History(ctx, symbol, start, end)
}

// RefreshHistory fetches and caches symbol's OHLCV series for [start, end].
func (s *CachingSource) RefreshHistory(ctx context.Context, symbol string, start, end time.Time) error {
	var points []models.MarketDataPoint
	res := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		p, err := s.provider.FetchHistory(ctx, symbol, start, end)
		if err != nil {
			return err
		}
		points = p
		return nil
	})
	if res.Err != nil {
		s.log.Warn().Str("symbol", symbol).Err(res.Err).Msg("history refresh failed")
		return res.Err
	}
	for _, p := range points {
		if err := s.repo.Upsert(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// DividendYield resolves symbol's dividend yield with provider-then-cache fallback.
func (s *CachingSource) DividendYield(ctx context.Context, symbol string) (float64, bool, error) {
	var yield float64
	res := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		y, err := s.provider.FetchDividendYield(ctx, symbol)
		if err != nil {
			return err
		}
		yield = y
		return nil
	})
	if res.Err == nil {
		_ = s.repo.UpsertSymbolMetadata(ctx, symbol, nil, nil, &yield)
		return yield, true, nil
	}
	snap, err := s.repo.SymbolMetadata(ctx, symbol)
	if err != nil || snap == nil {
		return 0, false, err
	}
	return snap.DividendYield, true, nil
}

// RiskFreeRate resolves the risk-free rate for date, falling back to a
// global cached rate on provider failure.
func (s *CachingSource) RiskFreeRate(ctx context.Context, date string) (float64, bool, error) {
	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		parsed = time.Now()
	}
	var rate float64
	res := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		r, err := s.provider.FetchRiskFreeRate(ctx, parsed)
		if err != nil {
			return err
		}
		rate = r
		return nil
	})
	if res.Err == nil {
		_ = s.repo.UpsertSymbolMetadata(ctx, "__risk_free_rate__", nil, &rate, nil)
		return rate, true, nil
	}
	snap, err := s.repo.SymbolMetadata(ctx, "__risk_free_rate__")
	if err != nil || snap == nil {
		return 0, false, err
	}
	return snap.RiskFreeRate, true, nil
}

// Snapshot bundles spot/IV/risk-free/dividend for the Greeks engine,
// applying the documented fallbacks and recording which ones fired.
func (s *CachingSource) Snapshot(ctx context.Context, symbol string, date string) (*models.MarketSnapshot, error) {
	price, asOf, ok, err := s.LatestPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	snap := &models.MarketSnapshot{Symbol: symbol, Spot: price, AsOfDate: asOf}

	cached, err := s.repo.SymbolMetadata(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if cached != nil && cached.ImpliedVolatility != 0 {
		snap.ImpliedVolatility = cached.ImpliedVolatility
	} else {
		snap.ImpliedVolatility = models.DefaultImpliedVolatility
		snap.ImpliedVolatilityIsFallback = true
	}

	if rate, ok, _ := s.RiskFreeRate(ctx, date); ok {
		snap.RiskFreeRate = rate
	} else {
		snap.RiskFreeRate = models.DefaultRiskFreeRate
		snap.RiskFreeRateIsFallback = true
	}

	if yield, ok, _ := s.DividendYield(ctx, symbol); ok {
		snap.DividendYield = yield
	} else {
		snap.DividendYield = models.DefaultDividendYield
		snap.DividendYieldIsFallback = true
	}

	return snap, nil
}
