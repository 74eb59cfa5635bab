package factors

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskengine/internal/models"
)

type fakeSource struct {
	history map[string][]models.MarketDataPoint
}

func (f *fakeSource) LatestPrice(ctx context.Context, symbol string) (float64, string, bool, error) {
	return 0, "", false, nil
}

func (f *fakeSource) PriceHistory(ctx context.Context, symbol, start, end string) ([]models.MarketDataPoint, error) {
	return f.history[symbol], nil
}

func (f *fakeSource) DividendYield(ctx context.Context, symbol string) (float64, bool, error) {
	return 0, false, nil
}

func (f *fakeSource) RiskFreeRate(ctx context.Context, date string) (float64, bool, error) {
	return 0, false, nil
}

func (f *fakeSource) Snapshot(ctx context.Context, symbol, date string) (*models.MarketSnapshot, error) {
	return nil, nil
}

type fakeRepo struct {
	rows []models.PositionFactorExposure
}

func (f *fakeRepo) Upsert(ctx context.Context, e models.PositionFactorExposure) error {
	f.rows = append(f.rows, e)
	return nil
}

// perfectlyCorrelatedHistory builds n days of prices where symbol tracks
// proxy 1:1, so the regression should recover beta close to 1 with R² close
// to 1.
func perfectlyCorrelatedHistory(n int) (symbolSeries, proxySeries []models.MarketDataPoint) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		date := base.AddDate(0, 0, i).Format("2006-01-02")
		price *= 1.001
		symbolSeries = append(symbolSeries, models.MarketDataPoint{Date: date, Close: price})
		proxySeries = append(proxySeries, models.MarketDataPoint{Date: date, Close: price})
	}
	return symbolSeries, proxySeries
}

func TestRun_SufficientHistoryProducesBeta(t *testing.T) {
	symbolSeries, proxySeries := perfectlyCorrelatedHistory(70)
	source := &fakeSource{history: map[string][]models.MarketDataPoint{
		"AAPL": symbolSeries,
		"SPY":  proxySeries,
		"VTV":  proxySeries,
		"VUG":  proxySeries,
		"MTUM": proxySeries,
		"QUAL": proxySeries,
		"IWM":  proxySeries,
		"USMV": proxySeries,
	}}
	repo := &fakeRepo{}
	engine := NewEngine(source, repo, 252, 60, zerolog.Nop())

	positions := []models.Position{{ID: "p1", Symbol: "AAPL", Type: models.PositionLong, Quantity: 100}}
	exposures := map[string]float64{"p1": 15000}

	result, err := engine.Run(context.Background(), positions, exposures, "2026-03-20")
	require.NoError(t, err)
	require.Len(t, result.Positions, 1)

	marketExposure := findFactor(t, result.Positions[0].Exposures, "market")
	require.NotNil(t, marketExposure.Beta)
	assert.InDelta(t, 1.0, *marketExposure.Beta, 0.01)
	assert.InDelta(t, 1.0, marketExposure.RSquared, 0.01)
	assert.GreaterOrEqual(t, marketExposure.DataPoints, 60)
	assert.Len(t, repo.rows, 7)
}

func TestRun_InsufficientHistoryWarnsWithoutFailing(t *testing.T) {
	symbolSeries, proxySeries := perfectlyCorrelatedHistory(10)
	source := &fakeSource{history: map[string][]models.MarketDataPoint{
		"AAPL": symbolSeries,
		"SPY":  proxySeries,
		"VTV":  proxySeries,
		"VUG":  proxySeries,
		"MTUM": proxySeries,
		"QUAL": proxySeries,
		"IWM":  proxySeries,
		"USMV": proxySeries,
	}}
	repo := &fakeRepo{}
	engine := NewEngine(source, repo, 252, 60, zerolog.Nop())

	positions := []models.Position{{ID: "p1", Symbol: "AAPL", Type: models.PositionLong, Quantity: 100}}
	result, err := engine.Run(context.Background(), positions, map[string]float64{"p1": 15000}, "2026-01-10")
	require.NoError(t, err)
	require.Len(t, result.Positions, 1)

	marketExposure := findFactor(t, result.Positions[0].Exposures, "market")
	assert.Nil(t, marketExposure.Beta)
	assert.NotEmpty(t, result.Warnings)
}

func TestRun_MissingFactorProxyRecordsNullAndContinues(t *testing.T) {
	symbolSeries, proxySeries := perfectlyCorrelatedHistory(70)
	source := &fakeSource{history: map[string][]models.MarketDataPoint{
		"AAPL": symbolSeries,
		"SPY":  proxySeries,
		// VTV (value) deliberately missing.
		"VUG":  proxySeries,
		"MTUM": proxySeries,
		"QUAL": proxySeries,
		"IWM":  proxySeries,
		"USMV": proxySeries,
	}}
	repo := &fakeRepo{}
	engine := NewEngine(source, repo, 252, 60, zerolog.Nop())

	positions := []models.Position{{ID: "p1", Symbol: "AAPL", Type: models.PositionLong, Quantity: 100}}
	result, err := engine.Run(context.Background(), positions, map[string]float64{"p1": 15000}, "2026-03-20")
	require.NoError(t, err)

	valueExposure := findFactor(t, result.Positions[0].Exposures, "value")
	assert.Nil(t, valueExposure.Beta)

	marketExposure := findFactor(t, result.Positions[0].Exposures, "market")
	require.NotNil(t, marketExposure.Beta)
	assert.NotEmpty(t, result.Warnings)
}

func TestRun_OptionPositionUsesUnderlyingSymbol(t *testing.T) {
	symbolSeries, proxySeries := perfectlyCorrelatedHistory(70)
	source := &fakeSource{history: map[string][]models.MarketDataPoint{
		"AAPL": symbolSeries,
		"SPY":  proxySeries,
		"VTV":  proxySeries,
		"VUG":  proxySeries,
		"MTUM": proxySeries,
		"QUAL": proxySeries,
		"IWM":  proxySeries,
		"USMV": proxySeries,
	}}
	repo := &fakeRepo{}
	engine := NewEngine(source, repo, 252, 60, zerolog.Nop())

	positions := []models.Position{{
		ID: "p1", Symbol: "AAPL250101C150", UnderlyingSymbol: "AAPL",
		Type: models.PositionLongCall, Quantity: 10, Strike: 150, ExpirationDate: "2027-01-01",
	}}
	result, err := engine.Run(context.Background(), positions, map[string]float64{"p1": 5000}, "2026-03-20")
	require.NoError(t, err)
	require.Len(t, result.Positions, 1)
	marketExposure := findFactor(t, result.Positions[0].Exposures, "market")
	require.NotNil(t, marketExposure.Beta)
}

func findFactor(t *testing.T, exposures []models.PositionFactorExposure, factor string) models.PositionFactorExposure {
	t.Helper()
	for _, e := range exposures {
		if e.Factor == factor {
			return e
		}
	}
	t.Fatalf("factor %s not found", factor)
	return models.PositionFactorExposure{}
}
