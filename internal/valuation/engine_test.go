package valuation

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskengine/internal/models"
)

type fakeSource struct {
	prices map[string]float64
}

func (f *fakeSource) LatestPrice(ctx context.Context, symbol string) (float64, string, bool, error) {
	p, ok := f.prices[symbol]
	return p, "2026-07-30", ok, nil
}
func (f *fakeSource) PriceHistory(ctx context.Context, symbol, start, end string) ([]models.MarketDataPoint, error) {
	return nil, nil
}
func (f *fakeSource) DividendYield(ctx context.Context, symbol string) (float64, bool, error) {
	return 0, true, nil
}
func (f *fakeSource) RiskFreeRate(ctx context.Context, date string) (float64, bool, error) {
	return 0.05, true, nil
}
func (f *fakeSource) Snapshot(ctx context.Context, symbol, date string) (*models.MarketSnapshot, error) {
	return nil, nil
}

type fakeRepo struct {
	stored map[string]models.PositionValuation
	prior  map[string]models.PositionValuation
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{stored: map[string]models.PositionValuation{}, prior: map[string]models.PositionValuation{}}
}

func (r *fakeRepo) Upsert(ctx context.Context, v models.PositionValuation) error {
	r.stored[v.PositionID] = v
	return nil
}
func (r *fakeRepo) LatestBefore(ctx context.Context, positionID, beforeDate string) (*models.PositionValuation, error) {
	if v, ok := r.prior[positionID]; ok {
		return &v, nil
	}
	return nil, nil
}

func TestEngine_Run_StockExposureSignedByQuantity(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"AAPL": 150}}
	repo := newFakeRepo()
	e := NewEngine(source, repo, zerolog.Nop())

	positions := []models.Position{
		{ID: "p1", PortfolioID: "port1", Symbol: "AAPL", Type: models.PositionLong, Quantity: 100, EntryPrice: 140},
	}
	result, err := e.Run(context.Background(), positions, "2026-07-30")
	require.NoError(t, err)
	require.Len(t, result.Valuations, 1)
	assert.Equal(t, 15000.0, result.Valuations[0].MarketValue)
	assert.Equal(t, 15000.0, result.Valuations[0].Exposure)
	assert.Equal(t, 0.0, result.Valuations[0].DailyPnL)
}

func TestEngine_Run_MissingPriceCarriesPriorValuationForward(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{}}
	repo := newFakeRepo()
	repo.prior["p1"] = models.PositionValuation{
		PositionID: "p1", LastPrice: 55, MarketValue: 550, Exposure: 550,
	}
	e := NewEngine(source, repo, zerolog.Nop())

	positions := []models.Position{
		{ID: "p1", PortfolioID: "port1", Symbol: "ZZZZ", Type: models.PositionLong, Quantity: 10, EntryPrice: 50},
	}
	result, err := e.Run(context.Background(), positions, "2026-07-30")
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "ZZZZ")
	require.Len(t, result.Valuations, 1)
	v := result.Valuations[0]
	assert.True(t, v.Stale)
	assert.Equal(t, 55.0, v.LastPrice)
	assert.Equal(t, 550.0, v.MarketValue)
	assert.Equal(t, 550.0, v.Exposure)
	assert.Equal(t, 0.0, v.DailyPnL)
}

func TestEngine_Run_MissingPriceWithNoPriorValuationFallsBackToEntryPrice(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{}}
	repo := newFakeRepo()
	e := NewEngine(source, repo, zerolog.Nop())

	positions := []models.Position{
		{ID: "p1", PortfolioID: "port1", Symbol: "ZZZZ", Type: models.PositionLong, Quantity: 10, EntryPrice: 50},
	}
	result, err := e.Run(context.Background(), positions, "2026-07-30")
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	require.Len(t, result.Valuations, 1)
	v := result.Valuations[0]
	assert.True(t, v.Stale)
	assert.Equal(t, 50.0, v.LastPrice)
	assert.Equal(t, 500.0, v.MarketValue)
	assert.Equal(t, 500.0, v.Exposure)
}

func TestEngine_Run_ShortOptionExposureIsNegative(t *testing.T) {
	source := &fakeSource{prices: map[string]float64{"TSLA": 200}}
	repo := newFakeRepo()
	e := NewEngine(source, repo, zerolog.Nop())

	positions := []models.Position{
		{ID: "p1", PortfolioID: "port1", Symbol: "TSLA250101C200", Type: models.PositionShortCall, Quantity: 2, EntryPrice: 5, UnderlyingSymbol: "TSLA"},
	}
	result, err := e.Run(context.Background(), positions, "2026-07-30")
	require.NoError(t, err)
	assert.Equal(t, 40000.0, result.Valuations[0].MarketValue)
	assert.Equal(t, -40000.0, result.Valuations[0].Exposure)
}
