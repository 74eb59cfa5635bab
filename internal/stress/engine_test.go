package stress

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskengine/internal/models"
)

type fakeRepo struct {
	rows []models.StressTestResult
}

func (f *fakeRepo) Upsert(ctx context.Context, s models.StressTestResult) error {
	f.rows = append(f.rows, s)
	return nil
}

func TestRun_FactorShockAppliesBetaWeightedPnL(t *testing.T) {
	repo := &fakeRepo{}
	engine := NewEngine(repo, zerolog.Nop())

	positions := []PositionInput{
		{PositionID: "p1", Exposure: 100000, FactorBetas: map[string]float64{"market": 1.2}},
	}
	scenarios := []Scenario{
		{Name: "market_crash", FactorShocks: map[string]float64{"market": -0.20}},
	}

	results, err := engine.Run(context.Background(), "port-1", "2026-03-20", 500000, positions, scenarios)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, -24000.00, results[0].PnL) // 100000 * 1.2 * -0.20
	assert.Equal(t, 476000.00, results[0].ProjectedValue)
	assert.InDelta(t, -4.8, results[0].PnLPercent, 1e-6)
	assert.Equal(t, -24000.00, results[0].Attribution["factor:market"])
	require.Len(t, repo.rows, 1)
}

func TestRun_OptionVolShockUsesVega(t *testing.T) {
	repo := &fakeRepo{}
	engine := NewEngine(repo, zerolog.Nop())

	positions := []PositionInput{
		{PositionID: "p1", Exposure: 5000, IsOption: true, Greeks: &models.Greeks{Vega: 200}},
	}
	scenarios := []Scenario{
		{Name: "vol_spike", VolShock: 0.05},
	}

	results, err := engine.Run(context.Background(), "port-1", "2026-03-20", 100000, positions, scenarios)
	require.NoError(t, err)
	assert.Equal(t, 1000.00, results[0].PnL) // vega(200) * (0.05/0.01)
	assert.Equal(t, 1000.00, results[0].Attribution["vol"])
}

func TestRun_SectorShockOnlyAppliesToMatchingSector(t *testing.T) {
	repo := &fakeRepo{}
	engine := NewEngine(repo, zerolog.Nop())

	positions := []PositionInput{
		{PositionID: "p1", Sector: "Technology", Exposure: 10000},
		{PositionID: "p2", Sector: "Energy", Exposure: 10000},
	}
	scenarios := []Scenario{
		{Name: "tech_selloff", SectorShocks: map[string]float64{"Technology": -0.15}},
	}

	results, err := engine.Run(context.Background(), "port-1", "2026-03-20", 200000, positions, scenarios)
	require.NoError(t, err)
	assert.Equal(t, -1500.00, results[0].PnL)
	assert.Equal(t, -1500.00, results[0].Attribution["sector:Technology"])
	_, hasEnergy := results[0].Attribution["sector:Energy"]
	assert.False(t, hasEnergy)
}

func TestRun_ProbabilityIsMetadataOnlyNotUsedInComputation(t *testing.T) {
	repo := &fakeRepo{}
	engine := NewEngine(repo, zerolog.Nop())

	positions := []PositionInput{{PositionID: "p1", Exposure: 10000, FactorBetas: map[string]float64{"market": 1.0}}}
	low := []Scenario{{Name: "s", FactorShocks: map[string]float64{"market": -0.1}, Probability: 0.01}}
	high := []Scenario{{Name: "s", FactorShocks: map[string]float64{"market": -0.1}, Probability: 0.99}}

	lowResult, err := engine.Run(context.Background(), "port-1", "2026-03-20", 100000, positions, low)
	require.NoError(t, err)
	highResult, err := engine.Run(context.Background(), "port-1", "2026-03-20", 100000, positions, high)
	require.NoError(t, err)

	assert.Equal(t, lowResult[0].PnL, highResult[0].PnL)
}
