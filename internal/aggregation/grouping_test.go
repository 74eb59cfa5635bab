package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskengine/internal/models"
)

func TestByTags_NoFilterReturnsEveryTag(t *testing.T) {
	positions := []PositionAggregate{
		{PositionID: "p1", Exposure: 1000, Tags: []string{"tech", "growth"}},
		{PositionID: "p2", Exposure: 2000, Tags: []string{"tech"}},
	}
	groups := ByTags(positions, nil, TagModeAny)
	require.Contains(t, groups, "tech")
	require.Contains(t, groups, "growth")
	assert.Equal(t, 2, groups["tech"].Count)
	assert.Equal(t, 3000.00, groups["tech"].Exposure)
	assert.Equal(t, 1, groups["growth"].Count)
}

func TestByTags_FilterModeAll(t *testing.T) {
	positions := []PositionAggregate{
		{PositionID: "p1", Exposure: 1000, Tags: []string{"tech", "growth"}},
		{PositionID: "p2", Exposure: 2000, Tags: []string{"tech"}},
	}
	groups := ByTags(positions, []string{"tech", "growth"}, TagModeAll)
	assert.Equal(t, 1, groups["tech"].Count)
	assert.Equal(t, 1, groups["growth"].Count)
}

func TestByUnderlying_GroupsStockAndOptions(t *testing.T) {
	positions := []PositionAggregate{
		{PositionID: "p1", Symbol: "AAPL", Exposure: 15000, Greeks: &models.Greeks{Delta: 1}},
		{PositionID: "p2", Symbol: "AAPL250101C150", UnderlyingSymbol: "AAPL", Exposure: 5000, Greeks: &models.Greeks{Delta: 65}},
	}
	groups := ByUnderlying(positions)
	require.Contains(t, groups, "AAPL")
	assert.Equal(t, 2, groups["AAPL"].Count)
	assert.Equal(t, 20000.00, groups["AAPL"].Exposure)
	assert.Equal(t, 66.0, groups["AAPL"].Greeks.Delta)
}
