package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestExposures_S1_MixedPortfolio reproduces spec scenario S1: positions
// [(LONG, qty 100, price 150), (SHORT, qty -50, price 200), (LC, qty 10,
// price 5, multiplier 100)].
func TestExposures_S1_MixedPortfolio(t *testing.T) {
	positions := []PositionAggregate{
		{PositionID: "p1", PositionType: "LONG", Exposure: 15000},
		{PositionID: "p2", PositionType: "SHORT", Exposure: -10000},
		{PositionID: "p3", PositionType: "LC", Exposure: 5000},
	}

	r := Exposures(positions)
	assert.Equal(t, 30000.00, r.Gross)
	assert.Equal(t, 10000.00, r.Net)
	assert.Equal(t, 20000.00, r.Long)
	assert.Equal(t, -10000.00, r.Short)
	assert.Equal(t, 2, r.LongCount)
	assert.Equal(t, 1, r.ShortCount)
	assert.Equal(t, 5000.00, r.OptionsExposure)
	assert.Equal(t, 25000.00, r.StockExposure)
	assert.Equal(t, 30000.00, r.Notional)
	assert.Zero(t, r.Metadata.ExcludedPositions)
}

func TestExposures_EmptyInputReturnsZeros(t *testing.T) {
	r := Exposures(nil)
	assert.Zero(t, r.Gross)
	assert.Zero(t, r.Net)
	assert.Zero(t, r.Notional)
}

func TestExposures_UnknownTypeExcludedWithWarning(t *testing.T) {
	positions := []PositionAggregate{
		{PositionID: "p1", PositionType: "LONG", Exposure: 1000},
		{PositionID: "p2", PositionType: "BOGUS", Exposure: 500},
	}
	r := Exposures(positions)
	assert.Equal(t, 1000.00, r.Gross)
	assert.Equal(t, 1, r.Metadata.ExcludedPositions)
	require := r.Metadata.Warnings
	assert.Len(t, require, 1)
}

func TestExposures_NeverUsesNotionalExposureFieldName(t *testing.T) {
	// Testable property #6: aggregation output never references
	// notional_exposure; only notional is present. Enforced structurally
	// since ExposuresResult has no NotionalExposure field at all.
	r := ExposuresResult{}
	_ = r.Notional
}
