// Package aggregation implements Component D: pure portfolio aggregation
// functions over pre-valued positions (spec.md §4.D). Every function here
// is side-effect free; callers own persistence.
package aggregation

import "github.com/aristath/riskengine/internal/models"

// PositionAggregate is the "position dictionary" spec.md §4.D operates
// on: a position's pre-computed valuation plus optional Greeks, tags, and
// underlying symbol. Greeks is nil for positions whose Greeks calculation
// failed (null-on-error); stock positions carry delta = sign(quantity).
type PositionAggregate struct {
	PositionID   string
	Symbol       string
	PositionType string // normalized string, per NormalizePositionType
	MarketValue  float64
	Exposure     float64 // signed
	// Greeks carries the position-level values as persisted by the Greeks
	// engine (already scaled by signed contracts x100 for options); used
	// by the Greeks aggregation function. Nil means the Greeks calculation
	// failed (null-on-error); stocks carry Delta = ±1 and zero other Greeks.
	Greeks *models.Greeks
	// OptionDeltaPerShare is the unscaled, per-share delta (roughly
	// [-1, 1]) used to weight exposure in DeltaAdjustedExposure; nil for
	// stock positions and for options with no Greeks available.
	OptionDeltaPerShare *float64
	Tags                []string
	UnderlyingSymbol    string
}

// Metadata accumulates warnings and exclusion counts across an aggregation call.
type Metadata struct {
	ExcludedPositions int
	Warnings          []string
}

func (m *Metadata) exclude(reason string) {
	m.ExcludedPositions++
	m.Warnings = append(m.Warnings, reason)
}

func (m *Metadata) warn(reason string) {
	m.Warnings = append(m.Warnings, reason)
}
