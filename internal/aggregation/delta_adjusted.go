package aggregation

import (
	"math"

	"github.com/aristath/riskengine/internal/models"
)

// DeltaAdjustedResult is the output of DeltaAdjustedExposure (spec.md §4.D).
type DeltaAdjustedResult struct {
	RawExposure           float64
	DeltaAdjustedExposure float64
	Metadata              Metadata
}

// DeltaAdjustedExposure sums raw signed exposure for stock legs and
// delta-weighted exposure for option legs: an option's contribution is
// its exposure multiplied by its delta, standing in for the equivalent
// equity exposure. useAbsoluteDelta selects between directional delta
// and its magnitude — resolved as a configuration flag (spec.md §9 open
// question) since the observed behavior favors magnitude.
func DeltaAdjustedExposure(positions []PositionAggregate, useAbsoluteDelta bool) DeltaAdjustedResult {
	var r DeltaAdjustedResult

	for _, p := range positions {
		r.RawExposure += math.Abs(p.Exposure)

		if models.IsOption(p.PositionType) {
			if p.OptionDeltaPerShare == nil {
				r.Metadata.exclude("excluded position " + p.PositionID + " from delta-adjusted exposure: no Greeks available")
				continue
			}
			delta := *p.OptionDeltaPerShare
			if useAbsoluteDelta {
				delta = math.Abs(delta)
			}
			r.DeltaAdjustedExposure += p.Exposure * delta
			continue
		}

		r.DeltaAdjustedExposure += p.Exposure
	}

	r.RawExposure = round(r.RawExposure, 2)
	r.DeltaAdjustedExposure = round(r.DeltaAdjustedExposure, 2)
	return r
}
