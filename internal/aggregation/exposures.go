package aggregation

import (
	"fmt"
	"math"

	"github.com/aristath/riskengine/internal/models"
)

// ExposuresResult is the output of Exposures (spec.md §4.D). All monetary
// fields are rounded to 2 decimal places.
type ExposuresResult struct {
	Gross           float64
	Net             float64
	Long            float64
	Short           float64
	LongCount       int
	ShortCount      int
	OptionsExposure float64
	StockExposure   float64
	Notional        float64
	Metadata        Metadata
}

// Exposures aggregates gross/net/long/short exposure across positions.
// Positions with an unrecognized type are excluded with a warning; an
// empty input returns all zeros (spec.md §4.D, scenario S1).
func Exposures(positions []PositionAggregate) ExposuresResult {
	var r ExposuresResult

	for _, p := range positions {
		if !models.IsKnownType(p.PositionType) {
			r.Metadata.exclude(fmt.Sprintf("excluded position %s: unknown position type %q", p.PositionID, p.PositionType))
			continue
		}

		r.Gross += math.Abs(p.Exposure)
		r.Net += p.Exposure
		if p.Exposure > 0 {
			r.Long += p.Exposure
			r.LongCount++
		} else if p.Exposure < 0 {
			r.Short += p.Exposure
			r.ShortCount++
		}

		if models.IsOption(p.PositionType) {
			r.OptionsExposure += math.Abs(p.Exposure)
		} else {
			r.StockExposure += math.Abs(p.Exposure)
		}
	}

	r.Notional = r.Gross
	return round2Exposures(r)
}

func round2Exposures(r ExposuresResult) ExposuresResult {
	r.Gross = round(r.Gross, 2)
	r.Net = round(r.Net, 2)
	r.Long = round(r.Long, 2)
	r.Short = round(r.Short, 2)
	r.OptionsExposure = round(r.OptionsExposure, 2)
	r.StockExposure = round(r.StockExposure, 2)
	r.Notional = round(r.Notional, 2)
	return r
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
