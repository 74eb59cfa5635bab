package aggregation

import "fmt"

// GreeksResult is the output of Greeks (spec.md §4.D). Rounded to 4 decimals.
type GreeksResult struct {
	Delta    float64
	Gamma    float64
	Theta    float64
	Vega     float64
	Rho      float64
	Metadata Metadata
}

// Greeks sums per-position Greeks, skipping positions whose Greeks are
// nil (null-on-error rows) and counting each as excluded with a warning.
func Greeks(positions []PositionAggregate) GreeksResult {
	var r GreeksResult

	for _, p := range positions {
		if p.Greeks == nil {
			r.Metadata.exclude(fmt.Sprintf("excluded position %s from Greeks aggregation: no Greeks available", p.PositionID))
			continue
		}
		r.Delta += p.Greeks.Delta
		r.Gamma += p.Greeks.Gamma
		r.Theta += p.Greeks.Theta
		r.Vega += p.Greeks.Vega
		r.Rho += p.Greeks.Rho
	}

	r.Delta = round(r.Delta, 4)
	r.Gamma = round(r.Gamma, 4)
	r.Theta = round(r.Theta, 4)
	r.Vega = round(r.Vega, 4)
	r.Rho = round(r.Rho, 4)
	return r
}

// GreeksForSnapshot rounds the aggregated Greeks to the 2-decimal scale
// used on PortfolioSnapshot (spec.md §3) instead of the 4-decimal scale
// used everywhere else.
func GreeksForSnapshot(r GreeksResult) GreeksResult {
	r.Delta = round(r.Delta, 2)
	r.Gamma = round(r.Gamma, 2)
	r.Theta = round(r.Theta, 2)
	r.Vega = round(r.Vega, 2)
	r.Rho = round(r.Rho, 2)
	return r
}
