package greeks

import "math"

const sqrt2Pi = 2.5066282746310002 // math.Sqrt(2 * math.Pi)

// normalCDF is the standard normal cumulative distribution function,
// implemented against math.Erf (the standard library's Gauss error
// function) — the one justified standard-library numerical kernel in
// this engine, since no library in reach ships a Black-Scholes pricer.
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normalPDF is the standard normal probability density function.
func normalPDF(x float64) float64 {
	return math.Exp(-x*x/2) / sqrt2Pi
}

// bsInputs are the Black-Scholes closed-form parameters.
type bsInputs struct {
	Spot          float64
	Strike        float64
	TimeToExpiry  float64 // years
	RiskFreeRate  float64 // fraction
	DividendYield float64 // fraction
	Volatility    float64 // fraction
	IsCall        bool
}

// perShareGreeks are the raw Black-Scholes sensitivities for one share
// before scaling by signed contracts and the option multiplier. Theta is
// annualized; Rho is per-unit rate change; both get rescaled by the
// caller to per-day / per-1% per spec.md §4.C.
type perShareGreeks struct {
	Delta float64
	Gamma float64
	Theta float64 // per year
	Vega  float64 // per unit vol
	Rho   float64 // per unit rate
}

// blackScholes computes per-share Greeks. Callers must guard against
// TimeToExpiry <= 0 and Volatility <= 0 before calling; those inputs
// produce a division by zero here and are the engine's designated
// null-on-error triggers.
func blackScholes(in bsInputs) perShareGreeks {
	sqrtT := math.Sqrt(in.TimeToExpiry)
	d1 := (math.Log(in.Spot/in.Strike) + (in.RiskFreeRate-in.DividendYield+0.5*in.Volatility*in.Volatility)*in.TimeToExpiry) / (in.Volatility * sqrtT)
	d2 := d1 - in.Volatility*sqrtT

	discountQ := math.Exp(-in.DividendYield * in.TimeToExpiry)
	discountR := math.Exp(-in.RiskFreeRate * in.TimeToExpiry)

	gamma := discountQ * normalPDF(d1) / (in.Spot * in.Volatility * sqrtT)
	vega := in.Spot * discountQ * normalPDF(d1) * sqrtT

	if in.IsCall {
		delta := discountQ * normalCDF(d1)
		theta := -in.Spot*discountQ*normalPDF(d1)*in.Volatility/(2*sqrtT) -
			in.RiskFreeRate*in.Strike*discountR*normalCDF(d2) +
			in.DividendYield*in.Spot*discountQ*normalCDF(d1)
		rho := in.Strike * in.TimeToExpiry * discountR * normalCDF(d2)
		return perShareGreeks{Delta: delta, Gamma: gamma, Theta: theta, Vega: vega, Rho: rho}
	}

	delta := discountQ * (normalCDF(d1) - 1)
	theta := -in.Spot*discountQ*normalPDF(d1)*in.Volatility/(2*sqrtT) +
		in.RiskFreeRate*in.Strike*discountR*normalCDF(-d2) -
		in.DividendYield*in.Spot*discountQ*normalCDF(-d1)
	rho := -in.Strike * in.TimeToExpiry * discountR * normalCDF(-d2)
	return perShareGreeks{Delta: delta, Gamma: gamma, Theta: theta, Vega: vega, Rho: rho}
}
