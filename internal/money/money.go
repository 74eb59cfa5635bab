// Package money normalizes float64 monetary and Greek values to
// fixed-scale decimals at the persistence boundary using
// github.com/shopspring/decimal, so repository rows never carry raw
// binary-float rounding artifacts (spec.md §3).
package money

import "github.com/shopspring/decimal"

// Round2 normalizes a monetary value to 2 decimal places.
func Round2(v float64) float64 {
	return round(v, 2)
}

// Round4 normalizes a Greek value to 4 decimal places.
func Round4(v float64) float64 {
	return round(v, 4)
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
