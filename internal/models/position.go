package models

import "strings"

// PositionType classifies a position; authoritative over the sign of quantity.
type PositionType string

const (
	PositionLong      PositionType = "LONG"
	PositionShort     PositionType = "SHORT"
	PositionLongCall  PositionType = "LC"
	PositionLongPut   PositionType = "LP"
	PositionShortCall PositionType = "SC"
	PositionShortPut  PositionType = "SP"
)

// stockTypes and optionTypes are the canonical set-membership tables referred
// to as "stock set" / "option set" — position_type is always normalized to
// its string form before any membership test runs against them.
var stockTypes = map[string]bool{
	string(PositionLong):  true,
	string(PositionShort): true,
}

var optionTypes = map[string]bool{
	string(PositionLongCall):  true,
	string(PositionLongPut):   true,
	string(PositionShortCall): true,
	string(PositionShortPut):  true,
}

// NormalizePositionType accepts either a PositionType value or a raw string
// and returns its canonical upper-cased string form.
func NormalizePositionType(raw interface{}) string {
	switch v := raw.(type) {
	case PositionType:
		return strings.ToUpper(string(v))
	case string:
		return strings.ToUpper(strings.TrimSpace(v))
	default:
		return ""
	}
}

// IsOption reports whether the normalized position type denotes an option leg.
func IsOption(positionType string) bool {
	return optionTypes[strings.ToUpper(positionType)]
}

// IsStock reports whether the normalized position type denotes an equity leg.
func IsStock(positionType string) bool {
	return stockTypes[strings.ToUpper(positionType)]
}

// IsKnownType reports whether the normalized type is a recognized position type at all.
func IsKnownType(positionType string) bool {
	t := strings.ToUpper(positionType)
	return stockTypes[t] || optionTypes[t]
}

// Multiplier returns the contract multiplier for a normalized position type:
// 100 for options, 1 for stocks, 0 for unrecognized types.
func Multiplier(positionType string) float64 {
	switch {
	case IsOption(positionType):
		return 100
	case IsStock(positionType):
		return 1
	default:
		return 0
	}
}

// ExposureSign returns the sign that signed_exposure must carry for a
// normalized position type: stocks take the sign of quantity; long
// calls/puts are always positive; short calls/puts are always negative.
func ExposureSign(positionType string, quantity float64) float64 {
	switch strings.ToUpper(positionType) {
	case string(PositionLongCall), string(PositionLongPut):
		return 1
	case string(PositionShortCall), string(PositionShortPut):
		return -1
	default:
		if quantity < 0 {
			return -1
		}
		return 1
	}
}

// Portfolio is owned by an external owner reference and owns its Positions.
type Portfolio struct {
	ID          string
	OwnerRef    string
	DisplayName string
}

// Position is a single equity or option leg within a Portfolio.
//
// Quantity is signed: negative implies short irrespective of the PositionType
// hint, but PositionType is authoritative for exposure sign (see ExposureSign).
type Position struct {
	ID          string
	PortfolioID string
	Symbol      string
	Type        PositionType
	Quantity    float64
	EntryPrice  float64
	EntryDate   string // YYYY-MM-DD

	// Option-only fields; zero-valued for stock positions.
	UnderlyingSymbol string
	Strike           float64
	ExpirationDate   string // YYYY-MM-DD
}

// NormalizedType returns the position's canonical, upper-cased type string.
func (p Position) NormalizedType() string {
	return NormalizePositionType(p.Type)
}
