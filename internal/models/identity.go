// Package models defines the core entities of the risk engine's data model:
// Portfolio, Position, MarketDataPoint, and the per-engine calculation-result
// rows (PositionGreeks, PositionFactorExposure, StressTestResult,
// CorrelationCalculation, PortfolioSnapshot, BatchJob).
package models

import (
	"strings"

	"github.com/google/uuid"
)

// EnsureID normalizes an identifier at an engine boundary. Callers may pass a
// canonical UUID string, a uuid.UUID rendered via String(), or any other
// opaque string identifier minted upstream (e.g. by the position-entry
// layer); all are accepted and compared as plain strings internally.
//
// A value that parses as a UUID is re-rendered through uuid.UUID.String() so
// that case and hyphenation are canonical; anything else passes through
// trimmed of surrounding whitespace.
func EnsureID(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if parsed, err := uuid.Parse(trimmed); err == nil {
		return parsed.String()
	}
	return trimmed
}

// NewID mints a fresh opaque identifier for new rows (BatchJob, etc).
func NewID() string {
	return uuid.NewString()
}
