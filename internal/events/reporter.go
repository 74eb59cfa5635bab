package events

import "github.com/rs/zerolog"

// LogReporter is the default Reporter: it writes every event through
// zerolog at a level appropriate to its kind, matching the project's
// logging conventions rather than standing up a separate event sink.
type LogReporter struct {
	log zerolog.Logger
}

// NewLogReporter creates a Reporter that logs events via log.
func NewLogReporter(log zerolog.Logger) *LogReporter {
	return &LogReporter{log: log.With().Str("component", "events").Logger()}
}

// Report logs data at a level derived from its EventType.
func (r *LogReporter) Report(data EventData) {
	switch d := data.(type) {
	case *EngineStartedData:
		r.log.Debug().Str("portfolio_id", d.PortfolioID).Str("engine", d.Engine).Str("date", d.CalculationDate).Msg("engine started")
	case *EngineCompletedData:
		r.log.Debug().Str("portfolio_id", d.PortfolioID).Str("engine", d.Engine).Float64("duration_seconds", d.DurationSeconds).Msg("engine completed")
	case *EngineFailedData:
		r.log.Warn().Str("portfolio_id", d.PortfolioID).Str("engine", d.Engine).Str("classification", d.Classification).Str("error", d.Error).Msg("engine failed")
	case *EngineSkippedData:
		r.log.Debug().Str("portfolio_id", d.PortfolioID).Str("engine", d.Engine).Str("reason", d.Reason).Msg("engine skipped")
	case *BatchStartedData:
		r.log.Info().Str("date", d.CalculationDate).Int("portfolio_count", d.PortfolioCount).Msg("batch started")
	case *BatchCompletedData:
		r.log.Info().Str("date", d.CalculationDate).Int("completed", d.Completed).Int("failed", d.Failed).
			Int("skipped", d.Skipped).Float64("duration_seconds", d.DurationSeconds).Msg("batch completed")
	case *SnapshotWrittenData:
		r.log.Info().Str("portfolio_id", d.PortfolioID).Str("date", d.CalculationDate).
			Float64("total_value", d.TotalValue).Float64("daily_pnl", d.DailyPnL).Msg("snapshot written")
	case *ErrorEventData:
		r.log.Error().Str("error", d.Error).Interface("context", d.Context).Msg("error occurred")
	default:
		r.log.Debug().Str("event_type", string(data.EventType())).Msg("event reported")
	}
}
