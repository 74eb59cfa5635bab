package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement.
type EventData interface {
	EventType() EventType
}

// EngineStartedData marks the start of a single engine invocation for a portfolio.
type EngineStartedData struct {
	PortfolioID     string `json:"portfolio_id"`
	Engine          string `json:"engine"`
	CalculationDate string `json:"calculation_date"`
}

func (d *EngineStartedData) EventType() EventType { return EngineStarted }

// EngineCompletedData reports a successful engine run.
type EngineCompletedData struct {
	PortfolioID     string   `json:"portfolio_id"`
	Engine          string   `json:"engine"`
	CalculationDate string   `json:"calculation_date"`
	DurationSeconds float64  `json:"duration_seconds"`
	RetryCount      int      `json:"retry_count,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

func (d *EngineCompletedData) EventType() EventType { return EngineCompleted }

// EngineFailedData reports a permanent engine failure (after exhausting retries, if transient).
type EngineFailedData struct {
	PortfolioID     string  `json:"portfolio_id"`
	Engine          string  `json:"engine"`
	CalculationDate string  `json:"calculation_date"`
	Error           string  `json:"error"`
	Classification  string  `json:"classification"` // "transient" or "permanent"
	RetryCount      int     `json:"retry_count,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (d *EngineFailedData) EventType() EventType { return EngineFailed }

// EngineSkippedData reports an engine deliberately not run (e.g. non-trading day, off-schedule week).
type EngineSkippedData struct {
	PortfolioID     string `json:"portfolio_id"`
	Engine          string `json:"engine"`
	CalculationDate string `json:"calculation_date"`
	Reason          string `json:"reason"`
}

func (d *EngineSkippedData) EventType() EventType { return EngineSkipped }

// BatchStartedData marks the start of a daily batch run across portfolios.
type BatchStartedData struct {
	CalculationDate string `json:"calculation_date"`
	PortfolioCount  int    `json:"portfolio_count"`
}

func (d *BatchStartedData) EventType() EventType { return BatchStarted }

// BatchCompletedData summarizes a completed daily batch run.
type BatchCompletedData struct {
	CalculationDate string  `json:"calculation_date"`
	Completed       int     `json:"completed"`
	Failed          int     `json:"failed"`
	Skipped         int     `json:"skipped"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (d *BatchCompletedData) EventType() EventType { return BatchCompleted }

// SnapshotWrittenData reports a PortfolioSnapshot upsert.
type SnapshotWrittenData struct {
	PortfolioID     string  `json:"portfolio_id"`
	CalculationDate string  `json:"calculation_date"`
	TotalValue      float64 `json:"total_value"`
	DailyPnL        float64 `json:"daily_pnl"`
}

func (d *SnapshotWrittenData) EventType() EventType { return SnapshotWritten }

// ErrorEventData carries an unstructured error surfaced outside a specific engine's JobResult.
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (d *ErrorEventData) EventType() EventType { return ErrorOccurred }

// JobProgressInfo carries progress information for a long-running job (e.g. a portfolio sweep).
type JobProgressInfo struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`

	// Phase identifies the current high-level operation (e.g. "greeks", "correlation").
	Phase string `json:"phase,omitempty"`

	// SubPhase identifies a specific sub-operation within a phase (e.g. a portfolio ID).
	SubPhase string `json:"sub_phase,omitempty"`

	// Details carries arbitrary key-value metrics for the current phase.
	Details map[string]interface{} `json:"details,omitempty"`
}

// JobStatusData contains data for batch-job lifecycle events.
type JobStatusData struct {
	JobID       string                 `json:"job_id"`
	JobType     string                 `json:"job_type"`
	Status      string                 `json:"status"` // "started", "progress", "completed", "failed"
	Description string                 `json:"description"`
	Progress    *JobProgressInfo       `json:"progress,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Duration    float64                `json:"duration,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// EventType returns the event type for JobStatusData. The actual event type
// is determined by the Status field.
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "started":
		return JobStarted
	case "progress":
		return JobProgress
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	default:
		return JobStarted
	}
}

// EventWithData represents an event with typed data.
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for EventWithData.
func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for EventWithData.
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) > 0 {
		var eventData EventData
		switch aux.Type {
		case EngineStarted:
			eventData = &EngineStartedData{}
		case EngineCompleted:
			eventData = &EngineCompletedData{}
		case EngineFailed:
			eventData = &EngineFailedData{}
		case EngineSkipped:
			eventData = &EngineSkippedData{}
		case BatchStarted:
			eventData = &BatchStartedData{}
		case BatchCompleted:
			eventData = &BatchCompletedData{}
		case SnapshotWritten:
			eventData = &SnapshotWrittenData{}
		case ErrorOccurred:
			eventData = &ErrorEventData{}
		case JobStarted, JobProgress, JobCompleted, JobFailed:
			eventData = &JobStatusData{}
		default:
			var rawData map[string]interface{}
			if err := json.Unmarshal(aux.Data, &rawData); err != nil {
				return err
			}
			eventData = &GenericEventData{Data: rawData}
		}

		if err := json.Unmarshal(aux.Data, eventData); err != nil {
			return err
		}
		e.Data = eventData
	}

	return nil
}

// GenericEventData is a fallback for events that don't have a specific type.
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

func (d *GenericEventData) EventType() EventType { return d.Type }

func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
