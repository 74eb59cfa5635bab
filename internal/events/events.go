// Package events defines the typed event payloads the batch orchestrator
// emits as it runs, and the Reporter interface it reports them through.
// There is no HTTP/websocket layer in this module to push to directly;
// callers wire in whatever Reporter fits (structured logging, metrics,
// a downstream notification surface).
package events

// EventType identifies the kind of event carried by an EventWithData envelope.
type EventType string

const (
	EngineStarted   EventType = "engine_started"
	EngineCompleted EventType = "engine_completed"
	EngineFailed    EventType = "engine_failed"
	EngineSkipped   EventType = "engine_skipped"

	BatchStarted   EventType = "batch_started"
	BatchCompleted EventType = "batch_completed"

	SnapshotWritten EventType = "snapshot_written"

	JobStarted  EventType = "job_started"
	JobProgress EventType = "job_progress"
	JobCompleted EventType = "job_completed"
	JobFailed   EventType = "job_failed"

	ErrorOccurred EventType = "error_occurred"
)

// Reporter receives events as the orchestrator runs. Implementations may
// fan out to structured logs, metrics, or a downstream notification
// surface; the batch core itself only needs to know it can call Report.
type Reporter interface {
	Report(data EventData)
}
