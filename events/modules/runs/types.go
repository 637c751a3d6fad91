// Package runs defines the Kafka event contracts for requesting coverage
// runs and announcing their outcome.
package runs

import (
	"time"

	"github.com/openaire-nl/nl-stats/model"
)

// Topics and event types
const (
	TopicRunRequested = "coverage-run-requested"
	TopicRunCompleted = "coverage-run-completed"

	EventTypeRunRequested = "coverage.run.requested"
	EventTypeRunCompleted = "coverage.run.completed"

	SchemaVersion = "v1"
)

// RunRequestedEvent asks a worker to execute a coverage run.
type RunRequestedEvent struct {
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EventTime     time.Time `json:"event_time"`
	SchemaVersion string    `json:"schema_version"`

	Request model.RunRequest `json:"request"`
}

// RunCompletedEvent reports the outcome of a requested run. Run is nil when
// the run failed before processing started, e.g. on a token failure.
type RunCompletedEvent struct {
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EventTime     time.Time `json:"event_time"`
	SchemaVersion string    `json:"schema_version"`

	RequestID string     `json:"request_id"`
	Run       *model.Run `json:"run,omitempty"`
	Error     string     `json:"error,omitempty"`
}
