package router

import "time"

// Result status values. Timeouts are normal outcomes, not gateway errors.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusTimeout = "timeout"
)

// Command is the payload pushed to an executor over its cluster channel. It
// lives only in transit and in a short-TTL tracking entry; it is never
// persisted after result delivery.
type Command struct {
	ID             string   `json:"id"`
	ClusterID      string   `json:"cluster_id"`
	Args           []string `json:"args"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	CorrelationID  string   `json:"correlation_id,omitempty"`
}

// Result is what an executor reports back for one command. An executor-side
// failure (command ran but errored) is a normal result with status "failure",
// not a gateway error.
type Result struct {
	CommandID       string     `json:"command_id"`
	Status          string     `json:"status"`
	Output          string     `json:"output,omitempty"`
	Error           string     `json:"error,omitempty"`
	ExecutionTimeMs int64      `json:"execution_time_ms,omitempty"`
	ExecutedAt      *time.Time `json:"executed_at,omitempty"`
}

// tracking is the correlation entry written under command_tracking/<id> while
// a command is in flight.
type tracking struct {
	ClusterID string    `json:"cluster_id"`
	QueuedAt  time.Time `json:"queued_at"`
}
