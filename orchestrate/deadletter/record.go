package deadletter

import (
	"maps"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
)

// Metadata keys the pipeline sets on records.
const (
	MetaStage         = "stage"
	MetaSource        = "source"
	MetaCorrelationID = "correlationId"
	MetaRecoverable   = "recoverable"
	MetaReplayedFrom  = "replayedFrom"
	MetaReplayCount   = "replayCount"
)

// Record is one permanently failed call. Message is stored exactly as it was given
// to the processor.
type Record struct {
	ID        string         `json:"id"`
	Message   any            `json:"message"`
	Error     string         `json:"error"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func newRecord(message any, err error, metadata map[string]any) Record {
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	return Record{
		ID:       ulid.Make().String(),
		Message:  message,
		Error:    msg,
		Metadata: maps.Clone(metadata),
	}
}

// Stage returns the stage tag, or "unknown".
func (r Record) Stage() string {
	if stage, ok := r.Metadata[MetaStage].(string); ok && stage != "" {
		return stage
	}
	return "unknown"
}

// Envelope returns the message as a bus envelope, decoding stored JSON if needed.
func (r Record) Envelope() (*messaging.Message, error) {
	return messaging.FromRecord(r.Message)
}

// Recoverable reports whether the failure was flagged as worth retrying.
func (r Record) Recoverable() bool {
	recoverable, _ := r.Metadata[MetaRecoverable].(bool)
	return recoverable
}

func (r Record) replayCount() int {
	switch n := r.Metadata[MetaReplayCount].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
