package workflow

import (
	"encoding/json"
	"time"
)

// EventKind identifies the shape of an Event's payload.
type EventKind string

const (
	EventStepStarted EventKind = "step_started"
	EventStepResult  EventKind = "step_result"
	EventStepError   EventKind = "step_error"
	EventEmit        EventKind = "emit"
	EventRunTerminal EventKind = "run_terminal"
)

// Event is one ordered, immutable record within a run's log.
// Index is dense starting at 0; (run_id, index) is unique at the store.
type Event struct {
	RunID   string
	Index   int64
	Kind    EventKind
	Payload json.RawMessage
	Ts      time.Time
}

// StepStartedPayload marks the beginning of a step invocation.
type StepStartedPayload struct {
	StepID      string `json:"step_id"`
	CallOrdinal int    `json:"call_ordinal"`
}

// StepResultPayload records a step's memoized success value.
type StepResultPayload struct {
	StepID      string          `json:"step_id"`
	CallOrdinal int             `json:"call_ordinal"`
	ValueDigest string          `json:"value_digest"`
	Value       json.RawMessage `json:"value"`
}

// ErrorKind classifies a step failure for retry and propagation policy.
type ErrorKind string

const (
	ErrorKindValidation  ErrorKind = "validation"
	ErrorKindNotFound    ErrorKind = "not_found"
	ErrorKindTransient   ErrorKind = "transient"
	ErrorKindFatal       ErrorKind = "fatal"
	ErrorKindDataAnomaly ErrorKind = "data_anomaly"
)

// StepErrorPayload records a step failure, terminal for this call ordinal
// only when Retriable is false.
type StepErrorPayload struct {
	StepID      string    `json:"step_id"`
	CallOrdinal int       `json:"call_ordinal"`
	ErrorKind   ErrorKind `json:"error_kind"`
	Message     string    `json:"message"`
	Retriable   bool      `json:"retriable"`
}

// EmitPayload is a client-visible event written by a running step.
type EmitPayload struct {
	Namespace string          `json:"namespace,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// RunTerminalPayload is always the final event of a sealed run.
type RunTerminalPayload struct {
	State   RunState `json:"state"`
	Message string   `json:"message,omitempty"`
}
