package workflow

import (
	"context"
	"encoding/json"
)

// Runner is the handle a workflow function and its steps receive. It is
// the only way a workflow observes the outside world; per spec.md §9 this
// replaces the source's "use workflow"/"use step" pragmas with an explicit
// API rather than compile-time magic.
//
// Implementations live in internal/service/workflow, wired to the Step
// Executor and Event Log.
type Runner interface {
	// Context returns the ambient context for cancellation/deadlines.
	Context() context.Context

	// Step executes body under the given step id with memoization keyed
	// by (step_id, call_ordinal) where call_ordinal is the zero-based
	// occurrence count of this id within the run. body's return value
	// must be JSON-serializable.
	Step(stepID string, policy RetryPolicy, body func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, error)

	// Emit appends a client-visible event to the run's log. Namespace may
	// be empty. Emission is part of the enclosing step's memoized effect:
	// on replay it is not reissued.
	Emit(namespace string, payload json.RawMessage) error

	// Cancelled reports whether a cooperative cancel has been requested.
	// The Step Executor checks this before running each step.
	Cancelled() bool

	// Sleep suspends the workflow for a bounded step-like duration. Unlike
	// Step it is not memoized by value but still recorded as a step for
	// crash-recovery accounting, so it must not be reissued after replay
	// has already passed it.
	Sleep(stepID string, seconds int) error
}

// Func is a workflow's entry point: it receives a Runner and raw JSON args
// and returns raw JSON results (or a terminal error). spec.md §4.3.
type Func func(r Runner, args json.RawMessage) (json.RawMessage, error)

// Definition names a workflow and its entry point for the catalog
// (spec.md §2.6 "Workflow Catalog").
type Definition struct {
	Name string
	Run  Func
}

// StepT is a generic convenience wrapper around Runner.Step for callers
// with a typed return value, handling JSON marshal/unmarshal so step
// bodies can work with Go types directly.
func StepT[T any](r Runner, stepID string, policy RetryPolicy, body func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	raw, err := r.Step(stepID, policy, func(ctx context.Context) (json.RawMessage, error) {
		v, err := body(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// EmitT marshals payload and emits it under namespace.
func EmitT(r Runner, namespace string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.Emit(namespace, raw)
}
