// Package workflow declares the storage ports the workflow runtime depends
// on. Implementations live in internal/repository/postgres/workflow.
package workflow

import (
	"context"
	"encoding/json"

	wf "meridian/internal/domain/models/workflow"
)

// RunStore persists Run rows: allocation, state transitions, lookup.
type RunStore interface {
	// Create inserts a new pending run.
	Create(ctx context.Context, run *wf.Run) error
	// Get returns a run by id, or domain.ErrNotFound.
	Get(ctx context.Context, runID string) (*wf.Run, error)
	// UpdateState transitions a run's state. Callers must not attempt to
	// leave a terminal state; the store does not itself enforce this.
	UpdateState(ctx context.Context, runID string, state wf.RunState) error
	// ListNonTerminal returns every run not yet in a terminal state, used
	// by the runtime's crash-recovery sweep on startup.
	ListNonTerminal(ctx context.Context) ([]*wf.Run, error)
}

// EventStore is the append-only per-run event log.
type EventStore interface {
	// Append assigns the next dense index for runID and persists the
	// event. Returns domain.ErrRunTerminal if the run is sealed.
	Append(ctx context.Context, runID string, kind wf.EventKind, payload json.RawMessage) (wf.Event, error)
	// ListFrom returns events with index >= fromIndex, ordered ascending.
	ListFrom(ctx context.Context, runID string, fromIndex int64) ([]wf.Event, error)
	// Head returns the current highest index for a run, or -1 if empty.
	Head(ctx context.Context, runID string) (int64, error)
}
