package workflow

import (
	"context"
	"encoding/json"
	"time"

	wfmodels "meridian/internal/domain/models/workflow"
	workflowrepo "meridian/internal/domain/repositories/workflow"
)

// Tailer implements the Event Log's multi-reader, replay-capable read
// operation (spec.md §4.1): historical events first, then live ones,
// without duplicates or gaps across the boundary, filtered to a namespace
// when one is given.
type Tailer struct {
	events       workflowrepo.EventStore
	notifier     *Notifier
	pollInterval time.Duration
}

func NewTailer(events workflowrepo.EventStore, notifier *Notifier) *Tailer {
	return &Tailer{events: events, notifier: notifier, pollInterval: 2 * time.Second}
}

// Tail streams events for runID starting at startIndex. The channel closes
// after the reader observes run_terminal, or when ctx is cancelled.
func (t *Tailer) Tail(ctx context.Context, runID string, startIndex int64, namespace string) <-chan wfmodels.Event {
	out := make(chan wfmodels.Event, 16)
	wake, unsubscribe := t.notifier.Subscribe(runID)

	go func() {
		defer close(out)
		defer unsubscribe()

		next := startIndex
		ticker := time.NewTicker(t.pollInterval)
		defer ticker.Stop()

		for {
			events, err := t.events.ListFrom(ctx, runID, next)
			if err != nil {
				return
			}
			for _, ev := range events {
				next = ev.Index + 1
				if namespace != "" && ev.Kind == wfmodels.EventEmit && !matchesNamespace(ev.Payload, namespace) {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Kind == wfmodels.EventRunTerminal {
					return
				}
			}

			select {
			case <-wake:
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func matchesNamespace(payload json.RawMessage, namespace string) bool {
	var p wfmodels.EmitPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return false
	}
	return p.Namespace == namespace
}
