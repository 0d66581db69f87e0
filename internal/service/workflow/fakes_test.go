package workflow

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"meridian/internal/domain"
	wfmodels "meridian/internal/domain/models/workflow"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunStore/fakeEventStore are in-memory implementations of
// workflowrepo.RunStore/EventStore, same shape as the ones duplicated
// across internal/service/video/workflows and internal/handler — this
// package gets its own copy for the same reason: both are unexported
// test types private to their package.
type fakeRunStore struct {
	mu   sync.Mutex
	runs map[string]*wfmodels.Run
}

func newFakeRunStore() *fakeRunStore { return &fakeRunStore{runs: make(map[string]*wfmodels.Run)} }

func (f *fakeRunStore) Create(ctx context.Context, run *wfmodels.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.runs[run.RunID] = &cp
	return nil
}

func (f *fakeRunStore) Get(ctx context.Context, runID string) (*wfmodels.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (f *fakeRunStore) UpdateState(ctx context.Context, runID string, state wfmodels.RunState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return domain.ErrNotFound
	}
	run.State = state
	return nil
}

func (f *fakeRunStore) ListNonTerminal(ctx context.Context) ([]*wfmodels.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*wfmodels.Run
	for _, run := range f.runs {
		if !run.State.Terminal() {
			cp := *run
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRunStore) state(runID string) wfmodels.RunState {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return ""
	}
	return run.State
}

type fakeEventStore struct {
	mu     sync.Mutex
	events map[string][]wfmodels.Event
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[string][]wfmodels.Event)}
}

func (f *fakeEventStore) Append(ctx context.Context, runID string, kind wfmodels.EventKind, payload json.RawMessage) (wfmodels.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	index := int64(len(f.events[runID]))
	ev := wfmodels.Event{RunID: runID, Index: index, Kind: kind, Payload: payload, Ts: time.Now()}
	f.events[runID] = append(f.events[runID], ev)
	return ev, nil
}

func (f *fakeEventStore) ListFrom(ctx context.Context, runID string, fromIndex int64) ([]wfmodels.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wfmodels.Event
	for _, ev := range f.events[runID] {
		if ev.Index >= fromIndex {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEventStore) Head(ctx context.Context, runID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.events[runID])) - 1, nil
}

func (f *fakeEventStore) count(runID string, kind wfmodels.EventKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events[runID] {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func waitForTerminal(t interface {
	Helper()
	Fatalf(format string, args ...interface{})
}, runs *fakeRunStore, runID string) wfmodels.RunState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if state := runs.state(runID); state.Terminal() {
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach a terminal state in time", runID)
	return ""
}
