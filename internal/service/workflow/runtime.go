package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	wfmodels "meridian/internal/domain/models/workflow"
	workflowrepo "meridian/internal/domain/repositories/workflow"
	domainwf "meridian/internal/domain/services/workflow"
)

func timeAfterSeconds(seconds int) <-chan time.Time {
	return time.After(time.Duration(seconds) * time.Second)
}

// CancelRegistry tracks cooperative cancel flags per run id (spec.md §5).
type CancelRegistry struct {
	mu    sync.Mutex
	flags map[string]bool
}

func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{flags: make(map[string]bool)}
}

func (r *CancelRegistry) Cancel(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[runID] = true
}

func (r *CancelRegistry) IsCancelled(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags[runID]
}

func (r *CancelRegistry) clear(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flags, runID)
}

// Runtime drives workflow.Func values to completion and supports
// crash-recovery replay (spec.md §4.3).
type Runtime struct {
	runs     workflowrepo.RunStore
	events   workflowrepo.EventStore
	executor *StepExecutor
	cancels  *CancelRegistry
	notifier *Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	catalog  map[string]domainwf.Func
	inflight map[string]context.CancelFunc
}

func NewRuntime(runs workflowrepo.RunStore, events workflowrepo.EventStore, logger *slog.Logger) *Runtime {
	return &Runtime{
		runs:     runs,
		events:   events,
		executor: NewStepExecutor(events, logger),
		cancels:  NewCancelRegistry(),
		notifier: NewNotifier(),
		logger:   logger,
		catalog:  make(map[string]domainwf.Func),
		inflight: make(map[string]context.CancelFunc),
	}
}

// Notifier exposes the runtime's wake-up signal so a Tailer constructed
// for the HTTP layer observes the same live-append notifications this
// runtime's steps emit, rather than relying solely on its poll fallback.
func (rt *Runtime) Notifier() *Notifier {
	return rt.notifier
}

// Register adds a named workflow to the catalog so crash recovery can find
// its entry point again after a restart.
func (rt *Runtime) Register(name string, fn domainwf.Func) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.catalog[name] = fn
}

// Start allocates a new run, seeds the synthetic start event, and
// schedules the workflow on a background goroutine. It returns
// immediately; callers attach a stream reader separately (spec.md §4.3
// "Start").
func (rt *Runtime) Start(ctx context.Context, workflowName string, args json.RawMessage) (string, error) {
	rt.mu.Lock()
	fn, ok := rt.catalog[workflowName]
	rt.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown workflow %q", workflowName)
	}

	runID := uuid.New().String()
	run := &wfmodels.Run{
		RunID:        runID,
		WorkflowName: workflowName,
		Args:         args,
		ArgsDigest:   digest(args),
		State:        wfmodels.RunStatePending,
	}
	if err := rt.runs.Create(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	startPayload, _ := json.Marshal(wfmodels.StepStartedPayload{StepID: "__start__", CallOrdinal: 0})
	if _, err := rt.events.Append(ctx, runID, wfmodels.EventStepStarted, startPayload); err != nil {
		return "", fmt.Errorf("seed start event: %w", err)
	}

	rt.execute(runID, workflowName, fn, args)
	return runID, nil
}

// Cancel sets the cooperative cancel flag for a run (spec.md §4.5).
func (rt *Runtime) Cancel(runID string) {
	rt.cancels.Cancel(runID)
}

// RecoverAll re-invokes the workflow function for every non-terminal run
// found at startup, relying on Step Executor memoization to skip completed
// work (spec.md §4.3 "Crash recovery").
func (rt *Runtime) RecoverAll(ctx context.Context) error {
	runs, err := rt.runs.ListNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("list non-terminal runs: %w", err)
	}
	for _, run := range runs {
		rt.mu.Lock()
		fn, ok := rt.catalog[run.WorkflowName]
		rt.mu.Unlock()
		if !ok {
			rt.logger.Error("cannot recover run: workflow not registered", "run_id", run.RunID, "workflow", run.WorkflowName)
			continue
		}
		rt.logger.Info("recovering run", "run_id", run.RunID, "workflow", run.WorkflowName)
		rt.execute(run.RunID, run.WorkflowName, fn, run.Args)
	}
	return nil
}

func (rt *Runtime) execute(runID, workflowName string, fn domainwf.Func, args json.RawMessage) {
	runCtx, cancel := context.WithCancel(context.Background())
	rt.mu.Lock()
	rt.inflight[runID] = cancel
	rt.mu.Unlock()

	if err := rt.runs.UpdateState(runCtx, runID, wfmodels.RunStateRunning); err != nil {
		rt.logger.Error("failed to mark run running", "run_id", runID, "error", err)
	}

	go func() {
		defer func() {
			rt.mu.Lock()
			delete(rt.inflight, runID)
			rt.mu.Unlock()
			rt.cancels.clear(runID)
			cancel()
		}()

		replay, emittedCount, err := rt.loadReplay(runCtx, runID)
		if err != nil {
			rt.logger.Error("failed to load replay cache", "run_id", runID, "error", err)
			rt.seal(runCtx, runID, wfmodels.RunStateFailed, err.Error())
			return
		}

		rctx := newRuntimeContext(runCtx, runID, rt.executor, rt.cancels, replay, emittedCount)
		result, runErr := fn(rctx, args)
		rt.notifier.Notify(runID)

		if runErr != nil {
			if runErr == ErrCancelled {
				rt.seal(runCtx, runID, wfmodels.RunStateCancelled, "")
				return
			}
			rt.logger.Error("workflow failed", "run_id", runID, "workflow", workflowName, "error", runErr)
			rt.seal(runCtx, runID, wfmodels.RunStateFailed, runErr.Error())
			return
		}

		_ = result
		rt.seal(runCtx, runID, wfmodels.RunStateCompleted, "")
	}()
}

func (rt *Runtime) seal(ctx context.Context, runID string, state wfmodels.RunState, message string) {
	payload, _ := json.Marshal(wfmodels.RunTerminalPayload{State: state, Message: message})
	if _, err := rt.events.Append(ctx, runID, wfmodels.EventRunTerminal, payload); err != nil {
		rt.logger.Error("failed to append run_terminal", "run_id", runID, "error", err)
	}
	if err := rt.runs.UpdateState(ctx, runID, state); err != nil {
		rt.logger.Error("failed to update run state", "run_id", runID, "error", err)
	}
	rt.notifier.Notify(runID)
}

// loadReplay scans the full event history of a run and builds the
// (step_id, call_ordinal) -> StepRecord memoization cache (spec.md §4.2),
// alongside a count of emit events already durably recorded so replayed
// Emit calls at those ordinals can be suppressed rather than reissued.
func (rt *Runtime) loadReplay(ctx context.Context, runID string) (map[string]*wfmodels.StepRecord, int, error) {
	events, err := rt.events.ListFrom(ctx, runID, 0)
	if err != nil {
		return nil, 0, err
	}
	cache := make(map[string]*wfmodels.StepRecord)
	emittedCount := 0
	for _, ev := range events {
		switch ev.Kind {
		case wfmodels.EventStepResult:
			var p wfmodels.StepResultPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				continue
			}
			cache[recordKey(p.StepID, p.CallOrdinal)] = &wfmodels.StepRecord{StepID: p.StepID, CallOrdinal: p.CallOrdinal, Result: p.Value}
		case wfmodels.EventStepError:
			var p wfmodels.StepErrorPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				continue
			}
			if !p.Retriable {
				cache[recordKey(p.StepID, p.CallOrdinal)] = &wfmodels.StepRecord{StepID: p.StepID, CallOrdinal: p.CallOrdinal, Err: &p}
			}
		case wfmodels.EventEmit:
			emittedCount++
		}
	}
	return cache, emittedCount, nil
}
