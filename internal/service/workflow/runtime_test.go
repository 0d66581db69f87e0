package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	wfmodels "meridian/internal/domain/models/workflow"
	domainwf "meridian/internal/domain/services/workflow"
)

func TestRuntime_CompletesSimpleWorkflow(t *testing.T) {
	runs := newFakeRunStore()
	events := newFakeEventStore()
	rt := NewRuntime(runs, events, discardLogger())

	fn := func(r domainwf.Runner, rawArgs json.RawMessage) (json.RawMessage, error) {
		a, err := domainwf.StepT(r, "a", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (int, error) {
			return 1, nil
		})
		if err != nil {
			return nil, err
		}
		_ = r.Emit("", json.RawMessage(`{"n":1}`))
		return json.Marshal(map[string]int{"a": a})
	}
	rt.Register("simple", fn)

	runID, err := rt.Start(context.Background(), "simple", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if state := waitForTerminal(t, runs, runID); state != wfmodels.RunStateCompleted {
		t.Fatalf("expected run to complete, got %s", state)
	}
	if n := events.count(runID, wfmodels.EventEmit); n != 1 {
		t.Errorf("expected exactly one emit event, got %d", n)
	}
	if n := events.count(runID, wfmodels.EventRunTerminal); n != 1 {
		t.Errorf("expected exactly one run_terminal event, got %d", n)
	}
}

func TestRuntime_FatalStepFailsRunWithoutRetry(t *testing.T) {
	runs := newFakeRunStore()
	events := newFakeEventStore()
	rt := NewRuntime(runs, events, discardLogger())

	var calls int
	var mu sync.Mutex
	fn := func(r domainwf.Runner, rawArgs json.RawMessage) (json.RawMessage, error) {
		_, err := domainwf.StepT(r, "doomed", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (int, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return 0, domainwf.AsValidation(errors.New("bad input"))
		})
		return nil, err
	}
	rt.Register("doomed_workflow", fn)

	runID, err := rt.Start(context.Background(), "doomed_workflow", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state := waitForTerminal(t, runs, runID); state != wfmodels.RunStateFailed {
		t.Fatalf("expected run to fail, got %s", state)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("expected a validation failure to be attempted exactly once (no retry), got %d calls", calls)
	}
}

// TestRuntime_CrashRecovery_ReplaysStepsAndSuppressesDuplicateEmits seeds a
// run's event log as if a prior attempt crashed after completing step "a"
// and appending its first emit, then re-executes the same workflow
// function against that history. It asserts step "a" is not re-run
// (memoization) and that the emit already recorded is not reissued
// (regression test for the Emit replay-duplication bug, spec.md §4.2
// testable property 5).
func TestRuntime_CrashRecovery_ReplaysStepsAndSuppressesDuplicateEmits(t *testing.T) {
	runs := newFakeRunStore()
	events := newFakeEventStore()
	ctx := context.Background()
	runID := "run-crash-1"

	args := json.RawMessage(`{}`)
	if err := runs.Create(ctx, &wfmodels.Run{RunID: runID, WorkflowName: "crashy", Args: args, State: wfmodels.RunStateRunning}); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	seed := func(kind wfmodels.EventKind, payload json.RawMessage) {
		if _, err := events.Append(ctx, runID, kind, payload); err != nil {
			t.Fatalf("seed event: %v", err)
		}
	}

	startPayload, _ := json.Marshal(wfmodels.StepStartedPayload{StepID: "__start__", CallOrdinal: 0})
	seed(wfmodels.EventStepStarted, startPayload)

	aStarted, _ := json.Marshal(wfmodels.StepStartedPayload{StepID: "a", CallOrdinal: 0})
	seed(wfmodels.EventStepStarted, aStarted)

	aValue, _ := json.Marshal(42)
	aResult, _ := json.Marshal(wfmodels.StepResultPayload{StepID: "a", CallOrdinal: 0, ValueDigest: digest(aValue), Value: aValue})
	seed(wfmodels.EventStepResult, aResult)

	firstEmit, _ := json.Marshal(wfmodels.EmitPayload{Data: json.RawMessage(`{"n":1}`)})
	seed(wfmodels.EventEmit, firstEmit)

	var mu sync.Mutex
	var stepACalls, stepBCalls int
	fn := func(r domainwf.Runner, rawArgs json.RawMessage) (json.RawMessage, error) {
		a, err := domainwf.StepT(r, "a", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (int, error) {
			mu.Lock()
			stepACalls++
			mu.Unlock()
			return 42, nil
		})
		if err != nil {
			return nil, err
		}
		if err := r.Emit("", json.RawMessage(`{"n":1}`)); err != nil {
			return nil, err
		}
		if err := r.Emit("", json.RawMessage(`{"n":2}`)); err != nil {
			return nil, err
		}
		b, err := domainwf.StepT(r, "b", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (int, error) {
			mu.Lock()
			stepBCalls++
			mu.Unlock()
			return a + 1, nil
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int{"b": b})
	}

	rt := NewRuntime(runs, events, discardLogger())
	rt.Register("crashy", fn)
	rt.execute(runID, "crashy", fn, args)

	if state := waitForTerminal(t, runs, runID); state != wfmodels.RunStateCompleted {
		t.Fatalf("expected recovered run to complete, got %s", state)
	}

	mu.Lock()
	defer mu.Unlock()
	if stepACalls != 0 {
		t.Errorf("expected step 'a' to be replayed from the log, not re-run; got %d calls", stepACalls)
	}
	if stepBCalls != 1 {
		t.Errorf("expected step 'b' (never recorded before the crash) to run exactly once, got %d calls", stepBCalls)
	}

	if n := events.count(runID, wfmodels.EventEmit); n != 2 {
		t.Fatalf("expected exactly 2 emit events total (1 pre-seeded + 1 new), got %d", n)
	}

	all, _ := events.ListFrom(ctx, runID, 0)
	var emitPayloads []string
	for _, ev := range all {
		if ev.Kind != wfmodels.EventEmit {
			continue
		}
		var p wfmodels.EmitPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			t.Fatalf("unmarshal emit: %v", err)
		}
		emitPayloads = append(emitPayloads, string(p.Data))
	}
	if len(emitPayloads) != 2 || emitPayloads[0] != `{"n":1}` || emitPayloads[1] != `{"n":2}` {
		t.Errorf("expected emits [{\"n\":1} {\"n\":2}], got %v", emitPayloads)
	}
}

func TestRuntime_RecoverAll_ResumesNonTerminalRuns(t *testing.T) {
	runs := newFakeRunStore()
	events := newFakeEventStore()
	ctx := context.Background()
	runID := "run-recover-1"
	args := json.RawMessage(`{}`)

	if err := runs.Create(ctx, &wfmodels.Run{RunID: runID, WorkflowName: "resumable", Args: args, State: wfmodels.RunStateRunning}); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	startPayload, _ := json.Marshal(wfmodels.StepStartedPayload{StepID: "__start__", CallOrdinal: 0})
	if _, err := events.Append(ctx, runID, wfmodels.EventStepStarted, startPayload); err != nil {
		t.Fatalf("seed start event: %v", err)
	}

	rt := NewRuntime(runs, events, discardLogger())
	fn := func(r domainwf.Runner, rawArgs json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(map[string]bool{"ok": true})
	}
	rt.Register("resumable", fn)

	if err := rt.RecoverAll(ctx); err != nil {
		t.Fatalf("recover all: %v", err)
	}
	if state := waitForTerminal(t, runs, runID); state != wfmodels.RunStateCompleted {
		t.Fatalf("expected recovered run to complete, got %s", state)
	}
}
