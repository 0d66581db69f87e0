package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	wfmodels "meridian/internal/domain/models/workflow"
	domainwf "meridian/internal/domain/services/workflow"
)

func recordKey(stepID string, ordinal int) string {
	return fmt.Sprintf("%s#%d", stepID, ordinal)
}

// runtimeContext is the concrete Runner implementation passed to workflow
// functions. It owns the per-run replay cache and call-ordinal counters,
// and delegates the per-step contract to StepExecutor.
type runtimeContext struct {
	ctx      context.Context
	runID    string
	executor *StepExecutor
	cancels  *CancelRegistry

	mu       sync.Mutex
	replay   map[string]*wfmodels.StepRecord
	counters map[string]int

	// emittedCount is how many emit events this run's log already holds
	// from a prior attempt; emitCounter is this attempt's own running
	// count. Emit calls at ordinals below emittedCount were already
	// durably recorded before a crash and must not be reissued on replay
	// (spec.md §4.2), mirroring the ordinal-gated memoization Step already
	// gets from the replay cache.
	emittedCount int
	emitCounter  int
}

var _ domainwf.Runner = (*runtimeContext)(nil)

func newRuntimeContext(ctx context.Context, runID string, executor *StepExecutor, cancels *CancelRegistry, replay map[string]*wfmodels.StepRecord, emittedCount int) *runtimeContext {
	return &runtimeContext{
		ctx:          ctx,
		runID:        runID,
		executor:     executor,
		cancels:      cancels,
		replay:       replay,
		counters:     make(map[string]int),
		emittedCount: emittedCount,
	}
}

func (c *runtimeContext) Context() context.Context { return c.ctx }

func (c *runtimeContext) Cancelled() bool {
	return c.cancels.IsCancelled(c.runID)
}

func (c *runtimeContext) nextOrdinal(stepID string) (int, *wfmodels.StepRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ordinal := c.counters[stepID]
	c.counters[stepID] = ordinal + 1
	return ordinal, c.replay[recordKey(stepID, ordinal)]
}

func (c *runtimeContext) Step(stepID string, policy domainwf.RetryPolicy, body func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	ordinal, replayed := c.nextOrdinal(stepID)
	return c.executor.Execute(c.ctx, c.runID, stepID, ordinal, policy, replayed, c.Cancelled(), body)
}

func (c *runtimeContext) Emit(namespace string, payload json.RawMessage) error {
	c.mu.Lock()
	ordinal := c.emitCounter
	c.emitCounter++
	alreadyEmitted := ordinal < c.emittedCount
	c.mu.Unlock()

	if alreadyEmitted {
		return nil
	}

	envelope, err := json.Marshal(wfmodels.EmitPayload{Namespace: namespace, Data: payload})
	if err != nil {
		return err
	}
	_, err = c.executor.events.Append(c.ctx, c.runID, wfmodels.EventEmit, envelope)
	return err
}

func (c *runtimeContext) Sleep(stepID string, seconds int) error {
	_, err := c.Step(stepID, domainwf.NoRetryPolicy(), func(ctx context.Context) (json.RawMessage, error) {
		timer := timeAfterSeconds(seconds)
		select {
		case <-timer:
			return json.RawMessage(`true`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	return err
}
