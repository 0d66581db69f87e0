// Package coordinator implements the Run Registry & Coordinator
// (spec.md §4.4): it maps resource-level requests onto engine runs,
// enforces at-most-one-active-run per resource, and serves cached results
// directly without starting a run.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"meridian/internal/domain"
	vm "meridian/internal/domain/models/video"
	wfmodels "meridian/internal/domain/models/workflow"
	workflowrepo "meridian/internal/domain/repositories/workflow"
	videorepo "meridian/internal/domain/repositories/video"
	wfsvc "meridian/internal/service/workflow"
)

// Outcome is the result of dispatching a resource-bound workflow request.
type Outcome struct {
	// Cached is set when a completed result already exists; no run is
	// started or attached.
	Cached *vm.VersionedRun
	// RunID/Version are set when the caller should attach to (or just
	// started) a streaming engine run.
	RunID   string
	Version int
	// Started reports whether this call started the run (true) or
	// attached to one already in flight (false).
	Started bool
}

// Coordinator wires the Workflow Runtime to the versioned-resource and
// slide-extraction storage ports.
type Coordinator struct {
	runtime         *wfsvc.Runtime
	runs            workflowrepo.RunStore
	versioned       videorepo.VersionedRunRepository
	slideExtraction videorepo.SlideExtractionRepository
	logger          *slog.Logger

	claimPollInterval time.Duration
	claimTimeout      time.Duration
	raceRetries       int
}

func New(runtime *wfsvc.Runtime, runs workflowrepo.RunStore, versioned videorepo.VersionedRunRepository, slideExtraction videorepo.SlideExtractionRepository, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		runtime:           runtime,
		runs:              runs,
		versioned:         versioned,
		slideExtraction:   slideExtraction,
		logger:            logger,
		claimPollInterval: 200 * time.Millisecond,
		claimTimeout:      5 * time.Second,
		raceRetries:       5,
	}
}

var errAnomaly = errors.New("coordinator: versioned run anomaly")

// Dispatch implements spec.md §4.4's three-step algorithm for a
// resource-bound workflow (dynamic analysis, super analysis).
func (c *Coordinator) Dispatch(ctx context.Context, resourceID string, kind vm.ResourceKind, workflowName string, args json.RawMessage, additionalInstructions string) (*Outcome, error) {
	for attempt := 0; attempt < c.raceRetries; attempt++ {
		outcome, retry, err := c.tryDispatch(ctx, resourceID, kind, workflowName, args, additionalInstructions)
		if err != nil {
			return nil, err
		}
		if !retry {
			return outcome, nil
		}
	}
	return nil, fmt.Errorf("dispatch %s/%s: exhausted race retries", resourceID, kind)
}

func (c *Coordinator) tryDispatch(ctx context.Context, resourceID string, kind vm.ResourceKind, workflowName string, args json.RawMessage, additionalInstructions string) (*Outcome, bool, error) {
	// Step 1: a completed result already exists.
	if completed, err := c.versioned.GetLatestCompleted(ctx, resourceID, kind); err != nil {
		return nil, false, fmt.Errorf("get latest completed: %w", err)
	} else if completed != nil {
		return &Outcome{Cached: completed}, false, nil
	}

	// Step 2: an in-flight streaming row exists.
	streaming, err := c.versioned.GetStreaming(ctx, resourceID, kind)
	if err != nil {
		return nil, false, fmt.Errorf("get streaming: %w", err)
	}
	if streaming != nil && streaming.Status == vm.VersionedRunCompleted {
		// GetStreaming self-healed a row whose result was already
		// persisted (spec.md §3(c)); serve it like a step-1 cache hit.
		return &Outcome{Cached: streaming}, false, nil
	}
	if streaming != nil {
		if streaming.WorkflowRunID == "" {
			// Another caller has reserved the slot but not yet recorded the
			// engine run id; brief the caller to retry.
			return nil, true, nil
		}
		outcome, err := c.attachOrHeal(ctx, streaming)
		if err != nil {
			if errors.Is(err, errAnomaly) {
				return nil, false, fmt.Errorf("versioned run for %s entered an inconsistent state: %w", resourceID, err)
			}
			return nil, false, err
		}
		return outcome, false, nil
	}

	// Step 3: start a new run, racing other callers via the partial
	// unique index on (resource_id, resource_kind) WHERE status='streaming'.
	row := &vm.VersionedRun{
		ResourceID:             resourceID,
		ResourceKind:           kind,
		Status:                 vm.VersionedRunStreaming,
		AdditionalInstructions: additionalInstructions,
	}
	if err := c.versioned.Create(ctx, row); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, true, nil // lost the race; retry from step 1
		}
		return nil, false, fmt.Errorf("create versioned run: %w", err)
	}

	runID, err := c.runtime.Start(ctx, workflowName, args)
	if err != nil {
		_ = c.versioned.Fail(ctx, resourceID, kind, row.Version)
		return nil, false, fmt.Errorf("start run: %w", err)
	}
	if err := c.versioned.SetWorkflowRunID(ctx, resourceID, kind, row.Version, runID); err != nil {
		return nil, false, fmt.Errorf("set workflow run id: %w", err)
	}

	return &Outcome{RunID: runID, Version: row.Version, Started: true}, false, nil
}

// attachOrHeal inspects the engine run behind a streaming versioned_run
// row and either attaches to it or self-heals an anomaly (spec.md §4.4
// step 2, §8 testable property 8).
func (c *Coordinator) attachOrHeal(ctx context.Context, streaming *vm.VersionedRun) (*Outcome, error) {
	run, err := c.runs.Get(ctx, streaming.WorkflowRunID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_ = c.versioned.Fail(ctx, streaming.ResourceID, streaming.ResourceKind, streaming.Version)
			return nil, fmt.Errorf("engine run %s referenced by versioned run is missing: %w", streaming.WorkflowRunID, errAnomaly)
		}
		return nil, fmt.Errorf("get engine run: %w", err)
	}

	switch run.State {
	case wfmodels.RunStateCompleted:
		// The engine run finished but the versioned_run row was never
		// flipped to completed — persist_result must not have run.
		_ = c.versioned.Fail(ctx, streaming.ResourceID, streaming.ResourceKind, streaming.Version)
		return nil, fmt.Errorf("run %s completed without a result row: %w", run.RunID, errAnomaly)
	case wfmodels.RunStateFailed, wfmodels.RunStateCancelled:
		_ = c.versioned.Fail(ctx, streaming.ResourceID, streaming.ResourceKind, streaming.Version)
		return nil, fmt.Errorf("run %s ended in state %s", run.RunID, run.State)
	default: // pending, running, paused
		return &Outcome{RunID: run.RunID, Version: streaming.Version, Started: false}, nil
	}
}

// DispatchSlideExtraction implements the two-phase claim described in
// spec.md §4.4: an upsert to in_progress followed by a CAS on RunID, so
// that concurrent callers for the same video converge on a single engine
// run despite the external extractor's own per-video deduplication.
func (c *Coordinator) DispatchSlideExtraction(ctx context.Context, resourceID, workflowName string, args json.RawMessage) (*Outcome, error) {
	existing, err := c.slideExtraction.Get(ctx, resourceID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get slide extraction: %w", err)
	}
	if existing != nil {
		switch existing.Status {
		case vm.SlideExtractionCompleted:
			return &Outcome{Cached: &vm.VersionedRun{ResourceID: resourceID}}, nil
		case vm.SlideExtractionInProgress:
			if existing.RunID != "" {
				run, err := c.runs.Get(ctx, existing.RunID)
				if err == nil && !run.State.Terminal() {
					return &Outcome{RunID: existing.RunID, Started: false}, nil
				}
			}
		}
	}

	placeholder := "pending-" + uuid.New().String()
	won, err := c.slideExtraction.ClaimInProgress(ctx, resourceID, placeholder)
	if err != nil {
		return nil, fmt.Errorf("claim slide extraction: %w", err)
	}

	if !won {
		return c.waitForClaimant(ctx, resourceID)
	}

	runID, err := c.runtime.Start(ctx, workflowName, args)
	if err != nil {
		_ = c.slideExtraction.SetStatus(ctx, resourceID, vm.SlideExtractionFailed, err.Error())
		return nil, fmt.Errorf("start slide extraction run: %w", err)
	}
	if err := c.slideExtraction.ReplaceRunID(ctx, resourceID, placeholder, runID); err != nil {
		return nil, fmt.Errorf("replace slide extraction run id: %w", err)
	}

	return &Outcome{RunID: runID, Started: true}, nil
}

// waitForClaimant polls for the winning caller's real run id to appear in
// place of its placeholder. The claim is durable in Postgres, so this is a
// latency bound, not a correctness dependency.
func (c *Coordinator) waitForClaimant(ctx context.Context, resourceID string) (*Outcome, error) {
	deadline := time.Now().Add(c.claimTimeout)
	ticker := time.NewTicker(c.claimPollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		row, err := c.slideExtraction.Get(ctx, resourceID)
		if err != nil {
			return nil, fmt.Errorf("get slide extraction: %w", err)
		}
		if row.RunID != "" && !isPlaceholder(row.RunID) {
			return &Outcome{RunID: row.RunID, Started: false}, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("slide extraction claim for %s did not resolve in time", resourceID)
}

func isPlaceholder(runID string) bool {
	return len(runID) >= 8 && runID[:8] == "pending-"
}
