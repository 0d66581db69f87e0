package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meridian/internal/domain"
	domainwf "meridian/internal/domain/services/workflow"

	wfmodels "meridian/internal/domain/models/workflow"
	workflowrepo "meridian/internal/domain/repositories/workflow"
)

// StepExecutor runs a single step call: it consults a pre-loaded replay
// record for memoization, otherwise invokes the step body and records the
// outcome to the event log, applying the step's retry policy (spec.md
// §4.2).
type StepExecutor struct {
	events workflowrepo.EventStore
	logger *slog.Logger
}

// NewStepExecutor wires a StepExecutor to the durable event log.
func NewStepExecutor(events workflowrepo.EventStore, logger *slog.Logger) *StepExecutor {
	return &StepExecutor{events: events, logger: logger}
}

// ErrCancelled is returned by a step call when the run's cooperative
// cancel flag was observed set before execution (spec.md §5).
var ErrCancelled = errors.New("run cancelled")

// Execute implements the pre-execution memo check, the append-run-retry
// loop, and event recording described in spec.md §4.2.
func (e *StepExecutor) Execute(
	ctx context.Context,
	runID, stepID string,
	ordinal int,
	policy domainwf.RetryPolicy,
	replay *wfmodels.StepRecord,
	cancelled bool,
	body func(ctx context.Context) (json.RawMessage, error),
) (json.RawMessage, error) {
	if replay.Done() {
		if replay.Err != nil {
			return nil, fmt.Errorf("%s: %s: %w", stepID, replay.Err.Message, domain.ErrFatalStep)
		}
		return replay.Result, nil
	}

	if cancelled {
		return nil, ErrCancelled
	}

	startedPayload, err := json.Marshal(wfmodels.StepStartedPayload{StepID: stepID, CallOrdinal: ordinal})
	if err != nil {
		return nil, err
	}
	if _, err := e.events.Append(ctx, runID, wfmodels.EventStepStarted, startedPayload); err != nil {
		return nil, fmt.Errorf("append step_started for %s: %w", stepID, err)
	}

	maxAttempts := policy.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			d := policy.Backoff(attempt - 1)
			if d > 0 {
				select {
				case <-time.After(d):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}

		value, bodyErr := body(ctx)
		if bodyErr == nil {
			resultPayload, merr := json.Marshal(wfmodels.StepResultPayload{
				StepID:      stepID,
				CallOrdinal: ordinal,
				ValueDigest: digest(value),
				Value:       value,
			})
			if merr != nil {
				return nil, merr
			}
			if _, aerr := e.events.Append(ctx, runID, wfmodels.EventStepResult, resultPayload); aerr != nil {
				return nil, fmt.Errorf("append step_result for %s: %w", stepID, aerr)
			}
			return value, nil
		}

		lastErr = bodyErr
		kind := domainwf.Classify(bodyErr)
		e.logger.Warn("step attempt failed", "step_id", stepID, "ordinal", ordinal, "attempt", attempt, "kind", kind, "error", bodyErr)

		if !domainwf.Retriable(kind) {
			errPayload, merr := json.Marshal(wfmodels.StepErrorPayload{
				StepID: stepID, CallOrdinal: ordinal, ErrorKind: kind, Message: bodyErr.Error(), Retriable: false,
			})
			if merr != nil {
				return nil, merr
			}
			if _, aerr := e.events.Append(ctx, runID, wfmodels.EventStepError, errPayload); aerr != nil {
				e.logger.Error("failed to record step_error", "step_id", stepID, "error", aerr)
			}
			return nil, fmt.Errorf("%s: %s: %w", stepID, bodyErr.Error(), domain.ErrFatalStep)
		}
	}

	// Retry budget exhausted.
	errPayload, merr := json.Marshal(wfmodels.StepErrorPayload{
		StepID: stepID, CallOrdinal: ordinal, ErrorKind: domainwf.Transient, Message: lastErr.Error(), Retriable: true,
	})
	if merr != nil {
		return nil, merr
	}
	if _, aerr := e.events.Append(ctx, runID, wfmodels.EventStepError, errPayload); aerr != nil {
		e.logger.Error("failed to record step_error", "step_id", stepID, "error", aerr)
	}
	return nil, fmt.Errorf("%s: retries exhausted: %w", stepID, lastErr)
}
