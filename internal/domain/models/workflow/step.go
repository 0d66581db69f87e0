package workflow

import "encoding/json"

// StepRecord is the memoized outcome of a (step_id, call_ordinal) pair,
// derived by scanning a run's event log. Replay returns Result/Err without
// re-invoking the step body.
type StepRecord struct {
	StepID      string
	CallOrdinal int
	Result      json.RawMessage
	Err         *StepErrorPayload
}

// Done reports whether this step call has already produced a terminal
// outcome (success, or a non-retriable failure) in the log.
func (r *StepRecord) Done() bool {
	if r == nil {
		return false
	}
	if r.Result != nil {
		return true
	}
	return r.Err != nil && !r.Err.Retriable
}
