package video

import (
	"encoding/json"
	"time"
)

// VersionedRunStatus is the lifecycle of a user-visible resource attempt,
// distinct from the underlying engine run's state.
type VersionedRunStatus string

const (
	VersionedRunStreaming VersionedRunStatus = "streaming"
	VersionedRunCompleted VersionedRunStatus = "completed"
	VersionedRunFailed    VersionedRunStatus = "failed"
)

// ResourceKind names the kind of resource a versioned_run row is bound to.
type ResourceKind string

const (
	ResourceKindDynamicAnalysis ResourceKind = "dynamic_analysis"
	ResourceKindSuperAnalysis   ResourceKind = "super_analysis"
)

// VersionedRun is one user-visible re-run of a resource-bound workflow.
// (ResourceID, ResourceKind, Version) is unique; at most one row per
// (ResourceID, ResourceKind) carries Status=streaming.
type VersionedRun struct {
	ResourceID             string
	ResourceKind           ResourceKind
	Version                int
	Status                 VersionedRunStatus
	WorkflowRunID           string
	AdditionalInstructions string
	ResultJSON             json.RawMessage
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
