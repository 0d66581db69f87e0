// Package video declares the storage ports the video workflows depend on.
// Implementations live in internal/repository/postgres/video.
package video

import (
	"context"

	vm "meridian/internal/domain/models/video"
)

// TranscriptRepository persists fetched transcripts, keyed by video id.
type TranscriptRepository interface {
	Get(ctx context.Context, videoID string) (*vm.Transcript, error)
	Upsert(ctx context.Context, t *vm.Transcript) error
}

// VersionedRunRepository persists the per-resource version history used
// by the Coordinator (spec.md §4.4, §4.7).
type VersionedRunRepository interface {
	// GetLatestCompleted returns the highest-version completed row, if any.
	GetLatestCompleted(ctx context.Context, resourceID string, kind vm.ResourceKind) (*vm.VersionedRun, error)
	// GetStreaming returns the row with status=streaming for a resource, if any.
	GetStreaming(ctx context.Context, resourceID string, kind vm.ResourceKind) (*vm.VersionedRun, error)
	// Create inserts a new row with version = max(version)+1 and
	// status=streaming, atomically with respect to concurrent callers for
	// the same resource (enforced by the partial unique index on
	// (resource_id, resource_kind) WHERE status='streaming').
	Create(ctx context.Context, row *vm.VersionedRun) error
	// SetWorkflowRunID attaches the engine run id once the run is started.
	SetWorkflowRunID(ctx context.Context, resourceID string, kind vm.ResourceKind, version int, workflowRunID string) error
	// Complete writes the result and marks the row completed.
	Complete(ctx context.Context, resourceID string, kind vm.ResourceKind, version int, resultJSON []byte) error
	// Fail marks the row failed.
	Fail(ctx context.Context, resourceID string, kind vm.ResourceKind, version int) error
	// List returns all versions for a resource, descending.
	List(ctx context.Context, resourceID string, kind vm.ResourceKind) ([]*vm.VersionedRun, error)
}

// SlideExtractionRepository persists the slide_extraction lifecycle row.
type SlideExtractionRepository interface {
	Get(ctx context.Context, resourceID string) (*vm.SlideExtraction, error)
	// ClaimInProgress upserts status=in_progress and attempts to move
	// RunID from empty to placeholder via CAS; returns true if this
	// caller's placeholder won the claim (spec.md §4.4 two-phase claim).
	ClaimInProgress(ctx context.Context, resourceID, placeholder string) (won bool, err error)
	// ReplaceRunID swaps a placeholder id for the real engine run id.
	ReplaceRunID(ctx context.Context, resourceID, placeholder, realRunID string) error
	SetStatus(ctx context.Context, resourceID string, status vm.SlideExtractionStatus, errMessage string) error
	SetCompleted(ctx context.Context, resourceID string, totalSlides int) error
}

// SlideRepository persists extracted Slide rows.
type SlideRepository interface {
	// Insert is a no-op on conflict (spec.md §4.6.3: idempotent re-run).
	Insert(ctx context.Context, s *vm.Slide) error
	List(ctx context.Context, resourceID string) ([]*vm.Slide, error)
	Exists(ctx context.Context, resourceID string) (bool, error)
	Count(ctx context.Context, resourceID string) (int, error)
}

// SlideFeedbackRepository persists caller-supplied frame picks.
type SlideFeedbackRepository interface {
	Get(ctx context.Context, resourceID string, slideNumber int) (*vm.SlideFeedback, error)
	List(ctx context.Context, resourceID string) ([]vm.SlideFeedback, error)
	Upsert(ctx context.Context, fb *vm.SlideFeedback) error
}

// SlideAnalysisRepository persists per-(slide,frame) analysis markdown.
type SlideAnalysisRepository interface {
	// Upsert writes on the composite key, idempotent under re-run.
	Upsert(ctx context.Context, r *vm.SlideAnalysisResult) error
	Get(ctx context.Context, resourceID string, slideNumber int, pos vm.FramePosition) (*vm.SlideAnalysisResult, error)
	List(ctx context.Context, resourceID string) ([]*vm.SlideAnalysisResult, error)
}
