package workflows

import (
	"log/slog"

	"meridian/internal/config"
	videorepo "meridian/internal/domain/repositories/video"
	"meridian/internal/service/video/blobstore"
	"meridian/internal/service/video/llmgen"
	"meridian/internal/service/video/objectstore"
	"meridian/internal/service/video/slideclient"
	"meridian/internal/service/video/transcriptclient"
	wfsvc "meridian/internal/service/workflow"
)

// Deps collects every storage port and external client the five workflows
// need. One Deps is shared by all workflow functions registered into the
// runtime (spec.md §4.6).
type Deps struct {
	Transcripts     videorepo.TranscriptRepository
	VersionedRuns   videorepo.VersionedRunRepository
	SlideExtraction videorepo.SlideExtractionRepository
	Slides          videorepo.SlideRepository
	SlideFeedback   videorepo.SlideFeedbackRepository
	SlideAnalysis   videorepo.SlideAnalysisRepository

	TranscriptClient *transcriptclient.Client
	SlideClient      *slideclient.Client
	ObjectStore      *objectstore.Client
	BlobStore        *blobstore.Client
	LLM              llmgen.Provider

	// Runtime and Tailer let combined_process dispatch slide extraction as
	// its own sub-run and fold its live events into the parent stream
	// (spec.md §4.6.6), distinct from fetch_transcript/dynamic_analysis
	// which run as plain in-line step chains of the combined run.
	Runtime *wfsvc.Runtime
	Tailer  *wfsvc.Tailer

	// RetryPolicies holds any operator-supplied per-step overrides loaded
	// from YAML (config.LoadRetryPolicies); steps that don't look themselves
	// up here just call domainwf.DefaultRetryPolicy()/NoRetryPolicy()
	// directly. Nil is valid and behaves like an empty map.
	RetryPolicies config.RetryPolicies

	DefaultModel string
	Logger       *slog.Logger
}
