package video

import "time"

// SlideAnalysisResult is the per-(slide, frame) LLM markdown analysis.
// Idempotent under re-run: writes upsert on the composite key.
type SlideAnalysisResult struct {
	ResourceID    string
	SlideNumber   int
	FramePosition FramePosition
	Markdown      string
	CreatedAt     time.Time
}
