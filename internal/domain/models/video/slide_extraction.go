package video

import "time"

// SlideExtractionStatus is the lifecycle of the external slide-extraction
// job for a resource.
type SlideExtractionStatus string

const (
	SlideExtractionIdle       SlideExtractionStatus = "idle"
	SlideExtractionInProgress SlideExtractionStatus = "in_progress"
	SlideExtractionCompleted  SlideExtractionStatus = "completed"
	SlideExtractionFailed     SlideExtractionStatus = "failed"
)

// SlideExtraction tracks the external extractor job bound to one resource.
type SlideExtraction struct {
	ResourceID   string
	Status       SlideExtractionStatus
	RunID        string
	TotalSlides  int
	ErrorMessage string
	UpdatedAt    time.Time
}

// Stale reports whether an in_progress extraction has exceeded the
// bounded wait a monitor step is expected to honor (spec.md §3/§5: 30min
// repair threshold, 20min monitor bound).
func (s *SlideExtraction) Stale(now time.Time, maxAge time.Duration) bool {
	return s.Status == SlideExtractionInProgress && now.Sub(s.UpdatedAt) > maxAge
}
