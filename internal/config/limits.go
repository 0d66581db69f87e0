package config

const (
	// MaxAdditionalInstructionsLength bounds the free-text steering prompt
	// a caller can attach to a dynamic_analysis/super_analysis/
	// combined_process start request.
	MaxAdditionalInstructionsLength = 4000

	// MaxVideoTitleLength mirrors the transcript-api's own title cap.
	MaxVideoTitleLength = 500
)
