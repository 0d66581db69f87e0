package workflows

import (
	"fmt"
	"strings"

	vm "meridian/internal/domain/models/video"
)

// formatTranscriptForLLM renders a transcript's segments as LLM-friendly
// text with per-segment [HH:MM:SS] prefixes (spec.md §4.6.2 load_transcript).
func formatTranscriptForLLM(t *vm.Transcript) string {
	var b strings.Builder
	for _, seg := range t.Segments {
		fmt.Fprintf(&b, "[%s] %s\n", formatTimestamp(seg.Start), strings.TrimSpace(seg.Text))
	}
	return b.String()
}

func formatTimestamp(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
