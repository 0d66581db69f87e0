package workflows

import (
	"fmt"
	"regexp"
)

// videoIDPattern matches the 11-character YouTube-style identifier
// required at the HTTP boundary and re-checked here since a workflow can
// also be re-entered directly during crash recovery (spec.md §6: "400
// invalid id (must match 11-char [A-Za-z0-9_-])").
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

func validateVideoID(videoID string) error {
	if !videoIDPattern.MatchString(videoID) {
		return fmt.Errorf("invalid video id %q: must be 11 characters of [A-Za-z0-9_-]", videoID)
	}
	return nil
}
