package video

import "time"

// TranscriptSegment is one timed caption line as returned by the transcript
// source API.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the cached, fetched transcript for a video.
type Transcript struct {
	VideoID     string              `json:"video_id"`
	Title       string              `json:"title"`
	ChannelName string              `json:"channel_name"`
	Description string              `json:"description"`
	Segments    []TranscriptSegment `json:"transcript"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}
