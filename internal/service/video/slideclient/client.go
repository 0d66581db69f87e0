// Package slideclient talks to the external slide-extraction service
// (spec.md §4.6.3): triggering a job, monitoring its SSE progress stream,
// and fetching the completed manifest.
package slideclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	domainwf "meridian/internal/domain/services/workflow"
)

const defaultTimeout = 30 * time.Second

// JobStatus mirrors the external extractor's reported lifecycle.
type JobStatus string

const (
	JobPending     JobStatus = "pending"
	JobDownloading JobStatus = "downloading"
	JobExtracting  JobStatus = "extracting"
	JobUploading   JobStatus = "uploading"
	JobCompleted   JobStatus = "completed"
	JobFailed      JobStatus = "failed"
)

// JobUpdate is one SSE event from the extractor's monitor stream.
type JobUpdate struct {
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	MetadataURI string    `json:"metadata_uri"`
	Message     string    `json:"message"`
}

// DuplicateRef points a frame at an earlier slide's frame it duplicates.
// spec.md §9 requires the referenced slide_number be strictly less than
// the current one, enforced by the caller (internal/service/video/workflows).
type DuplicateRef struct {
	SlideNumber   int    `json:"slide_number"`
	FramePosition string `json:"frame_position"`
}

// ManifestFrame is one candidate frame as described by the manifest.
type ManifestFrame struct {
	SourceURI   string        `json:"source_uri"`
	HasText     bool          `json:"has_text"`
	DuplicateOf *DuplicateRef `json:"duplicate_of,omitempty"`
}

// StaticSegment is one manifest entry describing a slide boundary.
type StaticSegment struct {
	FirstFrame ManifestFrame `json:"first_frame"`
	LastFrame  ManifestFrame `json:"last_frame"`
}

// Manifest is the parsed metadata document the extractor deposits in
// object storage on completion.
type Manifest struct {
	Segments []StaticSegment
}

// Client is a typed HTTP client for the slide-extraction service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{baseURL: baseURL, token: token, httpClient: &http.Client{Timeout: defaultTimeout}}
}

// TriggerJob starts an extraction job for a video. A 4xx response is
// classified Fatal (spec.md §4.6.3 "fatal on 4xx").
func (c *Client) TriggerJob(ctx context.Context, videoID string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"video_id": videoID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("trigger job request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read trigger response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", domainwf.HTTPStatusError(resp.StatusCode, "trigger job error (status %d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	jobID := gjson.GetBytes(body, "job_id").String()
	if jobID == "" {
		return "", fmt.Errorf("trigger job response missing job_id")
	}
	return jobID, nil
}

// MonitorJob opens an SSE stream of JobUpdate events for a job. The
// returned channel closes when the stream ends, the job reaches a
// terminal status, or ctx is cancelled.
func (c *Client) MonitorJob(ctx context.Context, jobID string) (<-chan JobUpdate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID+"/events", nil)
	if err != nil {
		return nil, fmt.Errorf("build monitor request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("monitor job request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, domainwf.HTTPStatusError(resp.StatusCode, "monitor job error (status %d)", resp.StatusCode)
	}

	out := make(chan JobUpdate, 8)
	go func() {
		defer close(out)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			var update JobUpdate
			if err := json.Unmarshal([]byte(data), &update); err != nil {
				continue
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
			if update.Status == JobCompleted || update.Status == JobFailed {
				return
			}
		}
	}()

	return out, nil
}

// FetchManifest downloads and parses the extractor's completion manifest.
func (c *Client) FetchManifest(ctx context.Context, metadataURI string) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURI, nil)
	if err != nil {
		return nil, fmt.Errorf("build manifest request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manifest request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read manifest response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domainwf.HTTPStatusError(resp.StatusCode, "manifest fetch error (status %d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	return parseManifest(body)
}

// parseManifest walks the segments array with gjson rather than a single
// json.Unmarshal so a malformed individual segment doesn't fail the whole
// manifest: every array element becomes a segment, and a missing or
// mistyped field reads as its zero value.
func parseManifest(body []byte) (*Manifest, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("manifest is not valid JSON")
	}

	var m Manifest
	segments := gjson.GetBytes(body, "segments")
	if !segments.IsArray() {
		return &m, nil
	}

	segments.ForEach(func(_, seg gjson.Result) bool {
		m.Segments = append(m.Segments, StaticSegment{
			FirstFrame: parseFrame(seg.Get("first_frame")),
			LastFrame:  parseFrame(seg.Get("last_frame")),
		})
		return true
	})
	return &m, nil
}

func parseFrame(v gjson.Result) ManifestFrame {
	frame := ManifestFrame{
		SourceURI: v.Get("source_uri").String(),
		HasText:   v.Get("has_text").Bool(),
	}
	if dup := v.Get("duplicate_of"); dup.Exists() {
		frame.DuplicateOf = &DuplicateRef{
			SlideNumber:   int(dup.Get("slide_number").Int()),
			FramePosition: dup.Get("frame_position").String(),
		}
	}
	return frame
}
