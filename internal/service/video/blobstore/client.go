// Package blobstore republishes slide frames to public blob storage at
// deterministic paths (spec.md §4.6.3 process_slides).
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	domainwf "meridian/internal/domain/services/workflow"
)

const defaultTimeout = 30 * time.Second

// Client uploads objects to a public bucket and reports their public URL.
type Client struct {
	baseURL       string
	token         string
	publicBaseURL string
	httpClient    *http.Client
}

func New(baseURL, token, publicBaseURL string) *Client {
	return &Client{
		baseURL:       baseURL,
		token:         token,
		publicBaseURL: publicBaseURL,
		httpClient:    &http.Client{Timeout: defaultTimeout},
	}
}

// FramePath deterministically names a republished slide frame, per
// spec.md §4.6.3: "slides/{video_id}/{frame_id | N-{first|last}}.webp".
func FramePath(videoID string, slideNumber int, position string) string {
	return fmt.Sprintf("slides/%s/%d-%s.webp", videoID, slideNumber, position)
}

// Upload writes data at path and returns its public URL.
func (c *Client) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/"+path, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", domainwf.HTTPStatusError(resp.StatusCode, "blob upload error (status %d): %s", resp.StatusCode, body)
	}

	return c.publicBaseURL + "/" + path, nil
}
