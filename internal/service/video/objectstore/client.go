// Package objectstore downloads source frames and manifests the slide
// extractor deposits (spec.md §4.6.3 fetch_manifest / process_slides).
package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	domainwf "meridian/internal/domain/services/workflow"
)

const defaultTimeout = 30 * time.Second

// Client fetches opaque objects by source URI.
type Client struct {
	token      string
	httpClient *http.Client
}

func New(token string) *Client {
	return &Client{token: token, httpClient: &http.Client{Timeout: defaultTimeout}}
}

// Download fetches the raw bytes and content type at sourceURI.
func (c *Client) Download(ctx context.Context, sourceURI string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURI, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build download request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read download response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", domainwf.HTTPStatusError(resp.StatusCode, "object download error (status %d) for %s", resp.StatusCode, sourceURI)
	}

	return body, resp.Header.Get("Content-Type"), nil
}
