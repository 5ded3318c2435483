// Package resolver turns a scanned receipt link into receipt data by calling
// the external resolution endpoint.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const maxBodySize = 1 << 20

// Fetcher returns the raw resolution response body for a link.
type Fetcher interface {
	Fetch(ctx context.Context, link string) ([]byte, error)
}

type resolveRequest struct {
	Link string `json:"link"`
}

// Client posts scanned links to the resolution endpoint. At most one request
// is in flight at a time; concurrent callers queue behind it.
type Client struct {
	endpoint   string
	httpClient *http.Client
	inFlight   chan struct{}
}

// NewClient creates a client for endpoint. A nil httpClient uses a client
// with a 15 second timeout.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		inFlight:   make(chan struct{}, 1),
	}
}

// Fetch posts {"link": link} and returns the body of a 2xx response.
func (c *Client) Fetch(ctx context.Context, link string) ([]byte, error) {
	if c.endpoint == "" {
		return nil, &Error{Category: CategoryUnknown, Err: ErrNotConfigured}
	}

	select {
	case c.inFlight <- struct{}{}:
		defer func() { <-c.inFlight }()
	case <-ctx.Done():
		return nil, &Error{Category: CategoryUnknown, Err: ctx.Err()}
	}

	payload, err := json.Marshal(resolveRequest{Link: link})
	if err != nil {
		return nil, &Error{Category: CategoryUnknown, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Category: CategoryUnknown, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	slog.Debug("Resolving receipt link", "endpoint", c.endpoint, "link", link)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, &Error{Category: CategoryUnknown, Err: err}
		}
		return nil, &Error{Category: CategoryNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{Category: CategoryNetwork, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	slog.Debug("Resolver responded",
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Category: CategoryServer,
			Status:   resp.StatusCode,
			Body:     truncate(string(body), 512),
		}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
