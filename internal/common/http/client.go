// internal/common/http/client.go
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

type Client struct {
	httpClient *http.Client
	userAgent  string
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: "query-orchestrator/1.0",
	}
}

// NewClientFrom wraps an existing *http.Client, e.g. an httptest server client.
func NewClientFrom(c *http.Client) *Client {
	return &Client{httpClient: c, userAgent: "query-orchestrator/1.0"}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.httpClient.Do(req)
}

// Get fetches url and returns the body of a 2xx response. Redirects are followed.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}
