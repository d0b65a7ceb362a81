// Package backend is the JSON-over-HTTP client shared by the session
// validator, the upload manager and the inspection feed. All failures
// leave this package as a typed *Error (see errors.go); callers branch
// on the kind, never on raw transport errors.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the fieldproof audit backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for baseURL. The timeout bounds ordinary
// JSON calls; long-running uploads pass their own context deadline and
// a zero per-request timeout via DoStream.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.baseURL }

// URL joins path onto the backend root.
func (c *Client) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// PostJSON sends body as JSON and decodes a 2xx response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("backend: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, req, out)
}

// GetJSON fetches path and decodes a 2xx response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path), nil)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	return c.do(ctx, req, out)
}

// DoStream sends a prepared request (e.g. a multipart upload) without the
// client-level timeout; the caller bounds it through the request context.
// The response is decoded into out on success and classified on failure.
func (c *Client) DoStream(ctx context.Context, req *http.Request, out any) error {
	streaming := &http.Client{Transport: c.http.Transport}
	return execute(ctx, streaming, req, out)
}

func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	return execute(ctx, c.http, req, out)
}

func execute(ctx context.Context, client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyResponse(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{
			Kind:    KindRejected,
			Message: "The server returned an unreadable response.",
			cause:   err,
		}
	}
	return nil
}
