package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a failed backend interaction. Every kind maps to a
// distinct operator-facing message and one primary recovery action, so
// a cold backend is never presented the same way as a policy denial.
type Kind int

const (
	// KindCanceled is a user-initiated abort.
	KindCanceled Kind = iota
	// KindTimeout is a client-side bound exceeded on a long transfer.
	KindTimeout
	// KindUnreachable means no response at all (network down, DNS, refused).
	KindUnreachable
	// KindColdStart covers 502/503/504: the service is warming up, not broken.
	KindColdStart
	// KindRejected is a structured server rejection with a message body.
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindCanceled:
		return "canceled"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindColdStart:
		return "cold_start"
	case KindRejected:
		return "rejected"
	}
	return "unknown"
}

// Transient reports whether waiting and retrying is a sensible recovery.
func (k Kind) Transient() bool {
	switch k {
	case KindTimeout, KindUnreachable, KindColdStart:
		return true
	}
	return false
}

// Error is the typed status + message pair every backend failure is
// reduced to before it reaches the flow controller.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string // operator-facing
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("backend: %s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("backend: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// UserMessage returns what the TUI should display.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case KindCanceled:
		return "Canceled."
	case KindTimeout:
		return "The transfer took too long. Check your connection and retry."
	case KindUnreachable:
		return "Could not reach the audit server. Check your connection and retry."
	case KindColdStart:
		return "The audit server is waking up. Wait about 30 seconds and retry."
	}
	return "The server rejected the request."
}

// AsError extracts a backend *Error from err, or nil.
func AsError(err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	return nil
}

// KindOf returns the classification of err, defaulting to KindUnreachable
// for errors that never went through classification.
func KindOf(err error) Kind {
	if be := AsError(err); be != nil {
		return be.Kind
	}
	return KindUnreachable
}

// classifyTransport turns a transport-level failure into a typed Error.
func classifyTransport(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled:
		return &Error{Kind: KindCanceled, cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, cause: err}
	}
	return &Error{Kind: KindUnreachable, cause: err}
}

// classifyResponse turns a non-2xx response into a typed Error, pulling a
// structured message out of the body when the server provided one.
func classifyResponse(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &Error{Kind: KindColdStart, StatusCode: resp.StatusCode}
	}
	return &Error{
		Kind:       KindRejected,
		StatusCode: resp.StatusCode,
		Message:    extractMessage(body, resp.StatusCode),
	}
}

// extractMessage digs the conventional detail/message field out of an
// error body, falling back to a generic line on malformed payloads.
func extractMessage(body []byte, status int) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
		var detail string
		if err := json.Unmarshal(payload.Detail, &detail); err == nil {
			if detail = strings.TrimSpace(detail); detail != "" {
				return detail
			}
		}
	}
	return fmt.Sprintf("The server rejected the request (HTTP %d).", status)
}
