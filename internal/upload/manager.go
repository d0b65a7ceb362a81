// Package upload transmits a finished recording to the backend as one
// multipart submission: the artifact file plus the liveness code proving
// the clip belongs to this validated session. Retry works off a retained
// attempt slot, never off closure captures.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"fieldproof/internal/backend"
	"fieldproof/internal/capture"
)

// State is the upload lifecycle.
type State int

const (
	StateIdle State = iota
	StateUploading
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploading:
		return "uploading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Result is a successful upload outcome.
type Result struct {
	VideoURL  string `json:"video_url"`
	ReportID  string `json:"report_id,omitempty"`
	ReportURL string `json:"report_url,omitempty"`
}

// attempt is the explicit "last attempt" slot backing Retry.
type attempt struct {
	artifact  *capture.Artifact
	sessionID string
	code      string
}

// Manager uploads artifacts and owns retry/cancel bookkeeping.
type Manager struct {
	client  *backend.Client
	timeout time.Duration

	mu       sync.Mutex
	state    State
	progress float64
	last     *attempt
	result   *Result
	lastErr  *backend.Error
	cancel   context.CancelFunc

	onProgress func(percent float64)
}

// ManagerOption customizes manager construction.
type ManagerOption func(*Manager)

// WithTimeout bounds one transfer (default 3 minutes: the backend runs
// the AI pipeline inline, so multi-minute latency is expected).
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithProgress registers a percentage callback. Values are monotonically
// non-decreasing within one transfer.
func WithProgress(fn func(percent float64)) ManagerOption {
	return func(m *Manager) { m.onProgress = fn }
}

// NewManager builds an idle manager over the shared backend client.
func NewManager(client *backend.Client, opts ...ManagerOption) *Manager {
	m := &Manager{
		client:  client,
		timeout: 3 * time.Minute,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the manager's current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Progress returns the last emitted percentage.
func (m *Manager) Progress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// Result returns the successful outcome, or nil.
func (m *Manager) Result() *Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

// LastError returns the classified failure, or nil.
func (m *Manager) LastError() *backend.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Upload sends artifact with the verification code to
// /upload-video/{sessionID}. The three arguments are retained so Retry
// can re-send them without a new recording.
func (m *Manager) Upload(ctx context.Context, artifact *capture.Artifact, sessionID, code string) (*Result, error) {
	if artifact == nil || len(artifact.Data) == 0 {
		return nil, fmt.Errorf("upload: no artifact to send")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("upload: session id is required")
	}
	if code == "" {
		return nil, fmt.Errorf("upload: verification code is required")
	}

	m.mu.Lock()
	if m.state == StateUploading {
		m.mu.Unlock()
		return nil, fmt.Errorf("upload: transfer already in flight")
	}
	m.last = &attempt{artifact: artifact, sessionID: sessionID, code: code}
	m.state = StateUploading
	m.progress = 0
	m.result = nil
	m.lastErr = nil

	upCtx, cancel := context.WithTimeout(ctx, m.timeout)
	m.cancel = cancel
	m.mu.Unlock()
	defer cancel()

	result, err := m.send(upCtx, artifact, sessionID, code)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel = nil
	if err != nil {
		be := backend.AsError(err)
		if be == nil {
			be = &backend.Error{Kind: backend.KindUnreachable}
		}
		if be.Kind == backend.KindCanceled {
			// User-initiated abort: back to idle with progress reset,
			// slot retained so a retry stays possible.
			m.state = StateIdle
			m.progress = 0
			return nil, be
		}
		m.state = StateError
		m.lastErr = be
		return nil, be
	}
	m.state = StateSuccess
	m.progress = 100
	m.result = result
	return result, nil
}

// Retry re-sends the exact retained artifact/session/code. It is a
// silent no-op when no prior attempt exists (e.g. after Reset).
func (m *Manager) Retry(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	last := m.last
	m.mu.Unlock()
	if last == nil {
		return nil, nil
	}
	return m.Upload(ctx, last.artifact, last.sessionID, last.code)
}

// Cancel aborts the in-flight transfer. The remote side may still be
// processing; locally the manager returns to idle with progress 0 while
// keeping the attempt slot.
func (m *Manager) Cancel() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset clears all state including the retained attempt slot. After a
// reset, Retry is a no-op.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.state = StateIdle
	m.progress = 0
	m.last = nil
	m.result = nil
	m.lastErr = nil
}

func (m *Manager) send(ctx context.Context, artifact *capture.Artifact, sessionID, code string) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", artifact.FileName())
	if err != nil {
		return nil, fmt.Errorf("upload: build multipart: %w", err)
	}
	if _, err := part.Write(artifact.Data); err != nil {
		return nil, fmt.Errorf("upload: write artifact: %w", err)
	}
	if err := writer.WriteField("liveness_code", code); err != nil {
		return nil, fmt.Errorf("upload: write liveness code: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("upload: finish multipart: %w", err)
	}

	total := int64(body.Len())
	reader := newProgressReader(&body, total, m.emitProgress)

	url := m.client.URL("/upload-video/" + sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, fmt.Errorf("upload: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.ContentLength = total

	var result Result
	if err := m.client.DoStream(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (m *Manager) emitProgress(pct float64) {
	m.mu.Lock()
	if pct > m.progress {
		m.progress = pct
	}
	fn := m.onProgress
	m.mu.Unlock()
	if fn != nil {
		fn(pct)
	}
}
