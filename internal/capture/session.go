// Package capture manages the live camera/microphone session: acquiring
// the devices, recording one bounded clip with the verification code on
// screen, and releasing the hardware deterministically on every exit
// path.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the capture session lifecycle.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StatePreviewing
	StateRecording
	StateRecorded
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StatePreviewing:
		return "previewing"
	case StateRecording:
		return "recording"
	case StateRecorded:
		return "recorded"
	case StateError:
		return "error"
	}
	return "unknown"
}

// DefaultDuration is how long a recording runs unless configured
// otherwise.
const DefaultDuration = 10 * time.Second

// Session owns the live stream for the lifetime of one verification
// attempt.
type Session struct {
	device Device

	mu       sync.Mutex
	state    State
	stream   Stream
	artifact *Artifact
	lastErr  *Error
}

// NewSession builds an idle session over the given device.
func NewSession(device Device) *Session {
	return &Session{device: device, state: StateIdle}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Artifact returns the finished recording, or nil.
func (s *Session) Artifact() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// LastError returns the classified failure, or nil.
func (s *Session) LastError() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// StartCapture acquires camera and microphone together. On success the
// session is previewing on an open live stream; on failure the cause is
// classified (permission / not found / other) and the session may be
// retried from idle.
func (s *Session) StartCapture(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateError:
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("capture: cannot start capture while %s", st)
	}
	s.state = StateRequesting
	s.lastErr = nil
	s.mu.Unlock()

	stream, err := s.device.Acquire(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateError
		s.lastErr = asCaptureError(err)
		return s.lastErr
	}
	s.stream = stream
	s.state = StatePreviewing
	return nil
}

// StartRecording captures one clip of at most duration from the live
// stream, overlaying code for the whole take. It blocks until the clip
// is done; cancelling ctx stops it early and keeps what was captured.
// Any mid-recording stream failure leaves the session in error with no
// partial artifact exposed.
func (s *Session) StartRecording(ctx context.Context, code string, duration time.Duration) (*Artifact, error) {
	if code == "" {
		return nil, fmt.Errorf("capture: verification code is required on screen")
	}
	if duration <= 0 {
		duration = DefaultDuration
	}

	s.mu.Lock()
	if s.state != StatePreviewing {
		st := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("capture: cannot record while %s", st)
	}
	stream := s.stream
	s.state = StateRecording
	s.mu.Unlock()

	data, err := stream.Record(ctx, code, duration)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateError
		s.artifact = nil
		s.lastErr = asCaptureError(err)
		return nil, s.lastErr
	}
	s.artifact = newArtifact(data, stream.MIME())
	s.state = StateRecorded
	return s.artifact, nil
}

// ResetCapture discards the artifact for a re-record. The live stream
// stays open, so the session returns to previewing without a second
// permission prompt; if the stream was already released it falls back
// to idle.
func (s *Session) ResetCapture() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifact = nil
	s.lastErr = nil
	if s.stream != nil {
		s.state = StatePreviewing
	} else {
		s.state = StateIdle
	}
}

// Release stops all tracks and returns the session to idle. Safe to call
// on every exit path, repeatedly.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
	s.artifact = nil
	s.state = StateIdle
}

func asCaptureError(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Cause: CauseOther, cause: err}
}
