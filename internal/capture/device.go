package capture

import (
	"context"
	"fmt"
	"time"
)

// Cause classifies a capture failure.
type Cause int

const (
	CausePermission Cause = iota
	CauseNotFound
	CauseOther
)

func (c Cause) String() string {
	switch c {
	case CausePermission:
		return "permission"
	case CauseNotFound:
		return "not_found"
	}
	return "other"
}

// Error is a classified capture failure.
type Error struct {
	Cause Cause
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("capture: %s: %v", e.Cause, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// UserMessage returns the operator-facing line for this failure.
func (e *Error) UserMessage() string {
	switch e.Cause {
	case CausePermission:
		return "Camera or microphone access was denied. Grant access and retry."
	case CauseNotFound:
		return "No camera or microphone found on this device."
	}
	return "Recording failed. Retry."
}

// Device acquires a live camera+microphone stream. Implementations must
// capture from live hardware only; there is deliberately no path that
// substitutes a pre-existing file, because the trust model depends on
// the artifact being freshly captured.
type Device interface {
	Acquire(ctx context.Context) (Stream, error)
	Describe() string
}

// Stream is an open live source that can record bounded clips.
type Stream interface {
	// Record captures from the live source for at most d, burning code
	// into the frames for the full duration so the operator can read it
	// aloud. Cancelling ctx stops the recording early; whatever was
	// captured up to that point is returned as the clip. A failure mid
	// recording returns an error and no partial data.
	Record(ctx context.Context, code string, d time.Duration) ([]byte, error)
	// MIME identifies the container produced by Record.
	MIME() string
	// Close stops all tracks and releases the hardware.
	Close() error
}
