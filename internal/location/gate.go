// Package location implements the gate in front of the capture flow:
// one bounded, high-accuracy, zero-cache position request whose outcome
// decides whether the operator may proceed at all.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldproof/internal/geo"
)

// State is the gate's lifecycle.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateGranted
	StateDenied
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateGranted:
		return "granted"
	case StateDenied:
		return "denied"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Cause classifies a failed request.
type Cause int

const (
	CauseDenied Cause = iota
	CauseUnavailable
	CauseTimeout
	CauseUnknown
)

func (c Cause) String() string {
	switch c {
	case CauseDenied:
		return "denied"
	case CauseUnavailable:
		return "unavailable"
	case CauseTimeout:
		return "timeout"
	}
	return "unknown"
}

// Recoverable reports whether an explicit user retry makes sense.
// A denial is deliberate and final; there is no bypass path.
func (c Cause) Recoverable() bool { return c != CauseDenied }

// Error is a classified gate failure.
type Error struct {
	Cause Cause
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("location: %s: %v", e.Cause, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// UserMessage returns the operator-facing line for this failure.
func (e *Error) UserMessage() string {
	switch e.Cause {
	case CauseDenied:
		return "Location access was denied. Fieldproof cannot verify presence without it."
	case CauseUnavailable:
		return "No location capability found on this device."
	case CauseTimeout:
		return "Could not get a position fix in time. Move somewhere with better GPS reception and retry."
	}
	return "Could not determine your position. Retry."
}

// Gate performs the single gating position request.
type Gate struct {
	provider Provider
	timeout  time.Duration
	maxAge   time.Duration

	state   State
	fix     geo.Position
	lastErr *Error
}

// Option customizes gate construction.
type Option func(*Gate)

// WithTimeout overrides the request bound (default 10s).
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxFixAge overrides the freshness bound.
func WithMaxFixAge(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.maxAge = d
		}
	}
}

// NewGate builds an idle gate over the given provider.
func NewGate(provider Provider, opts ...Option) *Gate {
	g := &Gate{
		provider: provider,
		timeout:  10 * time.Second,
		maxAge:   geo.DefaultMaxFixAge,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the gate's current state.
func (g *Gate) State() State { return g.state }

// Fix returns the granted position. Only meaningful in StateGranted.
func (g *Gate) Fix() geo.Position { return g.fix }

// LastError returns the classified failure, or nil.
func (g *Gate) LastError() *Error { return g.lastErr }

// Request performs one bounded high-accuracy read. A denied gate stays
// denied: repeated calls return the same terminal error without touching
// the provider again. Recoverable errors may be retried by calling
// Request again (explicit user action).
func (g *Gate) Request(ctx context.Context) (geo.Position, error) {
	switch g.state {
	case StateDenied:
		return geo.Position{}, g.lastErr
	case StateRequesting:
		return geo.Position{}, fmt.Errorf("location: request already in flight")
	}

	g.state = StateRequesting
	g.lastErr = nil

	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	fix, err := g.provider.Current(reqCtx)
	if err != nil {
		return geo.Position{}, g.fail(classify(reqCtx, err))
	}
	if err := fix.Validate(); err != nil {
		return geo.Position{}, g.fail(&Error{Cause: CauseUnknown, cause: err})
	}
	if !fix.Fresh(time.Now(), g.maxAge) {
		return geo.Position{}, g.fail(&Error{
			Cause: CauseUnknown,
			cause: fmt.Errorf("stale fix from %s", fix.Timestamp.Format(time.RFC3339)),
		})
	}

	g.fix = fix
	g.state = StateGranted
	return fix, nil
}

func (g *Gate) fail(gerr *Error) *Error {
	g.lastErr = gerr
	if gerr.Cause == CauseDenied {
		g.state = StateDenied
	} else {
		g.state = StateError
	}
	return gerr
}

func classify(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return &Error{Cause: CauseDenied, cause: err}
	case errors.Is(err, ErrUnavailable):
		return &Error{Cause: CauseUnavailable, cause: err}
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded:
		return &Error{Cause: CauseTimeout, cause: err}
	}
	return &Error{Cause: CauseUnknown, cause: err}
}
