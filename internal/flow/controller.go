// Package flow is the top-level verification state machine. It composes
// the location gate, session validator, capture session and upload
// manager into the end-to-end journey and decides what the UI renders at
// each step. The transition table here is the single source of truth;
// the TUI holds no flow logic of its own.
package flow

import (
	"fmt"
	"strings"

	"fieldproof/internal/capture"
	"fieldproof/internal/geo"
	"fieldproof/internal/upload"
)

// State is one screen of the journey.
type State int

const (
	// StatePermission waits for the location gate outcome.
	StatePermission State = iota
	// StateValidating waits for the backend's session decision.
	StateValidating
	// StateBlocked is an absorbing wall, escapable only via explicit
	// retry for recoverable reasons.
	StateBlocked
	// StateReady means capture is authorized and a code is stored.
	StateReady
	// StateRecorded holds a finished artifact pending upload.
	StateRecorded
	// StateUploading has a transfer in flight.
	StateUploading
	// StateSubmitted is terminal for the session.
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StatePermission:
		return "permission"
	case StateValidating:
		return "validating"
	case StateBlocked:
		return "blocked"
	case StateReady:
		return "ready"
	case StateRecorded:
		return "recorded"
	case StateUploading:
		return "uploading"
	case StateSubmitted:
		return "submitted"
	}
	return "unknown"
}

// BlockReason says why the flow is walled off.
type BlockReason int

const (
	// ReasonDenied: the operator refused location access. Terminal.
	ReasonDenied BlockReason = iota
	// ReasonLocationError: the fix failed (timeout, no hardware).
	// Recoverable by explicit retry.
	ReasonLocationError
	// ReasonTooFar: the backend rejected the position. Terminal for
	// this session short of a full restart.
	ReasonTooFar
)

func (r BlockReason) String() string {
	switch r {
	case ReasonDenied:
		return "denied"
	case ReasonLocationError:
		return "location_error"
	case ReasonTooFar:
		return "too_far"
	}
	return "unknown"
}

// Recoverable reports whether the blocked wall offers a retry.
func (r BlockReason) Recoverable() bool { return r == ReasonLocationError }

// Controller runs one verification attempt for one session identifier.
type Controller struct {
	sessionID string
	state     State

	// validated is the per-session dispatch ledger: once a session id
	// has a backend decision, position updates never trigger another
	// validation call.
	validated map[string]bool

	position geo.Position
	code     string
	artifact *capture.Artifact

	blockReason  BlockReason
	blockMessage string

	// validationErr is the retryable failure shown while staying in
	// StateValidating (cold backend, network down).
	validationErr string

	// uploadErr is shown inline on the recorded screen after a failed
	// transfer, next to the retry affordance.
	uploadErr string

	result *upload.Result
}

// NewController starts a flow at the permission screen.
func NewController(sessionID string) *Controller {
	return &Controller{
		sessionID: strings.TrimSpace(sessionID),
		state:     StatePermission,
		validated: map[string]bool{},
	}
}

// Accessors for rendering.

func (c *Controller) SessionID() string         { return c.sessionID }
func (c *Controller) State() State              { return c.state }
func (c *Controller) Position() geo.Position    { return c.position }
func (c *Controller) Code() string              { return c.code }
func (c *Controller) Artifact() *capture.Artifact { return c.artifact }
func (c *Controller) BlockReason() BlockReason  { return c.blockReason }
func (c *Controller) BlockMessage() string      { return c.blockMessage }
func (c *Controller) ValidationError() string   { return c.validationErr }
func (c *Controller) UploadError() string       { return c.uploadErr }
func (c *Controller) Result() *upload.Result    { return c.result }

// Validated reports whether this session id already has a decision.
func (c *Controller) Validated() bool { return c.validated[c.sessionID] }

// LocationGranted records a granted fix. It returns true when the caller
// should dispatch validation: a session already validated with a stored
// code jumps straight to ready instead.
func (c *Controller) LocationGranted(pos geo.Position) (dispatch bool, err error) {
	if c.state != StatePermission {
		return false, c.illegal("location granted")
	}
	c.position = pos
	if c.validated[c.sessionID] && c.code != "" {
		c.state = StateReady
		return false, nil
	}
	c.state = StateValidating
	c.validationErr = ""
	return true, nil
}

// LocationDenied walls the flow off permanently.
func (c *Controller) LocationDenied(message string) error {
	if c.state != StatePermission {
		return c.illegal("location denied")
	}
	c.block(ReasonDenied, message)
	return nil
}

// LocationFailed walls the flow off behind a retryable location error.
func (c *Controller) LocationFailed(message string) error {
	if c.state != StatePermission {
		return c.illegal("location failed")
	}
	c.block(ReasonLocationError, message)
	return nil
}

// RetryLocation returns from a recoverable block to the permission
// screen. Denial and policy walls stay shut.
func (c *Controller) RetryLocation() error {
	if c.state != StateBlocked || !c.blockReason.Recoverable() {
		return c.illegal("retry location")
	}
	c.state = StatePermission
	c.blockMessage = ""
	return nil
}

// ValidationAllowed stores the backend-issued code and opens capture.
func (c *Controller) ValidationAllowed(code string) error {
	if c.state != StateValidating {
		return c.illegal("validation allowed")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("flow: allowed decision without a verification code")
	}
	c.code = code
	c.validated[c.sessionID] = true
	c.validationErr = ""
	c.state = StateReady
	return nil
}

// ValidationRejected walls the flow off: the operator is not at the site.
func (c *Controller) ValidationRejected(message string) error {
	if c.state != StateValidating {
		return c.illegal("validation rejected")
	}
	c.validated[c.sessionID] = true
	c.block(ReasonTooFar, message)
	return nil
}

// ValidationFailed keeps the flow in validating with a retry affordance:
// a cold backend is not a denial.
func (c *Controller) ValidationFailed(message string) error {
	if c.state != StateValidating {
		return c.illegal("validation failed")
	}
	c.validationErr = message
	return nil
}

// RetryValidation clears the inline failure before a fresh dispatch.
func (c *Controller) RetryValidation() error {
	if c.state != StateValidating || c.validationErr == "" {
		return c.illegal("retry validation")
	}
	c.validationErr = ""
	return nil
}

// RecordingComplete moves a finished artifact into review.
func (c *Controller) RecordingComplete(artifact *capture.Artifact) error {
	if c.state != StateReady {
		return c.illegal("recording complete")
	}
	if artifact == nil || len(artifact.Data) == 0 {
		return fmt.Errorf("flow: recording complete without an artifact")
	}
	if c.code == "" {
		return fmt.Errorf("flow: recording complete without a stored verification code")
	}
	c.artifact = artifact
	c.uploadErr = ""
	c.state = StateRecorded
	return nil
}

// Rerecord discards the artifact and returns to ready. Any pending
// upload retry state is invalidated with it: the caller must Reset the
// upload manager so a stale artifact can never be re-sent.
func (c *Controller) Rerecord() error {
	if c.state != StateRecorded {
		return c.illegal("re-record")
	}
	c.artifact = nil
	c.uploadErr = ""
	c.state = StateReady
	return nil
}

// ConfirmUpload authorizes the transfer. The invariant here is defensive:
// even if the UI never offers upload without both pieces, the controller
// rejects it independently.
func (c *Controller) ConfirmUpload() error {
	if c.state != StateRecorded {
		return c.illegal("confirm upload")
	}
	if c.artifact == nil || len(c.artifact.Data) == 0 {
		return fmt.Errorf("flow: upload confirmed without a recorded artifact")
	}
	if strings.TrimSpace(c.code) == "" {
		return fmt.Errorf("flow: upload confirmed without a verification code")
	}
	c.uploadErr = ""
	c.state = StateUploading
	return nil
}

// UploadSucceeded finishes the session.
func (c *Controller) UploadSucceeded(result *upload.Result) error {
	if c.state != StateUploading {
		return c.illegal("upload succeeded")
	}
	c.result = result
	c.artifact = nil
	c.state = StateSubmitted
	return nil
}

// UploadCanceled returns to the review screen without an error banner.
func (c *Controller) UploadCanceled() error {
	if c.state != StateUploading {
		return c.illegal("upload canceled")
	}
	c.state = StateRecorded
	return nil
}

// UploadFailed returns to the review screen with the failure inline and
// the retry affordance available.
func (c *Controller) UploadFailed(message string) error {
	if c.state != StateUploading {
		return c.illegal("upload failed")
	}
	c.uploadErr = message
	c.state = StateRecorded
	return nil
}

func (c *Controller) block(reason BlockReason, message string) {
	c.blockReason = reason
	c.blockMessage = strings.TrimSpace(message)
	c.state = StateBlocked
}

func (c *Controller) illegal(event string) error {
	return fmt.Errorf("flow: %s is not valid in state %s", event, c.state)
}
