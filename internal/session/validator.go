// Package session authorizes one audit session with the backend. The
// backend owns the decision (distance policy, verification code issue);
// this package owns the at-most-once dispatch rule per session id.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"fieldproof/internal/backend"
	"fieldproof/internal/geo"
)

// Decision is the backend's answer to an initiate-session request.
type Decision struct {
	Allowed bool
	// Reason is the human-readable rejection cause when not allowed.
	Reason string
	// VerificationCode is the backend-issued liveness code. The client
	// never fabricates one: the authority granting capture access is the
	// only party allowed to mint it.
	VerificationCode string
	// DistanceMeters is how far the backend measured the fix from the
	// site, when it chose to disclose that.
	DistanceMeters float64
}

type initiateRequest struct {
	CaseID   string  `json:"case_id"`
	Lat      float64 `json:"lat"`
	Long     float64 `json:"long"`
	Accuracy float64 `json:"accuracy"`
}

type initiateResponse struct {
	Allowed          bool    `json:"allowed"`
	Reason           string  `json:"reason,omitempty"`
	VerificationCode string  `json:"verification_code,omitempty"`
	Distance         float64 `json:"distance,omitempty"`
}

// Validator performs initiate-session calls, suppressing duplicates.
type Validator struct {
	client *backend.Client

	mu       sync.Mutex
	inflight map[string]bool
	decided  map[string]Decision
}

// NewValidator builds a validator over the shared backend client.
func NewValidator(client *backend.Client) *Validator {
	return &Validator{
		client:   client,
		inflight: map[string]bool{},
		decided:  map[string]Decision{},
	}
}

// Validate submits sessionID and the position fix for authorization.
//
// At most one network call is made per session identifier: once a
// decision has come back (allowed or rejected), later calls return the
// cached decision without touching the network. A transport failure does
// not count as a decision, so an explicit user retry dispatches again.
func (v *Validator) Validate(ctx context.Context, sessionID string, pos geo.Position) (Decision, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Decision{}, fmt.Errorf("session: session id is required")
	}
	if err := pos.Validate(); err != nil {
		return Decision{}, fmt.Errorf("session: %w", err)
	}

	v.mu.Lock()
	if d, ok := v.decided[sessionID]; ok {
		v.mu.Unlock()
		return d, nil
	}
	if v.inflight[sessionID] {
		v.mu.Unlock()
		return Decision{}, fmt.Errorf("session: validation already in flight for %s", sessionID)
	}
	v.inflight[sessionID] = true
	v.mu.Unlock()

	var resp initiateResponse
	err := v.client.PostJSON(ctx, "/initiate-session", initiateRequest{
		CaseID:   sessionID,
		Lat:      pos.Lat,
		Long:     pos.Long,
		Accuracy: pos.Accuracy,
	}, &resp)

	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.inflight, sessionID)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Allowed:          resp.Allowed,
		Reason:           strings.TrimSpace(resp.Reason),
		VerificationCode: strings.TrimSpace(resp.VerificationCode),
		DistanceMeters:   resp.Distance,
	}
	if d.Allowed && d.VerificationCode == "" {
		// An allow without a code is unusable: the recording could never
		// be tied back to this session. Treat it as a malformed response
		// and leave the id undecided so the operator can retry.
		return Decision{}, fmt.Errorf("session: backend allowed %s without a verification code", sessionID)
	}
	v.decided[sessionID] = d
	return d, nil
}

// Decided returns the cached decision for sessionID, if any.
func (v *Validator) Decided(sessionID string) (Decision, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	d, ok := v.decided[sessionID]
	return d, ok
}

// Forget drops the cached decision for sessionID. Used by a full flow
// reset, never by ordinary retries.
func (v *Validator) Forget(sessionID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.decided, sessionID)
}
