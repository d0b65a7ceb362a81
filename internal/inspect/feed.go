// Package inspect is the read side: it polls the backend for submitted
// audits and exposes the administrative force-verify override used from
// the dashboard.
package inspect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fieldproof/internal/backend"
)

// Verification statuses the AI pipeline can assign.
const (
	StatusApproved     = "APPROVED"
	StatusRejected     = "REJECTED"
	StatusManualReview = "MANUAL_REVIEW"
)

// AIResult is the nested verdict attached to a completed inspection.
type AIResult struct {
	VerificationStatus string `json:"verification_status"`
	LivenessCheck      string `json:"liveness_check"`
	RiskAssessment     string `json:"risk_assessment"`
	StockAssessment    string `json:"stock_assessment"`
}

// Record is one submitted audit as served by /admin/inspections.
type Record struct {
	CaseID       string    `json:"case_id"`
	CreatedAt    time.Time `json:"created_at"`
	Status       string    `json:"status"`
	GPSLat       float64   `json:"gps_lat"`
	GPSLong      float64   `json:"gps_long"`
	VideoURL     string    `json:"video_url,omitempty"`
	ReportURL    string    `json:"report_url,omitempty"`
	ExporterName string    `json:"exporter_name,omitempty"`
	AIResult     *AIResult `json:"ai_result,omitempty"`
}

// Verdict returns the display verdict for the record: the AI status when
// present, otherwise the raw pipeline status.
func (r Record) Verdict() string {
	if r.AIResult != nil && strings.TrimSpace(r.AIResult.VerificationStatus) != "" {
		return r.AIResult.VerificationStatus
	}
	if r.Status == "" {
		return "unknown"
	}
	return r.Status
}

// ForceVerifyResult is the backend's answer to an override.
type ForceVerifyResult struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ReportURL string `json:"report_url,omitempty"`
}

// Feed queries submitted inspections.
type Feed struct {
	client *backend.Client
}

// NewFeed builds a feed over the shared backend client.
func NewFeed(client *backend.Client) *Feed {
	return &Feed{client: client}
}

// List fetches all inspection records.
func (f *Feed) List(ctx context.Context) ([]Record, error) {
	var records []Record
	if err := f.client.GetJSON(ctx, "/admin/inspections", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ForceVerify marks a session approved regardless of the AI verdict.
// Administrative use only; the backend records who forced it.
func (f *Feed) ForceVerify(ctx context.Context, sessionID string) (ForceVerifyResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ForceVerifyResult{}, fmt.Errorf("inspect: session id is required")
	}
	var result ForceVerifyResult
	if err := f.client.PostJSON(ctx, "/admin/force-verify/"+sessionID, struct{}{}, &result); err != nil {
		return ForceVerifyResult{}, err
	}
	return result, nil
}
