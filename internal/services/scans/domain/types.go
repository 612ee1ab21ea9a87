// Package domain holds the scan correlation types and ports
package domain

import (
	"context"
	"encoding/json"
	"time"

	"mpak/internal/core/scanreport"
)

// Status is the lifecycle state of a SecurityScan
type Status string

const (
	StatusPending   Status = "pending"
	StatusScanning  Status = "scanning"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports completed or failed
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Scan is one analysis run of a published artifact
type Scan struct {
	ID          string
	ScanID      string
	VersionID   string
	Status      Status
	JobID       *string
	StorageKey  string
	RiskScore   *string
	ReportURI   *string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Pending is the row written before a job is requested
type Pending struct {
	ScanID     string
	VersionID  string
	StorageKey string
}

// Completion is the single terminal update applied by a callback
type Completion struct {
	ScanID    string
	Status    Status
	RiskScore *string
	Report    json.RawMessage
	ReportURI *string
	Error     *string
	Summary   scanreport.Summary
}

// CallbackInput is the decoded scanner callback body
type CallbackInput struct {
	ScanID      string          `json:"scan_id"`
	Status      string          `json:"status"`
	RiskScore   string          `json:"risk_score,omitempty"`
	Report      json.RawMessage `json:"report,omitempty"`
	ReportS3URI string          `json:"report_s3_uri,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// CallbackOutput is always success for an authenticated, well formed callback
type CallbackOutput struct {
	Success bool `json:"success"`
}

// Repo is the scan storage
type Repo interface {
	Insert(ctx context.Context, p Pending) error
	// MarkScanning records the job handle of a pending scan
	MarkScanning(ctx context.Context, scanID, jobID string) error
	// Complete applies c unless the scan is unknown or already terminal; applied reports a change
	Complete(ctx context.Context, c Completion) (applied bool, err error)
	Get(ctx context.Context, scanID string) (Scan, error)
}

// CorrelatorPort is what the HTTP layer depends on
type CorrelatorPort interface {
	Callback(ctx context.Context, secret string, in CallbackInput) (CallbackOutput, error)
}
