// Package repo is the Postgres store for security scans
package repo

import (
	"context"
	"encoding/json"

	"mpak/internal/modkit/repokit"
	perr "mpak/internal/platform/errors"
	"mpak/internal/platform/store"
	"mpak/internal/services/scans/domain"
)

type (
	// PG is a Postgres binder for domain.Repo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

var _ domain.Repo = (*queries)(nil)

// NewPG returns a Postgres binder for domain.Repo
func NewPG() repokit.Binder[domain.Repo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.Repo { return &queries{q: q} }

func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (r *queries) Insert(ctx context.Context, p domain.Pending) error {
	return store.ExecOne(ctx, r.q, `
		INSERT INTO security_scans (version_id, scan_id, status, storage_key)
		VALUES ($1::uuid, $2, 'pending', $3)`,
		p.VersionID, p.ScanID, p.StorageKey)
}

// MarkScanning only moves pending rows; a callback that raced ahead wins
func (r *queries) MarkScanning(ctx context.Context, scanID, jobID string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE security_scans
		SET status = 'scanning', job_id = $2, started_at = now()
		WHERE scan_id = $1 AND status = 'pending'`,
		scanID, jobID)
	return err
}

// Complete is a single guarded update so concurrent callbacks apply once
func (r *queries) Complete(ctx context.Context, c domain.Completion) (bool, error) {
	s := c.Summary
	tag, err := r.q.Exec(ctx, `
		UPDATE security_scans SET
			status                = $2,
			risk_score            = $3,
			report                = $4::jsonb,
			report_uri            = $5,
			error                 = $6,
			report_version        = $7,
			findings_total        = $8,
			findings_critical     = $9,
			findings_high         = $10,
			findings_medium       = $11,
			findings_low          = $12,
			findings_info         = $13,
			compliance_level      = $14,
			compliance_level_name = $15,
			controls_passed       = $16,
			controls_failed       = $17,
			controls_total        = $18,
			completed_at          = now()
		WHERE scan_id = $1 AND status IN ('pending', 'scanning')`,
		c.ScanID, string(c.Status), c.RiskScore, jsonArg(c.Report), c.ReportURI, c.Error,
		s.ReportVersion, s.FindingsTotal, s.FindingsCritical, s.FindingsHigh, s.FindingsMedium,
		s.FindingsLow, s.FindingsInfo, s.ComplianceLevel, s.ComplianceLevelName,
		s.ControlsPassed, s.ControlsFailed, s.ControlsTotal,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *queries) Get(ctx context.Context, scanID string) (domain.Scan, error) {
	sc, err := store.One(ctx, r.q, func(row store.Row) (domain.Scan, error) {
		var s domain.Scan
		var status string
		err := row.Scan(&s.ID, &s.ScanID, &s.VersionID, &status, &s.JobID, &s.StorageKey,
			&s.RiskScore, &s.ReportURI, &s.CreatedAt, &s.StartedAt, &s.CompletedAt)
		s.Status = domain.Status(status)
		return s, err
	}, `
		SELECT id::text, scan_id, version_id::text, status, job_id, storage_key,
		       risk_score, report_uri, created_at, started_at, completed_at
		FROM security_scans
		WHERE scan_id = $1`, scanID)
	if perr.IsCode(err, perr.ErrorCodeNotFound) {
		return domain.Scan{}, perr.NotFoundf("scan %s not found", scanID)
	}
	return sc, err
}
