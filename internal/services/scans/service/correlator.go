// Package service correlates published artifacts with their security scans
package service

import (
	"context"
	"crypto/subtle"
	"strings"

	"mpak/internal/adapters/scanjob"
	"mpak/internal/core/scanreport"
	"mpak/internal/modkit/repokit"
	perr "mpak/internal/platform/errors"
	"mpak/internal/platform/logger"
	"mpak/internal/services/scans/domain"

	"github.com/google/uuid"
)

const maxErrorLen = 2000

// Submitter hands a scan job to the out-of-process runner
type Submitter interface {
	Submit(ctx context.Context, j scanjob.Job) (string, error)
}

// Correlator creates scan records, submits jobs and applies callbacks
type Correlator struct {
	db     repokit.Queryer
	binder repokit.Binder[domain.Repo]
	jobs   Submitter
	bucket string
	secret []byte
	newID  func() string
}

// Config names the object bucket scanned jobs read from and the callback secret
type Config struct {
	Bucket         string
	CallbackSecret string
}

// New builds a Correlator; jobs may be nil when only callbacks are served
func New(db repokit.Queryer, binder repokit.Binder[domain.Repo], jobs Submitter, cfg Config) *Correlator {
	if db == nil {
		panic("scans.Correlator requires a non-nil Queryer")
	}
	if binder == nil {
		panic("scans.Correlator requires a non-nil Repo binder")
	}
	return &Correlator{
		db:     db,
		binder: binder,
		jobs:   jobs,
		bucket: cfg.Bucket,
		secret: []byte(cfg.CallbackSecret),
		newID:  uuid.NewString,
	}
}

// Trigger records a pending scan and submits its job. A failed submission
// leaves the row pending for an operator sweep.
func (c *Correlator) Trigger(ctx context.Context, versionID, storageKey string) error {
	if c.jobs == nil {
		return nil
	}
	repo := c.binder.Bind(c.db)
	scanID := c.newID()
	log := logger.C(ctx).With().Str("scan_id", scanID).Str("version_id", versionID).Logger()

	if err := repo.Insert(ctx, domain.Pending{ScanID: scanID, VersionID: versionID, StorageKey: storageKey}); err != nil {
		return perr.FromPostgresWithField(err, "record scan")
	}
	jobID, err := c.jobs.Submit(ctx, scanjob.Job{ScanID: scanID, Bucket: c.bucket, Key: storageKey})
	if err != nil {
		log.Warn().Err(err).Msg("scan job submission failed, scan left pending")
		return err
	}
	if err := repo.MarkScanning(ctx, scanID, jobID); err != nil {
		return perr.FromPostgresWithField(err, "mark scan started")
	}
	log.Info().Str("job_id", jobID).Msg("scan job submitted")
	return nil
}

// Callback applies a scanner result. Unknown scans and scans already in a
// terminal state are acknowledged without change.
func (c *Correlator) Callback(ctx context.Context, secret string, in domain.CallbackInput) (domain.CallbackOutput, error) {
	if len(c.secret) == 0 {
		return domain.CallbackOutput{}, perr.Unavailablef("scan callbacks are not configured")
	}
	if subtle.ConstantTimeCompare([]byte(secret), c.secret) != 1 {
		return domain.CallbackOutput{}, perr.Unauthorizedf("invalid callback secret")
	}

	comp, err := completion(in)
	if err != nil {
		return domain.CallbackOutput{}, err
	}
	log := logger.C(ctx).With().Str("scan_id", logger.Sanitize(in.ScanID, 64)).Logger()

	repo := c.binder.Bind(c.db)
	applied, err := repo.Complete(ctx, comp)
	if err != nil {
		return domain.CallbackOutput{}, perr.FromPostgresWithField(err, "record scan result")
	}
	if !applied {
		c.ignored(ctx, repo, comp)
		return domain.CallbackOutput{Success: true}, nil
	}

	ev := log.Info().Str("status", string(comp.Status))
	if comp.RiskScore != nil {
		ev = ev.Str("risk_score", *comp.RiskScore)
	}
	ev.Msg("scan completed")
	return domain.CallbackOutput{Success: true}, nil
}

// ignored records why a callback changed nothing. Unknown scan ids are worth
// a warning since the runner only learns ids from Trigger.
func (c *Correlator) ignored(ctx context.Context, repo domain.Repo, comp domain.Completion) {
	log := logger.C(ctx).With().Str("scan_id", logger.Sanitize(comp.ScanID, 64)).Logger()
	sc, err := repo.Get(ctx, comp.ScanID)
	switch {
	case perr.IsCode(err, perr.ErrorCodeNotFound):
		log.Warn().Msg("scan callback for unknown scan")
	case err != nil:
		log.Warn().Err(err).Msg("scan callback ignored, lookup failed")
	default:
		log.Debug().Str("status", string(sc.Status)).Str("callback_status", string(comp.Status)).
			Msg("scan callback ignored, scan already terminal")
	}
}

func completion(in domain.CallbackInput) (domain.Completion, error) {
	scanID := strings.TrimSpace(in.ScanID)
	if scanID == "" {
		return domain.Completion{}, perr.WithField(perr.Validationf("scan_id is required"), "scan_id")
	}
	st := domain.Status(strings.ToLower(strings.TrimSpace(in.Status)))
	if !st.Terminal() {
		return domain.Completion{}, perr.WithField(perr.Validationf("status must be completed or failed"), "status")
	}
	out := domain.Completion{ScanID: scanID, Status: st}

	if in.RiskScore != "" {
		risk, ok := scanreport.NormalizeRisk(in.RiskScore)
		if !ok {
			return domain.Completion{}, perr.WithField(perr.Validationf("unknown risk_score %q", in.RiskScore), "risk_score")
		}
		out.RiskScore = &risk
	}
	if u := strings.TrimSpace(in.ReportS3URI); u != "" {
		out.ReportURI = &u
	}
	if e := strings.TrimSpace(in.Error); e != "" {
		e = logger.Sanitize(e, maxErrorLen)
		out.Error = &e
	}

	rep, err := scanreport.Decode(in.Report)
	if err != nil {
		return domain.Completion{}, err
	}
	if rep.Present() {
		out.Report = rep.Raw
		out.Summary = rep.Summary()
		if out.RiskScore == nil && rep.V1 != nil && rep.V1.RiskScore != "" {
			if risk, ok := scanreport.NormalizeRisk(rep.V1.RiskScore); ok {
				out.RiskScore = &risk
			}
		}
	}
	return out, nil
}
