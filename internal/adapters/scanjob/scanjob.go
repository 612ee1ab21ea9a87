// Package scanjob submits security scan jobs to an out-of-process job runner
//
// The runner receives a container spec over HTTP and schedules it; the
// scanner inside the container downloads the object, scans it and posts the
// result back to the registry's callback endpoint. Submission is
// fire-and-forget: nothing here waits for the scan.
package scanjob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"mpak/internal/platform/config"
	perr "mpak/internal/platform/errors"
	"mpak/internal/platform/logger"
)

// Job is one scan request
type Job struct {
	ScanID string
	Bucket string
	Key    string
}

// Options configures the Dispatcher
type Options struct {
	DispatchURL    string
	DispatchToken  string
	Image          string
	CallbackURL    string
	CallbackSecret string
	ResultBucket   string
	ResultPrefix   string
	Timeout        time.Duration
}

// OptionsFromConf reads the SCAN_ view
func OptionsFromConf(c config.Conf) Options {
	return Options{
		DispatchURL:    c.MayString("DISPATCH_URL", ""),
		DispatchToken:  c.MayString("DISPATCH_TOKEN", ""),
		Image:          c.MayString("IMAGE", "ghcr.io/nimblebraininc/mpak-scanner:latest"),
		CallbackURL:    c.MayString("CALLBACK_URL", ""),
		CallbackSecret: c.MayString("CALLBACK_SECRET", ""),
		ResultBucket:   c.MayString("RESULT_BUCKET", ""),
		ResultPrefix:   c.MayString("RESULT_PREFIX", "scan-results/"),
		Timeout:        c.MayDuration("DISPATCH_TIMEOUT", 10*time.Second),
	}
}

// Spec is the body posted to the job runner
type Spec struct {
	Name   string            `json:"name"`
	Image  string            `json:"image"`
	Args   []string          `json:"args"`
	Env    map[string]string `json:"env"`
	Labels map[string]string `json:"labels,omitempty"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Dispatcher posts job specs to the runner
type Dispatcher struct {
	hc   *http.Client
	opts Options
	log  logger.Logger
}

// New validates the options that every job needs
func New(o Options) (*Dispatcher, error) {
	if o.DispatchURL == "" || o.CallbackURL == "" {
		return nil, perr.Newf(perr.ErrorCodeUnknown, "scanjob: dispatch url and callback url are required")
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	return &Dispatcher{hc: &http.Client{Timeout: o.Timeout}, opts: o, log: *logger.Named("scanjob")}, nil
}

// BuildSpec renders the container spec for j
func (d *Dispatcher) BuildSpec(j Job) Spec {
	short := strings.ReplaceAll(j.ScanID, "-", "")
	if len(short) > 12 {
		short = short[:12]
	}
	resultBucket := d.opts.ResultBucket
	if resultBucket == "" {
		resultBucket = j.Bucket
	}
	return Spec{
		Name:  "mpak-scan-" + short,
		Image: d.opts.Image,
		Args:  []string{"job"},
		Env: map[string]string{
			"BUNDLE_S3_BUCKET": j.Bucket,
			"BUNDLE_S3_KEY":    j.Key,
			"SCAN_ID":          j.ScanID,
			"CALLBACK_URL":     d.opts.CallbackURL,
			"CALLBACK_SECRET":  d.opts.CallbackSecret,
			"RESULT_S3_BUCKET": resultBucket,
			"RESULT_S3_PREFIX": d.opts.ResultPrefix,
		},
		Labels: map[string]string{"app": "mpak-scanner", "scan-id": j.ScanID},
	}
}

// Submit posts the job and returns the runner's job handle
func (d *Dispatcher) Submit(ctx context.Context, j Job) (string, error) {
	spec := d.BuildSpec(j)
	body, err := json.Marshal(spec)
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnknown, "scanjob: encode spec")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.opts.DispatchURL, bytes.NewReader(body))
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnknown, "scanjob: new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if d.opts.DispatchToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.opts.DispatchToken)
	}

	resp, err := d.hc.Do(req)
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUpstreamUnavailable, "scan runner unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.log.Warn().Int("status", resp.StatusCode).Str("body", logger.Sanitize(string(raw), 256)).Msg("scan runner rejected job")
		return "", perr.UpstreamUnavailablef("scan runner returned status %d", resp.StatusCode)
	}
	var out submitResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return "", perr.Wrapf(err, perr.ErrorCodeUpstreamUnavailable, "scan runner sent an unreadable response")
		}
	}
	if out.JobID == "" {
		out.JobID = spec.Name
	}
	d.log.Info().Str("scan_id", j.ScanID).Str("job_id", out.JobID).Msg("scan job submitted")
	return out.JobID, nil
}
