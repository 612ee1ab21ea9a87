// Package github resolves releases and release assets on the GitHub REST v3 API
//
// The client never retries: an announce is driven by CI, and CI owns the retry
// policy. A throttled token is parked until its window resets and later calls
// rotate past it; when every token is parked calls fail without a request.
// Failures map to upstream_not_found (release or asset absent) or
// upstream_unavailable (transport, rate limit, 5xx).
package github

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"mpak/internal/platform/config"
	perr "mpak/internal/platform/errors"
	"mpak/internal/platform/logger"
)

const (
	baseURLDefault         = "https://api.github.com"
	defaultTimeout         = 10 * time.Second
	defaultDownloadTimeout = 10 * time.Minute
	defaultUA              = "mpak-registry"
)

// Options configures the Client
type Options struct {
	BaseURL   string
	UserAgent string

	// Timeout bounds metadata calls (release lookup, readme, companions)
	Timeout time.Duration
	// DownloadTimeout bounds one asset stream from request to last byte
	DownloadTimeout time.Duration

	// Comma separated tokens; empty means anonymous, which has a very low quota
	TokensCSV string
}

// OptionsFromConf reads the GITHUB_ view
func OptionsFromConf(c config.Conf) Options {
	return Options{
		BaseURL:         c.MayString("BASE_URL", baseURLDefault),
		UserAgent:       c.MayString("UA", defaultUA),
		Timeout:         c.MayDuration("TIMEOUT", defaultTimeout),
		DownloadTimeout: c.MayDuration("DOWNLOAD_TIMEOUT", defaultDownloadTimeout),
		TokensCSV:       strings.Join(c.MayCSV("TOKENS", nil), ","),
	}
}

// Client is a minimal GitHub REST client with token rotation
type Client struct {
	api    *http.Client
	dl     *http.Client
	opts   Options
	tokens []string
	cur    atomic.Int32
	quota  quota
	log    logger.Logger
	now    func() time.Time
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = defaultDownloadTimeout
	}
	var toks []string
	if s := strings.TrimSpace(o.TokensCSV); s != "" {
		for t := range strings.SplitSeq(s, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				toks = append(toks, t)
			}
		}
	}
	return &Client{
		api:    &http.Client{Timeout: o.Timeout},
		dl:     &http.Client{}, // bounded per request by DownloadTimeout
		opts:   o,
		tokens: toks,
		log:    *logger.Named("github"),
		now:    time.Now,
	}
}

// pickToken returns the next usable token in round robin order. When every
// token is parked it reports false and the earliest time one frees up.
func (c *Client) pickToken(now time.Time) (string, time.Time, bool) {
	if len(c.tokens) == 0 {
		until, parked := c.quota.parked("", now)
		return "", until, !parked
	}
	start := int(c.cur.Add(1))
	var earliest time.Time
	for i := range c.tokens {
		tok := c.tokens[(start+i)%len(c.tokens)]
		until, parked := c.quota.parked(tok, now)
		if !parked {
			return tok, time.Time{}, true
		}
		if earliest.IsZero() || until.Before(earliest) {
			earliest = until
		}
	}
	return "", earliest, false
}

// do issues one request and maps the outcome; the caller closes the body on success
// url may be absolute (asset download urls) or a path under BaseURL
func (c *Client) do(ctx context.Context, hc *http.Client, url, accept string) (*http.Response, error) {
	if strings.HasPrefix(url, "/") {
		url = c.opts.BaseURL + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "github new request failed")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	tok, resume, ok := c.pickToken(c.now())
	if !ok {
		c.log.Warn().Time("resume_at", resume).Msg("github quota exhausted, request not sent")
		return nil, rateLimited(resume)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := c.now()
	resp, err := hc.Do(req)
	lat := c.now().Sub(start)
	if err != nil {
		c.log.Warn().Err(err).Dur("latency", lat).Msg("github transport error")
		return nil, perr.Wrapf(err, perr.ErrorCodeUpstreamUnavailable, "release host unreachable")
	}

	rl := readRateLimit(resp.Header)
	c.log.Debug().
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("latency", lat).
		Int("rate_remaining", rl.remaining).
		Time("rate_reset", rl.reset).
		Dur("retry_after", rl.retryAfter).
		Msg("github http response")
	resume = rl.resumeAt(c.now())

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if !resume.IsZero() {
			c.quota.park(tok, resume)
		}
		return resp, nil
	case resp.StatusCode == http.StatusNotFound:
		_ = drainAndClose(resp.Body)
		return nil, perr.UpstreamNotFoundf("not found on release host")
	case resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode == http.StatusForbidden && rl.remaining == 0):
		_ = drainAndClose(resp.Body)
		if resume.IsZero() {
			resume = c.now().Add(fallbackBackoff)
		}
		c.quota.park(tok, resume)
		c.log.Warn().Time("resume_at", resume).Int("tokens", len(c.tokens)).Msg("github rate limited, token parked")
		return nil, rateLimited(resume)
	default:
		// body stays in the log only, never in the client-facing message
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		_ = resp.Body.Close()
		c.log.Warn().Int("status", resp.StatusCode).Str("body", logger.Sanitize(string(body), 512)).Msg("github unexpected status")
		return nil, perr.UpstreamUnavailablef("release host returned status %d", resp.StatusCode)
	}
}

func rateLimited(resume time.Time) error {
	return perr.UpstreamUnavailablef("release host rate limited, retry after %s", resume.UTC().Format(time.RFC3339))
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 512))
	return rc.Close()
}
