// Package oidc verifies CI identity tokens issued by GitHub Actions
//
// Signatures are checked against the issuer's JWKS; the key set is fetched
// lazily and refetched when a token carries an unknown key id, so issuer key
// rotation needs no restart.
package oidc

import (
	"context"
	"strings"
	"time"

	"mpak/internal/core/provenance"
	"mpak/internal/platform/config"
	perr "mpak/internal/platform/errors"
	"mpak/internal/platform/logger"

	"github.com/coreos/go-oidc/v3/oidc"
)

const (
	// IssuerGitHubActions is the token issuer for GitHub Actions workflows
	IssuerGitHubActions = "https://token.actions.githubusercontent.com"
	defaultAudience     = "mpak"
)

// Claims is the fixed set of repository claims a publish relies on
type Claims = provenance.Claims

// Options configures the Verifier
type Options struct {
	Issuer   string
	Audience string
	// JWKSURL defaults to Issuer + "/.well-known/jwks"
	JWKSURL string
}

// OptionsFromConf reads the OIDC_ view
func OptionsFromConf(c config.Conf) Options {
	return Options{
		Issuer:   c.MayString("ISSUER", IssuerGitHubActions),
		Audience: c.MayString("AUDIENCE", defaultAudience),
		JWKSURL:  c.MayString("JWKS_URL", ""),
	}
}

// Verifier validates bearer tokens
type Verifier struct {
	v   *oidc.IDTokenVerifier
	log logger.Logger
}

// New builds a Verifier backed by the issuer's remote key set
// ctx scopes the key set's background fetches and should live as long as the process
func New(ctx context.Context, o Options) *Verifier {
	if o.Issuer == "" {
		o.Issuer = IssuerGitHubActions
	}
	if o.Audience == "" {
		o.Audience = defaultAudience
	}
	if o.JWKSURL == "" {
		o.JWKSURL = strings.TrimRight(o.Issuer, "/") + "/.well-known/jwks"
	}
	return NewWithKeySet(oidc.NewRemoteKeySet(ctx, o.JWKSURL), o, time.Now)
}

// NewWithKeySet builds a Verifier over any key set, used by tests with a static set
func NewWithKeySet(ks oidc.KeySet, o Options, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		v: oidc.NewVerifier(o.Issuer, ks, &oidc.Config{
			ClientID:             o.Audience,
			SupportedSigningAlgs: []string{oidc.RS256, oidc.ES256},
			Now:                  now,
		}),
		log: *logger.Named("oidc"),
	}
}

// Verify checks signature, issuer, audience and expiry and returns the claims
// every failure is unauthorized; token contents are never logged
func (v *Verifier) Verify(ctx context.Context, raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, perr.Unauthorizedf("missing identity token")
	}
	tok, err := v.v.Verify(ctx, raw)
	if err != nil {
		v.log.Warn().Str("reason", logger.Sanitize(err.Error(), 200)).Msg("identity token rejected")
		return Claims{}, perr.Wrapf(err, perr.ErrorCodeUnauthorized, "invalid identity token")
	}
	var c Claims
	if err := tok.Claims(&c); err != nil {
		return Claims{}, perr.Wrapf(err, perr.ErrorCodeUnauthorized, "invalid identity token claims")
	}
	if c.Repository == "" || c.RepositoryOwner == "" {
		return Claims{}, perr.Unauthorizedf("identity token lacks repository claims")
	}
	if owner, _, ok := strings.Cut(c.Repository, "/"); !ok || !strings.EqualFold(owner, c.RepositoryOwner) {
		return Claims{}, perr.Unauthorizedf("identity token repository claims disagree")
	}
	return c, nil
}
