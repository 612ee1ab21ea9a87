package service

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"mpak/internal/adapters/github"
	"mpak/internal/core/artifact"
	"mpak/internal/core/ingest"
	"mpak/internal/core/manifest"
	"mpak/internal/core/provenance"
	"mpak/internal/core/release"
	"mpak/internal/platform/async"
	perr "mpak/internal/platform/errors"
	"mpak/internal/platform/logger"
	"mpak/internal/services/registry/domain"

	"github.com/google/uuid"
)

const (
	companionServerJSON = "server.json"
	companionSkillMD    = "SKILL.md"
)

// Verifier checks CI identity tokens
type Verifier interface {
	Verify(ctx context.Context, raw string) (provenance.Claims, error)
}

// Releases is the release host
type Releases interface {
	Release(ctx context.Context, repo, tag string) (github.Release, error)
	OpenAsset(ctx context.Context, a github.Asset) (io.ReadCloser, int64, error)
	Companion(ctx context.Context, rel github.Release, name string) ([]byte, bool)
	Readme(ctx context.Context, repo, ref string) (string, error)
}

// ScanTrigger starts a security scan for a published artifact
type ScanTrigger interface {
	Trigger(ctx context.Context, versionID, storageKey string) error
}

// AnnouncerConfig limits what a publish may bring in
type AnnouncerConfig struct {
	MaxArtifactBytes int64
}

// Announcer runs the whole publish pipeline for one request
type Announcer struct {
	verifier   Verifier
	releases   Releases
	blobs      ingest.Store
	coord      *Coordinator
	reconciler *Reconciler
	scans      ScanTrigger
	spawner    async.Spawner
	cfg        AnnouncerConfig
	newAttempt func() string
}

// AnnouncerDeps wires an Announcer; Scans may be nil when scanning is disabled
type AnnouncerDeps struct {
	Verifier    Verifier
	Releases    Releases
	Blobs       ingest.Store
	Coordinator *Coordinator
	Reconciler  *Reconciler
	Scans       ScanTrigger
	Spawner     async.Spawner
}

// NewAnnouncer builds an Announcer
func NewAnnouncer(d AnnouncerDeps, cfg AnnouncerConfig) *Announcer {
	if d.Verifier == nil || d.Releases == nil || d.Blobs == nil || d.Coordinator == nil || d.Reconciler == nil {
		panic("registry.Announcer requires verifier, releases, blobs, coordinator and reconciler")
	}
	if d.Spawner == nil {
		d.Spawner = async.Inline{}
	}
	if cfg.MaxArtifactBytes <= 0 {
		cfg.MaxArtifactBytes = 512 << 20
	}
	return &Announcer{
		verifier:   d.Verifier,
		releases:   d.Releases,
		blobs:      d.Blobs,
		coord:      d.Coordinator,
		reconciler: d.Reconciler,
		scans:      d.Scans,
		spawner:    d.Spawner,
		cfg:        cfg,
		newAttempt: uuid.NewString,
	}
}

// checked is an announce after local validation
type checked struct {
	name     artifact.Name
	version  release.Version
	platform artifact.Platform
	manifest json.RawMessage
}

// Announce validates the request, verifies the caller, pulls the release
// asset through verified ingestion and registers it. A failure leaves no row and no object behind.
func (a *Announcer) Announce(ctx context.Context, kind artifact.Kind, token string, in domain.AnnounceInput) (domain.AnnounceOutput, error) {
	if !kind.Valid() {
		return domain.AnnounceOutput{}, perr.Validationf("unknown artifact kind %q", kind)
	}
	// malformed requests never reach the key set or the release host
	c, err := a.check(kind, in)
	if err != nil {
		return domain.AnnounceOutput{}, err
	}
	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return domain.AnnounceOutput{}, err
	}
	ctx = logger.WithPublisher(ctx, logger.Sanitize(claims.Repository, 140))
	log := logger.C(ctx)
	if !c.name.OwnedBy(claims.RepositoryOwner) {
		log.Warn().Str("scope", c.name.Scope).Msg("announce rejected: scope not owned by repository owner")
		return domain.AnnounceOutput{}, perr.WithField(
			perr.Forbiddenf("scope @%s does not belong to %s", c.name.Scope, claims.RepositoryOwner), "name")
	}

	rel, err := a.releases.Release(ctx, claims.Repository, in.ReleaseTag)
	if err != nil {
		return domain.AnnounceOutput{}, err
	}
	asset, ok := rel.Asset(in.Artifact.Filename)
	if !ok {
		return domain.AnnounceOutput{}, perr.WithField(
			perr.UpstreamNotFoundf("asset %s not found in release %s", in.Artifact.Filename, in.ReleaseTag), "artifact.filename")
	}
	if asset.Size != in.Artifact.Size {
		return domain.AnnounceOutput{}, perr.WithField(
			perr.Integrityf("declared size %d does not match release asset size %d", in.Artifact.Size, asset.Size), "artifact.size")
	}

	var serverJSON json.RawMessage
	switch kind {
	case artifact.KindBundle:
		if b, found := a.releases.Companion(ctx, rel, companionServerJSON); found {
			if json.Valid(b) {
				serverJSON = b
			} else {
				log.Warn().Msg("server.json in release is not valid JSON, ignored")
			}
		}
	case artifact.KindSkill:
		if len(c.manifest) == 0 {
			md, found := a.releases.Companion(ctx, rel, companionSkillMD)
			if !found {
				return domain.AnnounceOutput{}, perr.WithField(
					perr.Validationf("manifest is required when the release has no SKILL.md"), "manifest")
			}
			if c.manifest, err = skillManifest(md); err != nil {
				return domain.AnnounceOutput{}, err
			}
		}
	}

	var readme *string
	if md, err := a.releases.Readme(ctx, claims.Repository, in.ReleaseTag); err != nil {
		log.Warn().Err(err).Msg("readme fetch failed, keeping stored readme")
	} else if md != "" {
		readme = &md
	}

	body, _, err := a.releases.OpenAsset(ctx, asset)
	if err != nil {
		return domain.AnnounceOutput{}, err
	}
	defer func() { _ = body.Close() }()

	key := artifact.StorageKey(c.name, c.version.String(), a.newAttempt(), kind, c.platform)
	stored, err := ingest.Ingest(ctx, a.blobs, ingest.Request{
		Key:         key,
		Body:        body,
		Size:        in.Artifact.Size,
		SHA256:      in.Artifact.SHA256,
		ContentType: kind.MimeType(),
	})
	if err != nil {
		return domain.AnnounceOutput{}, err
	}

	tag := in.ReleaseTag
	var relURL *string
	if rel.HTMLURL != "" {
		u := rel.HTMLURL
		relURL = &u
	}
	out, err := a.coord.Publish(ctx, PublishInput{
		Kind:       kind,
		Name:       c.name,
		Version:    c.version,
		Prerelease: release.IsPrerelease(c.version, in.Prerelease),
		Manifest:   c.manifest,
		ReleaseTag: &tag,
		ReleaseURL: relURL,
		Readme:     readme,
		ServerJSON: serverJSON,
		Provenance: provenance.FromClaims(claims),
		Platform:   c.platform,
		Filename:   in.Artifact.Filename,
		Stored:     stored,
		SourceURL:  asset.DownloadURL,
		MimeType:   kind.MimeType(),
	})
	if err != nil {
		a.reconciler.AfterRollback(ctx, stored.Key)
		return domain.AnnounceOutput{}, err
	}
	a.reconciler.AfterCommit(ctx, out.OldStorageKey)

	if a.scans != nil {
		versionID := out.VersionID
		a.spawner.Go(ctx, "scan.trigger", func(ctx context.Context) error {
			return a.scans.Trigger(ctx, versionID, stored.Key)
		})
	}

	log.Info().
		Str("package", c.name.String()).
		Str("version", c.version.String()).
		Str("platform", c.platform.String()).
		Str("status", string(out.Status)).
		Bool("promoted", out.Promoted).
		Int("total_artifacts", out.TotalArtifacts).
		Msg("announce committed")

	return domain.AnnounceOutput{
		Package: c.name.String(),
		Version: c.version.String(),
		Artifact: domain.AnnouncedFile{
			OS:       c.platform.OS,
			Arch:     c.platform.Arch,
			Filename: in.Artifact.Filename,
		},
		TotalArtifacts: out.TotalArtifacts,
		Status:         out.Status,
	}, nil
}

// check validates everything that needs no network
func (a *Announcer) check(kind artifact.Kind, in domain.AnnounceInput) (checked, error) {
	var c checked
	var err error
	if c.name, err = artifact.ParseName(in.Name); err != nil {
		return c, err
	}
	if c.version, err = release.Parse(in.Version); err != nil {
		return c, err
	}
	if strings.TrimSpace(in.ReleaseTag) == "" {
		return c, perr.WithField(perr.Validationf("release_tag is required"), "release_tag")
	}
	if err := artifact.ValidateFilename(kind, in.Artifact.Filename); err != nil {
		return c, err
	}
	if _, err := ingest.ParseSHA256(in.Artifact.SHA256); err != nil {
		return c, err
	}
	if in.Artifact.Size <= 0 {
		return c, perr.WithField(perr.Validationf("artifact size must be positive"), "artifact.size")
	}
	if in.Artifact.Size > a.cfg.MaxArtifactBytes {
		return c, perr.WithField(perr.Validationf("artifact exceeds %d bytes", a.cfg.MaxArtifactBytes), "artifact.size")
	}

	if kind == artifact.KindSkill {
		c.platform = artifact.Universal
	} else if c.platform, err = artifact.ParsePlatform(in.Artifact.OS, in.Artifact.Arch); err != nil {
		return c, err
	}

	switch {
	case len(in.Manifest) > 0 && string(in.Manifest) != "null":
		if _, err := manifest.Validate(kind, in.Manifest); err != nil {
			return c, err
		}
		c.manifest = in.Manifest
	case kind == artifact.KindBundle:
		return c, perr.WithField(perr.Validationf("manifest is required"), "manifest")
	}
	return c, nil
}

func skillManifest(md []byte) (json.RawMessage, error) {
	raw, err := manifest.Frontmatter(md)
	if err != nil {
		return nil, err
	}
	if _, err := manifest.Validate(artifact.KindSkill, raw); err != nil {
		return nil, err
	}
	return raw, nil
}
