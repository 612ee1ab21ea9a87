// Package service implements the registry publish and download paths
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mpak/internal/core/artifact"
	"mpak/internal/core/ingest"
	"mpak/internal/core/provenance"
	"mpak/internal/core/release"
	"mpak/internal/modkit/repokit"
	perr "mpak/internal/platform/errors"
	"mpak/internal/platform/logger"
	"mpak/internal/platform/store"
	"mpak/internal/services/registry/domain"
)

// CoordinatorConfig bounds the publish transaction
type CoordinatorConfig struct {
	LockTimeout      time.Duration
	StatementTimeout time.Duration
	Retries          int
}

// PublishInput is a verified artifact plus everything declared about it
type PublishInput struct {
	Kind       artifact.Kind
	Name       artifact.Name
	Version    release.Version
	Prerelease bool
	Manifest   json.RawMessage
	ReleaseTag *string
	ReleaseURL *string
	Readme     *string
	ServerJSON json.RawMessage
	Provenance provenance.Record
	Platform   artifact.Platform
	Filename   string
	Stored     ingest.Result
	SourceURL  string
	MimeType   string
}

// PublishOutput is what the transaction committed
type PublishOutput struct {
	PackageID      string
	VersionID      string
	ArtifactID     string
	VersionCreated bool
	Status         domain.Status
	Promoted       bool
	TotalArtifacts int
	OldStorageKey  string
	// PrevProvenance is the document a re-announce replaced
	PrevProvenance provenance.Stored
}

// Coordinator runs the publish unit of work
type Coordinator struct {
	db     repokit.TxRunner
	binder repokit.Binder[domain.Repo]
	cfg    CoordinatorConfig
}

// NewCoordinator wraps db so every publish transaction sets its own lock and statement timeouts
func NewCoordinator(db repokit.TxRunner, binder repokit.Binder[domain.Repo], cfg CoordinatorConfig) *Coordinator {
	if db == nil {
		panic("registry.Coordinator requires a non-nil TxRunner")
	}
	if binder == nil {
		panic("registry.Coordinator requires a non-nil Repo binder")
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	var hooks []repokit.BeginHook
	if cfg.LockTimeout > 0 {
		hooks = append(hooks, setLocal("lock_timeout", cfg.LockTimeout))
	}
	if cfg.StatementTimeout > 0 {
		hooks = append(hooks, setLocal("statement_timeout", cfg.StatementTimeout))
	}
	return &Coordinator{db: repokit.WithBeginHooks(db, hooks...), binder: binder, cfg: cfg}
}

func setLocal(name string, d time.Duration) repokit.BeginHook {
	stmt := fmt.Sprintf("SET LOCAL %s = %d", name, d.Milliseconds())
	return func(ctx context.Context, q repokit.Queryer) error {
		_, err := q.Exec(ctx, stmt)
		return err
	}
}

// Publish registers the artifact. The namespace check runs before any write;
// serialization failures are retried, everything else rolls back and returns.
func (c *Coordinator) Publish(ctx context.Context, in PublishInput) (PublishOutput, error) {
	log := logger.C(ctx)
	if !in.Name.OwnedBy(in.Provenance.RepositoryOwner) {
		log.Warn().
			Str("scope", logger.Sanitize(in.Name.Scope, 64)).
			Str("repository_owner", logger.Sanitize(in.Provenance.RepositoryOwner, 64)).
			Msg("publish rejected: scope not owned by repository owner")
		return PublishOutput{}, perr.WithField(
			perr.Forbiddenf("scope @%s does not belong to %s", in.Name.Scope, in.Provenance.RepositoryOwner), "name")
	}

	provJSON, err := json.Marshal(in.Provenance)
	if err != nil {
		return PublishOutput{}, perr.Wrapf(err, perr.ErrorCodeUnknown, "encode provenance")
	}
	provDigest, err := in.Provenance.Digest()
	if err != nil {
		return PublishOutput{}, err
	}

	var out PublishOutput
	for attempt := 0; ; attempt++ {
		err = store.RunSerializable(ctx, c.db, func(ctx context.Context, q store.RowQuerier) error {
			var terr error
			out, terr = c.publishTx(ctx, c.binder.Bind(q), in, provJSON, provDigest.String())
			return terr
		})
		if err == nil {
			auditReplaced(ctx, in, out.PrevProvenance)
			return out, nil
		}
		if !perr.IsRetryable(err) {
			break
		}
		if attempt >= c.cfg.Retries {
			log.Warn().Err(err).Int("attempts", attempt+1).Msg("publish transaction retries exhausted")
			return PublishOutput{}, perr.Wrap(err, perr.ErrorCodeConflict, "concurrent publish in progress, retry")
		}
		log.Debug().Err(err).Int("attempt", attempt+1).Msg("publish transaction retry")
	}
	if _, ok := perr.As(err); ok {
		return PublishOutput{}, err
	}
	return PublishOutput{}, perr.FromPostgresWithField(err, "publish failed")
}

func (c *Coordinator) publishTx(
	ctx context.Context, r domain.Repo, in PublishInput, provJSON []byte, provDigest string,
) (PublishOutput, error) {
	pkg, err := r.UpsertPackage(ctx, domain.PackageUpsert{
		Kind:       in.Kind,
		Name:       in.Name.String(),
		ClaimedBy:  in.Provenance.RepositoryOwner,
		SourceRepo: in.Provenance.Repository,
	})
	if err != nil {
		return PublishOutput{}, err
	}
	latest, err := r.LockLatest(ctx, pkg.ID)
	if err != nil {
		return PublishOutput{}, err
	}

	ver, err := r.UpsertVersion(ctx, domain.VersionUpsert{
		PackageID:        pkg.ID,
		Version:          in.Version.String(),
		Manifest:         in.Manifest,
		Prerelease:       in.Prerelease,
		ReleaseTag:       in.ReleaseTag,
		ReleaseURL:       in.ReleaseURL,
		Readme:           in.Readme,
		ServerJSON:       in.ServerJSON,
		Provenance:       provJSON,
		ProvenanceDigest: provDigest,
		PublishedBy:      in.Provenance.Repository,
	})
	if err != nil {
		return PublishOutput{}, err
	}

	prev, err := provenance.Decode(ver.PrevProvenance)
	if err != nil {
		// an unreadable old document is overwritten, never fatal
		logger.C(ctx).Warn().Err(err).Str("version_id", ver.ID).Msg("stored provenance unreadable")
	}

	promoted, err := c.repoint(ctx, r, pkg.ID, in, ver.Created, latest)
	if err != nil {
		return PublishOutput{}, err
	}

	art, err := r.UpsertArtifact(ctx, domain.ArtifactUpsert{
		VersionID:  ver.ID,
		Platform:   in.Platform,
		Filename:   in.Filename,
		Digest:     in.Stored.SHA256(),
		Size:       in.Stored.Size,
		StorageKey: in.Stored.Key,
		SourceURL:  in.SourceURL,
		MimeType:   in.MimeType,
	})
	if err != nil {
		return PublishOutput{}, err
	}

	total, err := r.CountArtifacts(ctx, ver.ID)
	if err != nil {
		return PublishOutput{}, err
	}

	status := domain.StatusUpdated
	if art.Created {
		status = domain.StatusCreated
	}
	return PublishOutput{
		PackageID:      pkg.ID,
		VersionID:      ver.ID,
		ArtifactID:     art.ID,
		VersionCreated: ver.Created,
		Status:         status,
		Promoted:       promoted,
		TotalArtifacts: total,
		OldStorageKey:  art.OldStorageKey,
		PrevProvenance: prev,
	}, nil
}

// repoint keeps latest on a stable version whenever one exists. New versions
// follow release.ShouldPromote; a re-announce can also flip the prerelease
// flag of an existing version, which may demote the current latest or give
// a prerelease-only package its first stable version.
func (c *Coordinator) repoint(
	ctx context.Context, r domain.Repo, packageID string, in PublishInput, created bool, latest *release.Latest,
) (bool, error) {
	version := in.Version.String()
	target := ""
	switch {
	case release.ShouldPromote(created, in.Prerelease, latest):
		target = version
	case created || latest == nil || latest.Version == "":
	case !in.Prerelease && latest.Prerelease:
		target = version
	case in.Prerelease && !latest.Prerelease && latest.Version == version:
		stable, err := r.NewestStable(ctx, packageID)
		if err != nil {
			return false, err
		}
		// with no stable version left the demoted one stays latest
		if stable != "" && stable != version {
			target = stable
		}
	}
	if target == "" {
		return false, nil
	}
	if err := r.SetLatest(ctx, packageID, target); err != nil {
		return false, err
	}
	return target == version, nil
}

// auditReplaced logs a committed re-announce whose provenance came from a
// different repository or commit than the record it replaced
func auditReplaced(ctx context.Context, in PublishInput, prev provenance.Stored) {
	if prev.Empty() {
		return
	}
	ev := logger.C(ctx).Info().
		Str("package", in.Name.String()).
		Str("version", in.Version.String()).
		Str("repository", logger.Sanitize(in.Provenance.Repository, 128)).
		Str("sha", logger.Sanitize(in.Provenance.SHA, 64))
	if prev.V1 == nil {
		ev.Msg("legacy provenance replaced")
		return
	}
	if prev.V1.Repository == in.Provenance.Repository && prev.V1.SHA == in.Provenance.SHA {
		return
	}
	ev.Str("prev_repository", logger.Sanitize(prev.V1.Repository, 128)).
		Str("prev_sha", logger.Sanitize(prev.V1.SHA, 64)).
		Msg("provenance replaced by re-announce")
}
