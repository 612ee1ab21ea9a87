package service

import (
	"context"
	"strings"
	"time"

	"mpak/internal/core/artifact"
	"mpak/internal/core/release"
	"mpak/internal/modkit/repokit"
	"mpak/internal/platform/async"
	perr "mpak/internal/platform/errors"
	"mpak/internal/platform/logger"
	pnet "mpak/internal/platform/net"
	"mpak/internal/services/registry/domain"
)

// URLSigner issues time-limited download references
type URLSigner interface {
	URL(ctx context.Context, key, filename string, ttl time.Duration) (string, time.Time, error)
}

// Resolver answers download requests
type Resolver struct {
	db      repokit.Queryer
	binder  repokit.Binder[domain.Repo]
	blobs   URLSigner
	spawner async.Spawner
	events  domain.EventSink
	ttl     time.Duration
	now     func() time.Time
}

// NewResolver builds a Resolver; events may be nil
func NewResolver(
	db repokit.Queryer, binder repokit.Binder[domain.Repo], blobs URLSigner,
	spawner async.Spawner, events domain.EventSink, ttl time.Duration,
) *Resolver {
	if db == nil || binder == nil || blobs == nil {
		panic("registry.Resolver requires db, binder and blobs")
	}
	if spawner == nil {
		spawner = async.Inline{}
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Resolver{db: db, binder: binder, blobs: blobs, spawner: spawner, events: events, ttl: ttl, now: time.Now}
}

// Resolve picks the artifact for the requested version and platform and
// returns a signed reference to it. Counting is detached from the response.
func (r *Resolver) Resolve(ctx context.Context, kind artifact.Kind, in domain.ResolveInput) (domain.Download, error) {
	if !kind.Valid() {
		return domain.Download{}, perr.Validationf("unknown artifact kind %q", kind)
	}
	name, err := artifact.ParseName(in.Name)
	if err != nil {
		return domain.Download{}, err
	}
	version := strings.TrimSpace(in.Version)
	if version == "" {
		version = "latest"
	}
	if version != "latest" {
		v, err := release.Parse(version)
		if err != nil {
			return domain.Download{}, err
		}
		version = v.String()
	}

	var hint *artifact.Platform
	switch {
	case in.OS == "" && in.Arch == "":
	case in.OS == "" || in.Arch == "":
		return domain.Download{}, perr.WithField(perr.Validationf("os and arch must be given together"), "platform")
	default:
		p, err := artifact.ParsePlatform(in.OS, in.Arch)
		if err != nil {
			return domain.Download{}, err
		}
		hint = &p
	}

	repo := r.binder.Bind(r.db)
	ref, err := repo.ResolveVersion(ctx, kind, name.String(), version)
	if err != nil {
		return domain.Download{}, err
	}
	arts, err := repo.ListArtifacts(ctx, ref.VersionID)
	if err != nil {
		return domain.Download{}, err
	}
	art, ok := SelectArtifact(arts, hint)
	if !ok {
		if hint != nil {
			return domain.Download{}, perr.NotFoundf("no artifact of %s %s for %s", ref.Name, ref.Version, hint)
		}
		return domain.Download{}, perr.NotFoundf("%s %s has no artifacts", ref.Name, ref.Version)
	}

	url, exp, err := r.blobs.URL(ctx, art.StorageKey, art.Filename, r.ttl)
	if err != nil {
		return domain.Download{}, err
	}

	r.count(ctx, kind, ref, art)

	return domain.Download{
		URL: url,
		Bundle: domain.Bundle{
			Name:     ref.Name,
			Version:  ref.Version,
			Platform: art.Platform,
			SHA256:   art.Digest,
			Size:     art.Size,
		},
		ExpiresAt: exp,
	}, nil
}

func (r *Resolver) count(ctx context.Context, kind artifact.Kind, ref domain.VersionRef, art domain.Artifact) {
	reqID := pnet.RequestID(ctx)
	at := r.now().UTC()
	r.spawner.Go(ctx, "downloads.increment", func(ctx context.Context) error {
		return r.binder.Bind(r.db).IncrementDownloads(ctx, art.ID, ref.VersionID, ref.PackageID)
	})
	if r.events == nil {
		return
	}
	r.spawner.Go(ctx, "downloads.event", func(ctx context.Context) error {
		err := r.events.DownloadEvent(ctx, domain.DownloadEvent{
			At:        at,
			Kind:      kind,
			Package:   ref.Name,
			Version:   ref.Version,
			Platform:  art.Platform,
			Size:      art.Size,
			RequestID: reqID,
		})
		if err != nil {
			logger.C(ctx).Debug().Err(err).Msg("download event dropped")
		}
		return err
	})
}

// SelectArtifact picks the exact platform match, then a universal artifact.
// Without a hint the universal artifact wins, else the oldest one.
func SelectArtifact(arts []domain.Artifact, hint *artifact.Platform) (domain.Artifact, bool) {
	if len(arts) == 0 {
		return domain.Artifact{}, false
	}
	if hint != nil {
		for _, a := range arts {
			if a.Platform == *hint {
				return a, true
			}
		}
	}
	for _, a := range arts {
		if a.Platform.IsUniversal() {
			return a, true
		}
	}
	if hint == nil {
		return arts[0], true
	}
	return domain.Artifact{}, false
}
