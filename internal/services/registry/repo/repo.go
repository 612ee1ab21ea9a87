// Package repo provides the Postgres catalog and the ClickHouse download sink
package repo

import (
	"context"
	"encoding/json"
	"errors"

	"mpak/internal/core/artifact"
	"mpak/internal/core/release"
	"mpak/internal/modkit/repokit"
	perr "mpak/internal/platform/errors"
	"mpak/internal/platform/store"
	"mpak/internal/services/registry/domain"

	"github.com/jackc/pgx/v5"
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

// jsonArg sends raw JSON as text for a ::jsonb cast, NULL when empty
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func upserted(row repokit.Row) (domain.Upserted, error) {
	var u domain.Upserted
	err := row.Scan(&u.ID, &u.Created)
	return u, err
}

// UpsertPackage creates the package once; on conflict only updated_at moves
func (r *queries) UpsertPackage(ctx context.Context, in domain.PackageUpsert) (domain.Upserted, error) {
	return upserted(r.q.QueryRow(ctx, `
		INSERT INTO packages (kind, name, claimed_by, claimed_at, source_repo)
		VALUES ($1, $2, NULLIF($3::text, ''), CASE WHEN $3::text = '' THEN NULL ELSE now() END, NULLIF($4::text, ''))
		ON CONFLICT ON CONSTRAINT packages_kind_name DO UPDATE SET updated_at = now()
		RETURNING id::text, (xmax = 0) AS inserted`,
		string(in.Kind), in.Name, in.ClaimedBy, in.SourceRepo,
	))
}

// LockLatest holds the package row for the rest of the transaction
func (r *queries) LockLatest(ctx context.Context, packageID string) (*release.Latest, error) {
	var (
		ver *string
		pre bool
	)
	err := r.q.QueryRow(ctx, `
		SELECT p.latest_version, COALESCE(v.prerelease, false)
		FROM packages p
		LEFT JOIN package_versions v ON v.package_id = p.id AND v.version = p.latest_version
		WHERE p.id = $1::uuid
		FOR UPDATE OF p`, packageID,
	).Scan(&ver, &pre)
	if err != nil {
		return nil, err
	}
	if ver == nil {
		return nil, nil
	}
	return &release.Latest{Version: *ver, Prerelease: pre}, nil
}

// SetLatest moves the latest pointer
func (r *queries) SetLatest(ctx context.Context, packageID, version string) error {
	return store.ExecOne(ctx, r.q,
		`UPDATE packages SET latest_version = $2, updated_at = now() WHERE id = $1::uuid`,
		packageID, version)
}

// NewestStable follows publish order, the same order promotion uses
func (r *queries) NewestStable(ctx context.Context, packageID string) (string, error) {
	var v string
	err := r.q.QueryRow(ctx, `
		SELECT version FROM package_versions
		WHERE package_id = $1::uuid AND NOT prerelease
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, packageID,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// UpsertVersion merges into an existing row: caller values win when supplied,
// absent ones keep the stored value
func (r *queries) UpsertVersion(ctx context.Context, in domain.VersionUpsert) (domain.VersionUpserted, error) {
	var prev []byte
	err := r.q.QueryRow(ctx, `
		SELECT provenance FROM package_versions
		WHERE package_id = $1::uuid AND version = $2
		FOR UPDATE`, in.PackageID, in.Version,
	).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.VersionUpserted{}, err
	}

	u, err := upserted(r.q.QueryRow(ctx, `
		INSERT INTO package_versions
			(package_id, version, manifest, prerelease, release_tag, release_url, readme,
			 server_json, provenance, provenance_digest, published_by)
		VALUES ($1::uuid, $2, $3::jsonb, $4, $5, $6, $7, $8::jsonb, $9::jsonb, NULLIF($10::text, ''), NULLIF($11::text, ''))
		ON CONFLICT ON CONSTRAINT package_versions_package_version DO UPDATE SET
			manifest          = EXCLUDED.manifest,
			prerelease        = EXCLUDED.prerelease,
			release_tag       = COALESCE(EXCLUDED.release_tag, package_versions.release_tag),
			release_url       = COALESCE(EXCLUDED.release_url, package_versions.release_url),
			readme            = COALESCE(EXCLUDED.readme, package_versions.readme),
			server_json       = COALESCE(EXCLUDED.server_json, package_versions.server_json),
			provenance        = COALESCE(EXCLUDED.provenance, package_versions.provenance),
			provenance_digest = COALESCE(EXCLUDED.provenance_digest, package_versions.provenance_digest),
			published_by      = COALESCE(EXCLUDED.published_by, package_versions.published_by),
			updated_at        = now()
		RETURNING id::text, (xmax = 0) AS inserted`,
		in.PackageID, in.Version, jsonArg(in.Manifest), in.Prerelease,
		in.ReleaseTag, in.ReleaseURL, in.Readme,
		jsonArg(in.ServerJSON), jsonArg(in.Provenance), in.ProvenanceDigest, in.PublishedBy,
	))
	if err != nil {
		return domain.VersionUpserted{}, err
	}
	return domain.VersionUpserted{Upserted: u, PrevProvenance: prev}, nil
}

// UpsertArtifact replaces the (version, os, arch) row and reports the key it replaced
func (r *queries) UpsertArtifact(ctx context.Context, in domain.ArtifactUpsert) (domain.ArtifactUpserted, error) {
	var prev string
	err := r.q.QueryRow(ctx, `
		SELECT storage_key FROM package_artifacts
		WHERE version_id = $1::uuid AND os = $2 AND arch = $3
		FOR UPDATE`, in.VersionID, in.Platform.OS, in.Platform.Arch,
	).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.ArtifactUpserted{}, err
	}

	u, err := upserted(r.q.QueryRow(ctx, `
		INSERT INTO package_artifacts
			(version_id, os, arch, filename, digest, size, storage_key, source_url, mime_type)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, NULLIF($8::text, ''), $9)
		ON CONFLICT ON CONSTRAINT package_artifacts_platform DO UPDATE SET
			filename    = EXCLUDED.filename,
			digest      = EXCLUDED.digest,
			size        = EXCLUDED.size,
			storage_key = EXCLUDED.storage_key,
			source_url  = COALESCE(EXCLUDED.source_url, package_artifacts.source_url),
			mime_type   = EXCLUDED.mime_type,
			updated_at  = now()
		RETURNING id::text, (xmax = 0) AS inserted`,
		in.VersionID, in.Platform.OS, in.Platform.Arch, in.Filename, in.Digest, in.Size,
		in.StorageKey, in.SourceURL, in.MimeType,
	))
	if err != nil {
		return domain.ArtifactUpserted{}, err
	}
	out := domain.ArtifactUpserted{Upserted: u}
	if prev != "" && prev != in.StorageKey {
		out.OldStorageKey = prev
	}
	return out, nil
}

// CountArtifacts counts the artifacts of a version as seen by this transaction
func (r *queries) CountArtifacts(ctx context.Context, versionID string) (int, error) {
	return store.Scalar[int](ctx, r.q,
		`SELECT count(*)::int FROM package_artifacts WHERE version_id = $1::uuid`, versionID)
}

// ResolveVersion maps "latest" through the package pointer
func (r *queries) ResolveVersion(ctx context.Context, kind artifact.Kind, name, version string) (domain.VersionRef, error) {
	ref, err := store.One(ctx, r.q, func(row store.Row) (domain.VersionRef, error) {
		var v domain.VersionRef
		err := row.Scan(&v.PackageID, &v.VersionID, &v.Name, &v.Version)
		return v, err
	}, `
		SELECT p.id::text, v.id::text, p.name, v.version
		FROM packages p
		JOIN package_versions v ON v.package_id = p.id
		WHERE p.kind = $1 AND p.name = $2
		  AND v.version = CASE WHEN $3::text = 'latest' THEN p.latest_version ELSE $3::text END`,
		string(kind), name, version)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return domain.VersionRef{}, perr.NotFoundf("version %s of %s not found", version, name)
		}
		return domain.VersionRef{}, err
	}
	return ref, nil
}

// ListArtifacts returns artifacts in publish order
func (r *queries) ListArtifacts(ctx context.Context, versionID string) ([]domain.Artifact, error) {
	return store.Many(ctx, r.q, func(row store.Row) (domain.Artifact, error) {
		var a domain.Artifact
		err := row.Scan(&a.ID, &a.VersionID, &a.Platform.OS, &a.Platform.Arch, &a.Filename,
			&a.Digest, &a.Size, &a.StorageKey, &a.MimeType, &a.CreatedAt)
		return a, err
	}, `
		SELECT id::text, version_id::text, os, arch, filename, digest, size, storage_key, mime_type, created_at
		FROM package_artifacts
		WHERE version_id = $1::uuid
		ORDER BY created_at, id`, versionID)
}

// IncrementDownloads bumps the three counters in one statement
func (r *queries) IncrementDownloads(ctx context.Context, artifactID, versionID, packageID string) error {
	_, err := r.q.Exec(ctx, `
		WITH a AS (UPDATE package_artifacts SET downloads = downloads + 1 WHERE id = $1::uuid),
		     v AS (UPDATE package_versions SET downloads = downloads + 1 WHERE id = $2::uuid)
		UPDATE packages SET downloads = downloads + 1 WHERE id = $3::uuid`,
		artifactID, versionID, packageID)
	return err
}
