package domain

import (
	"context"
	"encoding/json"
	"time"

	"mpak/internal/core/artifact"
	"mpak/internal/core/release"
)

// Repo is the catalog storage bound to one transaction or connection
type Repo interface {
	UpsertPackage(ctx context.Context, in PackageUpsert) (Upserted, error)
	// LockLatest locks the package row and returns its current latest pointer, nil when unset
	LockLatest(ctx context.Context, packageID string) (*release.Latest, error)
	SetLatest(ctx context.Context, packageID, version string) error
	// NewestStable returns the most recently created non-prerelease version, "" when there is none
	NewestStable(ctx context.Context, packageID string) (string, error)
	UpsertVersion(ctx context.Context, in VersionUpsert) (VersionUpserted, error)
	UpsertArtifact(ctx context.Context, in ArtifactUpsert) (ArtifactUpserted, error)
	CountArtifacts(ctx context.Context, versionID string) (int, error)

	// ResolveVersion maps version or "latest" to a version row
	ResolveVersion(ctx context.Context, kind artifact.Kind, name, version string) (VersionRef, error)
	ListArtifacts(ctx context.Context, versionID string) ([]Artifact, error)
	IncrementDownloads(ctx context.Context, artifactID, versionID, packageID string) error
}

// EventSink receives download events; the ClickHouse sink is optional
type EventSink interface {
	DownloadEvent(ctx context.Context, ev DownloadEvent) error
}

// AnnounceInput is a publish request after transport decoding
type AnnounceInput struct {
	Name       string
	Version    string
	Manifest   json.RawMessage
	ReleaseTag string
	Prerelease bool
	Artifact   ArtifactDecl
}

// ArtifactDecl is what the caller declares about the release asset
type ArtifactDecl struct {
	Filename string
	OS       string
	Arch     string
	SHA256   string
	Size     int64
}

// AnnounceOutput is the publish response
type AnnounceOutput struct {
	Package        string        `json:"package"`
	Version        string        `json:"version"`
	Artifact       AnnouncedFile `json:"artifact"`
	TotalArtifacts int           `json:"total_artifacts"`
	Status         Status        `json:"status"`
}

// AnnouncedFile echoes the stored artifact
type AnnouncedFile struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	Filename string `json:"filename"`
}

// AnnouncerPort publishes a release asset
type AnnouncerPort interface {
	Announce(ctx context.Context, kind artifact.Kind, token string, in AnnounceInput) (AnnounceOutput, error)
}

// ResolveInput selects a download; an empty platform means no hint
type ResolveInput struct {
	Name    string
	Version string
	OS      string
	Arch    string
}

// Download is a resolved, time-limited download reference
type Download struct {
	URL       string    `json:"url"`
	Bundle    Bundle    `json:"bundle"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Bundle describes the artifact behind a Download
type Bundle struct {
	Name     string            `json:"name"`
	Version  string            `json:"version"`
	Platform artifact.Platform `json:"platform"`
	SHA256   string            `json:"sha256"`
	Size     int64             `json:"size"`
}

// ResolverPort resolves downloads
type ResolverPort interface {
	Resolve(ctx context.Context, kind artifact.Kind, in ResolveInput) (Download, error)
}
