// Package domain defines the registry catalog types and the ports the
// publish and download paths are built on
package domain

import (
	"encoding/json"
	"time"

	"mpak/internal/core/artifact"
)

// Status of an artifact after a publish
type Status string

const (
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
)

// PackageUpsert creates a package if absent; claim fields are only written on create
type PackageUpsert struct {
	Kind       artifact.Kind
	Name       string
	ClaimedBy  string
	SourceRepo string
}

// VersionUpsert creates or refreshes a version. Nil pointer and nil raw
// fields keep whatever the row already holds.
type VersionUpsert struct {
	PackageID        string
	Version          string
	Manifest         json.RawMessage
	Prerelease       bool
	ReleaseTag       *string
	ReleaseURL       *string
	Readme           *string
	ServerJSON       json.RawMessage
	Provenance       json.RawMessage
	ProvenanceDigest string
	PublishedBy      string
}

// ArtifactUpsert creates or replaces the artifact for (version, os, arch)
type ArtifactUpsert struct {
	VersionID  string
	Platform   artifact.Platform
	Filename   string
	Digest     string
	Size       int64
	StorageKey string
	SourceURL  string
	MimeType   string
}

// Upserted reports the row id and whether this call created it
type Upserted struct {
	ID      string
	Created bool
}

// VersionUpserted also carries the provenance document the row held before
// this call, nil for a new version
type VersionUpserted struct {
	Upserted
	PrevProvenance json.RawMessage
}

// ArtifactUpserted also carries the storage key the row pointed at before, if it changed
type ArtifactUpserted struct {
	Upserted
	OldStorageKey string
}

// Artifact is a stored artifact row
type Artifact struct {
	ID         string
	VersionID  string
	Platform   artifact.Platform
	Filename   string
	Digest     string
	Size       int64
	StorageKey string
	MimeType   string
	CreatedAt  time.Time
}

// VersionRef identifies a resolved version of a package
type VersionRef struct {
	PackageID string
	VersionID string
	Name      string
	Version   string
}

// DownloadEvent is one resolved download, appended to the analytics sink
type DownloadEvent struct {
	At        time.Time
	Kind      artifact.Kind
	Package   string
	Version   string
	Platform  artifact.Platform
	Size      int64
	RequestID string
}
