package http

import (
	"encoding/json"

	"mpak/internal/services/registry/domain"
)

// AnnounceRequest is the publish body sent by CI
type AnnounceRequest struct {
	Name       string          `json:"name"        validate:"required,scoped_name"`
	Version    string          `json:"version"     validate:"required,max=128"`
	Manifest   json.RawMessage `json:"manifest"`
	ReleaseTag string          `json:"release_tag" validate:"required,max=256"`
	Prerelease bool            `json:"prerelease"`
	Artifact   ArtifactBody    `json:"artifact"`
}

// ArtifactBody declares the release asset; os and arch are ignored for skills
type ArtifactBody struct {
	Filename string `json:"filename" validate:"required,max=255"`
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	SHA256   string `json:"sha256"   validate:"required,sha256hex"`
	Size     int64  `json:"size"     validate:"gt=0"`
}

func (a AnnounceRequest) toDomain() domain.AnnounceInput {
	return domain.AnnounceInput{
		Name:       a.Name,
		Version:    a.Version,
		Manifest:   a.Manifest,
		ReleaseTag: a.ReleaseTag,
		Prerelease: a.Prerelease,
		Artifact: domain.ArtifactDecl{
			Filename: a.Artifact.Filename,
			OS:       a.Artifact.OS,
			Arch:     a.Artifact.Arch,
			SHA256:   a.Artifact.SHA256,
			Size:     a.Artifact.Size,
		},
	}
}
