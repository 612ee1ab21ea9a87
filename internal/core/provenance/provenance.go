// Package provenance records which CI identity authorized a published version.
//
// A Record is derived purely from verified token claims and embedded in the
// version row. Stored documents are versioned; documents written before the
// versioned schema decode as Legacy and are carried through untouched.
package provenance

import (
	_ "crypto/sha256" // registers the hash behind digest.SHA256
	"encoding/json"
	"strings"

	perr "mpak/internal/platform/errors"

	"github.com/gowebpki/jcs"
	"github.com/opencontainers/go-digest"
)

// SchemaV1 is the current record schema
const SchemaV1 = "1"

// ProviderGitHubActions names the only supported CI identity provider
const ProviderGitHubActions = "github_actions"

// Claims are the verified token claims a record is built from
type Claims struct {
	Issuer          string `json:"iss"`
	Subject         string `json:"sub"`
	Repository      string `json:"repository"`
	RepositoryOwner string `json:"repository_owner"`
	RepositoryID    string `json:"repository_id"`
	SHA             string `json:"sha"`
	Actor           string `json:"actor"`
	WorkflowRef     string `json:"workflow_ref"`
	JobWorkflowRef  string `json:"job_workflow_ref"`
	RunID           string `json:"run_id"`
	RunAttempt      string `json:"run_attempt"`
	Ref             string `json:"ref"`
	RefType         string `json:"ref_type"`
	EventName       string `json:"event_name"`
}

// Record is the immutable v1 provenance snapshot
type Record struct {
	Schema          string `json:"schema_version"`
	Provider        string `json:"provider"`
	Issuer          string `json:"issuer"`
	Repository      string `json:"repository"`
	RepositoryOwner string `json:"repository_owner"`
	RepositoryID    string `json:"repository_id,omitempty"`
	SHA             string `json:"sha"`
	Actor           string `json:"actor,omitempty"`
	WorkflowRef     string `json:"workflow_ref,omitempty"`
	JobWorkflowRef  string `json:"job_workflow_ref,omitempty"`
	RunID           string `json:"run_id,omitempty"`
	RunAttempt      string `json:"run_attempt,omitempty"`
	Ref             string `json:"ref,omitempty"`
	RefType         string `json:"ref_type,omitempty"`
	EventName       string `json:"event_name,omitempty"`
}

// FromClaims builds a Record; it does no I/O and returns a fresh value each call
func FromClaims(c Claims) Record {
	return Record{
		Schema:          SchemaV1,
		Provider:        ProviderGitHubActions,
		Issuer:          c.Issuer,
		Repository:      c.Repository,
		RepositoryOwner: c.RepositoryOwner,
		RepositoryID:    c.RepositoryID,
		SHA:             strings.ToLower(c.SHA),
		Actor:           c.Actor,
		WorkflowRef:     c.WorkflowRef,
		JobWorkflowRef:  c.JobWorkflowRef,
		RunID:           c.RunID,
		RunAttempt:      c.RunAttempt,
		Ref:             c.Ref,
		RefType:         c.RefType,
		EventName:       c.EventName,
	}
}

// Canonical returns the RFC 8785 form of r
func (r Record) Canonical() ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "provenance: marshal")
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "provenance: canonicalize")
	}
	return out, nil
}

// Digest is the sha256 of the canonical form
func (r Record) Digest() (digest.Digest, error) {
	b, err := r.Canonical()
	if err != nil {
		return "", err
	}
	return digest.SHA256.FromBytes(b), nil
}

// Stored is a provenance document read back from the store: exactly one of
// V1 or Legacy is set, or neither when nothing was recorded
type Stored struct {
	V1     *Record
	Legacy json.RawMessage
}

// Decode reads a stored document
func Decode(raw []byte) (Stored, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Stored{}, nil
	}
	var head struct {
		Schema string `json:"schema_version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Stored{}, perr.Wrapf(err, perr.ErrorCodeJSON, "provenance: decode")
	}
	if head.Schema != SchemaV1 {
		return Stored{Legacy: append(json.RawMessage(nil), raw...)}, nil
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Stored{}, perr.Wrapf(err, perr.ErrorCodeJSON, "provenance: decode v1")
	}
	return Stored{V1: &r}, nil
}

// Empty reports whether nothing was recorded
func (s Stored) Empty() bool { return s.V1 == nil && len(s.Legacy) == 0 }

// MarshalJSON renders whichever variant is set
func (s Stored) MarshalJSON() ([]byte, error) {
	switch {
	case s.V1 != nil:
		return json.Marshal(s.V1)
	case len(s.Legacy) > 0:
		return s.Legacy, nil
	default:
		return []byte("null"), nil
	}
}
