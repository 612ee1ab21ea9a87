// Package artifact holds the naming rules shared by publishing and downloads:
// artifact kinds, platforms, scoped package names, filenames and storage keys.
package artifact

import (
	"regexp"
	"strings"

	perr "mpak/internal/platform/errors"

	"golang.org/x/text/cases"
)

// Kind is the artifact kind a package publishes
type Kind string

const (
	KindBundle Kind = "bundle"
	KindSkill  Kind = "skill"
)

// Ext is the required filename suffix for the kind
func (k Kind) Ext() string {
	switch k {
	case KindSkill:
		return ".skill"
	default:
		return ".mcpb"
	}
}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool { return k == KindBundle || k == KindSkill }

// MimeType of stored objects
func (k Kind) MimeType() string {
	if k == KindSkill {
		return "application/zip"
	}
	return "application/octet-stream"
}

// Platform is an (os, arch) pair; any/any is the universal platform
type Platform struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
}

// Universal is the sentinel platform for artifacts that run everywhere
var Universal = Platform{OS: "any", Arch: "any"}

var (
	validOS   = map[string]bool{"darwin": true, "linux": true, "win32": true, "any": true}
	validArch = map[string]bool{"x64": true, "arm64": true, "any": true}
)

// ParsePlatform validates os and arch
func ParsePlatform(os, arch string) (Platform, error) {
	p := Platform{OS: strings.ToLower(strings.TrimSpace(os)), Arch: strings.ToLower(strings.TrimSpace(arch))}
	if !validOS[p.OS] {
		return Platform{}, perr.WithField(perr.Validationf("os must be one of darwin, linux, win32, any"), "artifact.os")
	}
	if !validArch[p.Arch] {
		return Platform{}, perr.WithField(perr.Validationf("arch must be one of x64, arm64, any"), "artifact.arch")
	}
	return p, nil
}

// IsUniversal reports any/any
func (p Platform) IsUniversal() bool { return p == Universal }

// String renders os-arch
func (p Platform) String() string { return p.OS + "-" + p.Arch }

var nameRe = regexp.MustCompile(`^@([a-z0-9][a-z0-9-]{0,38})/([a-z0-9][a-z0-9._-]{0,213})$`)

// Name is a parsed scoped package name
type Name struct {
	Scope string
	Pkg   string
}

// ParseName splits "@scope/name"
func ParseName(s string) (Name, error) {
	m := nameRe.FindStringSubmatch(s)
	if m == nil {
		return Name{}, perr.WithField(perr.Validationf("name must look like @scope/name"), "name")
	}
	return Name{Scope: m[1], Pkg: m[2]}, nil
}

func (n Name) String() string { return "@" + n.Scope + "/" + n.Pkg }

var folder = cases.Fold()

// OwnedBy reports whether the scope equals owner, compared case-insensitively
func (n Name) OwnedBy(owner string) bool {
	if owner == "" {
		return false
	}
	return folder.String(n.Scope) == folder.String(owner)
}

const maxFilename = 255

// ValidateFilename enforces the release asset filename rules for kind
func ValidateFilename(k Kind, name string) error {
	field := func(msg string) error { return perr.WithField(perr.Validationf("%s", msg), "artifact.filename") }
	switch {
	case name == "":
		return field("filename is required")
	case len(name) > maxFilename:
		return field("filename is too long")
	case strings.ContainsAny(name, `/\`):
		return field("filename must not contain path separators")
	case strings.Contains(name, ".."):
		return field("filename must not contain ..")
	case strings.ContainsFunc(name, func(r rune) bool { return r < 0x20 || r == 0x7f }):
		return field("filename must not contain control characters")
	case !strings.HasSuffix(strings.ToLower(name), k.Ext()):
		return field("filename must end in " + k.Ext())
	}
	return nil
}

// StorageKey is the object key for one ingestion attempt:
// @scope/name/version/<attempt>/<os-arch|bundle|skill>.<ext>
// A universal artifact collapses to the kind name.
func StorageKey(n Name, version, attempt string, k Kind, p Platform) string {
	base := p.String()
	if p.IsUniversal() {
		base = string(k)
	}
	return n.String() + "/" + version + "/" + attempt + "/" + base + k.Ext()
}
