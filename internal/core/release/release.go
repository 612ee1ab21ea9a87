// Package release holds version parsing and the latest-pointer promotion rule
package release

import (
	"strings"

	perr "mpak/internal/platform/errors"

	"github.com/Masterminds/semver/v3"
)

// Version is a parsed, canonical semantic version
type Version struct {
	v *semver.Version
}

// Parse accepts X.Y.Z[-pre][+build] with an optional leading v
func Parse(s string) (Version, error) {
	v, err := semver.StrictNewVersion(strings.TrimPrefix(strings.TrimSpace(s), "v"))
	if err != nil {
		return Version{}, perr.WithField(perr.Validationf("version must be a semantic version (X.Y.Z)"), "version")
	}
	return Version{v: v}, nil
}

// String is the canonical form stored in the catalog
func (v Version) String() string { return v.v.String() }

// HasPrerelease reports a -pre component
func (v Version) HasPrerelease() bool { return v.v.Prerelease() != "" }

// Compare orders two versions by semver precedence
func (v Version) Compare(o Version) int { return v.v.Compare(o.v) }

// IsPrerelease combines the caller's flag with the version itself
func IsPrerelease(v Version, flagged bool) bool { return flagged || v.HasPrerelease() }

// Latest describes the version a package's latest pointer currently names
type Latest struct {
	Version    string
	Prerelease bool
}

// ShouldPromote decides whether a version becomes the package's latest.
// Only newly created versions move the pointer; a stable version always
// promotes, a prerelease only when latest is unset or itself a prerelease.
func ShouldPromote(created, prerelease bool, current *Latest) bool {
	if !created {
		return false
	}
	if !prerelease {
		return true
	}
	return current == nil || current.Version == "" || current.Prerelease
}
