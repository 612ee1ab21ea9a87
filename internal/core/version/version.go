// Package version provides information about the build version of the service.
package version

// BuildInfo holds version information about the service build.
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Info returns the build information. The version, commit, and date variables
// are set at build time with -ldflags.
func Info() BuildInfo {
	// -ldflags "-X 'mpak/internal/core/version.version=v0.1.0'
	// -X 'mpak/internal/core/version.commit=abcd' -X 'mpak/internal/core/version.date=2026-10-01'"
	return BuildInfo{
		Service: "mpak-api",
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)
