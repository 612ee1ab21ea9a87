package module

import (
	"time"

	"mpak/internal/adapters/github"
	"mpak/internal/adapters/oidc"
	"mpak/internal/platform/config"
	"mpak/internal/services/registry/service"
)

// Options controls publishing and downloads
type Options struct {
	Coordinator service.CoordinatorConfig
	Announcer   service.AnnouncerConfig
	URLTTL      time.Duration
	Cleanup     time.Duration
	GitHub      github.Options
	OIDC        oidc.Options
}

// FromConfig reads the PUBLISH_, BLOB_, GITHUB_ and OIDC_ views
func FromConfig(cfg config.Conf) Options {
	p := cfg.Prefix("PUBLISH_")
	return Options{
		Coordinator: service.CoordinatorConfig{
			LockTimeout:      p.MayDuration("LOCK_TIMEOUT", 5*time.Second),
			StatementTimeout: p.MayDuration("STATEMENT_TIMEOUT", 60*time.Second),
			Retries:          p.MayInt("TX_RETRIES", 3),
		},
		Announcer: service.AnnouncerConfig{
			MaxArtifactBytes: p.MayInt64("MAX_ARTIFACT_BYTES", 512<<20),
		},
		URLTTL:  cfg.Prefix("BLOB_").MayDuration("URL_TTL", 15*time.Minute),
		Cleanup: p.MayDuration("CLEANUP_TIMEOUT", 30*time.Second),
		GitHub:  github.OptionsFromConf(cfg.Prefix("GITHUB_")),
		OIDC:    oidc.OptionsFromConf(cfg.Prefix("OIDC_")),
	}
}
