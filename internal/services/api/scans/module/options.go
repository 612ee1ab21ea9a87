package module

import (
	"mpak/internal/adapters/scanjob"
	"mpak/internal/platform/config"
)

// Options controls scanning
type Options struct {
	Enabled bool
	Job     scanjob.Options
	// Bucket is the object bucket scanner jobs read artifacts from
	Bucket string
}

// FromConfig reads the SCAN_ view; the bucket comes from BLOB_BUCKET
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("SCAN_")
	return Options{
		Enabled: c.MayBool("ENABLED", false),
		Job:     scanjob.OptionsFromConf(c),
		Bucket:  cfg.Prefix("BLOB_").MayString("BUCKET", "mpak"),
	}
}
