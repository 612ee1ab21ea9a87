// Package blob is the object store behind published artifacts
//
// Two backends share one Store contract: a local filesystem tree whose
// objects are served back through HMAC-signed /v1/blobs urls, and an
// S3-compatible bucket reached through minio-go with presigned urls.
package blob

import (
	"context"
	"io"
	"time"

	"mpak/internal/platform/config"
	perr "mpak/internal/platform/errors"
)

// Store is the narrow object store contract used by ingestion, reconciliation and downloads
type Store interface {
	// Put streams r into key; size is the expected length, -1 when unknown
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// Open streams the object at key
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	// URL returns a time-limited download reference for key
	URL(ctx context.Context, key, filename string, ttl time.Duration) (string, time.Time, error)
}

// Options selects and configures a backend
type Options struct {
	Backend string // local | s3
	TTL     time.Duration

	// local
	Dir        string
	PublicURL  string
	SignSecret string

	// s3
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// OptionsFromConf reads the BLOB_ view; publicURL is the API's externally visible base url
func OptionsFromConf(c config.Conf, publicURL string) Options {
	o := Options{
		Backend:   c.MayEnum("BACKEND", "local", "local", "s3"),
		TTL:       c.MayDuration("URL_TTL", 15*time.Minute),
		Dir:       c.MayString("DIR", "./data/blobs"),
		PublicURL: publicURL,
		Endpoint:  c.MayString("ENDPOINT", ""),
		Bucket:    c.MayString("BUCKET", "mpak"),
		AccessKey: c.MayString("ACCESS_KEY", ""),
		SecretKey: c.MayString("SECRET_KEY", ""),
		Region:    c.MayString("REGION", "us-east-1"),
		UseSSL:    c.MayBool("USE_SSL", true),
	}
	if o.Backend == "local" {
		o.SignSecret = c.MustString("SIGN_SECRET")
	}
	return o
}

// Open builds the configured backend
func Open(o Options) (Store, error) {
	switch o.Backend {
	case "", "local":
		return NewLocal(o.Dir, o.PublicURL, o.SignSecret)
	case "s3":
		return NewS3(o)
	default:
		return nil, perr.Newf(perr.ErrorCodeUnknown, "blob: unknown backend %q", o.Backend)
	}
}
