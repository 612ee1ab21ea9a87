// Package ingest is the only code that touches unverified artifact bytes.
//
// Ingest streams a body into the object store while hashing and counting it,
// then checks both against the declared values. On any failure the object
// written for the attempt is removed before the error is returned, so callers
// only ever see verified storage keys.
package ingest

import (
	"context"
	_ "crypto/sha256" // registers the hash behind digest.SHA256
	"io"
	"strings"
	"time"

	perr "mpak/internal/platform/errors"
	"mpak/internal/platform/logger"

	"github.com/opencontainers/go-digest"
)

// Store is the part of the object store ingestion needs
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Request describes one ingestion
type Request struct {
	Key         string
	Body        io.Reader
	Size        int64  // declared byte count
	SHA256      string // declared lowercase hex digest
	ContentType string
}

// Result is what was verified and stored
type Result struct {
	Key    string
	Digest digest.Digest
	Size   int64
}

// SHA256 returns the hex encoded digest
func (r Result) SHA256() string { return r.Digest.Encoded() }

const cleanupTimeout = 30 * time.Second

type counter struct{ n int64 }

func (c *counter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// eofReader remembers whether the source was read to its end
type eofReader struct {
	r   io.Reader
	eof bool
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		e.eof = true
	}
	return n, err
}

// Ingest stores req.Body at req.Key and verifies size and digest
func Ingest(ctx context.Context, st Store, req Request) (Result, error) {
	want, err := ParseSHA256(req.SHA256)
	if err != nil {
		return Result{}, err
	}
	if req.Size <= 0 {
		return Result{}, perr.WithField(perr.Validationf("artifact size must be positive"), "artifact.size")
	}

	d := digest.SHA256.Digester()
	n := &counter{}
	// one byte past the declared size is enough to detect an oversized stream
	body := &eofReader{r: io.LimitReader(req.Body, req.Size+1)}
	src := io.TeeReader(body, io.MultiWriter(d.Hash(), n))

	putErr := st.Put(ctx, req.Key, src, req.Size, req.ContentType)
	if putErr == nil {
		// the store may stop at the declared size; anything left is overflow and the tee counts it
		var one [1]byte
		_, _ = io.ReadFull(src, one[:])
	}

	log := logger.C(ctx)
	switch {
	case putErr != nil && !body.eof:
		remove(ctx, st, req.Key)
		return Result{}, transferErr(putErr)
	case n.n != req.Size:
		remove(ctx, st, req.Key)
		log.Warn().Str("key", req.Key).Int64("declared", req.Size).Int64("read", n.n).Msg("ingest size mismatch")
		return Result{}, perr.WithField(perr.Integrityf("declared size %d does not match received size", req.Size), "artifact.size")
	case putErr != nil:
		remove(ctx, st, req.Key)
		return Result{}, transferErr(putErr)
	}

	got := d.Digest()
	if got != want {
		remove(ctx, st, req.Key)
		log.Warn().Str("key", req.Key).Str("declared", want.String()).Str("computed", got.String()).Msg("ingest digest mismatch")
		return Result{}, perr.WithField(perr.Integrityf("declared sha256 does not match received content"), "artifact.sha256")
	}
	return Result{Key: req.Key, Digest: got, Size: n.n}, nil
}

func transferErr(err error) error {
	if _, ok := perr.As(err); ok {
		return perr.WithOp(err, "ingest.put")
	}
	return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeUnavailable, "artifact transfer failed"), "ingest.put")
}

// ParseSHA256 validates a declared hex sha256
func ParseSHA256(hex string) (digest.Digest, error) {
	d := digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(strings.TrimSpace(hex)))
	if err := d.Validate(); err != nil {
		return "", perr.WithField(perr.Validationf("sha256 must be a 64 character hex digest"), "artifact.sha256")
	}
	return d, nil
}

// remove deletes a rejected object; failures are logged so they never mask the primary error
func remove(ctx context.Context, st Store, key string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := st.Delete(cctx, key); err != nil {
		logger.C(ctx).Error().Err(err).Str("key", key).Msg("ingest cleanup failed")
	}
}
