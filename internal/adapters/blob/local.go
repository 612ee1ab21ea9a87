package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	perr "mpak/internal/platform/errors"
)

// BlobsPath is where the API serves signed local objects
const BlobsPath = "/v1/blobs/"

// Local keeps objects under a directory and signs download urls with HMAC-SHA256
type Local struct {
	root      string
	publicURL string
	secret    []byte
	now       func() time.Time
}

// NewLocal creates the root directory if needed
func NewLocal(dir, publicURL, secret string) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, perr.Newf(perr.ErrorCodeUnknown, "blob: local dir is required")
	}
	if secret == "" {
		return nil, perr.Newf(perr.ErrorCodeUnknown, "blob: local sign secret is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "blob: resolve %s", dir)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "blob: create %s", abs)
	}
	return &Local{
		root:      abs,
		publicURL: strings.TrimRight(publicURL, "/"),
		secret:    []byte(secret),
		now:       time.Now,
	}, nil
}

// path maps key to a file under root, refusing anything that could escape it
func (l *Local) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", perr.Validationf("invalid object key")
	}
	for seg := range strings.SplitSeq(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", perr.Validationf("invalid object key")
		}
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}

// Put writes to a temp file beside the target and renames it into place
func (l *Local) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "blob: mkdir")
	}
	f, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "blob: create temp")
	}
	tmp := f.Name()
	fail := func(err error) error {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if _, err := io.Copy(f, ctxReader{ctx: ctx, r: r}); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(perr.Wrapf(err, perr.ErrorCodeUnknown, "blob: sync"))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "blob: close")
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "blob: rename")
	}
	return nil
}

// Delete removes the object; missing objects are fine
func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "blob: delete")
	}
	return nil
}

// Open opens the object for reading
func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, int64, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p) //nolint:gosec // confined to root by path()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, perr.ErrNotFound
		}
		return nil, 0, perr.Wrapf(err, perr.ErrorCodeUnknown, "blob: open")
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, perr.Wrapf(err, perr.ErrorCodeUnknown, "blob: stat")
	}
	return f, st.Size(), nil
}

// URL returns a signed /v1/blobs url valid for ttl
func (l *Local) URL(_ context.Context, key, _ string, ttl time.Duration) (string, time.Time, error) {
	if _, err := l.path(key); err != nil {
		return "", time.Time{}, err
	}
	exp := l.now().Add(ttl).UTC().Truncate(time.Second)
	es := strconv.FormatInt(exp.Unix(), 10)
	q := url.Values{"exp": {es}, "sig": {l.sign(key, es)}}
	return l.publicURL + BlobsPath + escapeKey(key) + "?" + q.Encode(), exp, nil
}

// Verify checks a signature produced by URL
func (l *Local) Verify(key, exp, sig string) error {
	sec, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return perr.Forbiddenf("invalid download link")
	}
	if !hmac.Equal([]byte(sig), []byte(l.sign(key, exp))) {
		return perr.Forbiddenf("invalid download link")
	}
	if l.now().Unix() > sec {
		return perr.Forbiddenf("download link expired")
	}
	return nil
}

func (l *Local) sign(key, exp string) string {
	m := hmac.New(sha256.New, l.secret)
	m.Write([]byte(key))
	m.Write([]byte{'\n'})
	m.Write([]byte(exp))
	return hex.EncodeToString(m.Sum(nil))
}

func escapeKey(key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
