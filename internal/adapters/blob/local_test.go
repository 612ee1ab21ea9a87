package blob

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	perr "mpak/internal/platform/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), "https://registry.test/", "s3cret")
	require.NoError(t, err)
	l.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return l
}

func TestLocal_PutOpenDelete(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()
	key := "@acme/tool/1.0.0/abc/linux-x64.mcpb"

	require.NoError(t, l.Put(ctx, key, strings.NewReader("payload"), 7, ""))

	rc, size, err := l.Open(ctx, key)
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "payload", string(b))
	assert.EqualValues(t, 7, size)

	entries, err := os.ReadDir(filepath.Join(l.root, "@acme", "tool", "1.0.0", "abc"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not linger")

	require.NoError(t, l.Delete(ctx, key))
	require.NoError(t, l.Delete(ctx, key))
	_, _, err = l.Open(ctx, key)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeNotFound))
}

func TestLocal_RejectsEscapingKeys(t *testing.T) {
	l := newLocal(t)
	for _, k := range []string{"", "/etc/passwd", "a/../../x", "a//b", `a\b`, "./a"} {
		err := l.Put(context.Background(), k, strings.NewReader("x"), 1, "")
		assert.True(t, perr.IsCode(err, perr.ErrorCodeValidation), k)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestLocal_PutFailureLeavesNothing(t *testing.T) {
	l := newLocal(t)
	key := "@acme/tool/1.0.0/x/bundle.mcpb"
	require.Error(t, l.Put(context.Background(), key, failingReader{}, 10, ""))

	entries, err := os.ReadDir(filepath.Join(l.root, "@acme", "tool", "1.0.0", "x"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocal_SignedURLRoundTrip(t *testing.T) {
	l := newLocal(t)
	key := "@acme/tool/1.0.0/abc/bundle.mcpb"

	raw, exp, err := l.URL(context.Background(), key, "bundle.mcpb", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1_700_000_600, 0).UTC(), exp)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "registry.test", u.Host)
	assert.Equal(t, "/v1/blobs/"+key, u.Path)

	q := u.Query()
	require.NoError(t, l.Verify(key, q.Get("exp"), q.Get("sig")))

	assert.True(t, perr.IsCode(l.Verify("@acme/other/1.0.0/abc/bundle.mcpb", q.Get("exp"), q.Get("sig")), perr.ErrorCodeForbidden))
	assert.True(t, perr.IsCode(l.Verify(key, "1700009999", q.Get("sig")), perr.ErrorCodeForbidden))
	assert.True(t, perr.IsCode(l.Verify(key, "soon", q.Get("sig")), perr.ErrorCodeForbidden))

	l.now = func() time.Time { return time.Unix(1_700_000_601, 0) }
	assert.True(t, perr.IsCode(l.Verify(key, q.Get("exp"), q.Get("sig")), perr.ErrorCodeForbidden))
}

func TestOpen_SelectsBackend(t *testing.T) {
	s, err := Open(Options{Backend: "local", Dir: t.TempDir(), SignSecret: "k"})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)

	s, err = Open(Options{Backend: "s3", Endpoint: "localhost:9000", Bucket: "b", Region: "us-east-1"})
	require.NoError(t, err)
	assert.IsType(t, &S3{}, s)

	_, err = Open(Options{Backend: "gcs"})
	assert.Error(t, err)

	_, err = Open(Options{Backend: "local", Dir: t.TempDir()})
	assert.Error(t, err, "missing secret")
}

func TestS3_PresignsWithDisposition(t *testing.T) {
	s, err := NewS3(Options{Endpoint: "localhost:9000", Bucket: "mpak", AccessKey: "a", SecretKey: "b", Region: "us-east-1"})
	require.NoError(t, err)

	raw, exp, err := s.URL(context.Background(), "@acme/tool/1.0.0/abc/bundle.mcpb", "tool.mcpb", time.Minute)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, `attachment; filename="tool.mcpb"`, u.Query().Get("response-content-disposition"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
