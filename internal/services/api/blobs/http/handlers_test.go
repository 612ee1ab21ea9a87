package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"mpak/internal/adapters/blob"
	phttp "mpak/internal/platform/net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const key = "@acme/tool/1.0.0/abc/linux-x64.mcpb"

func setup(t *testing.T) (*blob.Local, http.Handler) {
	t.Helper()
	l, err := blob.NewLocal(t.TempDir(), "https://registry.test", "s3cret")
	require.NoError(t, err)

	m := chi.NewRouter()
	phttp.AdaptChi(m).Route("/v1/blobs", func(r phttp.Router) { Register(r, l) })
	return l, m
}

func signed(t *testing.T, l *blob.Local, k string) string {
	t.Helper()
	raw, _, err := l.URL(context.Background(), k, "", time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.RequestURI()
}

func TestServe_StreamsSignedObject(t *testing.T) {
	l, h := setup(t)
	require.NoError(t, l.Put(context.Background(), key, strings.NewReader("payload"), 7, ""))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, signed(t, l, key), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	b, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "payload", string(b))
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "7", rec.Header().Get("Content-Length"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "linux-x64.mcpb")
}

func TestServe_TamperedSignature(t *testing.T) {
	l, h := setup(t)
	require.NoError(t, l.Put(context.Background(), key, strings.NewReader("payload"), 7, ""))

	u, _ := url.Parse(signed(t, l, key))
	q := u.Query()
	q.Set("sig", strings.Repeat("0", 64))
	u.RawQuery = q.Encode()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "forbidden", body["code"])
}

func TestServe_OtherKeySignatureRejected(t *testing.T) {
	l, h := setup(t)
	require.NoError(t, l.Put(context.Background(), key, strings.NewReader("payload"), 7, ""))

	other, _ := url.Parse(signed(t, l, "@acme/tool/1.0.0/abc/darwin-arm64.mcpb"))
	target, _ := url.Parse(signed(t, l, key))
	target.RawQuery = other.RawQuery

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target.RequestURI(), nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServe_MissingObject(t *testing.T) {
	l, h := setup(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, signed(t, l, key), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
