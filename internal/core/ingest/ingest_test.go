package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	perr "mpak/internal/platform/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore reads until EOF like the filesystem backend
type memStore struct {
	mu      sync.Mutex
	objs    map[string][]byte
	exact   bool // read exactly size bytes like the S3 backend
	putErr  error
	deleted []string
}

func newMem() *memStore { return &memStore{objs: map[string][]byte{}} }

func (m *memStore) Put(_ context.Context, key string, r io.Reader, size int64, _ string) error {
	var buf bytes.Buffer
	var err error
	if m.exact {
		_, err = io.CopyN(&buf, r, size)
	} else {
		_, err = io.Copy(&buf, r)
	}
	if err != nil {
		return err
	}
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	m.objs[key] = buf.Bytes()
	m.mu.Unlock()
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objs, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func sum(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func TestIngest_StoresVerifiedBytes(t *testing.T) {
	for _, exact := range []bool{false, true} {
		st := newMem()
		st.exact = exact
		res, err := Ingest(context.Background(), st, Request{
			Key: "k", Body: strings.NewReader("hello world"), Size: 11, SHA256: strings.ToUpper(sum("hello world")),
		})
		require.NoError(t, err)
		assert.Equal(t, sum("hello world"), res.SHA256())
		assert.EqualValues(t, 11, res.Size)
		assert.Equal(t, "hello world", string(st.objs["k"]))
	}
}

func TestIngest_DigestMismatchRemovesObject(t *testing.T) {
	st := newMem()
	_, err := Ingest(context.Background(), st, Request{
		Key: "k", Body: strings.NewReader("hello"), Size: 5, SHA256: sum("other"),
	})
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeIntegrity))
	assert.Equal(t, "artifact.sha256", perr.WireFrom(err).Field)
	assert.Empty(t, st.objs)
	assert.Equal(t, []string{"k"}, st.deleted)
}

func TestIngest_SizeMismatch(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		size  int64
		exact bool
	}{
		{"longer than declared", "hello world", 5, false},
		{"longer than declared, exact store", "hello world", 5, true},
		{"shorter than declared", "hi", 5, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newMem()
			st.exact = tc.exact
			_, err := Ingest(context.Background(), st, Request{
				Key: "k", Body: strings.NewReader(tc.body), Size: tc.size, SHA256: sum(tc.body),
			})
			require.Error(t, err)
			assert.True(t, perr.IsCode(err, perr.ErrorCodeIntegrity))
			assert.Equal(t, "artifact.size", perr.WireFrom(err).Field)
			assert.Empty(t, st.objs)
			assert.Contains(t, st.deleted, "k")
		})
	}
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestIngest_TransferFailureIsNotIntegrity(t *testing.T) {
	st := newMem()
	_, err := Ingest(context.Background(), st, Request{Key: "k", Body: brokenReader{}, Size: 5, SHA256: sum("hello")})
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeUnavailable))
	assert.Contains(t, st.deleted, "k")
}

func TestIngest_StoreFailureAfterFullRead(t *testing.T) {
	st := newMem()
	st.putErr = perr.Unavailablef("bucket down")
	_, err := Ingest(context.Background(), st, Request{Key: "k", Body: strings.NewReader("hello"), Size: 5, SHA256: sum("hello")})
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeUnavailable))
	assert.Contains(t, st.deleted, "k")
}

func TestIngest_RejectsBadDeclarations(t *testing.T) {
	st := newMem()
	_, err := Ingest(context.Background(), st, Request{Key: "k", Body: strings.NewReader("x"), Size: 1, SHA256: "deadbeef"})
	assert.True(t, perr.IsCode(err, perr.ErrorCodeValidation))

	_, err = Ingest(context.Background(), st, Request{Key: "k", Body: strings.NewReader("x"), Size: 0, SHA256: sum("x")})
	assert.True(t, perr.IsCode(err, perr.ErrorCodeValidation))
	assert.Empty(t, st.deleted, "nothing was written")
}
