package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(b), &m))
	return m
}

func TestNew_LevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Service: "mpak-api", Writer: &buf})

	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("kept")
	m := decode(t, buf.Bytes())
	assert.Equal(t, "kept", m["message"])
	assert.Equal(t, "mpak-api", m["service"])
	assert.Contains(t, m, "time")

	buf.Reset()
	bogus := New(Options{Level: "bogus", Writer: &buf})
	bogus.Debug().Msg("x")
	assert.Zero(t, buf.Len(), "unknown level means info")
}

func TestInitNamedAndContext(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "debug", Writer: &buf})
	t.Cleanup(func() { Init(Options{Level: "info"}) })

	ctx := WithRequest(context.Background(), "req-7", "acme/tools")
	C(ctx).Info().Msg("announce")
	m := decode(t, buf.Bytes())
	assert.Equal(t, "req-7", m["request_id"])
	assert.Equal(t, "acme/tools", m["publisher"])

	buf.Reset()
	Named("resolver").Debug().Msg("resolve")
	m = decode(t, buf.Bytes())
	assert.Equal(t, "resolver", m["component"])
	assert.NotContains(t, m, "request_id")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("LOG_CALLER", "true")
	opt := FromEnv()
	assert.Equal(t, "warn", opt.Level)
	assert.Equal(t, "console", opt.Format)
	assert.True(t, opt.Caller)
}

func TestWithPublisher(t *testing.T) {
	ctx := WithPublisher(context.Background(), "")
	assert.Nil(t, ctx.Value(keyPublisher))
	assert.Equal(t, "acme/tools", WithPublisher(ctx, "acme/tools").Value(keyPublisher))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a b c", Sanitize("a\nb\tc", 0))
	assert.Equal(t, "abc...", Sanitize("abcdef", 3))
}
