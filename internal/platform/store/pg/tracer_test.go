package pg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"mpak/internal/platform/logger"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var m map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &m))
	return m
}

func TestTracer_LogsStatement(t *testing.T) {
	var buf bytes.Buffer
	root := zerolog.New(&buf).Level(zerolog.InfoLevel)
	tr := Tracer(root)

	ctx := logger.WithRequest(context.Background(), "req-42", "acme/tools")
	tr.OnQuery(ctx, QueryEvent{
		SQL:     "SELECT id\n\t FROM packages\n WHERE name = $1",
		Args:    1,
		Elapsed: 3 * time.Millisecond,
	})

	m := lastLine(t, &buf)
	assert.Equal(t, "debug", m["level"], "tracer logs below the root level")
	assert.Equal(t, "pg", m["component"])
	assert.Equal(t, "SELECT id FROM packages WHERE name = $1", m["sql"])
	assert.EqualValues(t, 1, m["args"])
	assert.Equal(t, "req-42", m["request_id"])
	assert.Equal(t, "acme/tools", m["publisher"])
	assert.NotContains(t, m, "error")
}

func TestTracer_SlowAndFailed(t *testing.T) {
	var buf bytes.Buffer
	tr := Tracer(zerolog.New(&buf))

	tr.OnQuery(context.Background(), QueryEvent{SQL: "SELECT pg_advisory_xact_lock($1)", Args: 1, Slow: true, Err: errors.New("lock timeout")})

	m := lastLine(t, &buf)
	assert.Equal(t, "warn", m["level"])
	assert.Equal(t, true, m["slow"])
	assert.Equal(t, "lock timeout", m["error"])
}
