package store

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	s := &Store{}
	require.NoError(t, WithLogger(zerolog.New(&buf))(s))

	s.Log.Info().Msg("store ready")
	assert.Contains(t, buf.String(), "store ready")
}
