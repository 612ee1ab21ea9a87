package manifest

import (
	"encoding/json"
	"testing"

	"mpak/internal/core/artifact"
	perr "mpak/internal/platform/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Bundle(t *testing.T) {
	sum, err := Validate(artifact.KindBundle, json.RawMessage(`{
		"name": "tool", "version": "1.0.0", "description": "does things",
		"server": {"type": "node", "entry_point": "index.js"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, Summary{Name: "tool", Version: "1.0.0", Description: "does things"}, sum)

	cases := map[string]string{
		"missing version": `{"name":"tool"}`,
		"bad server type": `{"name":"tool","version":"1","server":{"type":"java"}}`,
		"not an object":   `[1,2]`,
	}
	for name, raw := range cases {
		_, err := Validate(artifact.KindBundle, json.RawMessage(raw))
		require.Error(t, err, name)
		assert.True(t, perr.IsCode(err, perr.ErrorCodeValidation), name)
		assert.Equal(t, "manifest", perr.WireFrom(err).Field, name)
	}

	_, err = Validate(artifact.KindBundle, json.RawMessage(`{"name":`))
	assert.True(t, perr.IsCode(err, perr.ErrorCodeJSON))

	_, err = Validate(artifact.KindBundle, nil)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeValidation))
}

func TestFrontmatter_ToSkillManifest(t *testing.T) {
	md := []byte(`---
name: writer
description: Writes things
allowed-tools: Read, Write
metadata:
  team: docs
---

# Writer

Body text with --- inside.
`)
	raw, err := Frontmatter(md)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"writer","description":"Writes things","allowed-tools":"Read, Write","metadata":{"team":"docs"}}`, string(raw))

	sum, err := Validate(artifact.KindSkill, raw)
	require.NoError(t, err)
	assert.Equal(t, "writer", sum.Name)
}

func TestFrontmatter_Rejects(t *testing.T) {
	for name, md := range map[string]string{
		"no frontmatter": "# Title\n",
		"unterminated":   "---\nname: x\n",
		"bad yaml":       "---\nname: [\n---\n",
	} {
		_, err := Frontmatter([]byte(md))
		assert.True(t, perr.IsCode(err, perr.ErrorCodeValidation), name)
	}

	raw, err := Frontmatter([]byte("---\nname: x\n---\n"))
	require.NoError(t, err)
	_, err = Validate(artifact.KindSkill, raw)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeValidation), "description is required")
}
