// Package manifest validates the documents published alongside artifacts:
// bundle manifests (JSON) and skill SKILL.md frontmatter (YAML).
package manifest

import (
	"bytes"
	"embed"
	"encoding/json"
	"strings"

	"mpak/internal/core/artifact"
	perr "mpak/internal/platform/errors"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema/*.json
var schemas embed.FS

const (
	maxManifestBytes    = 512 << 10
	maxFrontmatterBytes = 64 << 10
	maxReported         = 5
)

var loaded = map[artifact.Kind]*gojsonschema.Schema{}

func init() {
	for kind, file := range map[artifact.Kind]string{
		artifact.KindBundle: "schema/bundle.json",
		artifact.KindSkill:  "schema/skill.json",
	} {
		b, err := schemas.ReadFile(file)
		if err != nil {
			panic(err)
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
		if err != nil {
			panic(err)
		}
		loaded[kind] = s
	}
}

// Summary is the handful of manifest fields the registry reads
type Summary struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

// Validate checks raw against the schema for kind and returns its summary
func Validate(kind artifact.Kind, raw json.RawMessage) (Summary, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Summary{}, perr.WithField(perr.Validationf("manifest is required"), "manifest")
	}
	if len(raw) > maxManifestBytes {
		return Summary{}, perr.WithField(perr.Validationf("manifest is too large"), "manifest")
	}
	s, ok := loaded[kind]
	if !ok {
		return Summary{}, perr.Validationf("unknown artifact kind %q", kind)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Summary{}, perr.WithField(perr.Wrapf(err, perr.ErrorCodeJSON, "manifest is not valid JSON"), "manifest")
	}
	if !res.Valid() {
		return Summary{}, perr.WithField(perr.Validationf("manifest invalid: %s", describe(res.Errors())), "manifest")
	}
	var sum Summary
	if err := json.Unmarshal(raw, &sum); err != nil {
		return Summary{}, perr.WithField(perr.Wrapf(err, perr.ErrorCodeJSON, "manifest is not valid JSON"), "manifest")
	}
	return sum, nil
}

func describe(errs []gojsonschema.ResultError) string {
	msgs := make([]string, 0, maxReported)
	for i, e := range errs {
		if i == maxReported {
			msgs = append(msgs, "...")
			break
		}
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}

// Frontmatter extracts the YAML frontmatter of a SKILL.md document and
// returns it as a JSON manifest
func Frontmatter(md []byte) (json.RawMessage, error) {
	content := bytes.TrimSpace(md)
	delim := []byte("---")
	if !bytes.HasPrefix(content, delim) {
		return nil, perr.WithField(perr.Validationf("SKILL.md must start with YAML frontmatter (---)"), "manifest")
	}
	rest := bytes.TrimPrefix(content[len(delim):], []byte("\n"))
	end := bytes.Index(rest, []byte("\n---"))
	if end == -1 {
		return nil, perr.WithField(perr.Validationf("SKILL.md frontmatter missing closing delimiter (---)"), "manifest")
	}
	fm := rest[:end]
	if len(fm) > maxFrontmatterBytes {
		return nil, perr.WithField(perr.Validationf("SKILL.md frontmatter is too large"), "manifest")
	}

	var doc map[string]any
	if err := yaml.Unmarshal(fm, &doc); err != nil {
		return nil, perr.WithField(perr.Wrapf(err, perr.ErrorCodeValidation, "SKILL.md frontmatter is not valid YAML"), "manifest")
	}
	if doc == nil {
		doc = map[string]any{}
	}
	out, err := json.Marshal(doc)
	if err != nil {
		// yaml can produce values json cannot carry, such as non-string map keys
		return nil, perr.WithField(perr.Wrapf(err, perr.ErrorCodeValidation, "SKILL.md frontmatter cannot be represented as JSON"), "manifest")
	}
	return out, nil
}
