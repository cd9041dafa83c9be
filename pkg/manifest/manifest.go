// Package manifest loads the TOML artifact list consumed by batch fetches.
package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/xeipuuv/gojsonschema"

	"artifetch/pkg/hashutil"
)

// Artifact is one entry of the manifest. Hash is optional; unpinned
// artifacts are cached by URL identity and never verified.
type Artifact struct {
	Out  string `toml:"out"`
	URL  string `toml:"url"`
	Hash string `toml:"hash"`
}

// Manifest is the full artifact list. Algo selects the digest algorithm
// for every entry (default sha1).
type Manifest struct {
	Algo      string              `toml:"algo"`
	Artifacts map[string]Artifact `toml:"artifacts"`
}

var schema = map[string]any{
	"type":                 "object",
	"required":             []string{"artifacts"},
	"additionalProperties": false,
	"properties": map[string]any{
		"algo": map[string]any{
			"type": "string",
			"enum": []string{"sha1", "sha256", "sha512"},
		},
		"artifacts": map[string]any{
			"type":          "object",
			"minProperties": 1,
			"additionalProperties": map[string]any{
				"type":                 "object",
				"required":             []string{"out", "url"},
				"additionalProperties": false,
				"properties": map[string]any{
					"out":  map[string]any{"type": "string", "minLength": 1},
					"url":  map[string]any{"type": "string", "minLength": 1},
					"hash": map[string]any{"type": "string"},
				},
			},
		},
	},
}

// Load parses and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := validateSchema(path, raw); err != nil {
		return nil, err
	}

	out := &Manifest{}
	if _, err := toml.DecodeFile(path, out); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if out.Algo == "" {
		out.Algo = hashutil.DefaultAlgo
	}
	return out, nil
}

func validateSchema(path string, doc map[string]any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate %s: %w", path, err)
	}
	if !result.Valid() {
		var errs strings.Builder
		for _, desc := range result.Errors() {
			fmt.Fprintf(&errs, "- %s\n", desc)
		}
		return fmt.Errorf("manifest validation failed for %s:\n%s", path, errs.String())
	}
	return nil
}

// Names returns the artifact names in stable sorted order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Artifacts))
	for name := range m.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
