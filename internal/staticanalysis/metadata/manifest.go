// Package metadata inspects the package manifest: lifecycle hooks, encoded
// values and the package name itself.
package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidManifest is returned when package.json is not a JSON object.
var ErrInvalidManifest = errors.New("invalid package manifest")

// Manifest is the subset of package.json the analyzers need. Raw keeps the
// original bytes for locating lines.
type Manifest struct {
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Scripts map[string]string `json:"scripts"`

	Raw    []byte         `json:"-"`
	Fields map[string]any `json:"-"`
}

// ParseManifest decodes raw package.json bytes.
func ParseManifest(raw []byte) (*Manifest, error) {
	m := &Manifest{Raw: raw}
	if err := json.Unmarshal(raw, &m.Fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return m, nil
}

// Line returns the 1-based line of the first occurrence of needle in the raw
// manifest, or 0.
func (m *Manifest) Line(needle string) int {
	idx := bytes.Index(m.Raw, []byte(needle))
	if idx < 0 {
		return 0
	}
	return bytes.Count(m.Raw[:idx], []byte("\n")) + 1
}

// KeyLine locates a `"key":` member.
func (m *Manifest) KeyLine(key string) int {
	return m.Line(quote(key))
}

// ValueLine locates a string value as it is spelled in JSON.
func (m *Manifest) ValueLine(value string) int {
	return m.Line(quote(value))
}

func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return s
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}
