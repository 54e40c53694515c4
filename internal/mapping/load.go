package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ohler55/ojg/jp"
	"gopkg.in/yaml.v3"
)

// Format selects the configuration syntax.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFromName picks the format from a file name or object key.
// ".yaml" and ".yml" are YAML, everything else JSON.
func FormatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// DefaultConfigKey is the object key the job reads a vendor's mapping from
// when no explicit key is given.
func DefaultConfigKey(vendor string) string {
	return "configuration-files/incomingVendorBmecatPreprocessing_configs/" +
		"incomingVendorBmecatPreprocessing_config_" + vendor + ".json"
}

// LoadFile reads and decodes a mapping configuration from disk.
func LoadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping config %s: %w", path, err)
	}
	f, err := Parse(b, FormatFromName(path))
	if err != nil {
		return nil, fmt.Errorf("mapping config %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a mapping configuration.
func Parse(data []byte, format Format) (*File, error) {
	var (
		f   File
		raw any
	)

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	}

	f.raw = raw
	return &f, nil
}

// Resolve evaluates a dotted reference such as
// "vendor_products.key_fields.article_id" against the "outputs" object.
// Each dot-separated part is one object member.
func (f *File) Resolve(ref string) (any, error) {
	if f.raw == nil {
		return nil, fmt.Errorf("reference %q: configuration has no raw document", ref)
	}
	x := jp.C("outputs")
	for _, part := range strings.Split(ref, ".") {
		if part == "" {
			return nil, fmt.Errorf("reference %q: empty segment", ref)
		}
		x = x.C(part)
	}
	hits := x.Get(f.raw)
	if len(hits) == 0 {
		return nil, fmt.Errorf("reference %q does not resolve under outputs", ref)
	}
	return hits[0], nil
}

// keySpecFromValue decodes a generic value, as returned by Resolve, into a
// KeySpec.
func keySpecFromValue(v any) (KeySpec, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return KeySpec{}, false
	}
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	return KeySpec{
		PrimaryPath:  str("primary_path"),
		Primary:      str("primary"),
		FallbackPath: str("fallback_path"),
		Fallback:     str("fallback"),
	}, true
}
