// Package mapping loads per-vendor mapping configurations and compiles them
// into an executable Plan for the extractor.
//
// A configuration declares, per output entity, where the row nodes live
// (root_path), how each row is identified (key_fields) and which columns to
// emit (fields). Object order is significant: the order of "outputs" is the
// run order and the order of "fields" is the output column order, so both are
// decoded into ordered slices rather than Go maps.
package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// File is a decoded mapping configuration.
type File struct {
	Outputs    Entities   `json:"outputs" yaml:"outputs"`
	Categories Categories `json:"categories" yaml:"categories"`

	// raw is the generic decoded document used for reference lookups.
	raw any
}

// Entities is the ordered "outputs" object.
type Entities []Entity

// Entity is the configuration of one output entity.
type Entity struct {
	// Name is the key under "outputs"; it is not part of the object itself.
	Name string `json:"-" yaml:"-"`

	Mode          string          `json:"mode" yaml:"mode"`
	Required      bool            `json:"required" yaml:"required"`
	RootPath      string          `json:"root_path" yaml:"root_path"`
	SourceParent  string          `json:"source_parent" yaml:"source_parent"`
	KeyFields     KeyFields       `json:"key_fields" yaml:"key_fields"`
	Fields        Fields          `json:"fields" yaml:"fields"`
	Options       Options         `json:"options" yaml:"options"`
	Deduplication *Deduplication  `json:"deduplication" yaml:"deduplication"`
	Keywords      []KeywordRule   `json:"keywords" yaml:"keywords"`
	ClassCodes    []ClassCodeRule `json:"class_codes" yaml:"class_codes"`
}

// KeyFields is the ordered "key_fields" object. Only the first entry defines
// the row key; further entries are reported as warnings.
type KeyFields []KeyField

// KeyField names one key column and how to resolve it.
type KeyField struct {
	Name string
	Spec KeySpec
}

// KeySpec is a primary/fallback chain. The short forms "primary" and
// "fallback" are accepted as aliases.
type KeySpec struct {
	PrimaryPath  string `json:"primary_path" yaml:"primary_path"`
	Primary      string `json:"primary" yaml:"primary"`
	FallbackPath string `json:"fallback_path" yaml:"fallback_path"`
	Fallback     string `json:"fallback" yaml:"fallback"`
}

// PrimaryOrAlias returns primary_path, or primary when the former is empty.
func (k KeySpec) PrimaryOrAlias() string {
	if k.PrimaryPath != "" {
		return k.PrimaryPath
	}
	return k.Primary
}

// FallbackOrAlias returns fallback_path, or fallback when the former is empty.
func (k KeySpec) FallbackOrAlias() string {
	if k.FallbackPath != "" {
		return k.FallbackPath
	}
	return k.Fallback
}

// Fields is an ordered "fields" object.
type Fields []Field

// Field is one configured column. Value is either a string or a
// map[string]any (a key reference or an extractor object).
type Field struct {
	Name  string
	Value any
}

// Lookup returns the value configured for name.
func (fs Fields) Lookup(name string) (any, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Options are per-entity switches.
type Options struct {
	ExplodeMultipleFValues *bool  `json:"explode_multiple_fvalues" yaml:"explode_multiple_fvalues"`
	ValueField             string `json:"value_field" yaml:"value_field"`
	RowHash                bool   `json:"row_hash" yaml:"row_hash"`
}

// Deduplication configures the per-entity seen-keys set.
type Deduplication struct {
	ByColumns []string `json:"by_columns" yaml:"by_columns"`
}

// KeywordRule collects the text of every node under Source.
type KeywordRule struct {
	Source string `json:"source" yaml:"source"`
}

// ClassCodeRule collects (system, code) pairs from repeated blocks.
type ClassCodeRule struct {
	SourceParent string   `json:"source_parent" yaml:"source_parent"`
	SystemField  string   `json:"system_field" yaml:"system_field"`
	CodeField    string   `json:"code_field" yaml:"code_field"`
	Systems      []string `json:"systems" yaml:"systems"`
}

// Categories configures the category tree used by ancestors.* fields.
type Categories struct {
	Fields Fields `json:"fields" yaml:"fields"`
}

func (e *Entities) UnmarshalJSON(data []byte) error {
	*e = nil
	return forEachJSONMember(data, func(key string, raw json.RawMessage) error {
		var ent Entity
		if err := json.Unmarshal(raw, &ent); err != nil {
			return fmt.Errorf("outputs.%s: %w", key, err)
		}
		ent.Name = key
		*e = append(*e, ent)
		return nil
	})
}

func (e *Entities) UnmarshalYAML(n *yaml.Node) error {
	*e = nil
	return forEachYAMLMember(n, func(key string, v *yaml.Node) error {
		var ent Entity
		if err := v.Decode(&ent); err != nil {
			return fmt.Errorf("outputs.%s: %w", key, err)
		}
		ent.Name = key
		*e = append(*e, ent)
		return nil
	})
}

func (k *KeyFields) UnmarshalJSON(data []byte) error {
	*k = nil
	return forEachJSONMember(data, func(key string, raw json.RawMessage) error {
		var spec KeySpec
		if err := json.Unmarshal(raw, &spec); err != nil {
			return fmt.Errorf("key_fields.%s: %w", key, err)
		}
		*k = append(*k, KeyField{Name: key, Spec: spec})
		return nil
	})
}

func (k *KeyFields) UnmarshalYAML(n *yaml.Node) error {
	*k = nil
	return forEachYAMLMember(n, func(key string, v *yaml.Node) error {
		var spec KeySpec
		if err := v.Decode(&spec); err != nil {
			return fmt.Errorf("key_fields.%s: %w", key, err)
		}
		*k = append(*k, KeyField{Name: key, Spec: spec})
		return nil
	})
}

func (fs *Fields) UnmarshalJSON(data []byte) error {
	*fs = nil
	return forEachJSONMember(data, func(key string, raw json.RawMessage) error {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("fields.%s: %w", key, err)
		}
		*fs = append(*fs, Field{Name: key, Value: v})
		return nil
	})
}

func (fs *Fields) UnmarshalYAML(n *yaml.Node) error {
	*fs = nil
	return forEachYAMLMember(n, func(key string, v *yaml.Node) error {
		var val any
		if err := v.Decode(&val); err != nil {
			return fmt.Errorf("fields.%s: %w", key, err)
		}
		*fs = append(*fs, Field{Name: key, Value: val})
		return nil
	})
}

// forEachJSONMember walks a JSON object in document order. null decodes as an
// empty object.
func forEachJSONMember(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

// forEachYAMLMember walks a YAML mapping node in document order.
func forEachYAMLMember(n *yaml.Node, fn func(key string, v *yaml.Node) error) error {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := fn(n.Content[i].Value, n.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}
