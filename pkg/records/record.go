// Package records defines the ordered output record emitted by the extractor
// and the canonical hashing used for row hashes and deduplication keys.
package records

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is an ordered mapping from column name to value. Column order is the
// order of first Set, which keeps JSON output and SQL column lists stable.
//
// Values are nil, string, []string or any JSON-marshalable value such as
// []ClassCode.
type Record struct {
	keys   []string
	values map[string]any
}

// ClassCode is one classification reference attached to a product row.
type ClassCode struct {
	System string `json:"system"`
	Code   string `json:"code"`
}

// New returns an empty record sized for n columns.
func New(n int) *Record {
	return &Record{
		keys:   make([]string, 0, n),
		values: make(map[string]any, n),
	}
}

// Set assigns v to key. A new key is appended; an existing key keeps its
// position.
func (r *Record) Set(key string, v any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// SetText assigns s when ok is true and nil otherwise.
func (r *Record) SetText(key, s string, ok bool) {
	if !ok {
		r.Set(key, nil)
		return
	}
	r.Set(key, s)
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Text returns the string value under key. ok is false for missing, nil or
// non-string values.
func (r *Record) Text(key string) (string, bool) {
	s, ok := r.values[key].(string)
	return s, ok
}

// Keys returns the column names in order. The slice must not be modified.
func (r *Record) Keys() []string { return r.keys }

// Clone returns a shallow copy; slice values are shared.
func (r *Record) Clone() *Record {
	c := New(len(r.keys))
	for _, k := range r.keys {
		c.Set(k, r.values[k])
	}
	return c
}

// MarshalJSON writes the record as a JSON object in column order. HTML
// characters are not escaped, matching the NDJSON writer.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := encodeValue(&buf, r.values[k]); err != nil {
			return nil, fmt.Errorf("column %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encoder terminates every value with '\n'.
	buf.Truncate(buf.Len() - 1)
	return nil
}
