package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// SQLValue converts a record value to the form stored in a text column.
//
// Backends must not assume a particular Go type for record values; this
// helper keeps the stored representation identical across backends:
//   - nil and a nil []string stay nil (SQL NULL).
//   - string is stored as is. Empty strings stay distinct from NULL.
//   - []byte becomes a string.
//   - anything else (lists, class-code objects, numbers) is stored as JSON
//     text without HTML escaping.
func SQLValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case []string:
		if t == nil {
			return nil, nil
		}
		return encodeJSON(t)
	default:
		return encodeJSON(v)
	}
}

func encodeJSON(v any) (any, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("storage: encode %T: %w", v, err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
