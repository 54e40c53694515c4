package records

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Hasher computes a deterministic SHA-256 over selected columns of a record.
//
// It backs both the optional row_hash column and the deduplication key.
//
// Canonicalization rules:
//   - Columns are concatenated in the given order, separated by ASCII Unit
//     Separator (0x1f).
//   - Missing or nil values are encoded as a single NUL byte (0x00) so missing
//     differs from empty-string.
//   - []string values are joined with ASCII Record Separator (0x1e).
//   - Other types fall back to JSON or fmt.Sprint.
type Hasher struct {
	// Fields is the ordered list of columns. Empty means all columns of the
	// record in record order.
	Fields []string
}

// Sum returns the raw digest for r.
func (h Hasher) Sum(r *Record) [sha256.Size]byte {
	fields := h.Fields
	if len(fields) == 0 {
		fields = r.Keys()
	}
	var b strings.Builder
	b.Grow(len(fields) * 20)

	for i, f := range fields {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		v, ok := r.Get(f)
		if !ok || v == nil {
			b.WriteByte('\x00')
			continue
		}
		appendCanonicalValue(&b, v)
	}

	return sha256.Sum256([]byte(b.String()))
}

// Hex returns Sum as a lowercase 64 character string.
func (h Hasher) Hex(r *Record) string {
	sum := h.Sum(r)
	return hex.EncodeToString(sum[:])
}

func appendCanonicalValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case string:
		b.WriteString(t)
	case []string:
		for i, s := range t {
			if i > 0 {
				b.WriteByte('\x1e')
			}
			b.WriteString(s)
		}
	case []ClassCode:
		for i, c := range t {
			if i > 0 {
				b.WriteByte('\x1e')
			}
			b.WriteString(c.System)
			b.WriteByte('\x1d')
			b.WriteString(c.Code)
		}
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	default:
		b.WriteString(fmt.Sprint(t))
	}
}
