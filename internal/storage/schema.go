package storage

import (
	"fmt"
	"strings"
)

// TableSpec describes one entity table. All columns are nullable text.
//
// Edge cases:
//   - Name may be schema-qualified ("staging.acme_products") where the
//     backend supports schemas.
//   - ScopeColumn names the column ReplaceRows filters on (the vendor column);
//     it must be one of Columns.
type TableSpec struct {
	Name        string
	Columns     []string
	ScopeColumn string
}

// Validate checks the table for an empty name, empty or duplicate columns and
// a scope column outside the column list.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("storage: table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("storage: table %s has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("storage: table %s has an empty column name", t.Name)
		}
		lc := strings.ToLower(c)
		if seen[lc] {
			return fmt.Errorf("storage: table %s has duplicate column %q", t.Name, c)
		}
		seen[lc] = true
	}
	if t.ScopeColumn != "" && !seen[strings.ToLower(t.ScopeColumn)] {
		return fmt.Errorf("storage: scope column %q is not a column of %s", t.ScopeColumn, t.Name)
	}
	return nil
}

// SplitQualifiedName splits "schema.table". Names without exactly one dot
// are treated as unqualified.
func SplitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// Batches splits rows into chunks whose parameter count (rows*cols) stays
// within maxParams. Each chunk holds at least one row.
func Batches(rows [][]any, cols, maxParams int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := 1
	if cols > 0 && maxParams > cols {
		per = maxParams / cols
	}
	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
