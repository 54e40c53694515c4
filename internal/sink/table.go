package sink

import (
	"context"
	"fmt"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/storage"
)

// TableWriter loads each entity into the table TablePrefix + <entity>.
//
// A run replaces the vendor's previous rows in that table; other vendors'
// rows are untouched. Tables are created on first use with text columns.
type TableWriter struct {
	Repo        storage.Repository
	TablePrefix string
}

// Write ensures the table and replaces the vendor's rows.
func (w *TableWriter) Write(ctx context.Context, b Batch) (Output, error) {
	spec := storage.TableSpec{
		Name:        w.TablePrefix + b.Entity.Name,
		Columns:     b.Columns,
		ScopeColumn: b.ContextColumn,
	}
	if err := w.Repo.EnsureTable(ctx, spec); err != nil {
		return Output{}, fmt.Errorf("sink: %w", err)
	}

	rows := make([][]any, 0, len(b.Entity.Records))
	for i, r := range b.Entity.Records {
		vals := make([]any, len(b.Columns))
		for j, c := range b.Columns {
			v, _ := r.Get(c)
			sv, err := storage.SQLValue(v)
			if err != nil {
				return Output{}, fmt.Errorf("sink: %s record %d column %s: %w", b.Entity.Name, i, c, err)
			}
			vals[j] = sv
		}
		rows = append(rows, vals)
	}

	n, err := w.Repo.ReplaceRows(ctx, spec, b.Vendor, b.Columns, rows)
	if err != nil {
		return Output{}, fmt.Errorf("sink: load %s: %w", spec.Name, err)
	}
	return Output{Entity: b.Entity.Name, Location: "table:" + spec.Name, Records: int(n)}, nil
}
