// Package sink writes extracted entity record sets to their destination:
// NDJSON objects in an object store, or vendor-scoped SQL tables.
package sink

import (
	"context"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/extract"
)

// Batch is one entity's output handed to a Writer.
type Batch struct {
	Vendor string
	Entity extract.EntityResult
	// Columns is the entity's column order, also used when there are no
	// records (tables still get created).
	Columns []string
	// ContextColumn holds the vendor; SQL sinks replace rows by it.
	ContextColumn string
}

// Output describes where a Batch went.
type Output struct {
	Entity   string `json:"entity"`
	Location string `json:"location"`
	Records  int    `json:"records"`
}

// Writer persists one Batch.
type Writer interface {
	Write(ctx context.Context, b Batch) (Output, error)
}
