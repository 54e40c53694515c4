package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/objstore"
)

// NDJSONContentType is the content type of written objects.
const NDJSONContentType = "application/x-ndjson"

// NDJSONWriter writes one object per entity to Store under
// Prefix + <vendor>_<entity>.json, one JSON record per line.
//
// Edge cases:
//   - An entity without records produces an empty object, so downstream
//     jobs can tell "no rows" from "not run".
//   - HTML characters are not escaped; output is UTF-8.
type NDJSONWriter struct {
	Store  objstore.Store
	Prefix string
}

// Key returns the object key for vendor and entity.
func (w *NDJSONWriter) Key(vendor, entity string) string {
	return w.Prefix + vendor + "_" + entity + ".json"
}

// Write encodes b's records and uploads them.
func (w *NDJSONWriter) Write(ctx context.Context, b Batch) (Output, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, r := range b.Entity.Records {
		if err := enc.Encode(r); err != nil {
			return Output{}, fmt.Errorf("sink: encode %s record %d: %w", b.Entity.Name, i, err)
		}
	}

	key := w.Key(b.Vendor, b.Entity.Name)
	if err := w.Store.Put(ctx, key, buf.Bytes(), NDJSONContentType); err != nil {
		return Output{}, fmt.Errorf("sink: write %s: %w", key, err)
	}
	return Output{Entity: b.Entity.Name, Location: w.Store.Location(key), Records: len(b.Entity.Records)}, nil
}
