package extract

import (
	"fmt"
	"sync"
)

// Logger is the minimal logging dependency of the engine. *log.Logger
// satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Diagnostics is the per-run warning state. Each (label, path) pair warns at
// most once for the lifetime of the value, no matter how many rows miss it.
//
// A Diagnostics must not be shared between runs over different documents.
// It is safe for concurrent use by the workers of one run.
type Diagnostics struct {
	logger Logger

	mu       sync.Mutex
	seen     map[string]struct{}
	warnings []string
}

// NewDiagnostics returns an empty warning set. A nil logger discards output.
func NewDiagnostics(logger Logger) *Diagnostics {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Diagnostics{logger: logger, seen: make(map[string]struct{})}
}

// MissingPath records that the element path configured under label did not
// resolve for a row.
func (d *Diagnostics) MissingPath(label, path string) {
	d.warnOnce(label, path, fmt.Sprintf(
		"Configured path '%s' for '%s' was not found (at least for one record).", path, label))
}

// MissingAttribute records that the attribute configured under label was
// absent on a row.
func (d *Diagnostics) MissingAttribute(label, attr string) {
	d.warnOnce(label, "@"+attr, fmt.Sprintf(
		"Configured attribute '@%s' for '%s' was not found (at least for one record).", attr, label))
}

func (d *Diagnostics) warnOnce(label, path, msg string) {
	key := label + "::" + path

	d.mu.Lock()
	if _, ok := d.seen[key]; ok {
		d.mu.Unlock()
		return
	}
	d.seen[key] = struct{}{}
	d.warnings = append(d.warnings, msg)
	d.mu.Unlock()

	d.logger.Printf("stage=warning label=%s path=%s msg=%q", label, path, msg)
}

// Warnings returns the distinct warning messages in emission order.
func (d *Diagnostics) Warnings() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.warnings...)
}

// Len returns the number of distinct warnings.
func (d *Diagnostics) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.warnings)
}

// EntityStats are the per-entity counters exposed in the run summary.
type EntityStats struct {
	Entity            string `json:"entity"`
	RowsFound         int    `json:"rows_found"`
	RowsSkippedNoKey  int    `json:"rows_skipped_no_key"`
	DuplicatesDropped int    `json:"duplicates_dropped"`
	Records           int    `json:"records"`
}
