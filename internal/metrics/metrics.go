// Package metrics is the process-wide metrics facade used by the job runner.
//
// Callers record through the package functions; a backend (e.g. Datadog) is
// installed once at startup with SetBackend. Without a backend every call is
// a no-op, which keeps tests and local runs free of side effects.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the preprocessing job.
const (
	EntityRecordsTotal     = "bmecat_entity_records_total"     // labels: entity
	RowsSkippedTotal       = "bmecat_rows_skipped_total"       // labels: entity
	DuplicatesDroppedTotal = "bmecat_duplicates_dropped_total" // labels: entity
	WarningsTotal          = "bmecat_warnings_total"
	StepTotal              = "bmecat_step_total"            // labels: step, status
	StepDurationSeconds    = "bmecat_step_duration_seconds" // labels: step, status
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer.
type Flusher interface {
	Flush() error
}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

// SetBackend installs b as the process-wide backend. Nil restores the no-op
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to the counter name.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample for name.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the backend when it buffers. It returns nil otherwise.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// ObserveStep records one step outcome: a StepTotal increment and a
// StepDurationSeconds sample, both labelled with step and "ok"/"error".
//
// Typical use:
//
//	start := time.Now()
//	err := doStep()
//	metrics.ObserveStep("parse", start, err)
func ObserveStep(step string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDurationSeconds, time.Since(start).Seconds(), l)
}
