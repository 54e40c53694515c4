package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingBackend struct {
	mu       sync.Mutex
	counters map[string]float64
	samples  map[string]int
	flushes  int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{counters: map[string]float64{}, samples: map[string]int{}}
}

func (r *recordingBackend) IncCounter(name string, delta float64, l Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name+"|"+l["step"]+"|"+l["status"]+"|"+l["entity"]] += delta
}

func (r *recordingBackend) ObserveHistogram(name string, _ float64, l Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[name+"|"+l["step"]+"|"+l["status"]]++
}

func (r *recordingBackend) Flush() error {
	r.flushes++
	return nil
}

// TestFacade covers the no-op default, delegation, ObserveStep labelling and
// Flush on buffering backends. Not parallel: the backend is process-wide.
func TestFacade(t *testing.T) {
	t.Cleanup(func() { SetBackend(nil) })

	// No backend: calls must not panic and Flush is a no-op.
	IncCounter(WarningsTotal, 1, nil)
	if err := Flush(); err != nil {
		t.Fatalf("Flush without backend: %v", err)
	}

	b := newRecordingBackend()
	SetBackend(b)

	IncCounter(EntityRecordsTotal, 3, Labels{"entity": "product_features"})
	ObserveStep("parse", time.Now(), nil)
	ObserveStep("write", time.Now(), errors.New("boom"))

	if got := b.counters[EntityRecordsTotal+"|||product_features"]; got != 3 {
		t.Fatalf("records counter=%v", got)
	}
	if b.counters[StepTotal+"|parse|ok|"] != 1 || b.counters[StepTotal+"|write|error|"] != 1 {
		t.Fatalf("step counters=%v", b.counters)
	}
	if b.samples[StepDurationSeconds+"|parse|ok"] != 1 {
		t.Fatalf("duration samples=%v", b.samples)
	}
	if err := Flush(); err != nil || b.flushes != 1 {
		t.Fatalf("Flush err=%v flushes=%d", err, b.flushes)
	}
}
