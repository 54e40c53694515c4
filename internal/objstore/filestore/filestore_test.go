package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/objstore"
)

// TestStore_PutGet verifies nested keys are created and read back, and that
// a missing key reports objstore.ErrNotFound.
func TestStore_PutGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "out/acme/acme_vendor_products.json", []byte("{}\n"), "application/x-ndjson"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "out", "acme", "acme_vendor_products.json"))
	if err != nil || string(b) != "{}\n" {
		t.Fatalf("file=%q err=%v", b, err)
	}

	got, err := s.Get(ctx, "/out/acme/acme_vendor_products.json")
	if err != nil || string(got) != "{}\n" {
		t.Fatalf("Get=%q err=%v", got, err)
	}

	if _, err := s.Get(ctx, "missing.xml"); !errors.Is(err, objstore.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "out", "acme"))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

// TestStore_RejectsEscapingKeys verifies keys cannot leave the root.
func TestStore_RejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	s, _ := New(t.TempDir())
	for _, key := range []string{"../etc/passwd", "a/../../b", ""} {
		if _, err := s.Get(context.Background(), key); err == nil || errors.Is(err, objstore.ErrNotFound) {
			t.Fatalf("key %q: err=%v, want rejection", key, err)
		}
	}
}

// TestOpen_Registered verifies the backend registers itself as "file".
func TestOpen_Registered(t *testing.T) {
	t.Parallel()

	st, err := objstore.Open(context.Background(), objstore.Config{Kind: "file", Root: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !strings.HasPrefix(st.Location("k"), "file://") {
		t.Fatalf("location=%q", st.Location("k"))
	}
	if _, err := objstore.Open(context.Background(), objstore.Config{Kind: "s3"}); err == nil {
		t.Fatalf("expected unsupported kind error")
	}
}
