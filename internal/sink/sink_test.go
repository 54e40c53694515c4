package sink

import (
	"context"
	"strings"
	"testing"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/extract"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/objstore/filestore"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/storage"
	_ "github.com/rai-lv/vendor-to-pim-mapping-system/internal/storage/sqlite"
	"github.com/rai-lv/vendor-to-pim-mapping-system/pkg/records"
)

func product(vendor, id string, desc any, keywords []string) *records.Record {
	r := records.New(4)
	r.Set("vendor_name", vendor)
	r.Set("article_id", id)
	r.Set("description", desc)
	r.Set("keywords", keywords)
	return r
}

func productBatch(recs ...*records.Record) Batch {
	return Batch{
		Vendor:        "acme",
		Entity:        extract.EntityResult{Name: "vendor_products", Records: recs},
		Columns:       []string{"vendor_name", "article_id", "description", "keywords"},
		ContextColumn: "vendor_name",
	}
}

// TestNDJSONWriter_WritesOneLinePerRecord verifies the object key, line
// layout, column order and unescaped HTML characters.
func TestNDJSONWriter_WritesOneLinePerRecord(t *testing.T) {
	t.Parallel()

	st, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore: %v", err)
	}
	w := &NDJSONWriter{Store: st, Prefix: "out/"}

	out, err := w.Write(context.Background(), productBatch(
		product("acme", "A-1", "Bolt <M8> & nut", []string{"bolt"}),
		product("acme", "A-2", nil, []string{}),
	))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if out.Records != 2 || !strings.HasSuffix(out.Location, "/out/acme_vendor_products.json") {
		t.Fatalf("out=%+v", out)
	}

	b, err := st.Get(context.Background(), "out/acme_vendor_products.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := `{"vendor_name":"acme","article_id":"A-1","description":"Bolt <M8> & nut","keywords":["bolt"]}` + "\n" +
		`{"vendor_name":"acme","article_id":"A-2","description":null,"keywords":[]}` + "\n"
	if string(b) != want {
		t.Fatalf("got:\n%s\nwant:\n%s", b, want)
	}
}

// TestNDJSONWriter_EmptyEntity verifies an entity without records still
// produces an (empty) object.
func TestNDJSONWriter_EmptyEntity(t *testing.T) {
	t.Parallel()

	st, _ := filestore.New(t.TempDir())
	w := &NDJSONWriter{Store: st}
	if _, err := w.Write(context.Background(), productBatch()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	b, err := st.Get(context.Background(), "acme_vendor_products.json")
	if err != nil || len(b) != 0 {
		t.Fatalf("b=%q err=%v", b, err)
	}
}

// TestTableWriter_ReplacesVendorRows loads twice into an in-memory SQLite
// database and checks the second load replaced the first, with lists stored
// as JSON text.
func TestTableWriter_ReplacesVendorRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer repo.Close()

	w := &TableWriter{Repo: repo, TablePrefix: "bmecat_"}
	if _, err := w.Write(ctx, productBatch(product("acme", "OLD", "x", nil))); err != nil {
		t.Fatalf("Write #1: %v", err)
	}
	out, err := w.Write(ctx, productBatch(
		product("acme", "A-1", "d", []string{"a", "b"}),
		product("acme", "A-2", nil, nil),
	))
	if err != nil {
		t.Fatalf("Write #2: %v", err)
	}
	if out.Records != 2 || out.Location != "table:bmecat_vendor_products" {
		t.Fatalf("out=%+v", out)
	}

	// Capture what reaches the repository to check the stored text form.
	rows := &captureRepo{Repository: repo}
	w2 := &TableWriter{Repo: rows, TablePrefix: "bmecat_"}
	if _, err := w2.Write(ctx, productBatch(product("acme", "A-1", "d", []string{"a", "b"}))); err != nil {
		t.Fatalf("Write #3: %v", err)
	}
	if got := rows.last[0][3]; got != `["a","b"]` {
		t.Fatalf("keywords column=%v", got)
	}
	if rows.scope != "acme" || rows.spec.ScopeColumn != "vendor_name" {
		t.Fatalf("scope=%q spec=%+v", rows.scope, rows.spec)
	}
}

type captureRepo struct {
	storage.Repository
	spec  storage.TableSpec
	scope string
	last  [][]any
}

func (c *captureRepo) ReplaceRows(ctx context.Context, spec storage.TableSpec, scope string, columns []string, rows [][]any) (int64, error) {
	c.spec, c.scope, c.last = spec, scope, rows
	return c.Repository.ReplaceRows(ctx, spec, scope, columns, rows)
}
