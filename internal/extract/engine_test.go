package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/catalog"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/mapping"
	"github.com/rai-lv/vendor-to-pim-mapping-system/pkg/records"
)

func loadFixture(t *testing.T) (*catalog.Node, *mapping.Plan) {
	t.Helper()

	f, err := os.Open("testdata/catalog.xml")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer f.Close()

	root, err := catalog.Parse(f)
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}

	cfg, err := mapping.LoadFile("testdata/mapping.json")
	if err != nil {
		t.Fatalf("load mapping: %v", err)
	}
	plan, issues, err := mapping.Compile(cfg)
	if err != nil {
		t.Fatalf("compile mapping: %v (issues=%v)", err, issues)
	}
	return root, plan
}

func runFixture(t *testing.T, workers int, mutate func(*mapping.Plan)) *Result {
	t.Helper()
	root, plan := loadFixture(t)
	if mutate != nil {
		mutate(plan)
	}
	res, err := New(Options{Vendor: "acme", Workers: workers}).Run(context.Background(), root, plan)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func jsonLines(t *testing.T, recs []*records.Record) []string {
	t.Helper()
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
		out = append(out, strings.TrimSuffix(buf.String(), "\n"))
	}
	return out
}

func entity(t *testing.T, res *Result, name string) *EntityResult {
	t.Helper()
	e, ok := res.Entity(name)
	if !ok {
		t.Fatalf("entity %s missing from result", name)
	}
	return e
}

// TestEngine_VendorProducts covers key fallback, skipped rows, attribute and
// html_text fields, keywords and filtered class codes.
func TestEngine_VendorProducts(t *testing.T) {
	t.Parallel()

	res := runFixture(t, 1, nil)
	vp := entity(t, res, "vendor_products")

	want := []string{
		`{"vendor_name":"acme","article_id":"A-1","ean":"4006381333931","mode":"new","title":"Headphones X","description":"Closed over-ear 32 Ohm","order_unit":null,"keywords":["audio","headphones"],"class_codes":[{"system":"ECLASS-5.1","code":"19-01-02-03"}]}`,
		`{"vendor_name":"acme","article_id":"123","ean":null,"mode":"new","title":"Cable","description":null,"order_unit":null,"keywords":[],"class_codes":[]}`,
	}
	if got := jsonLines(t, vp.Records); !reflect.DeepEqual(got, want) {
		t.Fatalf("vendor_products:\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}

	wantStats := EntityStats{Entity: "vendor_products", RowsFound: 3, RowsSkippedNoKey: 1, Records: 2}
	if vp.Stats != wantStats {
		t.Fatalf("stats=%+v want %+v", vp.Stats, wantStats)
	}
}

// TestEngine_FeaturesExplode verifies that three value nodes yield three
// records, that duplicates are dropped and that items without values yield
// nothing.
func TestEngine_FeaturesExplode(t *testing.T) {
	t.Parallel()

	res := runFixture(t, 1, nil)
	pf := entity(t, res, "product_features")

	want := []string{
		`{"vendor_name":"acme","article_id":"A-1","system":"ECLASS-5.1","fname":"Color","fvalue":"black","funit":null}`,
		`{"vendor_name":"acme","article_id":"A-1","system":"ECLASS-5.1","fname":"Color","fvalue":"white","funit":null}`,
		`{"vendor_name":"acme","article_id":"A-1","system":"ECLASS-5.1","fname":"Color","fvalue":"red","funit":null}`,
		`{"vendor_name":"acme","article_id":"A-1","system":"ECLASS-5.1","fname":"Impedance","fvalue":"32","funit":"Ohm"}`,
	}
	if got := jsonLines(t, pf.Records); !reflect.DeepEqual(got, want) {
		t.Fatalf("product_features:\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
	if pf.Stats.DuplicatesDropped != 1 || pf.Stats.RowsSkippedNoKey != 1 {
		t.Fatalf("stats=%+v", pf.Stats)
	}
}

// TestEngine_FeaturesNoExplode verifies that with explode disabled only the
// first value node of each item is used.
func TestEngine_FeaturesNoExplode(t *testing.T) {
	t.Parallel()

	res := runFixture(t, 1, func(p *mapping.Plan) {
		ep, _ := p.Entity("product_features")
		ep.Explode = false
	})
	pf := entity(t, res, "product_features")

	var values []string
	for _, r := range pf.Records {
		v, _ := r.Text("fvalue")
		values = append(values, v)
	}
	if want := []string{"black", "32"}; !reflect.DeepEqual(values, want) {
		t.Fatalf("values=%v want %v", values, want)
	}
}

// TestEngine_ExplodeThreeValues is the minimal three-value block: exactly
// three records with explode, exactly one without, differing only in the value.
func TestEngine_ExplodeThreeValues(t *testing.T) {
	t.Parallel()

	doc := `<R><ART><ID>1</ID><FEATS><F><N>Color</N><V>a</V><V>b</V><V>c</V></F></FEATS></ART></R>`
	cfg := `{"outputs": {
	  "vendor_products": {"root_path": "R/ART", "key_fields": {"id": {"primary_path": "ID"}}},
	  "product_features": {"root_path": "R/ART", "source_parent": "FEATS",
	    "fields": {"id": {"vendor_products.key_fields.id": "id"}, "fname": "F/N", "fvalue": "F/V"},
	    "options": {"explode_multiple_fvalues": true}},
	  "product_category_links": {"root_path": "R/LINK"}
	}}`

	for _, explode := range []bool{true, false} {
		root, err := catalog.ParseString(doc)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		f, err := mapping.Parse([]byte(cfg), mapping.FormatJSON)
		if err != nil {
			t.Fatalf("mapping: %v", err)
		}
		plan, _, err := mapping.Compile(f)
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		ep, _ := plan.Entity("product_features")
		ep.Explode = explode

		res, err := New(Options{Vendor: "v"}).Run(context.Background(), root, plan)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		recs := entity(t, res, "product_features").Records

		wantN := 1
		if explode {
			wantN = 3
		}
		if len(recs) != wantN {
			t.Fatalf("explode=%v: records=%d want %d", explode, len(recs), wantN)
		}
		for i, r := range recs {
			v, _ := r.Text("fvalue")
			if v != string(rune('a'+i)) {
				t.Fatalf("explode=%v: record %d fvalue=%q", explode, i, v)
			}
			if n, _ := r.Text("fname"); n != "Color" {
				t.Fatalf("fname=%q", n)
			}
		}
	}
}

// TestEngine_KeywordsAndClassCodesColumns verifies keywords appear only with
// rules while vendor_products always carries class_codes.
func TestEngine_KeywordsAndClassCodesColumns(t *testing.T) {
	t.Parallel()

	doc := `<R><ART><ID>A1</ID><KW>x</KW></ART></R>`
	tests := []struct {
		name  string
		extra string
		want  string
	}{
		{
			name:  "empty keyword list",
			extra: `, "keywords": []`,
			want:  `{"vendor_name":"v","article_id":"A1","class_codes":[]}`,
		},
		{
			name:  "keyword rules",
			extra: `, "keywords": [{"source": "KW"}]`,
			want:  `{"vendor_name":"v","article_id":"A1","keywords":["x"],"class_codes":[]}`,
		},
		{
			name:  "empty class code list",
			extra: `, "class_codes": []`,
			want:  `{"vendor_name":"v","article_id":"A1","class_codes":[]}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := `{"outputs": {
			  "vendor_products": {"root_path": "R/ART", "key_fields": {"article_id": {"primary_path": "ID"}}` + tc.extra + `},
			  "product_features": {"root_path": "R/ART", "source_parent": "FEATS",
			    "fields": {"article_id": {"vendor_products.key_fields.article_id": "article_id"}, "fname": "F/N", "fvalue": "F/V"}},
			  "product_category_links": {"root_path": "R/LINK"}
			}}`
			root, err := catalog.ParseString(doc)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			f, err := mapping.Parse([]byte(cfg), mapping.FormatJSON)
			if err != nil {
				t.Fatalf("mapping: %v", err)
			}
			plan, _, err := mapping.Compile(f)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			res, err := New(Options{Vendor: "v"}).Run(context.Background(), root, plan)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			got := jsonLines(t, entity(t, res, "vendor_products").Records)
			if len(got) != 1 || got[0] != tc.want {
				t.Fatalf("vendor_products=%v want %s", got, tc.want)
			}
		})
	}
}

// TestEngine_NestedEntities covers one-record-per-block entities and
// attribute fields on the block.
func TestEngine_NestedEntities(t *testing.T) {
	t.Parallel()

	res := runFixture(t, 1, nil)

	mimes := jsonLines(t, entity(t, res, "product_mimes").Records)
	wantMimes := []string{
		`{"vendor_name":"acme","article_id":"A-1","mime_type":"image/jpeg","mime_source":"a1.jpg","mime_purpose":"normal"}`,
		`{"vendor_name":"acme","article_id":"A-1","mime_type":"application/pdf","mime_source":"a1.pdf","mime_purpose":"data_sheet"}`,
	}
	if !reflect.DeepEqual(mimes, wantMimes) {
		t.Fatalf("mimes=%v", mimes)
	}

	rel := jsonLines(t, entity(t, res, "product_relations").Records)
	wantRel := []string{`{"vendor_name":"acme","article_id":"A-1","relation_type":"accessories","related_article_id":"123"}`}
	if !reflect.DeepEqual(rel, wantRel) {
		t.Fatalf("relations=%v", rel)
	}
}

// TestEngine_CategoriesAndLinks verifies keyless entities and breadcrumbs.
func TestEngine_CategoriesAndLinks(t *testing.T) {
	t.Parallel()

	res := runFixture(t, 1, nil)

	links := jsonLines(t, entity(t, res, "product_category_links").Records)
	wantLinks := []string{
		`{"vendor_name":"acme","article_id":"A-1","category_id":"30"}`,
		`{"vendor_name":"acme","article_id":"123","category_id":"20"}`,
	}
	if !reflect.DeepEqual(links, wantLinks) {
		t.Fatalf("links=%v", links)
	}

	var paths []string
	for _, r := range entity(t, res, "vendor_categories").Records {
		p, _ := r.Text("category_path")
		paths = append(paths, p)
	}
	want := []string{"Electronics", "Electronics > Audio", "Electronics > Audio > Headphones"}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("paths=%v want %v", paths, want)
	}
}

// TestEngine_SchemaUniform verifies every record of an entity carries the
// same ordered columns as the plan declares.
func TestEngine_SchemaUniform(t *testing.T) {
	t.Parallel()

	root, plan := loadFixture(t)
	res, err := New(Options{Vendor: "acme"}).Run(context.Background(), root, plan)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, er := range res.Entities {
		ep, _ := plan.Entity(er.Name)
		want := ep.Columns(plan.ContextField)
		for i, r := range er.Records {
			if !reflect.DeepEqual(r.Keys(), want) {
				t.Fatalf("%s record %d keys=%v want %v", er.Name, i, r.Keys(), want)
			}
		}
	}
}

// TestEngine_WarningsOncePerPath verifies the de-duplicated warning list.
func TestEngine_WarningsOncePerPath(t *testing.T) {
	t.Parallel()

	res := runFixture(t, 1, nil)

	counts := map[string]int{}
	for _, w := range res.Warnings {
		counts[w]++
	}
	for w, n := range counts {
		if n != 1 {
			t.Fatalf("warning repeated %d times: %s", n, w)
		}
	}

	wantSome := []string{
		"Configured path 'SUPPLIER_AID' for 'vendor_products.article_id.primary' was not found (at least for one record).",
		"Configured path 'ARTICLE_DETAILS/MANUFACTURER_AID' for 'vendor_products.article_id.fallback' was not found (at least for one record).",
		"Configured path 'ARTICLE_ORDER_DETAILS/ORDER_UNIT' for 'vendor_products.order_unit' was not found (at least for one record).",
		"Configured path 'FUNIT' for 'product_features.funit' was not found (at least for one record).",
	}
	for _, w := range wantSome {
		if counts[w] != 1 {
			t.Fatalf("missing warning %q in %v", w, res.Warnings)
		}
	}
}

// TestEngine_DeterministicAcrossWorkers runs the fixture sequentially and in
// parallel, twice each, and expects identical record sets per entity.
func TestEngine_DeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()

	snapshot := func(res *Result) map[string][]string {
		out := map[string][]string{}
		for _, e := range res.Entities {
			lines := jsonLines(t, e.Records)
			sort.Strings(lines)
			out[e.Name] = lines
		}
		return out
	}

	base := snapshot(runFixture(t, 1, nil))
	for _, workers := range []int{1, 4} {
		for i := 0; i < 2; i++ {
			if got := snapshot(runFixture(t, workers, nil)); !reflect.DeepEqual(got, base) {
				t.Fatalf("workers=%d run=%d differs", workers, i)
			}
		}
	}
}

// TestEngine_RowHash verifies the optional row_hash column is stable and
// distinguishes records.
func TestEngine_RowHash(t *testing.T) {
	t.Parallel()

	res := runFixture(t, 1, func(p *mapping.Plan) {
		ep, _ := p.Entity("product_category_links")
		ep.RowHash = true
	})
	recs := entity(t, res, "product_category_links").Records
	h0, _ := recs[0].Text("row_hash")
	h1, _ := recs[1].Text("row_hash")
	if len(h0) != 64 || h0 == h1 {
		t.Fatalf("row hashes %q %q", h0, h1)
	}
}

// TestEngine_EmptyMandatory verifies the fatal error for a required entity
// with no row nodes, and that optional entities may be empty.
func TestEngine_EmptyMandatory(t *testing.T) {
	t.Parallel()

	root, plan := loadFixture(t)
	ep, _ := plan.Entity("vendor_products")
	ep.RootPath = catalog.ParsePath("BMECAT/T_NEW_CATALOG/PRODUCT")

	_, err := New(Options{Vendor: "acme", Workers: 3}).Run(context.Background(), root, plan)
	var empty *EmptyResultError
	if !errors.As(err, &empty) || empty.Entity != "vendor_products" {
		t.Fatalf("err=%v, want EmptyResultError for vendor_products", err)
	}

	root, plan = loadFixture(t)
	ep, _ = plan.Entity("product_mimes")
	ep.RootPath = catalog.ParsePath("NOWHERE")
	res, err := New(Options{Vendor: "acme"}).Run(context.Background(), root, plan)
	if err != nil {
		t.Fatalf("optional empty entity should not fail: %v", err)
	}
	if n := len(entity(t, res, "product_mimes").Records); n != 0 {
		t.Fatalf("records=%d", n)
	}
}

// TestEngine_Dedup verifies explicit by_columns keeps the first record and
// that re-running over the deduplicated output drops nothing more.
func TestEngine_Dedup(t *testing.T) {
	t.Parallel()

	res := runFixture(t, 1, func(p *mapping.Plan) {
		ep, _ := p.Entity("product_mimes")
		ep.DedupColumns = []string{"article_id"}
	})
	mimes := entity(t, res, "product_mimes")
	if len(mimes.Records) != 1 || mimes.Stats.DuplicatesDropped != 1 {
		t.Fatalf("records=%d dropped=%d", len(mimes.Records), mimes.Stats.DuplicatesDropped)
	}
	if src, _ := mimes.Records[0].Text("mime_source"); src != "a1.jpg" {
		t.Fatalf("kept %q, want the first record", src)
	}
}

// TestEngine_Cancelled verifies a cancelled context aborts the run.
func TestEngine_Cancelled(t *testing.T) {
	t.Parallel()

	root, plan := loadFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(Options{Vendor: "acme"}).Run(ctx, root, plan); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}
