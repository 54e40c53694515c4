package probe

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/catalog"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/extract"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/mapping"
)

const articleDoc = `<?xml version="1.0" encoding="UTF-8"?>
<BMECAT xmlns="http://www.bmecat.org/bmecat/1.2" version="1.2">
  <T_NEW_CATALOG>
    <CATALOG_GROUP_SYSTEM>
      <CATALOG_STRUCTURE type="node"><GROUP_ID>1</GROUP_ID><GROUP_NAME>Tools</GROUP_NAME><PARENT_ID>0</PARENT_ID></CATALOG_STRUCTURE>
      <CATALOG_STRUCTURE type="leaf"><GROUP_ID>7</GROUP_ID><GROUP_NAME>Drills</GROUP_NAME><PARENT_ID>1</PARENT_ID></CATALOG_STRUCTURE>
    </CATALOG_GROUP_SYSTEM>
    <ARTICLE mode="new">
      <SUPPLIER_AID>A-1</SUPPLIER_AID>
      <ARTICLE_DETAILS>
        <DESCRIPTION_SHORT>  Cordless   drill  </DESCRIPTION_SHORT>
        <DESCRIPTION_LONG>&lt;b&gt;18V&lt;/b&gt; drill</DESCRIPTION_LONG>
        <MANUFACTURER_AID>M-1</MANUFACTURER_AID>
        <KEYWORD>drill</KEYWORD>
      </ARTICLE_DETAILS>
      <ARTICLE_FEATURES>
        <REFERENCE_FEATURE_SYSTEM_NAME>ECLASS-5.1</REFERENCE_FEATURE_SYSTEM_NAME>
        <REFERENCE_FEATURE_GROUP_ID>27-11</REFERENCE_FEATURE_GROUP_ID>
        <FEATURE><FNAME>Voltage</FNAME><FVALUE>18</FVALUE><FUNIT>V</FUNIT></FEATURE>
      </ARTICLE_FEATURES>
      <MIME_INFO><MIME><MIME_TYPE>image/jpeg</MIME_TYPE><MIME_SOURCE>a1.jpg</MIME_SOURCE></MIME></MIME_INFO>
    </ARTICLE>
    <ARTICLE mode="update">
      <SUPPLIER_AID>A-2</SUPPLIER_AID>
      <ARTICLE_DETAILS><DESCRIPTION_SHORT>   </DESCRIPTION_SHORT></ARTICLE_DETAILS>
    </ARTICLE>
    <ARTICLE_TO_CATALOGGROUP_MAP><ART_ID>A-1</ART_ID><CATALOG_GROUP_ID>7</CATALOG_GROUP_ID></ARTICLE_TO_CATALOGGROUP_MAP>
  </T_NEW_CATALOG>
</BMECAT>`

const productDoc = `<?xml version="1.0" encoding="UTF-8"?>
<BMECAT version="2005">
  <T_NEW_CATALOG>
    <PRODUCT>
      <SUPPLIER_PID>P-1</SUPPLIER_PID>
      <PRODUCT_DETAILS><DESCRIPTION_SHORT>Saw</DESCRIPTION_SHORT></PRODUCT_DETAILS>
      <PRODUCT_FEATURES><FEATURE><FNAME>Blade</FNAME><FVALUE>190</FVALUE></FEATURE></PRODUCT_FEATURES>
      <PRODUCT_PRICE_DETAILS>
        <PRODUCT_PRICE price_type="net_list"><PRICE_AMOUNT>99.50</PRICE_AMOUNT><PRICE_CURRENCY>EUR</PRICE_CURRENCY></PRODUCT_PRICE>
      </PRODUCT_PRICE_DETAILS>
    </PRODUCT>
  </T_NEW_CATALOG>
</BMECAT>`

func mustParse(t *testing.T, doc string) *catalog.Node {
	t.Helper()
	root, err := catalog.ParseString(doc)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	return root
}

// TestTake covers counting, document order, attribute collection and sample
// normalisation on a namespaced catalog.
func TestTake(t *testing.T) {
	t.Parallel()

	inv := Take(mustParse(t, articleDoc), Options{})

	if inv.Root != "BMECAT" {
		t.Fatalf("root=%q", inv.Root)
	}
	if inv.Paths[0].Path != "BMECAT" || inv.Paths[1].Path != "BMECAT/T_NEW_CATALOG" {
		t.Fatalf("first paths=%+v", inv.Paths[:2])
	}

	art, ok := inv.Lookup("BMECAT/T_NEW_CATALOG/ARTICLE")
	if !ok || art.Count != 2 || !reflect.DeepEqual(art.Attributes, []string{"mode"}) {
		t.Fatalf("ARTICLE stat=%+v ok=%v", art, ok)
	}

	title, _ := inv.Lookup("BMECAT/T_NEW_CATALOG/ARTICLE/ARTICLE_DETAILS/DESCRIPTION_SHORT")
	if title.Count != 2 || title.Sample != "Cordless drill" {
		t.Fatalf("DESCRIPTION_SHORT stat=%+v", title)
	}

	cs, _ := inv.Lookup("BMECAT/T_NEW_CATALOG/CATALOG_GROUP_SYSTEM/CATALOG_STRUCTURE")
	if cs.Count != 2 || !reflect.DeepEqual(cs.Attributes, []string{"type"}) {
		t.Fatalf("CATALOG_STRUCTURE stat=%+v", cs)
	}

	if inv.Has("BMECAT/T_NEW_CATALOG/PRODUCT") {
		t.Fatalf("unexpected PRODUCT path")
	}
	if got := len(inv.Filter("MIME")); got != 4 {
		t.Fatalf("Filter(MIME)=%d want 4", got)
	}
}

// TestTake_Limits covers MaxDepth and sample truncation.
func TestTake_Limits(t *testing.T) {
	t.Parallel()

	inv := Take(mustParse(t, articleDoc), Options{MaxDepth: 3, SampleLen: 4})
	for _, ps := range inv.Paths {
		if strings.Count(ps.Path, "/") > 2 {
			t.Fatalf("path %q deeper than MaxDepth", ps.Path)
		}
	}
	if inv.Has("BMECAT/T_NEW_CATALOG/ARTICLE/SUPPLIER_AID") {
		t.Fatalf("depth 4 path present")
	}

	deep := Take(mustParse(t, articleDoc), Options{SampleLen: 4})
	st, _ := deep.Lookup("BMECAT/T_NEW_CATALOG/ARTICLE/ARTICLE_DETAILS/DESCRIPTION_SHORT")
	if st.Sample != "Cord..." {
		t.Fatalf("sample=%q", st.Sample)
	}

	if empty := Take(nil, Options{}); len(empty.Paths) != 0 || empty.Has("BMECAT") {
		t.Fatalf("nil root inventory=%+v", empty)
	}
}

func TestFormatReport(t *testing.T) {
	t.Parallel()

	got := FormatReport([]PathStat{
		{Path: "BMECAT/T_NEW_CATALOG/ARTICLE", Count: 2, Attributes: []string{"mode"}},
		{Path: "BMECAT/T_NEW_CATALOG/ARTICLE/SUPPLIER_AID", Count: 2, Sample: "A-1"},
	})
	want := "count\tpath\tattributes\tsample\n" +
		"2\tBMECAT/T_NEW_CATALOG/ARTICLE\tmode\t\"\"\n" +
		"2\tBMECAT/T_NEW_CATALOG/ARTICLE/SUPPLIER_AID\t\t\"A-1\""
	if got != want {
		t.Fatalf("report=\n%s\nwant\n%s", got, want)
	}
	if FormatReport(nil) != "paths: none" {
		t.Fatalf("empty report=%q", FormatReport(nil))
	}
}

// TestBuild_Article verifies the generated configuration compiles and, run
// against the catalog it was derived from, extracts the expected rows.
func TestBuild_Article(t *testing.T) {
	t.Parallel()

	root := mustParse(t, articleDoc)
	sk, err := Build(Take(root, Options{}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(sk.Notes) != 0 {
		t.Fatalf("notes=%v", sk.Notes)
	}

	outputs, _ := sk.Config.Get("outputs")
	wantOrder := []string{"vendor_products", "product_features", "product_category_links", "product_mimes", "vendor_categories"}
	if got := outputs.(Doc).Keys(); !reflect.DeepEqual(got, wantOrder) {
		t.Fatalf("outputs=%v want %v", got, wantOrder)
	}

	b, err := sk.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	f, err := mapping.Parse(b, mapping.FormatJSON)
	if err != nil {
		t.Fatalf("Parse: %v\n%s", err, b)
	}
	plan, issues, err := mapping.Compile(f)
	if err != nil {
		t.Fatalf("Compile: %v issues=%v\n%s", err, issues, b)
	}

	vp, _ := plan.Entity("vendor_products")
	wantCols := []string{"vendor_name", "article_id", "title", "manufacturer_aid", "description", "mode", "keywords", "class_codes"}
	if got := vp.Columns(plan.ContextField); !reflect.DeepEqual(got, wantCols) {
		t.Fatalf("vendor_products columns=%v want %v", got, wantCols)
	}
	if vp.Key.Fallback.String() != "ARTICLE_DETAILS/MANUFACTURER_AID" {
		t.Fatalf("fallback=%q", vp.Key.Fallback.String())
	}

	res, err := extract.New(extract.Options{Vendor: "acme"}).Run(context.Background(), root, plan)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	counts := map[string]int{}
	for _, e := range res.Entities {
		counts[e.Name] = e.Stats.Records
	}
	want := map[string]int{
		"vendor_products":        2,
		"product_features":       1,
		"product_category_links": 1,
		"product_mimes":          1,
		"vendor_categories":      2,
	}
	if !reflect.DeepEqual(counts, want) {
		t.Fatalf("records=%v want %v", counts, want)
	}
}

// TestBuild_Product verifies the BMECAT 2005 layout, the YAML rendering and
// the notes for parts that were not found.
func TestBuild_Product(t *testing.T) {
	t.Parallel()

	sk, err := Build(Take(mustParse(t, productDoc), Options{}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(sk.Notes) != 1 || !strings.Contains(sk.Notes[0], "PRODUCT_TO_CATALOGGROUP_MAP") {
		t.Fatalf("notes=%v", sk.Notes)
	}

	b, err := sk.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	f, err := mapping.Parse(b, mapping.FormatYAML)
	if err != nil {
		t.Fatalf("Parse: %v\n%s", err, b)
	}
	plan, issues, err := mapping.Compile(f)
	if err != nil {
		t.Fatalf("Compile: %v issues=%v\n%s", err, issues, b)
	}
	if got := plan.Names(); !reflect.DeepEqual(got, []string{"vendor_products", "product_features", "product_category_links", "product_prices"}) {
		t.Fatalf("entities=%v", got)
	}

	vp, _ := plan.Entity("vendor_products")
	if vp.Key.Primary.String() != "SUPPLIER_PID" {
		t.Fatalf("primary=%q", vp.Key.Primary.String())
	}
	links, _ := plan.Entity("product_category_links")
	if links.RootPath.String() != "BMECAT/T_NEW_CATALOG/PRODUCT_TO_CATALOGGROUP_MAP" {
		t.Fatalf("links root=%q", links.RootPath.String())
	}
	prices, _ := plan.Entity("product_prices")
	if got := prices.Columns(plan.ContextField); !reflect.DeepEqual(got, []string{"vendor_name", "article_id", "price_type", "amount", "currency"}) {
		t.Fatalf("price columns=%v", got)
	}
}

func TestBuild_NoArticles(t *testing.T) {
	t.Parallel()

	_, err := Build(Take(mustParse(t, `<BMECAT><HEADER/></BMECAT>`), Options{}))
	if !errors.Is(err, ErrNoArticles) {
		t.Fatalf("err=%v want ErrNoArticles", err)
	}
}
