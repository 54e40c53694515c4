package probe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Doc is an order-preserving JSON/YAML object. Mapping configurations are
// order sensitive (outputs run in order, fields become columns in order), so
// the skeleton cannot be built from Go maps.
type Doc []Member

// Member is one key of a Doc.
type Member struct {
	Key   string
	Value any
}

// Set appends key, or replaces its value when present.
func (d *Doc) Set(key string, v any) {
	for i := range *d {
		if (*d)[i].Key == key {
			(*d)[i].Value = v
			return
		}
	}
	*d = append(*d, Member{Key: key, Value: v})
}

// Get returns the value stored under key.
func (d Doc) Get(key string) (any, bool) {
	for _, m := range d {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in order.
func (d Doc) Keys() []string {
	out := make([]string, len(d))
	for i, m := range d {
		out[i] = m.Key
	}
	return out
}

func (d Doc) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(m.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", m.Key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d Doc) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, m := range d {
		var v yaml.Node
		if err := v.Encode(m.Value); err != nil {
			return nil, fmt.Errorf("encode %s: %w", m.Key, err)
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: m.Key}, &v)
	}
	return n, nil
}

// Skeleton is a starter configuration plus notes on what could not be
// detected and was filled with defaults.
type Skeleton struct {
	Config Doc
	Notes  []string
}

// JSON renders the configuration indented, with a trailing newline.
func (s *Skeleton) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(s.Config, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// YAML renders the configuration as YAML.
func (s *Skeleton) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s.Config); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// layout names the element tags of one BMECAT flavour. 1.2 catalogs use
// ARTICLE, 2005 catalogs use PRODUCT.
type layout struct {
	item, id, ref, refTo, mapID string
}

var layouts = map[string]layout{
	"ARTICLE": {item: "ARTICLE", id: "SUPPLIER_AID", ref: "ARTICLE_REFERENCE", refTo: "ART_ID_TO", mapID: "ART_ID"},
	"PRODUCT": {item: "PRODUCT", id: "SUPPLIER_PID", ref: "PRODUCT_REFERENCE", refTo: "PROD_ID_TO", mapID: "PROD_ID"},
}

// Build derives a skeleton configuration from inv.
//
// When to use:
//   - Onboarding a new vendor: run it on a sample export, then refine the
//     generated paths by hand.
//
// Edge cases:
//   - The three mandatory outputs are always emitted. Parts that are absent
//     from the catalog get the usual BMECAT paths and a note.
//   - Optional outputs (mimes, relations, prices, categories) are emitted only
//     when their elements occur.
//
// Errors:
//   - ErrNoArticles when no ARTICLE/PRODUCT path exists.
func Build(inv *Inventory) (*Skeleton, error) {
	art, ok := inv.findLast("ARTICLE", "PRODUCT")
	if !ok || !strings.Contains(art.Path, "/") {
		return nil, ErrNoArticles
	}
	lay :=layouts[art.Path[strings.LastIndex(art.Path, "/")+1:]]
	parent := art.Path[:strings.LastIndex(art.Path, "/")]
	rootTag := art.Path[:strings.Index(art.Path+"/", "/")]

	s := &Skeleton{}
	has := func(relPath string) bool { return inv.Has(art.Path + "/" + relPath) }
	note := func(format string, args ...any) { s.Notes = append(s.Notes, fmt.Sprintf(format, args...)) }

	details := lay.item + "_DETAILS"
	ref := Doc{{Key: "vendor_products.key_fields.article_id", Value: "article_id"}}

	// vendor_products
	key := Doc{}
	key.Set("primary_path", lay.id)
	if !has(lay.id) {
		note("%s/%s not found; key path is a guess", art.Path, lay.id)
	}
	for _, alt := range []string{details + "/MANUFACTURER_AID", details + "/MANUFACTURER_PID", details + "/EAN"} {
		if has(alt) {
			key.Set("fallback_path", alt)
			break
		}
	}

	fields := Doc{}
	for _, f := range []struct{ name, path string }{
		{"title", details + "/DESCRIPTION_SHORT"},
		{"ean", details + "/EAN"},
		{"manufacturer", details + "/MANUFACTURER_NAME"},
		{"manufacturer_aid", details + "/MANUFACTURER_AID"},
		{"manufacturer_pid", details + "/MANUFACTURER_PID"},
		{"order_unit", lay.item + "_ORDER_DETAILS/ORDER_UNIT"},
		{"content_unit", lay.item + "_ORDER_DETAILS/CONTENT_UNIT"},
	} {
		if has(f.path) {
			fields.Set(f.name, f.path)
		}
	}
	if has(details + "/DESCRIPTION_LONG") {
		fields.Set("description", Doc{{Key: "path", Value: details + "/DESCRIPTION_LONG"}, {Key: "extract", Value: "html_text"}})
	}
	if st, ok := inv.Lookup(art.Path); ok && containsString(st.Attributes, "mode") {
		fields.Set("mode", "@mode")
	}
	if len(fields) == 0 {
		note("no %s fields detected; vendor_products only carries the key", details)
	}

	products := Doc{}
	products.Set("root_path", art.Path)
	products.Set("key_fields", Doc{{Key: "article_id", Value: key}})
	products.Set("fields", fields)
	if has(details + "/KEYWORD") {
		products.Set("keywords", []Doc{{{Key: "source", Value: details + "/KEYWORD"}}})
	}

	// product_features
	featBlock := lay.item + "_FEATURES"
	if !has(featBlock) {
		note("%s/%s not found; product_features uses default paths", art.Path, featBlock)
	}
	featFields := Doc{{Key: "article_id", Value: ref}}
	if has(featBlock + "/REFERENCE_FEATURE_SYSTEM_NAME") {
		featFields.Set("system", "REFERENCE_FEATURE_SYSTEM_NAME")
	}
	if has(featBlock + "/REFERENCE_FEATURE_GROUP_ID") {
		featFields.Set("group_id", "REFERENCE_FEATURE_GROUP_ID")
	}
	featFields.Set("fname", "FEATURE/FNAME")
	featFields.Set("fvalue", "FEATURE/FVALUE")
	if has(featBlock + "/FEATURE/FUNIT") {
		featFields.Set("funit", "FEATURE/FUNIT")
	}
	features := Doc{
		{Key: "root_path", Value: art.Path},
		{Key: "mode", Value: "grouped"},
		{Key: "source_parent", Value: featBlock},
		{Key: "fields", Value: featFields},
		{Key: "options", Value: Doc{{Key: "explode_multiple_fvalues", Value: true}}},
	}

	if has(featBlock+"/REFERENCE_FEATURE_SYSTEM_NAME") && has(featBlock+"/REFERENCE_FEATURE_GROUP_ID") {
		products.Set("class_codes", []Doc{{
			{Key: "source_parent", Value: featBlock},
			{Key: "system_field", Value: "REFERENCE_FEATURE_SYSTEM_NAME"},
			{Key: "code_field", Value: "REFERENCE_FEATURE_GROUP_ID"},
		}})
	}

	// product_category_links
	linkPath := parent + "/" + lay.item + "_TO_CATALOGGROUP_MAP"
	linkID := lay.mapID
	if st, ok := inv.findLast("ARTICLE_TO_CATALOGGROUP_MAP", "PRODUCT_TO_CATALOGGROUP_MAP"); ok {
		linkPath = st.Path
		if strings.HasSuffix(st.Path, "PRODUCT_TO_CATALOGGROUP_MAP") {
			linkID = "PROD_ID"
		} else {
			linkID = "ART_ID"
		}
	} else {
		note("no *_TO_CATALOGGROUP_MAP elements found; product_category_links uses %s", linkPath)
	}
	links := Doc{
		{Key: "root_path", Value: linkPath},
		{Key: "fields", Value: Doc{
			{Key: "article_id", Value: linkID},
			{Key: "category_id", Value: "CATALOG_GROUP_ID"},
		}},
	}

	outputs := Doc{
		{Key: "vendor_products", Value: products},
		{Key: "product_features", Value: features},
		{Key: "product_category_links", Value: links},
	}

	// Optional nested outputs.
	if has("MIME_INFO/MIME") {
		mf := Doc{{Key: "article_id", Value: ref}}
		for _, f := range []string{"MIME_TYPE", "MIME_SOURCE", "MIME_DESCR", "MIME_PURPOSE"} {
			if has("MIME_INFO/MIME/" + f) {
				mf.Set(strings.ToLower(f), f)
			}
		}
		outputs.Set("product_mimes", Doc{
			{Key: "root_path", Value: art.Path},
			{Key: "source_parent", Value: "MIME_INFO/MIME"},
			{Key: "fields", Value: mf},
		})
	}
	if has(lay.ref) {
		outputs.Set("product_relations", Doc{
			{Key: "root_path", Value: art.Path},
			{Key: "source_parent", Value: lay.ref},
			{Key: "fields", Value: Doc{
				{Key: "article_id", Value: ref},
				{Key: "relation_type", Value: "@type"},
				{Key: "related_article_id", Value: lay.refTo},
			}},
		})
	}
	pricePath := lay.item + "_PRICE_DETAILS/" + lay.item + "_PRICE"
	if has(pricePath) {
		pf := Doc{{Key: "article_id", Value: ref}}
		if st, ok := inv.Lookup(art.Path + "/" + pricePath); ok && containsString(st.Attributes, "price_type") {
			pf.Set("price_type", "@price_type")
		}
		for _, f := range []struct{ name, path string }{
			{"amount", "PRICE_AMOUNT"},
			{"currency", "PRICE_CURRENCY"},
			{"tax", "TAX"},
			{"lower_bound", "LOWER_BOUND"},
		} {
			if has(pricePath + "/" + f.path) {
				pf.Set(f.name, f.path)
			}
		}
		outputs.Set("product_prices", Doc{
			{Key: "root_path", Value: art.Path},
			{Key: "source_parent", Value: pricePath},
			{Key: "fields", Value: pf},
		})
	}

	cfg := Doc{}
	if st, ok := inv.findLast("CATALOG_STRUCTURE"); ok {
		vc := Doc{{Key: "category_id", Value: "GROUP_ID"}}
		cf := Doc{{Key: "category_id", Value: "GROUP_ID"}}
		if inv.Has(st.Path + "/PARENT_ID") {
			vc.Set("parent_id", "PARENT_ID")
			cf.Set("parent_id", "PARENT_ID")
		}
		vc.Set("category_name", "GROUP_NAME")
		cf.Set("name", "GROUP_NAME")
		outputs.Set("vendor_categories", Doc{
			{Key: "root_path", Value: st.Path},
			{Key: "fields", Value: vc},
		})
		cfg.Set("outputs", outputs)
		cfg.Set("categories", Doc{{Key: "fields", Value: cf}})
	} else {
		cfg.Set("outputs", outputs)
	}

	if rootTag != "BMECAT" {
		note("document root is %s, not BMECAT", rootTag)
	}
	s.Config = cfg
	return s, nil
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
