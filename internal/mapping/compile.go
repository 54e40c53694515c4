package mapping

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/catalog"
)

const (
	// DefaultContextField is the column every record carries first.
	DefaultContextField = "vendor_name"
	// DefaultValueField is the value column of grouped entities.
	DefaultValueField = "fvalue"

	ancestorsPrefix = "ancestors."
)

// CompileOptions tune compilation. The zero value selects the BMECAT job defaults.
type CompileOptions struct {
	// ContextField names the constant vendor column. Default "vendor_name".
	ContextField string
	// RequiredOutputs must be present under "outputs".
	// Default: vendor_products, product_features, product_category_links.
	RequiredOutputs []string
	// KeyedOutputs must define a row key even when flat. Default: vendor_products.
	KeyedOutputs []string
	// RowMandatory entities fail the run when their root_path matches no node.
	// Entities can also opt in with "required": true. Default: vendor_products.
	RowMandatory []string
}

func (o CompileOptions) withDefaults() CompileOptions {
	if o.ContextField == "" {
		o.ContextField = DefaultContextField
	}
	if o.RequiredOutputs == nil {
		o.RequiredOutputs = []string{"vendor_products", "product_features", "product_category_links"}
	}
	if o.KeyedOutputs == nil {
		o.KeyedOutputs = []string{"vendor_products"}
	}
	if o.RowMandatory == nil {
		o.RowMandatory = []string{"vendor_products"}
	}
	return o
}

// Entity defaults applied when the configuration leaves mode or
// source_parent unset.
var (
	defaultModes = map[string]Mode{
		"product_features":  ModeGrouped,
		"product_mimes":     ModeNested,
		"product_relations": ModeNested,
		"product_prices":    ModeNested,
	}
	defaultSourceParents = map[string]string{
		"product_features":  "ARTICLE_FEATURES",
		"product_mimes":     "MIME_INFO/MIME",
		"product_relations": "ARTICLE_REFERENCE",
		"product_prices":    "ARTICLE_PRICE_DETAILS/ARTICLE_PRICE",
	}
)

// Compile validates f with default options and turns it into a Plan.
func Compile(f *File) (*Plan, []Issue, error) {
	return CompileWith(f, CompileOptions{})
}

// CompileWith validates f and turns it into a Plan.
//
// All findings are returned as issues. When at least one has error severity,
// the plan is nil and the error is a *ConfigError describing the first one.
func CompileWith(f *File, opts CompileOptions) (*Plan, []Issue, error) {
	opts = opts.withDefaults()
	c := &compiler{file: f, opts: opts}

	plan := &Plan{ContextField: opts.ContextField}

	for _, name := range opts.RequiredOutputs {
		if !c.hasOutput(name) {
			c.errorf(name, "", "outputs."+name, "required output entity is not configured")
		}
	}

	seen := make(map[string]bool, len(f.Outputs))
	for _, ent := range f.Outputs {
		if seen[ent.Name] {
			c.errorf(ent.Name, "", "outputs."+ent.Name, "entity is configured more than once")
			continue
		}
		seen[ent.Name] = true
		if ep, ok := c.entity(ent); ok {
			plan.Entities = append(plan.Entities, ep)
		}
	}
	plan.Categories = c.categories()
	c.categorySource(plan)

	if c.first != nil {
		c.first.Issues = c.errorIssues()
		return nil, c.issues, c.first
	}
	return plan, c.issues, nil
}

type compiler struct {
	file   *File
	opts   CompileOptions
	issues []Issue
	first  *ConfigError
}

func (c *compiler) errorf(entity, field, path, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.issues = append(c.issues, Issue{Severity: SeverityError, Path: path, Message: msg})
	if c.first == nil {
		c.first = &ConfigError{Entity: entity, Field: field, Reason: msg}
	}
}

func (c *compiler) warnf(path, format string, args ...any) {
	c.issues = append(c.issues, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, args...)})
}

func (c *compiler) errorIssues() []Issue {
	var out []Issue
	for _, is := range c.issues {
		if is.Severity == SeverityError {
			out = append(out, is)
		}
	}
	return out
}

func (c *compiler) hasOutput(name string) bool {
	for _, e := range c.file.Outputs {
		if e.Name == name {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (c *compiler) entity(ent Entity) (EntityPlan, bool) {
	base := "outputs." + ent.Name
	errs := len(c.errorIssues())

	ep := EntityPlan{
		Name:     ent.Name,
		Required: ent.Required || contains(c.opts.RowMandatory, ent.Name),
		RowHash:  ent.Options.RowHash,
	}

	ep.RootPath = catalog.ParsePath(ent.RootPath)
	if ep.RootPath.IsEmpty() {
		c.errorf(ent.Name, "root_path", base+".root_path", "root_path is missing")
	}

	ep.Mode = c.mode(ent, base)

	sp := ent.SourceParent
	if sp == "" && ep.Mode != ModeFlat {
		sp = defaultSourceParents[ent.Name]
	}
	ep.SourceParent = catalog.ParsePath(sp)
	switch {
	case ep.Mode != ModeFlat && ep.SourceParent.IsEmpty():
		c.errorf(ent.Name, "source_parent", base+".source_parent", "%s entity needs a source_parent", ep.Mode)
	case ep.Mode == ModeFlat && !ep.SourceParent.IsEmpty():
		c.warnf(base+".source_parent", "ignored for flat entities")
	}

	refColumn := ""
	ep.Key, refColumn = c.key(ent, base)
	if ep.Key == nil && (ep.Mode != ModeFlat || contains(c.opts.KeyedOutputs, ent.Name)) {
		c.errorf(ent.Name, "key_fields", base+".key_fields",
			"no key_fields and no inherited key reference; %s entities need an identifying key", ep.Mode)
	}

	for _, fld := range ent.Fields {
		path := base + ".fields." + fld.Name
		if fld.Name == refColumn {
			continue
		}
		if fld.Name == c.opts.ContextField || (ep.Key != nil && fld.Name == ep.Key.Column) {
			c.warnf(path, "column %q is reserved and the field is ignored", fld.Name)
			continue
		}
		fs, ok := c.field(ent.Name, fld, path)
		if !ok {
			continue
		}
		if fs.Kind == FieldAncestors {
			ep.UsesAncestors = true
		}
		ep.Fields = append(ep.Fields, fs)
	}

	if ep.Mode == ModeGrouped {
		c.grouped(&ep, ent, base)
	}

	c.extras(&ep, ent, base)
	c.dedup(&ep, ent, base)

	return ep, len(c.errorIssues()) == errs
}

func (c *compiler) mode(ent Entity, base string) Mode {
	switch strings.ToLower(strings.TrimSpace(ent.Mode)) {
	case "flat":
		return ModeFlat
	case "nested":
		return ModeNested
	case "grouped":
		return ModeGrouped
	case "":
	default:
		c.errorf(ent.Name, "mode", base+".mode", "unknown mode %q (want flat, nested or grouped)", ent.Mode)
		return ModeFlat
	}

	if m, ok := defaultModes[ent.Name]; ok {
		return m
	}
	if ent.Options.ExplodeMultipleFValues != nil || ent.Options.ValueField != "" {
		return ModeGrouped
	}
	if ent.SourceParent != "" {
		return ModeNested
	}
	return ModeFlat
}

// key compiles the row key from key_fields, or from a reference field such as
// {"vendor_products.key_fields.article_id": "article_id"}. It returns the
// reference field name so the caller does not emit it as a regular column.
func (c *compiler) key(ent Entity, base string) (*KeyPlan, string) {
	if len(ent.KeyFields) > 0 {
		kf := ent.KeyFields[0]
		for _, extra := range ent.KeyFields[1:] {
			c.warnf(base+".key_fields."+extra.Name, "only the first key field is used")
		}
		kp, ok := c.keyPlan(ent.Name, kf.Name, kf.Spec, base+".key_fields."+kf.Name)
		if !ok {
			return nil, ""
		}
		return kp, ""
	}

	for _, fld := range ent.Fields {
		m, ok := fld.Value.(map[string]any)
		if !ok || isExtractorObject(m) || len(m) != 1 {
			continue
		}
		for ref, col := range m {
			path := base + ".fields." + fld.Name
			column, _ := col.(string)
			if column == "" {
				column = fld.Name
			}
			v, err := c.file.Resolve(ref)
			if err != nil {
				c.errorf(ent.Name, fld.Name, path, "%v", err)
				return nil, fld.Name
			}
			spec, ok := keySpecFromValue(v)
			if !ok {
				c.errorf(ent.Name, fld.Name, path, "reference %q is not a key definition", ref)
				return nil, fld.Name
			}
			kp, ok := c.keyPlan(ent.Name, column, spec, path)
			if !ok {
				return nil, fld.Name
			}
			return kp, fld.Name
		}
	}
	return nil, ""
}

func (c *compiler) keyPlan(entity, column string, spec KeySpec, path string) (*KeyPlan, bool) {
	kp := &KeyPlan{
		Column:   column,
		Primary:  catalog.ParsePath(spec.PrimaryOrAlias()),
		Fallback: catalog.ParsePath(spec.FallbackOrAlias()),
	}
	if kp.Primary.IsEmpty() && kp.Fallback.IsEmpty() {
		c.errorf(entity, column, path, "key needs a primary_path or fallback_path")
		return nil, false
	}
	return kp, true
}

func isExtractorObject(m map[string]any) bool {
	_, ok := m["path"]
	return ok
}

func (c *compiler) field(entity string, fld Field, path string) (FieldSpec, bool) {
	switch v := fld.Value.(type) {
	case string:
		fs, err := parseFieldPath(fld.Name, v)
		if err != nil {
			c.errorf(entity, fld.Name, path, "%v", err)
			return FieldSpec{}, false
		}
		return fs, true

	case map[string]any:
		if !isExtractorObject(v) {
			if len(v) == 1 {
				c.warnf(path, "key reference ignored because key_fields is set")
				return FieldSpec{}, false
			}
			c.errorf(entity, fld.Name, path, "object fields need a \"path\" (or a single key reference)")
			return FieldSpec{}, false
		}
		raw, _ := v["path"].(string)
		fs, err := parseFieldPath(fld.Name, raw)
		if err != nil {
			c.errorf(entity, fld.Name, path+".path", "%v", err)
			return FieldSpec{}, false
		}

		if ex, _ := v["extract"].(string); ex != "" {
			switch ex {
			case "text":
				fs.Extract = ExtractText
			case "html_text":
				fs.Extract = ExtractHTMLText
			default:
				c.errorf(entity, fld.Name, path+".extract", "unknown extract %q (want text or html_text)", ex)
				return FieldSpec{}, false
			}
		}

		if pat, _ := v["match"].(string); strings.TrimSpace(pat) != "" {
			re, err := regexp.Compile(pat)
			if err != nil {
				c.errorf(entity, fld.Name, path+".match", "invalid regex: %v", err)
				return FieldSpec{}, false
			}
			fs.Match = re
		}
		return fs, true

	default:
		c.errorf(entity, fld.Name, path, "unsupported field value of type %T", fld.Value)
		return FieldSpec{}, false
	}
}

// parseFieldPath classifies a configured path string once, so the row loop
// switches on FieldKind instead of re-inspecting strings.
func parseFieldPath(name, raw string) (FieldSpec, error) {
	s := strings.TrimSpace(raw)
	fs := FieldSpec{Name: name, Raw: s}

	switch {
	case s == "":
		return fs, fmt.Errorf("empty path")
	case strings.HasPrefix(s, "@"):
		fs.Kind = FieldAttribute
		fs.Attr = strings.TrimPrefix(s, "@")
		if fs.Attr == "" {
			return fs, fmt.Errorf("attribute reference %q has no name", s)
		}
	case strings.HasPrefix(s, ancestorsPrefix):
		fs.Kind = FieldAncestors
		fs.NameField = strings.TrimPrefix(s, ancestorsPrefix)
		if fs.NameField == "" {
			return fs, fmt.Errorf("ancestors token %q has no name field", s)
		}
	default:
		fs.Kind = FieldPath
		fs.Path = catalog.ParsePath(s)
		if fs.Path.IsEmpty() {
			return fs, fmt.Errorf("path %q has no segments", s)
		}
	}
	return fs, nil
}

// grouped splits fields into block and item scope. The item tag is the first
// segment of the first multi-segment path; fields under it resolve against
// each item with that segment removed. Other multi-segment paths are dropped.
func (c *compiler) grouped(ep *EntityPlan, ent Entity, base string) {
	for _, f := range ep.Fields {
		if f.Kind == FieldPath && f.Path.Len() > 1 {
			ep.ItemTag = f.Path.First()
			break
		}
	}
	kept := ep.Fields[:0]
	for _, f := range ep.Fields {
		if f.Kind == FieldPath && f.Path.Len() > 1 && f.Path.First() != ep.ItemTag {
			c.warnf(base+".fields."+f.Name, "path %q is outside item %q and the field is ignored", f.Path.String(), ep.ItemTag)
			continue
		}
		kept = append(kept, f)
	}
	ep.Fields = kept

	valueField := ent.Options.ValueField
	if valueField == "" {
		valueField = DefaultValueField
	}
	if ent.Options.ExplodeMultipleFValues != nil {
		ep.Explode = *ent.Options.ExplodeMultipleFValues
	}

	hasValue := false
	for i := range ep.Fields {
		f := &ep.Fields[i]
		if ep.ItemTag != "" && f.Kind == FieldPath && f.Path.Len() > 1 && f.Path.First() == ep.ItemTag {
			f.Scope = ScopeItem
			f.Path = f.Path.Rest()
		}
		if f.Name == valueField {
			if f.Kind != FieldPath {
				c.errorf(ent.Name, f.Name, base+".fields."+f.Name, "value field must be an element path")
				continue
			}
			f.IsValue = true
			hasValue = true
		}
	}
	if !hasValue {
		c.warnf(base+".fields", "value field %q is not configured; one record per item is emitted", valueField)
	}
}

func (c *compiler) extras(ep *EntityPlan, ent Entity, base string) {
	if (len(ent.Keywords) > 0 || len(ent.ClassCodes) > 0) && ep.Mode != ModeFlat {
		c.warnf(base, "keywords and class_codes are only supported on flat entities and are ignored")
		return
	}

	// keywords appears only with rules; class_codes is always a column of
	// keyed flat entities.
	if len(ent.Keywords) > 0 {
		ep.HasKeywords = true
		for i, r := range ent.Keywords {
			p := catalog.ParsePath(r.Source)
			if p.IsEmpty() {
				c.warnf(fmt.Sprintf("%s.keywords[%d].source", base, i), "empty source is skipped")
				continue
			}
			ep.Keywords = append(ep.Keywords, p)
		}
	}

	if ep.Mode == ModeFlat && contains(c.opts.KeyedOutputs, ent.Name) {
		ep.HasClasses = true
	}
	if len(ent.ClassCodes) > 0 {
		ep.HasClasses = true
		for i, r := range ent.ClassCodes {
			path := fmt.Sprintf("%s.class_codes[%d]", base, i)
			cp := ClassCodePlan{
				SourceParent: catalog.ParsePath(r.SourceParent),
				SystemField:  catalog.ParsePath(r.SystemField),
				CodeField:    catalog.ParsePath(r.CodeField),
			}
			if cp.SourceParent.IsEmpty() || cp.SystemField.IsEmpty() || cp.CodeField.IsEmpty() {
				c.errorf(ent.Name, "class_codes", path, "source_parent, system_field and code_field are required")
				continue
			}
			if len(r.Systems) > 0 {
				cp.Systems = make(map[string]struct{}, len(r.Systems))
				for _, s := range r.Systems {
					cp.Systems[s] = struct{}{}
				}
			}
			ep.ClassCodes = append(ep.ClassCodes, cp)
		}
	}
}

func (c *compiler) dedup(ep *EntityPlan, ent Entity, base string) {
	switch {
	case ent.Deduplication != nil:
		ep.DedupColumns = append([]string(nil), ent.Deduplication.ByColumns...)
	case ep.Mode == ModeGrouped && ep.Key != nil:
		valueField := ent.Options.ValueField
		if valueField == "" {
			valueField = DefaultValueField
		}
		ep.DedupColumns = []string{ep.Key.Column, "fname", valueField}
		return
	default:
		return
	}

	cols := ep.Columns(c.opts.ContextField)
	for _, col := range ep.DedupColumns {
		if !contains(cols, col) {
			c.warnf(base+".deduplication.by_columns", "column %q is not produced by this entity and is always null", col)
		}
	}
}

func (c *compiler) categories() CategoryPlan {
	pick := func(candidates ...string) string {
		for _, s := range candidates {
			if s != "" {
				return s
			}
		}
		return ""
	}
	lookup := func(fs Fields, name string) string {
		v, _ := fs.Lookup(name)
		s, _ := v.(string)
		return s
	}

	var vc Fields
	for _, e := range c.file.Outputs {
		if e.Name == "vendor_categories" {
			vc = e.Fields
		}
	}
	cf := c.file.Categories.Fields

	return CategoryPlan{
		IDPath:     catalog.ParsePath(pick(lookup(cf, "category_id"), lookup(vc, "category_id"), "GROUP_ID")),
		ParentPath: catalog.ParsePath(pick(lookup(cf, "parent_id"), lookup(vc, "parent_id"))),
		NamePath:   catalog.ParsePath(pick(lookup(cf, "name"), lookup(vc, "category_name"), "GROUP_NAME")),
	}
}

// categorySource picks the category entity: vendor_categories when
// configured, else the first entity with ancestors.* fields. Any other entity
// using ancestors.* is an error since its rows are not category nodes.
func (c *compiler) categorySource(plan *Plan) {
	var src *EntityPlan
	if ep, ok := plan.Entity("vendor_categories"); ok {
		src = ep
	}
	for i := range plan.Entities {
		ep := &plan.Entities[i]
		if !ep.UsesAncestors {
			continue
		}
		if src == nil {
			src = ep
		}
		if ep == src {
			continue
		}
		for _, f := range ep.Fields {
			if f.Kind == FieldAncestors {
				c.errorf(ep.Name, f.Name, "outputs."+ep.Name+".fields."+f.Name,
					"ancestors.%s is only supported on the category entity %q", f.NameField, src.Name)
			}
		}
	}
	if src != nil && src.UsesAncestors {
		plan.Categories.Entity = src.Name
		plan.Categories.RootPath = src.RootPath
	}
}
