package extract

import (
	"crypto/sha256"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/catalog"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/mapping"
	"github.com/rai-lv/vendor-to-pim-mapping-system/pkg/records"
)

// entityRun owns the mutable state of one entity's extraction: counters,
// the seen-keys set and the output slice. One worker drives one entityRun.
type entityRun struct {
	plan         *mapping.EntityPlan
	vendor       string
	contextField string
	keys         KeyResolver
	tree         *CategoryTree
	categoryID   catalog.Path
	itemPath     catalog.Path

	stats  EntityStats
	dedup  records.Hasher
	seen   map[[sha256.Size]byte]struct{}
	hasher records.Hasher
	out    []*records.Record
}

func newEntityRun(plan *mapping.EntityPlan, vendor, contextField string, keys KeyResolver, tree *CategoryTree, categoryID catalog.Path) *entityRun {
	r := &entityRun{
		plan:         plan,
		vendor:       vendor,
		contextField: contextField,
		keys:         keys,
		tree:         tree,
		categoryID:   categoryID,
		itemPath:     catalog.ParsePath(plan.ItemTag),
		stats:        EntityStats{Entity: plan.Name},
	}
	if len(plan.DedupColumns) > 0 {
		r.dedup = records.Hasher{Fields: plan.DedupColumns}
		r.seen = make(map[[sha256.Size]byte]struct{})
	}
	return r
}

// run resolves the entity's row nodes and emits its records. The only error
// is EmptyResultError for a required entity without rows.
func (r *entityRun) run(root *catalog.Node) error {
	rows := catalog.ResolveRooted(root, r.plan.RootPath)
	r.stats.RowsFound = len(rows)
	if len(rows) == 0 && r.plan.Required {
		return &EmptyResultError{Entity: r.plan.Name, RootPath: r.plan.RootPath.String()}
	}

	keyLabel := ""
	if r.plan.Key != nil {
		keyLabel = r.plan.Name + "." + r.plan.Key.Column
	}

	for _, row := range rows {
		var key string
		if r.plan.Key != nil {
			k, ok := r.keys.Resolve(row, r.plan.Key.Primary, r.plan.Key.Fallback, keyLabel)
			if !ok {
				r.stats.RowsSkippedNoKey++
				continue
			}
			key = k
		}

		switch r.plan.Mode {
		case mapping.ModeFlat:
			r.flat(row, key)
		case mapping.ModeNested:
			r.nested(row, key)
		case mapping.ModeGrouped:
			r.grouped(row, key)
		}
	}

	r.stats.Records = len(r.out)
	return nil
}

func (r *entityRun) newRecord(key string) *records.Record {
	rec := records.New(len(r.plan.Fields) + 4)
	rec.Set(r.contextField, r.vendor)
	if r.plan.Key != nil {
		rec.Set(r.plan.Key.Column, key)
	}
	return rec
}

// categoryKey is the id breadcrumbs start from: the row key for keyed
// entities, else the category id resolved on the row.
func (r *entityRun) categoryKey(row *catalog.Node, key string) string {
	if !r.plan.UsesAncestors {
		return ""
	}
	if r.plan.Key != nil {
		return key
	}
	id, _ := r.keys.ResolveText(row, r.categoryID, r.plan.Name+".category_id")
	return id
}

func (r *entityRun) flat(row *catalog.Node, key string) {
	rec := r.newRecord(key)
	catKey := r.categoryKey(row, key)
	for i := range r.plan.Fields {
		r.setField(rec, row, &r.plan.Fields[i], catKey)
	}
	if r.plan.HasKeywords {
		rec.Set("keywords", r.keywords(row))
	}
	if r.plan.HasClasses {
		rec.Set("class_codes", r.classCodes(row))
	}
	r.emit(rec)
}

func (r *entityRun) nested(row *catalog.Node, key string) {
	catKey := r.categoryKey(row, key)
	for _, block := range catalog.ResolveAll(row, r.plan.SourceParent) {
		rec := r.newRecord(key)
		for i := range r.plan.Fields {
			r.setField(rec, block, &r.plan.Fields[i], catKey)
		}
		r.emit(rec)
	}
}

// grouped handles feature-style entities. Per block, block-scope fields are
// resolved once; per item, item-scope fields are resolved and the value
// field drives cardinality: with explode every value node yields a record,
// without it only the first does. An item with no value node yields nothing.
func (r *entityRun) grouped(row *catalog.Node, key string) {
	catKey := r.categoryKey(row, key)
	itemPath := r.itemPath

	for _, block := range catalog.ResolveAll(row, r.plan.SourceParent) {
		base := r.newRecord(key)
		for i := range r.plan.Fields {
			fs := &r.plan.Fields[i]
			if fs.Scope == mapping.ScopeBlock && !fs.IsValue {
				r.setField(base, block, fs, catKey)
				continue
			}
			// Reserve the column so output order follows the config.
			base.Set(fs.Name, nil)
		}

		items := []*catalog.Node{block}
		if !itemPath.IsEmpty() {
			items = catalog.ResolveAll(block, itemPath)
		}

		for _, item := range items {
			rec := base.Clone()
			var value *mapping.FieldSpec
			for i := range r.plan.Fields {
				fs := &r.plan.Fields[i]
				switch {
				case fs.IsValue:
					value = fs
				case fs.Scope == mapping.ScopeItem:
					r.setField(rec, item, fs, catKey)
				}
			}

			if value == nil {
				r.emit(rec)
				continue
			}

			valueNode := item
			if value.Scope == mapping.ScopeBlock {
				valueNode = block
			}
			nodes := catalog.ResolveAll(valueNode, value.Path)
			if len(nodes) == 0 {
				continue
			}
			if !r.plan.Explode {
				nodes = nodes[:1]
			}
			for _, n := range nodes {
				out := rec.Clone()
				s, ok := n.TextValue()
				if ok {
					s, ok = postProcess(s, value)
				}
				out.SetText(value.Name, s, ok)
				r.emit(out)
			}
		}
	}
}

func (r *entityRun) setField(rec *records.Record, n *catalog.Node, fs *mapping.FieldSpec, catKey string) {
	label := r.plan.Name + "." + fs.Name

	var (
		s  string
		ok bool
	)
	switch fs.Kind {
	case mapping.FieldPath:
		s, ok = r.keys.ResolveText(n, fs.Path, label)
	case mapping.FieldAttribute:
		s, ok = r.keys.ResolveAttribute(n, fs.Attr, label)
	case mapping.FieldAncestors:
		if catKey != "" {
			s, ok = r.tree.Breadcrumb(catKey)
		}
	}
	if ok {
		s, ok = postProcess(s, fs)
	}
	rec.SetText(fs.Name, s, ok)
}

// keywords gathers every text under the configured sources. The result is
// always a list, possibly empty.
func (r *entityRun) keywords(row *catalog.Node) []string {
	out := []string{}
	for _, p := range r.plan.Keywords {
		for _, n := range catalog.ResolveAll(row, p) {
			if s, ok := n.TextValue(); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// classCodes gathers (system, code) pairs. Both parts must be non-empty and
// the system must pass the rule's allow-list.
func (r *entityRun) classCodes(row *catalog.Node) []records.ClassCode {
	out := []records.ClassCode{}
	for _, rule := range r.plan.ClassCodes {
		for _, block := range catalog.ResolveAll(row, rule.SourceParent) {
			system, _ := catalog.ResolveText(block, rule.SystemField)
			code, _ := catalog.ResolveText(block, rule.CodeField)
			if system == "" || code == "" {
				continue
			}
			if rule.Systems != nil {
				if _, ok := rule.Systems[system]; !ok {
					continue
				}
			}
			out = append(out, records.ClassCode{System: system, Code: code})
		}
	}
	return out
}

// emit appends the row hash, applies deduplication and stores the record.
func (r *entityRun) emit(rec *records.Record) {
	if r.plan.RowHash {
		rec.Set("row_hash", r.hasher.Hex(rec))
	}
	if r.seen != nil {
		sum := r.dedup.Sum(rec)
		if _, dup := r.seen[sum]; dup {
			r.stats.DuplicatesDropped++
			return
		}
		r.seen[sum] = struct{}{}
	}
	r.out = append(r.out, rec)
}
