package mapping

import (
	"regexp"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/catalog"
)

// Mode is the extraction strategy of an entity.
type Mode int

const (
	// ModeFlat emits one record per row node.
	ModeFlat Mode = iota
	// ModeNested emits one record per source_parent block of each row.
	ModeNested
	// ModeGrouped resolves block-level fields once per block and emits one
	// record per value node of each item (feature-style entities).
	ModeGrouped
)

func (m Mode) String() string {
	switch m {
	case ModeNested:
		return "nested"
	case ModeGrouped:
		return "grouped"
	default:
		return "flat"
	}
}

// FieldKind is the closed set of field path forms.
type FieldKind int

const (
	// FieldPath is a relative element path resolved to the first match's text.
	FieldPath FieldKind = iota
	// FieldAttribute reads an attribute off the context node.
	FieldAttribute
	// FieldAncestors is the breadcrumb of the row's category.
	FieldAncestors
)

// Extract is the post-processing applied to a resolved text.
type Extract int

const (
	ExtractText Extract = iota
	// ExtractHTMLText parses the value as HTML and keeps its plain text.
	ExtractHTMLText
)

// Scope says which node a grouped entity's field resolves against.
type Scope int

const (
	ScopeBlock Scope = iota
	ScopeItem
)

// FieldSpec is one compiled output column.
type FieldSpec struct {
	Name string
	Kind FieldKind

	// Path is the relative path for FieldPath, relative to the item for
	// ScopeItem fields of grouped entities.
	Path catalog.Path
	// Attr is the attribute name without "@".
	Attr string
	// NameField is the suffix of an ancestors.<NAME> token. It is
	// informational; breadcrumbs always use the category tree's name path.
	NameField string

	// Raw is the configured path string, used in warnings.
	Raw string

	Extract Extract
	Match   *regexp.Regexp

	Scope Scope
	// IsValue marks the value field of a grouped entity.
	IsValue bool
}

// KeyPlan is the compiled row key of an entity.
type KeyPlan struct {
	Column   string
	Primary  catalog.Path
	Fallback catalog.Path
}

// ClassCodePlan is a compiled class_codes rule.
type ClassCodePlan struct {
	SourceParent catalog.Path
	SystemField  catalog.Path
	CodeField    catalog.Path
	// Systems is the allow-list; nil allows every system.
	Systems map[string]struct{}
}

// EntityPlan is everything the extractor needs for one entity.
type EntityPlan struct {
	Name     string
	Mode     Mode
	Required bool

	RootPath     catalog.Path
	SourceParent catalog.Path

	// Key is nil for keyless flat entities.
	Key    *KeyPlan
	Fields []FieldSpec

	// Grouped entities only.
	ItemTag string
	Explode bool

	DedupColumns []string
	Keywords     []catalog.Path
	ClassCodes   []ClassCodePlan
	HasKeywords  bool
	HasClasses   bool
	RowHash      bool

	UsesAncestors bool
}

// Columns returns the output column names in order, given the context column.
func (e *EntityPlan) Columns(contextField string) []string {
	cols := []string{contextField}
	if e.Key != nil {
		cols = append(cols, e.Key.Column)
	}
	for _, f := range e.Fields {
		cols = append(cols, f.Name)
	}
	if e.HasKeywords {
		cols = append(cols, "keywords")
	}
	if e.HasClasses {
		cols = append(cols, "class_codes")
	}
	if e.RowHash {
		cols = append(cols, "row_hash")
	}
	return cols
}

// CategoryPlan locates id, parent id and name on category row nodes.
type CategoryPlan struct {
	// Entity is the category entity whose row nodes the tree is built from.
	// Empty when no entity uses ancestors.* fields.
	Entity   string
	RootPath catalog.Path

	IDPath     catalog.Path
	ParentPath catalog.Path
	NamePath   catalog.Path
}

// Plan is a compiled mapping configuration.
type Plan struct {
	ContextField string
	Entities     []EntityPlan
	Categories   CategoryPlan
}

// Entity returns the plan for name.
func (p *Plan) Entity(name string) (*EntityPlan, bool) {
	for i := range p.Entities {
		if p.Entities[i].Name == name {
			return &p.Entities[i], true
		}
	}
	return nil, false
}

// Names returns the entity names in run order.
func (p *Plan) Names() []string {
	out := make([]string, 0, len(p.Entities))
	for _, e := range p.Entities {
		out = append(out, e.Name)
	}
	return out
}
