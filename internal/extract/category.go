package extract

import (
	"strings"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/catalog"
	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/mapping"
)

// BreadcrumbSeparator joins ancestor names, root first.
const BreadcrumbSeparator = " > "

// CategoryTree is the id-indexed parent/name lookup behind ancestors.*
// fields. Nodes hold no parent pointers; walks go through the maps.
//
// An empty string stands for null in both maps: an empty parent stops the
// walk and an empty name is skipped in the breadcrumb.
type CategoryTree struct {
	parentOf map[string]string
	nameOf   map[string]string
}

// NewCategoryTree returns an empty tree.
func NewCategoryTree() *CategoryTree {
	return &CategoryTree{
		parentOf: make(map[string]string),
		nameOf:   make(map[string]string),
	}
}

// Put records id's parent and name. A repeated id overwrites the earlier
// entry: the last node processed wins.
func (t *CategoryTree) Put(id, parent, name string) {
	t.parentOf[id] = parent
	t.nameOf[id] = name
}

// Len returns the number of distinct ids.
func (t *CategoryTree) Len() int { return len(t.parentOf) }

// BuildCategoryTree resolves id, parent and name on every row node. Rows
// without an id contribute nothing. label prefixes missing-path warnings.
func BuildCategoryTree(rows []*catalog.Node, plan mapping.CategoryPlan, keys KeyResolver, label string) *CategoryTree {
	t := NewCategoryTree()
	for _, row := range rows {
		id, ok := keys.ResolveText(row, plan.IDPath, label+".category_id")
		if !ok || id == "" {
			continue
		}
		var parent, name string
		if !plan.ParentPath.IsEmpty() {
			parent, _ = keys.ResolveText(row, plan.ParentPath, label+".parent_id")
		}
		name, _ = keys.ResolveText(row, plan.NamePath, label+".name")
		t.Put(id, parent, name)
	}
	return t
}

// Breadcrumb returns the root-first " > " joined names of id and its
// ancestors. It returns false for unknown ids and when no ancestor has a
// name. A visited set bounds the walk, so parent cycles terminate after at
// most one pass over the cycle.
func (t *CategoryTree) Breadcrumb(id string) (string, bool) {
	if t == nil {
		return "", false
	}

	var names []string
	visited := make(map[string]struct{})
	cur := id
	for cur != "" {
		if _, ok := visited[cur]; ok {
			break
		}
		visited[cur] = struct{}{}

		if name := t.nameOf[cur]; name != "" {
			names = append(names, name)
		}
		cur = t.parentOf[cur]
	}

	if len(names) == 0 {
		return "", false
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, BreadcrumbSeparator), true
}
