// Package probe inspects a parsed catalog to help author mapping
// configurations.
//
// Inventory walks the tree once and records every distinct element path with
// its occurrence count, the attribute names seen on it and a sample text.
// Skeleton turns an inventory into a starter configuration for the detected
// article (or BMECAT 2005 product) layout. Both are best-effort: unknown
// layouts produce notes, never errors, as long as an article path exists.
package probe

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/catalog"
)

// DefaultSampleLen caps the sample text kept per path, in runes.
const DefaultSampleLen = 60

// PathStat describes one distinct element path.
type PathStat struct {
	Path       string   `json:"path"`
	Count      int      `json:"count"`
	Attributes []string `json:"attributes,omitempty"`
	Sample     string   `json:"sample,omitempty"`
}

// Inventory is the result of a walk. Paths are in first-seen document order.
type Inventory struct {
	Root  string     `json:"root"`
	Paths []PathStat `json:"paths"`

	index map[string]int
}

// Options tune the walk.
type Options struct {
	// SampleLen caps sample texts, in runes. Zero selects DefaultSampleLen.
	SampleLen int
	// MaxDepth stops descending below this many segments. Zero is unlimited.
	MaxDepth int
}

// Take walks root and returns its path inventory. Namespaces are stripped
// first so the paths are the ones a mapping configuration uses.
//
// Edge cases:
//   - A nil root yields an empty inventory.
//   - Whitespace-only text is not a sample.
func Take(root *catalog.Node, opt Options) *Inventory {
	if opt.SampleLen <= 0 {
		opt.SampleLen = DefaultSampleLen
	}
	inv := &Inventory{index: make(map[string]int)}
	if root == nil {
		return inv
	}
	catalog.StripNamespaces(root)
	inv.Root = root.Tag

	attrs := make(map[string]map[string]struct{})

	var visit func(n *catalog.Node, path string, depth int)
	visit = func(n *catalog.Node, path string, depth int) {
		i, ok := inv.index[path]
		if !ok {
			i = len(inv.Paths)
			inv.index[path] = i
			inv.Paths = append(inv.Paths, PathStat{Path: path})
		}
		ps := &inv.Paths[i]
		ps.Count++

		for _, a := range n.Attrs {
			set := attrs[path]
			if set == nil {
				set = make(map[string]struct{})
				attrs[path] = set
			}
			set[a.Name] = struct{}{}
		}
		if ps.Sample == "" {
			if s, ok := n.TextValue(); ok {
				ps.Sample = truncate(strings.Join(strings.Fields(s), " "), opt.SampleLen)
			}
		}

		if opt.MaxDepth > 0 && depth >= opt.MaxDepth {
			return
		}
		for _, c := range n.Children {
			visit(c, path+"/"+c.Tag, depth+1)
		}
	}
	visit(root, root.Tag, 1)

	for path, set := range attrs {
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)
		inv.Paths[inv.index[path]].Attributes = names
	}
	return inv
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// Lookup returns the stat for a root-anchored path.
func (inv *Inventory) Lookup(path string) (PathStat, bool) {
	if inv == nil || inv.index == nil {
		return PathStat{}, false
	}
	i, ok := inv.index[path]
	if !ok {
		return PathStat{}, false
	}
	return inv.Paths[i], true
}

// Has reports whether path occurs at least once.
func (inv *Inventory) Has(path string) bool {
	_, ok := inv.Lookup(path)
	return ok
}

// Filter returns the stats whose path contains substr. An empty substr
// returns all of them.
func (inv *Inventory) Filter(substr string) []PathStat {
	if substr == "" {
		return append([]PathStat(nil), inv.Paths...)
	}
	var out []PathStat
	for _, ps := range inv.Paths {
		if strings.Contains(ps.Path, substr) {
			out = append(out, ps)
		}
	}
	return out
}

// FormatReport renders stats as tab-separated lines with a header.
func FormatReport(stats []PathStat) string {
	if len(stats) == 0 {
		return "paths: none"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "count\tpath\tattributes\tsample\n")
	for _, ps := range stats {
		fmt.Fprintf(&b, "%d\t%s\t%s\t%q\n", ps.Count, ps.Path, strings.Join(ps.Attributes, ","), ps.Sample)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ErrNoArticles is returned by Skeleton when no ARTICLE or PRODUCT element
// path exists.
var ErrNoArticles = errors.New("probe: no ARTICLE or PRODUCT elements found")

// findLast returns the most frequent path whose last segment is one of tags.
// Ties go to the path seen first.
func (inv *Inventory) findLast(tags ...string) (PathStat, bool) {
	var best PathStat
	found := false
	for _, ps := range inv.Paths {
		last := ps.Path[strings.LastIndex(ps.Path, "/")+1:]
		for _, t := range tags {
			if last == t && (!found || ps.Count > best.Count) {
				best, found = ps, true
			}
		}
	}
	return best, found
}
