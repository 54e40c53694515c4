package catalog

import "strings"

// Path is a parsed "A/B/C" segment path. Empty segments (leading, trailing or
// doubled slashes) are dropped at parse time.
type Path struct {
	segs []string
}

// ParsePath splits s on "/" and drops empty segments.
func ParsePath(s string) Path {
	parts := strings.Split(s, "/")
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			segs = append(segs, p)
		}
	}
	return Path{segs: segs}
}

// IsEmpty reports whether the path has no segments.
func (p Path) IsEmpty() bool { return len(p.segs) == 0 }

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segs) }

// First returns the first segment, or "".
func (p Path) First() string {
	if len(p.segs) == 0 {
		return ""
	}
	return p.segs[0]
}

// Rest returns the path without its first segment.
func (p Path) Rest() Path {
	if len(p.segs) <= 1 {
		return Path{}
	}
	return Path{segs: p.segs[1:]}
}

func (p Path) String() string { return strings.Join(p.segs, "/") }

// ResolveAll resolves p relative to n: for each segment, the union of direct
// children with that tag across all current nodes becomes the next current set.
// The result is in document order. An empty path or a segment matching nothing
// yields nil.
func ResolveAll(n *Node, p Path) []*Node {
	if n == nil || p.IsEmpty() {
		return nil
	}
	return walk([]*Node{n}, p.segs)
}

// ResolveRooted resolves p against the document root. When the first segment
// equals the root tag it is skipped, so "BMECAT/T_NEW_CATALOG/ARTICLE" and
// "T_NEW_CATALOG/ARTICLE" are interchangeable.
func ResolveRooted(root *Node, p Path) []*Node {
	if root == nil || p.IsEmpty() {
		return nil
	}
	segs := p.segs
	if segs[0] == root.Tag {
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return []*Node{root}
	}
	return walk([]*Node{root}, segs)
}

func walk(cur []*Node, segs []string) []*Node {
	for _, seg := range segs {
		var next []*Node
		for _, n := range cur {
			for _, c := range n.Children {
				if c.Tag == seg {
					next = append(next, c)
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		cur = next
	}
	return cur
}

// ResolveFirst returns the first node, in document order, that ResolveAll
// would return. It stops at the first match instead of materializing the set.
func ResolveFirst(n *Node, p Path) *Node {
	if n == nil || p.IsEmpty() {
		return nil
	}
	return first(n, p.segs)
}

func first(n *Node, segs []string) *Node {
	if len(segs) == 0 {
		return n
	}
	for _, c := range n.Children {
		if c.Tag != segs[0] {
			continue
		}
		if hit := first(c, segs[1:]); hit != nil {
			return hit
		}
	}
	return nil
}

// ResolveText returns the text of the first node matched by p. The second
// return value is false when nothing matched or the match has no text.
// Whitespace is preserved.
func ResolveText(n *Node, p Path) (string, bool) {
	return ResolveFirst(n, p).TextValue()
}

// ResolveAttribute reads an attribute directly off n. The name may carry the
// "@" prefix used in mapping configs.
func ResolveAttribute(n *Node, name string) (string, bool) {
	return n.Attr(strings.TrimPrefix(name, "@"))
}
