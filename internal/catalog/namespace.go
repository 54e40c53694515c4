package catalog

import "strings"

// StripNamespaces rewrites every tag in the tree from "{uri}LOCAL" to "LOCAL",
// in place. Configured paths are always written without namespace qualifiers,
// so this must run once before any resolution.
//
// The walk is iterative; deeply nested exports do not grow the goroutine stack.
// Running it twice is a no-op.
func StripNamespaces(root *Node) {
	if root == nil {
		return
	}
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n.Tag = LocalName(n.Tag)
		stack = append(stack, n.Children...)
	}
}

// LocalName drops a leading "{uri}" qualifier from tag.
func LocalName(tag string) string {
	if !strings.HasPrefix(tag, "{") {
		return tag
	}
	if i := strings.IndexByte(tag, '}'); i >= 0 {
		return tag[i+1:]
	}
	return tag
}
