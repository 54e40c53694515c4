package catalog

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
)

// DebugPrintPath writes every node matched by the root-anchored path to w,
// separated by "---" lines. With textOnly set only each node's text is
// printed ("<nil>" when it has none); otherwise the serialized subtree.
// It returns the number of matches.
func DebugPrintPath(w io.Writer, root *Node, path string, textOnly bool) (int, error) {
	matches := ResolveRooted(root, ParsePath(path))
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "path=%s matches=%d\n", path, len(matches))
	for i, n := range matches {
		if i > 0 {
			fmt.Fprintln(bw, "---")
		}
		if textOnly {
			if s, ok := n.TextValue(); ok {
				fmt.Fprintln(bw, s)
			} else {
				fmt.Fprintln(bw, "<nil>")
			}
			continue
		}
		if err := WriteXML(bw, n); err != nil {
			return i, err
		}
		fmt.Fprintln(bw)
	}
	return len(matches), bw.Flush()
}

// WriteXML serializes the subtree rooted at n. Attribute order and text are
// preserved; tail text is not part of the tree and is not emitted.
func WriteXML(w io.Writer, n *Node) error {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	writeNode(bw, n)
	return bw.Flush()
}

func writeNode(w *bufio.Writer, n *Node) {
	w.WriteString("<" + n.Tag)
	for _, a := range n.Attrs {
		w.WriteString(" " + a.Name + `="`)
		_ = xml.EscapeText(w, []byte(a.Value))
		w.WriteString(`"`)
	}
	if n.Text == nil && len(n.Children) == 0 {
		w.WriteString("/>")
		return
	}
	w.WriteString(">")
	if n.Text != nil {
		_ = xml.EscapeText(w, []byte(*n.Text))
	}
	for _, c := range n.Children {
		writeNode(w, c)
	}
	w.WriteString("</" + n.Tag + ">")
}
