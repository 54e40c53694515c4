// Package catalog holds the in-memory tree of a parsed catalog document
// (BMECAT-style product and category exports) together with the path
// resolver the extractor evaluates configured paths with.
//
// The tree is built once per run and treated as read-only after
// StripNamespaces has been applied.
package catalog

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// Attr is a single attribute on a Node.
type Attr struct {
	Name  string
	Value string
}

// Node is one element of the catalog tree.
//
// Tag carries the "{uri}LOCAL" form for namespaced elements until
// StripNamespaces runs. Text is the character data that precedes the first
// child element; it is nil when the element has no character data at all.
type Node struct {
	Tag      string
	Attrs    []Attr
	Text     *string
	Children []*Node
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// TextValue returns the node's text and whether the node has any.
func (n *Node) TextValue() (string, bool) {
	if n == nil || n.Text == nil {
		return "", false
	}
	return *n.Text, true
}

// Parse reads an XML document into a tree.
//
// Non UTF-8 documents are decoded through the WHATWG encoding index, which
// covers the ISO-8859-1 / windows-1252 declarations common in vendor exports.
// Namespace-qualified tags are kept as "{uri}LOCAL"; call StripNamespaces
// before resolving configured paths.
func Parse(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader
	dec.Entity = xml.HTMLEntity

	var (
		root  *Node
		stack []*Node
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Tag: qualifiedName(t.Name)}
			for _, a := range t.Attr {
				if isNamespaceDecl(a.Name) {
					continue
				}
				n.Attrs = append(n.Attrs, Attr{Name: qualifiedName(a.Name), Value: a.Value})
			}

			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("parse xml: multiple root elements (%s, %s)", root.Tag, n.Tag)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)

		case xml.EndElement:
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			cur := stack[len(stack)-1]
			// Tail text after a child element is not part of the parent's text.
			if len(cur.Children) > 0 {
				continue
			}
			s := string(t)
			if cur.Text != nil {
				s = *cur.Text + s
			}
			cur.Text = &s
		}
	}

	if root == nil {
		return nil, errors.New("parse xml: document has no root element")
	}
	return root, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(doc string) (*Node, error) {
	return Parse(strings.NewReader(doc))
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

func qualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return "{" + n.Space + "}" + n.Local
}

func isNamespaceDecl(n xml.Name) bool {
	return n.Space == "xmlns" || (n.Space == "" && n.Local == "xmlns")
}
