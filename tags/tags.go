// Package tags builds HTML node trees and renders them to strings.
//
// Nodes are golang.org/x/net/html nodes, so escaping and void-element
// handling come from the same package browsers-compatible parsers use.
// Attributes render in the order they were given, which keeps output
// byte-stable across renders.
package tags

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attrs builds an attribute list from key/value pairs. A trailing key
// without a value is ignored. Empty values are kept ("" renders as key="").
func Attrs(kv ...string) []html.Attribute {
	out := make([]html.Attribute, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return out
}

// El returns an element node with the given attributes and children.
// Nil children are skipped.
func El(a atom.Atom, attrs []html.Attribute, children ...*html.Node) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
	Append(n, children...)
	return n
}

// Append adds children to n, skipping nil nodes.
func Append(n *html.Node, children ...*html.Node) {
	for _, c := range children {
		if c == nil {
			continue
		}
		if c.Parent != nil {
			c.Parent.RemoveChild(c)
		}
		n.AppendChild(c)
	}
}

// Text returns an escaped text node.
func Text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// Raw returns a node whose content is written verbatim. It is used to embed
// fragments that were already rendered (child components, handler output).
func Raw(s string) *html.Node {
	return &html.Node{Type: html.RawNode, Data: s}
}

// Doctype returns the <!DOCTYPE html> node.
func Doctype() *html.Node {
	return &html.Node{Type: html.DoctypeNode, Data: "html"}
}

// Document wraps nodes in a document node.
func Document(children ...*html.Node) *html.Node {
	d := &html.Node{Type: html.DocumentNode}
	Append(d, children...)
	return d
}

// Render renders n to a string.
func Render(n *html.Node) string {
	var b strings.Builder
	// strings.Builder never fails; html.Render only errors on the writer or
	// on void elements with children, which El callers never build.
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}

// GetAttr returns the value of key on n.
func GetAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Find walks n depth-first and returns the first element for which match
// returns true.
func Find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := Find(c, match); f != nil {
			return f
		}
	}
	return nil
}

// ByID returns a matcher for Find selecting the element with the given id.
func ByID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		v, ok := GetAttr(n, "id")
		return ok && v == id
	}
}

// ParseFragment parses s as body content and returns a synthetic root whose
// children are the parsed nodes.
func ParseFragment(s string) (*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	nodes, err := html.ParseFragment(strings.NewReader(s), ctx)
	if err != nil {
		return nil, err
	}
	root := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}
