package component

import (
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/fluidframe/tags"
)

// Widget is the closed set of component variants. Each variant holds only
// the fields it renders; the Component carries identity and tree links.
type Widget interface {
	// Kind is the lowercase type name used as the id prefix.
	Kind() string
	defaultClass() string
	element(attrs []html.Attribute, children []*html.Node) *html.Node
}

// Header renders a title inside a div.
type Header struct {
	Title string
}

func (Header) Kind() string         { return "header" }
func (Header) defaultClass() string { return "text-2xl font-bold m-5" }

func (h Header) element(attrs []html.Attribute, children []*html.Node) *html.Node {
	return tags.El(atom.Div, attrs, prepend(tags.El(atom.H1, nil, tags.Text(h.Title)), children)...)
}

// Text renders a paragraph.
type Text struct {
	Body string
}

func (Text) Kind() string         { return "text" }
func (Text) defaultClass() string { return "m-5 border border-gray-300 p-5 rounded-lg" }

func (t Text) element(attrs []html.Attribute, children []*html.Node) *html.Node {
	return tags.El(atom.P, attrs, prepend(tags.Text(t.Body), children)...)
}

// Button renders a button with a text label.
type Button struct {
	Label string
}

func (Button) Kind() string { return "button" }
func (Button) defaultClass() string {
	return "bg-blue-500 m-5 hover:bg-blue-700 text-white font-bold py-2 px-4 rounded"
}

func (b Button) element(attrs []html.Attribute, children []*html.Node) *html.Node {
	return tags.El(atom.Button, attrs, prepend(tags.Text(b.Label), children)...)
}

// Container is a layout div that only renders its children.
type Container struct{}

func (Container) Kind() string         { return "container" }
func (Container) defaultClass() string { return "" }

func (Container) element(attrs []html.Attribute, children []*html.Node) *html.Node {
	return tags.El(atom.Div, attrs, children...)
}

func prepend(first *html.Node, rest []*html.Node) []*html.Node {
	out := make([]*html.Node, 0, len(rest)+1)
	out = append(out, first)
	return append(out, rest...)
}

// DefaultClasses returns the distinct Tailwind classes the variants use by
// default, sorted. Tailwind cannot scan Go sources of this module from a
// user project, so the build safelists them.
func DefaultClasses() []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range []Widget{Header{}, Text{}, Button{}, Container{}} {
		for _, c := range strings.Fields(w.defaultClass()) {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	slices.Sort(out)
	return out
}
