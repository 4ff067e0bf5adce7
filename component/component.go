// Package component implements the server-rendered component tree.
//
// A Component is one node of the tree: it has a stable id, an ordered list of
// children, a weak link to its parent and, once bound with OnChange, a set of
// htmx attributes that make the browser call back into a registered route.
//
//	app := app.New(cfg)
//	header := app.Child(component.Must(component.New(component.Header{Title: "0"})))
//	btn := app.Child(component.Must(component.New(component.Button{Label: "+1"})))
//	err := btn.OnChange(component.Binding{
//	    Trigger: "click",
//	    Targets: []*component.Component{header},
//	    Swap:    "innerHTML",
//	}, component.String(func(ctx context.Context) string { return "1" }))
package component

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/fluidframe/horosafe"
	"github.com/hazyhaar/fluidframe/idgen"
	"github.com/hazyhaar/fluidframe/tags"
)

// ids is the process-wide registry used when no WithRegistry option is given.
var ids = idgen.NewRegistry(nil)

// reserved are names a Component exposes itself; extra attributes may not
// reuse them. hx-* attributes are reserved for OnChange.
var reserved = map[string]bool{
	"id":       true,
	"type":     true,
	"class":    true,
	"key":      true,
	"parent":   true,
	"root":     true,
	"children": true,
}

// Parent is a node that owns an ordered list of child components: a
// Component or the application root. Types outside this package become a
// Parent by embedding Tree.
type Parent interface {
	Child(c *Component) *Component
	Children() []*Component
	tree() *Tree
}

// Tree is the ordered, exclusively owned child list of a Parent.
type Tree struct {
	mu       sync.RWMutex
	children []*Component
}

func (t *Tree) tree() *Tree { return t }

// Children returns a snapshot of the children in append order.
func (t *Tree) Children() []*Component {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.children)
}

func (t *Tree) add(c *Component) {
	t.mu.Lock()
	t.children = append(t.children, c)
	t.mu.Unlock()
}

func (t *Tree) remove(c *Component) {
	t.mu.Lock()
	t.children = slices.DeleteFunc(t.children, func(x *Component) bool { return x == c })
	t.mu.Unlock()
}

// Attach makes c a child of p and returns c. A component already owned by
// another parent is moved; attaching it to its current parent is a no-op, so
// c always appears exactly once in exactly one child list. Attaching a
// component under itself or one of its descendants panics: the tree would
// no longer render.
func Attach(p Parent, c *Component) *Component {
	if c == nil {
		return nil
	}
	for anc := p; anc != nil; {
		pc, ok := anc.(*Component)
		if !ok {
			break
		}
		if pc == c {
			panic(fmt.Sprintf("component: cannot attach %s under itself or its descendant", c.ID()))
		}
		anc = pc.Parent()
	}

	// Held across the swap: c is in at most one child list. Lock order is
	// component, then tree.
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.parent
	if old == p {
		return c
	}
	if old != nil {
		old.tree().remove(c)
	}
	p.tree().add(c)
	c.parent = p
	return c
}

// Component is a node of the UI tree.
type Component struct {
	Tree

	id  string
	reg *idgen.Registry

	mu          sync.RWMutex
	widget      Widget
	class       string
	attrs       []html.Attribute
	interaction []html.Attribute
	parent      Parent
}

// Option configures a Component at construction.
type Option func(*options)

type options struct {
	key      string
	class    *string
	attrs    []html.Attribute
	registry *idgen.Registry
}

// WithKey sets an explicit id instead of a generated one. The key must not
// be in use by another component of the same registry.
func WithKey(key string) Option { return func(o *options) { o.key = key } }

// WithClass replaces the variant's default CSS classes. An empty string
// removes the class attribute.
func WithClass(class string) Option { return func(o *options) { o.class = &class } }

// WithAttr adds an extra HTML attribute. Names the component manages itself
// (id, type, class, hx-*) or already set by another WithAttr are rejected
// with ErrAttributeConflict.
func WithAttr(name, value string) Option {
	return func(o *options) { o.attrs = append(o.attrs, html.Attribute{Key: name, Val: value}) }
}

// WithRegistry draws the id from r instead of the package registry.
func WithRegistry(r *idgen.Registry) Option { return func(o *options) { o.registry = r } }

// New constructs a component for w. The id is "<kind>-<suffix>", unique
// within the registry.
func New(w Widget, opts ...Option) (*Component, error) {
	if w == nil {
		return nil, fmt.Errorf("component: nil widget")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = ids
	}

	if o.key != "" {
		if err := validateKey(o.key); err != nil {
			return nil, err
		}
	}
	seen := make(map[string]bool, len(o.attrs))
	for _, a := range o.attrs {
		if !validAttrName(a.Key) {
			return nil, fmt.Errorf("%w: %q on %s", ErrInvalidAttribute, a.Key, w.Kind())
		}
		name := strings.ToLower(a.Key)
		switch {
		case reserved[name] || strings.HasPrefix(name, "hx-"):
			return nil, fmt.Errorf("%w: attribute %q already exists as part of the component %q", ErrAttributeConflict, name, w.Kind())
		case seen[name]:
			return nil, fmt.Errorf("%w: attribute %q set twice on %q", ErrAttributeConflict, name, w.Kind())
		}
		seen[name] = true
	}

	var id string
	if o.key != "" {
		if err := o.registry.Claim(o.key); err != nil {
			return nil, fmt.Errorf("component: %s key: %w", w.Kind(), err)
		}
		id = o.key
	} else {
		id = o.registry.Next(w.Kind())
	}

	class := w.defaultClass()
	if o.class != nil {
		class = *o.class
	}
	return &Component{
		id:     id,
		reg:    o.registry,
		widget: w,
		class:  class,
		attrs:  slices.Clone(o.attrs),
	}, nil
}

// validateKey accepts keys usable unescaped as an id, a "#key" selector and
// one path segment: a leading letter, then letters, digits, '-' or '_'.
func validateKey(key string) error {
	if err := horosafe.ValidateIdentifier(key); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
	}
	if !isLetter(rune(key[0])) || strings.ContainsRune(key, '.') {
		return fmt.Errorf("%w: %q must start with a letter and contain no dot", ErrInvalidKey, key)
	}
	return nil
}

// validAttrName matches [A-Za-z_:][-A-Za-z0-9_:.]*. x/net/html writes
// attribute names verbatim, so anything else could break out of the tag.
func validAttrName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case isLetter(r), r == '_', r == ':':
		case i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func isLetter(r rune) bool { return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' }

// Must panics if err is non-nil. It wraps New in tree-construction code:
//
//	btn := app.Child(component.Must(component.New(component.Button{Label: "Go"})))
func Must(c *Component, err error) *Component {
	if err != nil {
		panic(err)
	}
	return c
}

// ID returns the component's identifier.
func (c *Component) ID() string { return c.id }

// Type returns the lowercase variant name.
func (c *Component) Type() string { return c.Widget().Kind() }

// Widget returns the current widget value.
func (c *Component) Widget() Widget {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.widget
}

// Parent returns the component's parent, or nil when detached.
func (c *Component) Parent() Parent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parent
}

// Root walks up the parent chain and returns the first ancestor that can
// register routes, or nil.
func (c *Component) Root() RouteRegistrar {
	p := c.Parent()
	for p != nil {
		switch v := p.(type) {
		case *Component:
			p = v.Parent()
		case RouteRegistrar:
			return v
		default:
			return nil
		}
	}
	return nil
}

// Child attaches child under c and returns child for chaining.
func (c *Component) Child(child *Component) *Component {
	return Attach(c, child)
}

// Update replaces the widget with w, which must be the same variant.
func (c *Component) Update(w Widget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w == nil || w.Kind() != c.widget.Kind() {
		return fmt.Errorf("%w: %s cannot become %T", ErrKindMismatch, c.widget.Kind(), w)
	}
	c.widget = w
	return nil
}

// Render returns the component's HTML fragment. It is a pure function of the
// component's current state and that of its descendants.
func (c *Component) Render() string {
	return tags.Render(c.Node())
}

// Node builds the component's element tree. When the component is bound, the
// element is wrapped once in a div carrying the htmx attributes.
func (c *Component) Node() *html.Node {
	c.mu.RLock()
	w := c.widget
	attrs := make([]html.Attribute, 0, len(c.attrs)+2)
	attrs = append(attrs, html.Attribute{Key: "id", Val: c.id})
	if c.class != "" {
		attrs = append(attrs, html.Attribute{Key: "class", Val: c.class})
	}
	attrs = append(attrs, c.attrs...)
	interaction := slices.Clone(c.interaction)
	c.mu.RUnlock()

	kids := c.Children()
	nodes := make([]*html.Node, 0, len(kids))
	for _, k := range kids {
		nodes = append(nodes, k.Node())
	}

	el := w.element(attrs, nodes)
	if len(interaction) == 0 {
		return el
	}
	return tags.El(atom.Div, interaction, el)
}
