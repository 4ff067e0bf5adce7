package component

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// layoutNode is one entry of a YAML layout file.
type layoutNode struct {
	Kind     string            `yaml:"kind"`
	Key      string            `yaml:"key"`
	Title    string            `yaml:"title"`
	Body     string            `yaml:"body"`
	Label    string            `yaml:"label"`
	Class    *string           `yaml:"class"`
	Attrs    map[string]string `yaml:"attrs"`
	Children []layoutNode      `yaml:"children"`
}

// Layout is the result of LoadLayout.
type Layout struct {
	// Components are the top-level components, in file order.
	Components []*Component

	byKey map[string]*Component
	all   []*Component
}

// Get returns the component declared with key, or nil.
func (l *Layout) Get(key string) *Component { return l.byKey[key] }

// LoadLayout reads a YAML list of components and attaches them under
// parent. Unknown fields, and fields that do not belong to the declared
// kind, are rejected:
//
//	- kind: header
//	  key: counter
//	  title: Here we show a dynamic number
//	- kind: container
//	  children:
//	    - kind: button
//	      key: inc
//	      label: Increment
func LoadLayout(r io.Reader, parent Parent, opts ...Option) (*Layout, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var nodes []layoutNode
	if err := dec.Decode(&nodes); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("component: layout: %w", err)
	}

	l := &Layout{byKey: make(map[string]*Component)}
	for i := range nodes {
		c, err := l.build(&nodes[i], opts)
		if err != nil {
			l.release()
			return nil, err
		}
		l.Components = append(l.Components, c)
	}
	// Attach only once the whole file is valid so a bad layout leaves the
	// parent untouched.
	for _, c := range l.Components {
		parent.Child(c)
	}
	return l, nil
}

func (l *Layout) build(n *layoutNode, opts []Option) (*Component, error) {
	w, err := n.widget()
	if err != nil {
		return nil, err
	}

	o := append([]Option(nil), opts...)
	if n.Key != "" {
		o = append(o, WithKey(n.Key))
	}
	if n.Class != nil {
		o = append(o, WithClass(*n.Class))
	}
	names := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		o = append(o, WithAttr(k, n.Attrs[k]))
	}

	c, err := New(w, o...)
	if err != nil {
		return nil, fmt.Errorf("component: layout: %w", err)
	}
	l.all = append(l.all, c)
	if n.Key != "" {
		l.byKey[n.Key] = c
	}
	for i := range n.Children {
		child, err := l.build(&n.Children[i], opts)
		if err != nil {
			return nil, err
		}
		c.Child(child)
	}
	return c, nil
}

// release frees the ids of every component built so far.
func (l *Layout) release() {
	for _, c := range l.all {
		c.reg.Release(c.id)
	}
}

func (n *layoutNode) widget() (Widget, error) {
	var stray string
	switch n.Kind {
	case "header":
		stray = firstSet("body", n.Body, "label", n.Label)
		if stray == "" {
			return Header{Title: n.Title}, nil
		}
	case "text":
		stray = firstSet("title", n.Title, "label", n.Label)
		if stray == "" {
			return Text{Body: n.Body}, nil
		}
	case "button":
		stray = firstSet("title", n.Title, "body", n.Body)
		if stray == "" {
			return Button{Label: n.Label}, nil
		}
	case "container":
		stray = firstSet("title", n.Title, "body", n.Body, "label", n.Label)
		if stray == "" {
			return Container{}, nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, n.Kind)
	}
	return nil, fmt.Errorf("%w: field %q does not apply to %s", ErrAttributeConflict, stray, n.Kind)
}

// firstSet returns the name of the first non-empty value in name/value pairs.
func firstSet(kv ...string) string {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			return kv[i]
		}
	}
	return ""
}
