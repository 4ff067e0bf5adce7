package component

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// RouteRegistrar is the capability a tree root offers to OnChange: register
// a GET route answered by h.
type RouteRegistrar interface {
	AddEventRoute(path string, h Handler) error
}

// Responder writes a complete HTTP response for a bound route.
type Responder interface {
	Respond(w http.ResponseWriter, r *http.Request) error
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(w http.ResponseWriter, r *http.Request) error

func (f ResponderFunc) Respond(w http.ResponseWriter, r *http.Request) error { return f(w, r) }

// Fragment is an HTML fragment sent back to patch the target elements.
type Fragment string

// Respond writes the fragment as text/html.
func (f Fragment) Respond(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := io.WriteString(w, string(f))
	return err
}

// Handler answers a bound route. It returns either a Fragment or any other
// Responder that writes the whole response itself.
type Handler func(ctx context.Context) (Responder, error)

// String adapts a handler that only produces fragment text.
func String(fn func(ctx context.Context) string) Handler {
	return func(ctx context.Context) (Responder, error) {
		return Fragment(fn(ctx)), nil
	}
}

// Binding describes how a client-side trigger on a component patches other
// components.
type Binding struct {
	// Trigger is the DOM event name, e.g. "click" or "htmx:load".
	Trigger string
	// Modifiers are appended to the trigger, e.g. "delay:500ms".
	Modifiers []string
	// Targets are the components patched by the response, in order.
	Targets []*Component
	// Swap is the htmx swap mode, e.g. "innerHTML transition:true".
	Swap string
	// Once fires the request only the first time the trigger occurs.
	Once bool
}

var swapModes = map[string]bool{
	"innerHTML":   true,
	"outerHTML":   true,
	"textContent": true,
	"beforebegin": true,
	"afterbegin":  true,
	"beforeend":   true,
	"afterend":    true,
	"delete":      true,
	"none":        true,
}

func validTrigger(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == ':' || r == '.':
		default:
			return false
		}
	}
	return true
}

func (b Binding) validate() error {
	if !validTrigger(b.Trigger) {
		return fmt.Errorf("%w: %q", ErrInvalidTrigger, b.Trigger)
	}
	if len(b.Targets) == 0 {
		return ErrNoTarget
	}
	for i, t := range b.Targets {
		if t == nil {
			return fmt.Errorf("%w: target %d is nil", ErrNoTarget, i)
		}
	}
	mode, _, _ := strings.Cut(b.Swap, " ")
	if !swapModes[mode] {
		return fmt.Errorf("%w: %q", ErrInvalidSwap, b.Swap)
	}
	return nil
}

// TriggerExpr is the hx-trigger value.
func (b Binding) TriggerExpr() string {
	parts := make([]string, 0, len(b.Modifiers)+2)
	parts = append(parts, b.Trigger)
	parts = append(parts, b.Modifiers...)
	if b.Once {
		parts = append(parts, "once")
	}
	return strings.Join(parts, " ")
}

// TargetSelector is the hx-target value: "#id" for one target, ids joined
// with ", " for several.
func (b Binding) TargetSelector() string {
	sel := make([]string, len(b.Targets))
	for i, t := range b.Targets {
		sel[i] = "#" + t.ID()
	}
	return strings.Join(sel, ", ")
}

// RoutePath returns the route a trigger on c is served at.
func (c *Component) RoutePath(trigger string) string {
	return "/" + c.id + "/" + trigger
}

// OnChange binds b to c: it registers h at /{id}/{trigger} on the root of
// c's tree and sets the htmx attributes rendered around c. Binding again
// merges into the same attribute set (last write wins per attribute); the
// element is still wrapped only once.
func (c *Component) OnChange(b Binding, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	if err := b.validate(); err != nil {
		return err
	}
	root := c.Root()
	if root == nil {
		return fmt.Errorf("%w: %s", ErrDetached, c.id)
	}

	path := c.RoutePath(b.Trigger)
	if err := root.AddEventRoute(path, h); err != nil {
		return fmt.Errorf("component: bind %s: %w", path, err)
	}

	c.mu.Lock()
	c.setInteraction("hx-swap", b.Swap)
	c.setInteraction("hx-get", path)
	c.setInteraction("hx-trigger", b.TriggerExpr())
	c.setInteraction("hx-target", b.TargetSelector())
	c.mu.Unlock()
	return nil
}

// setInteraction updates key in place or appends it. Caller holds c.mu.
func (c *Component) setInteraction(key, val string) {
	for i := range c.interaction {
		if c.interaction[i].Key == key {
			c.interaction[i].Val = val
			return
		}
	}
	c.interaction = append(c.interaction, html.Attribute{Key: key, Val: val})
}

// Bound reports whether OnChange has succeeded on c.
func (c *Component) Bound() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.interaction) > 0
}

// Interaction returns the current htmx attributes as a map.
func (c *Component) Interaction() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.interaction))
	for _, a := range c.interaction {
		out[a.Key] = a.Val
	}
	return out
}
