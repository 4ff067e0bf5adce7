// Package demo is the example application served by "fluidframe serve": a
// shared counter driven by two buttons, a button that reloads two text
// sections, and a counter kept per browser session.
package demo

import (
	"context"
	"fmt"

	"github.com/hazyhaar/fluidframe/app"
	"github.com/hazyhaar/fluidframe/component"
	"github.com/hazyhaar/fluidframe/kit"
	"github.com/hazyhaar/fluidframe/state"
)

// Demo holds the components of the example page.
type Demo struct {
	Increment *component.Component
	Header    *component.Component
	Decrement *component.Component

	LoadMore *component.Component
	Section1 *component.Component
	Section2 *component.Component

	SessionButton *component.Component
	SessionHeader *component.Component

	count *state.Cell[int]
	store *state.Store
}

// Build attaches the example components to a and binds their handlers.
// The per-session counter is added only when store is non-nil.
func Build(a *app.App, store *state.Store) (*Demo, error) {
	d := &Demo{count: state.NewCell(0), store: store}

	d.Increment = a.Child(component.Must(component.New(component.Button{Label: "Increment"})))
	d.Header = a.Child(component.Must(component.New(component.Header{Title: "Here we show a dynamic number"})))
	d.Decrement = a.Child(component.Must(component.New(component.Button{Label: "Decrement"})))

	counter := component.Binding{
		Trigger: "click",
		Targets: []*component.Component{d.Header},
		Swap:    "innerHTML transition:true",
	}
	if err := d.Increment.OnChange(counter, component.String(d.increment)); err != nil {
		return nil, err
	}
	if err := d.Decrement.OnChange(counter, component.String(d.decrement)); err != nil {
		return nil, err
	}

	d.LoadMore = a.Child(component.Must(component.New(component.Button{Label: "Load More"})))
	d.Section1 = a.Child(component.Must(component.New(component.Text{Body: "Loaded Section "})))
	d.Section2 = a.Child(component.Must(component.New(component.Text{Body: "Loaded Section"})))
	err := d.LoadMore.OnChange(component.Binding{
		Trigger: "click",
		Targets: []*component.Component{d.Section1, d.Section2},
		Swap:    "outerHTML transition:true",
	}, component.String(d.loadMore))
	if err != nil {
		return nil, err
	}

	if store == nil {
		return d, nil
	}
	d.SessionButton = a.Child(component.Must(component.New(component.Button{Label: "Count my clicks"})))
	d.SessionHeader = a.Child(component.Must(component.New(component.Header{Title: "Your clicks in this session"})))
	err = d.SessionButton.OnChange(component.Binding{
		Trigger: "click",
		Targets: []*component.Component{d.SessionHeader},
		Swap:    "innerHTML",
	}, d.sessionClick)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Count returns the shared counter value.
func (d *Demo) Count() int { return d.count.Get() }

func (d *Demo) increment(context.Context) string {
	n := d.count.Update(func(n int) int { return n + 1 })
	return fmt.Sprintf("You have clicked the button to increment %d", n)
}

func (d *Demo) decrement(context.Context) string {
	n := d.count.Update(func(n int) int { return n - 1 })
	return fmt.Sprintf("You have clicked the button to decrement %d", n)
}

func (d *Demo) loadMore(context.Context) string {
	return d.Section1.Render() + d.Section2.Render()
}

func (d *Demo) sessionClick(ctx context.Context) (component.Responder, error) {
	n, err := d.store.Add(ctx, kit.GetSessionID(ctx), "clicks", 1)
	if err != nil {
		return nil, err
	}
	return component.Fragment(fmt.Sprintf("<h1>You clicked %d times in this session</h1>", n)), nil
}
