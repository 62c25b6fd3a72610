package blade

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/dangdungcntt/go-blade/v2/host"
)

var _ host.Runtime = (*Engine)(nil)

// Include renders view with data, which already holds the including
// view's variables.
func (e *Engine) Include(f *host.Frame, view string, data map[string]any) (host.HTML, error) {
	out, err := e.renderView(f.Context(), f.State(), view, data)
	return host.HTML(out), err
}

func (e *Engine) Exists(_ *host.Frame, view string) bool {
	return e.finder.exists(view)
}

// Component renders a component call. Its attributes were evaluated and its
// slots rendered by the caller; lazy calls only render their wrapper.
func (e *Engine) Component(f *host.Frame, inv *host.Invocation) (host.HTML, error) {
	if inv.Lazy {
		return e.Lazy(f, inv.Name, inv.Attributes.Map())
	}
	out, err := e.component(f.Context(), f.State(), inv)
	return host.HTML(out), err
}

func (e *Engine) Lazy(_ *host.Frame, name string, attrs map[string]any) (host.HTML, error) {
	out, err := e.lazyWrapper(name, attrs)
	return host.HTML(out), err
}

func (e *Engine) Services() *host.Services {
	return e.current.Load()
}

// component resolves a component to its view and renders it. Registered
// components get their variables from their factory; anonymous components
// live under components/. Every attribute left in $attributes is also bound
// as a camelCase variable, $slot holds the default slot and each named slot
// gets its own variable.
func (e *Engine) component(ctx context.Context, st *host.State, inv *host.Invocation) (string, error) {
	key := componentKey(inv.Name)
	e.mu.RLock()
	def, registered := e.components[key]
	e.mu.RUnlock()

	bag := inv.Attributes
	if bag == nil {
		bag = host.NewAttributeBag()
	}
	vars := map[string]any{}
	view := def.view
	if registered {
		extra, rest, err := def.factory(ctx, bag)
		if err != nil {
			return "", fmt.Errorf("component %s: %w", inv.Name, err)
		}
		maps.Copy(vars, extra)
		if rest != nil {
			bag = rest
		}
	} else {
		candidates := componentViews(key)
		if i := slices.IndexFunc(candidates, e.finder.exists); i >= 0 {
			view = candidates[i]
		} else {
			return "", &ComponentNotFoundError{Name: inv.Name, Searched: candidates}
		}
	}

	for _, a := range bag.All() {
		name := host.CamelCase(a.Name)
		if _, set := vars[name]; !set {
			vars[name] = a.Value
		}
	}
	vars["attributes"] = bag
	slot := inv.Slot
	if slot == nil {
		slot = host.NewSlot("", nil)
	}
	vars["slot"] = slot
	for _, s := range inv.Slots {
		vars[host.CamelCase(s.Name)] = s.Slot
	}
	return e.renderView(ctx, st, view, vars)
}

// attributeBag orders attributes by name so renders are deterministic.
func attributeBag(attrs map[string]any) *host.AttributeBag {
	list := make([]host.Attr, 0, len(attrs))
	for _, name := range slices.Sorted(maps.Keys(attrs)) {
		list = append(list, host.Attr{Name: name, Value: attrs[name]})
	}
	return host.NewAttributeBag(list...)
}
