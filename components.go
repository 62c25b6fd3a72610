package blade

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/spf13/cast"

	"github.com/dangdungcntt/go-blade/v2/host"
)

// ComponentFactory builds the variables of a class-backed component from
// the attributes it was called with. It returns the attributes it did not
// claim; those are bound as $attributes.
type ComponentFactory func(ctx context.Context, attrs *host.AttributeBag) (vars map[string]any, rest *host.AttributeBag, err error)

type componentDef struct {
	view    string
	factory ComponentFactory
}

// Mounter is implemented by components that load state before rendering.
type Mounter interface {
	Mount(ctx context.Context) error
}

// Prop binds one attribute of a component to a field of T.
type Prop[T any] struct {
	Name string
	set  func(c *T, v any) error
}

func StringProp[T any](name string, set func(c *T, v string)) Prop[T] {
	return Prop[T]{Name: name, set: func(c *T, v any) error {
		s, err := cast.ToStringE(v)
		if err != nil {
			return err
		}
		set(c, s)
		return nil
	}}
}

func IntProp[T any](name string, set func(c *T, v int)) Prop[T] {
	return Prop[T]{Name: name, set: func(c *T, v any) error {
		n, err := cast.ToIntE(v)
		if err != nil {
			return err
		}
		set(c, n)
		return nil
	}}
}

func BoolProp[T any](name string, set func(c *T, v bool)) Prop[T] {
	return Prop[T]{Name: name, set: func(c *T, v any) error {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return err
		}
		set(c, b)
		return nil
	}}
}

func FloatProp[T any](name string, set func(c *T, v float64)) Prop[T] {
	return Prop[T]{Name: name, set: func(c *T, v any) error {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return err
		}
		set(c, f)
		return nil
	}}
}

// AnyProp passes the attribute value through unconverted.
func AnyProp[T any](name string, set func(c *T, v any)) Prop[T] {
	return Prop[T]{Name: name, set: func(c *T, v any) error {
		set(c, v)
		return nil
	}}
}

// Props builds a ComponentFactory from a constructor and a setter table.
// The component is bound as $component; when it has a Data method its
// entries are bound as variables too. Attributes are matched by their
// written name or its camelCase form.
func Props[T any](newT func() *T, props ...Prop[T]) ComponentFactory {
	return func(ctx context.Context, attrs *host.AttributeBag) (map[string]any, *host.AttributeBag, error) {
		c := newT()
		claimed := make([]any, 0, len(props))
		for _, a := range attrs.All() {
			for _, p := range props {
				if p.Name != a.Name && p.Name != host.CamelCase(a.Name) {
					continue
				}
				if err := p.set(c, a.Value); err != nil {
					return nil, nil, fmt.Errorf("prop %s: %w", p.Name, err)
				}
				claimed = append(claimed, a.Name)
				break
			}
		}
		if m, ok := any(c).(Mounter); ok {
			if err := m.Mount(ctx); err != nil {
				return nil, nil, err
			}
		}
		vars := map[string]any{"component": c}
		if d, ok := any(c).(interface{ Data() map[string]any }); ok {
			for k, v := range d.Data() {
				vars[k] = v
			}
		}
		return vars, attrs.Except(claimed...), nil
	}
}

// componentKey normalizes a component name: "Forms.TextInput" and
// "forms.text-input" are the same component.
func componentKey(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '.' || r == ':' || r == '/' })
	for i, p := range parts {
		parts[i] = kebab(p)
	}
	return strings.Join(parts, ".")
}

func kebab(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// componentViews lists the anonymous views a component may live in.
func componentViews(key string) []string {
	base := "components/" + strings.ReplaceAll(key, ".", "/")
	return []string{base, base + "/index"}
}
