package host

import (
	"html"
	"slices"
	"strings"

	"github.com/spf13/cast"
)

// Attr is one evaluated component attribute.
type Attr struct {
	Name  string
	Value any
}

// AttributeBag holds the attributes passed to a component that were not
// claimed as props. It renders as an HTML attribute list.
type AttributeBag struct {
	attrs []Attr
}

// NewAttributeBag creates a bag keeping the given order.
func NewAttributeBag(attrs ...Attr) *AttributeBag {
	return &AttributeBag{attrs: slices.Clone(attrs)}
}

// All returns the attributes in order.
func (b *AttributeBag) All() []Attr {
	if b == nil {
		return nil
	}
	return slices.Clone(b.attrs)
}

// Map returns the attributes keyed by name.
func (b *AttributeBag) Map() map[string]any {
	out := make(map[string]any, b.Len())
	for _, a := range b.All() {
		out[a.Name] = a.Value
	}
	return out
}

func (b *AttributeBag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.attrs)
}

func (b *AttributeBag) index(name string) int {
	if b == nil {
		return -1
	}
	return slices.IndexFunc(b.attrs, func(a Attr) bool { return a.Name == name })
}

// Has reports whether every name is present.
func (b *AttributeBag) Has(names ...string) bool {
	for _, name := range names {
		if b.index(name) < 0 {
			return false
		}
	}
	return len(names) > 0
}

// Get returns the value of name, or the optional default.
func (b *AttributeBag) Get(name string, def ...any) any {
	if i := b.index(name); i >= 0 {
		return b.attrs[i].Value
	}
	if len(def) > 0 {
		return def[0]
	}
	return nil
}

// Set replaces or appends name.
func (b *AttributeBag) Set(name string, value any) {
	if i := b.index(name); i >= 0 {
		b.attrs[i].Value = value
		return
	}
	b.attrs = append(b.attrs, Attr{Name: name, Value: value})
}

// Only returns a bag with just the listed names.
func (b *AttributeBag) Only(names ...any) *AttributeBag {
	keep := flattenNames(names)
	out := &AttributeBag{}
	for _, a := range b.All() {
		if slices.Contains(keep, a.Name) {
			out.attrs = append(out.attrs, a)
		}
	}
	return out
}

// Except returns a bag without the listed names.
func (b *AttributeBag) Except(names ...any) *AttributeBag {
	drop := flattenNames(names)
	out := &AttributeBag{}
	for _, a := range b.All() {
		if !slices.Contains(drop, a.Name) {
			out.attrs = append(out.attrs, a)
		}
	}
	return out
}

// WhereStartsWith returns the attributes whose name has the prefix.
func (b *AttributeBag) WhereStartsWith(prefix string) *AttributeBag {
	out := &AttributeBag{}
	for _, a := range b.All() {
		if strings.HasPrefix(a.Name, prefix) {
			out.attrs = append(out.attrs, a)
		}
	}
	return out
}

// Merge returns a bag where defaults fill missing attributes. Class values
// are joined with the default first; other given values win.
func (b *AttributeBag) Merge(defaults any) *AttributeBag {
	def := cast.ToStringMap(defaults)
	out := &AttributeBag{}
	names := make([]string, 0, len(def))
	for name := range def {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		out.attrs = append(out.attrs, Attr{Name: name, Value: def[name]})
	}
	for _, a := range b.All() {
		i := out.index(a.Name)
		switch {
		case i < 0:
			out.attrs = append(out.attrs, a)
		case a.Name == "class":
			out.attrs[i].Value = strings.TrimSpace(ToString(out.attrs[i].Value) + " " + ToString(a.Value))
		case a.Name == "style":
			out.attrs[i].Value = strings.TrimSpace(strings.TrimRight(ToString(out.attrs[i].Value), "; ") + "; " + ToString(a.Value))
		default:
			out.attrs[i].Value = a.Value
		}
	}
	return out
}

// Class merges a conditional class list into the class attribute.
func (b *AttributeBag) Class(classes any) *AttributeBag {
	return b.Merge(map[string]any{"class": ClassList(classes)})
}

func (b *AttributeBag) IsEmpty() bool { return b.Len() == 0 }

// ToHTML renders name="value" pairs. False and nil values are skipped and
// true renders the bare attribute name.
func (b *AttributeBag) ToHTML() string {
	var sb strings.Builder
	for _, a := range b.All() {
		switch v := a.Value.(type) {
		case nil:
			continue
		case bool:
			if !v {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(a.Name)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(a.Name)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(ToString(a.Value)))
		sb.WriteByte('"')
	}
	return sb.String()
}

func (b *AttributeBag) String() string { return b.ToHTML() }

func flattenNames(names []any) []string {
	var out []string
	for _, n := range names {
		switch x := n.(type) {
		case string:
			out = append(out, x)
		default:
			out = append(out, cast.ToStringSlice(x)...)
		}
	}
	return out
}

// Slot is rendered component body content with the attributes given on its
// slot tag.
type Slot struct {
	Content    HTML          `expr:"content"`
	Attributes *AttributeBag `expr:"attributes"`
}

// NewSlot trims content the way it is exposed to components.
func NewSlot(content string, attrs *AttributeBag) *Slot {
	if attrs == nil {
		attrs = NewAttributeBag()
	}
	return &Slot{Content: HTML(strings.TrimSpace(content)), Attributes: attrs}
}

func (s *Slot) ToHTML() string {
	if s == nil {
		return ""
	}
	return string(s.Content)
}

func (s *Slot) String() string { return s.ToHTML() }

func (s *Slot) IsEmpty() bool { return s == nil || s.Content == "" }

func (s *Slot) IsNotEmpty() bool { return !s.IsEmpty() }
