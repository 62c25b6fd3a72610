package host

import (
	"fmt"
	"html"
	"reflect"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/spf13/cast"
)

// HTML is output that is already safe to write without escaping.
type HTML string

func (h HTML) ToHTML() string { return string(h) }

func (h HTML) String() string { return string(h) }

// Htmlable values render themselves as safe HTML.
type Htmlable interface {
	ToHTML() string
}

// ToString converts a template value to its output text.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case HTML:
		return string(x)
	case Htmlable:
		return x.ToHTML()
	case bool:
		if x {
			return "1"
		}
		return ""
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// Escape returns v as HTML, escaping it unless it is already safe.
func Escape(v any) any {
	switch x := v.(type) {
	case Htmlable:
		return HTML(x.ToHTML())
	case templ.Component:
		return x
	}
	return HTML(html.EscapeString(ToString(v)))
}

// Truthy applies loose truthiness: nil, false, zero numbers, "", "0" and
// empty collections are false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != "" && x != "0"
	case HTML:
		return x != "" && x != "0"
	case Htmlable:
		return x.ToHTML() != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.Chan:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.String:
		s := rv.String()
		return s != "" && s != "0"
	case reflect.Bool:
		return rv.Bool()
	}
	return true
}

// Empty is the negation of Truthy.
func Empty(v any) bool {
	return !Truthy(v)
}

// Count returns the length of a collection or string, 1 for other non-nil
// values and 0 for nil.
func Count(v any) int {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.Chan, reflect.String:
		return rv.Len()
	case reflect.Pointer:
		if rv.IsNil() {
			return 0
		}
	}
	return 1
}

func isNumeric(v any) bool {
	switch x := v.(type) {
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return err == nil
	case HTML:
		return isNumeric(string(x))
	case bool, nil:
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// LooseEqual compares like the template switch statement: numbers and numeric
// strings compare numerically, booleans by truthiness, everything else as text.
func LooseEqual(a, b any) bool {
	if a == nil || b == nil {
		return Empty(a) && Empty(b)
	}
	if ab, ok := a.(bool); ok {
		return ab == Truthy(b)
	}
	if bb, ok := b.(bool); ok {
		return bb == Truthy(a)
	}
	if isNumeric(a) && isNumeric(b) {
		return cast.ToFloat64(ToString(a)) == cast.ToFloat64(ToString(b))
	}
	return ToString(a) == ToString(b)
}

// ToMap converts template data (maps or structs) to a string keyed map.
func ToMap(v any) (map[string]any, error) {
	switch x := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return x, nil
	}
	if m, err := cast.ToStringMapE(v); err == nil {
		return m, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return map[string]any{}, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, nil
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot use %T as template data", v)
	}
	out := make(map[string]any, rv.NumField())
	rt := rv.Type()
	for i := range rt.NumField() {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		out[field.Name] = rv.Field(i).Interface()
	}
	return out, nil
}
