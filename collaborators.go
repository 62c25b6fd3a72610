package blade

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/dangdungcntt/go-blade/v2/cache"
	"github.com/dangdungcntt/go-blade/v2/host"
)

// Collaborators consulted by template helpers. They are declared in package
// host, where frames call them, and repeated here for callers of the engine.
type (
	Authenticator  = host.Authenticator
	Authorizer     = host.Authorizer
	ConfigAccessor = host.ConfigAccessor
	Translator     = host.Translator
	Router         = host.Router
	ErrorBag       = host.ErrorBag
	Condition      = host.Condition
	Func           = host.Func
	HTML           = host.HTML
	AttributeBag   = host.AttributeBag
	Slot           = host.Slot
	Store          = cache.Store
)

// MapConfig is a ConfigAccessor over nested maps, read with dotted keys.
type MapConfig map[string]any

// Get walks key one dot-separated segment at a time.
func (m MapConfig) Get(key string) (any, bool) {
	var cur any = map[string]any(m)
	for _, part := range splitDots(key) {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = node[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// MapTranslator is a Translator over a flat key → message table. Plural
// messages separate their forms with "|": "one apple|:count apples".
type MapTranslator map[string]string

// Translate picks the plural form for count and fills :name placeholders.
func (m MapTranslator) Translate(_ context.Context, key string, count int, replace map[string]any) (string, bool) {
	msg, ok := m[key]
	if !ok {
		return "", false
	}
	if count >= 0 {
		forms := strings.Split(msg, "|")
		msg = forms[len(forms)-1]
		if count == 1 {
			msg = forms[0]
		}
		if _, set := replace["count"]; !set {
			replace = maps.Clone(replace)
			if replace == nil {
				replace = map[string]any{}
			}
			replace["count"] = count
		}
	}
	return fillPlaceholders(msg, replace), true
}

// MapRouter is a Router over named path patterns with {param} placeholders.
// Parameters without a placeholder are appended as a query string.
type MapRouter map[string]string

func (m MapRouter) URL(name string, params map[string]any) (string, error) {
	pattern, ok := m[name]
	if !ok {
		return "", fmt.Errorf("route %q is not defined", name)
	}
	out := pattern
	query := url.Values{}
	for _, key := range slices.Sorted(maps.Keys(params)) {
		value := host.ToString(params[key])
		placeholder := "{" + key + "}"
		if strings.Contains(out, placeholder) {
			out = strings.ReplaceAll(out, placeholder, url.PathEscape(value))
			continue
		}
		query.Set(key, value)
	}
	if strings.Contains(out, "{") {
		return "", fmt.Errorf("route %q: missing parameters for %s", name, pattern)
	}
	if len(query) > 0 {
		out += "?" + query.Encode()
	}
	return out, nil
}

// fillPlaceholders replaces :name with each value, longest names first so
// :count is not cut by :co.
func fillPlaceholders(s string, values map[string]any) string {
	if len(values) == 0 {
		return s
	}
	keys := slices.Collect(maps.Keys(values))
	slices.SortFunc(keys, func(a, b string) int { return len(b) - len(a) })
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, ":"+k, host.ToString(values[k]))
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

func splitDots(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, ".")
}
