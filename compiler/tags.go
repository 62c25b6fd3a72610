package compiler

import (
	"regexp"
	"strings"
)

var (
	reTagOpen  = regexp.MustCompile(`<(if|elseif|else|unless|loop|auth|guest|push|prepend|stack|yield|fragment|teleport|include|csrf|method)[\s/>]`)
	reTagClose = regexp.MustCompile(`</(if|unless|loop|auth|guest|push|prepend|fragment|teleport)\s*>`)
)

var tagClosers = map[string]string{
	"if":       "endif",
	"unless":   "endunless",
	"loop":     "endforeach",
	"auth":     "endauth",
	"guest":    "endguest",
	"push":     "endpush",
	"prepend":  "endprepend",
	"fragment": "endfragment",
	"teleport": "endteleport",
}

// compileTags rewrites the element forms of directives. Each element is
// compiled by the same handler as its @ counterpart.
func (cp *compilation) compileTags(text string) string {
	var b strings.Builder
	pos := 0
	for {
		loc := reTagOpen.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		name := text[pos+loc[2] : pos+loc[3]]
		end, closed := tagEnd(text, start)
		if end < 0 {
			break
		}
		raw := text[start+1+len(name) : end-1]
		if closed {
			raw = strings.TrimSuffix(raw, "/")
		}
		out, ok := cp.tagDirective(name, ParseAttributes(raw))
		if !ok {
			b.WriteString(text[pos : start+1])
			pos = start + 1
			continue
		}
		b.WriteString(text[pos:start])
		b.WriteString(out)
		pos = end
	}
	b.WriteString(text[pos:])

	return reTagClose.ReplaceAllStringFunc(b.String(), func(m string) string {
		name := reTagClose.FindStringSubmatch(m)[1]
		out, ok := cp.call(tagClosers[name], "", false)
		if !ok {
			return m
		}
		return out
	})
}

// tagDirective maps an element to the directive it stands for.
func (cp *compilation) tagDirective(name string, attrs Attributes) (string, bool) {
	switch name {
	case "if", "elseif", "unless":
		cond, ok := attrs.Expr("condition")
		if !ok {
			return "", false
		}
		return cp.call(name, cond, true)
	case "else", "csrf":
		return cp.call(name, "", false)
	case "loop":
		items, ok := attrs.Expr("items")
		if !ok {
			return "", false
		}
		as := "item"
		if a, ok := attrs.Get("as"); ok && !a.Expression {
			as = a.Value
		}
		target := "$" + strings.TrimPrefix(as, "$")
		if k, ok := attrs.Get("key"); ok && !k.Expression {
			target = "$" + strings.TrimPrefix(k.Value, "$") + " => " + target
		}
		return cp.call("foreach", items+" as "+target, true)
	case "auth", "guest":
		if guard, ok := attrs.Expr("guard"); ok {
			return cp.call(name, guard, true)
		}
		return cp.call(name, "", false)
	case "push", "prepend":
		stack, ok := attrs.Expr("stack")
		if !ok {
			if stack, ok = attrs.Expr("name"); !ok {
				return "", false
			}
		}
		return cp.call(name, stack, true)
	case "stack", "fragment":
		n, ok := attrs.Expr("name")
		if !ok {
			return "", false
		}
		return cp.call(name, n, true)
	case "yield":
		n, ok := attrs.Expr("name")
		if !ok {
			return "", false
		}
		if def, ok := attrs.Expr("default"); ok {
			n += ", " + def
		}
		return cp.call(name, n, true)
	case "teleport":
		to, ok := attrs.Expr("to")
		if !ok {
			return "", false
		}
		return cp.call(name, to, true)
	case "include":
		view, ok := attrs.Expr("view")
		if !ok {
			return "", false
		}
		if data, ok := attrs.Expr("data"); ok {
			view += ", " + data
		}
		return cp.call(name, view, true)
	case "method":
		v, ok := attrs.Expr("value")
		if !ok {
			return "", false
		}
		return cp.call(name, v, true)
	}
	return "", false
}

// call runs a builtin directive handler directly.
func (cp *compilation) call(name, args string, hasArgs bool) (string, bool) {
	h := cp.handlers[name]
	if h == nil {
		return "", false
	}
	out, _, ok := h(directive{name: name, args: args, hasArgs: hasArgs})
	return out, ok
}
