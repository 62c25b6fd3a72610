package compiler

import (
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/dangdungcntt/go-blade/v2/host"
)

var (
	reComponentOpen = regexp.MustCompile(`<([A-Z][A-Za-z0-9]*(?:[:.][A-Za-z][A-Za-z0-9]*)*)[\s/>]`)
	reSlotOpen      = regexp.MustCompile(`<slot(?::([\w.\-]+))?[\s/>]`)
	reSlotClose     = regexp.MustCompile(`</slot(?::[\w.\-]+)?\s*>`)
)

// compileComponents replaces component elements with component statements.
// Self-closing elements go first so the paired scan only counts real
// openings of the same name.
func (cp *compilation) compileComponents(text string) string {
	text = cp.replaceComponents(text, true)
	return cp.replaceComponents(text, false)
}

func (cp *compilation) replaceComponents(text string, selfClosing bool) string {
	var b strings.Builder
	pos := 0
	for {
		loc := reComponentOpen.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		name := text[pos+loc[2] : pos+loc[3]]
		end, closed := tagEnd(text, start)
		if end < 0 || closed != selfClosing {
			b.WriteString(text[pos : start+1])
			pos = start + 1
			continue
		}
		attrs := text[start+1+len(name) : end-1]
		if closed {
			attrs = strings.TrimSuffix(attrs, "/")
		}
		if selfClosing {
			b.WriteString(text[pos:start])
			b.WriteString(cp.component(name, attrs, ""))
			pos = end
			continue
		}
		bodyEnd, closeEnd, ok := findClosing(text, end, name)
		if !ok {
			b.WriteString(text[pos : start+1])
			pos = start + 1
			continue
		}
		b.WriteString(text[pos:start])
		b.WriteString(cp.component(name, attrs, text[end:bodyEnd]))
		pos = closeEnd
	}
	if pos == 0 {
		return text
	}
	b.WriteString(text[pos:])
	return b.String()
}

// tagEnd returns the index past the '>' ending the element opened at start
// and whether it is self-closing. Quoted values and echoes are skipped.
func tagEnd(text string, start int) (int, bool) {
	for i := start + 1; i < len(text); i++ {
		switch c := text[i]; {
		case c == '"' || c == '\'':
			j := strings.IndexByte(text[i+1:], c)
			if j < 0 {
				return -1, false
			}
			i += j + 1
		case strings.HasPrefix(text[i:], "{{") || strings.HasPrefix(text[i:], "{!!"):
			if end := skipRegion(text, i); end != i {
				i = end - 1
			}
		case c == '>':
			return i + 1, text[i-1] == '/'
		case c == '<' && strings.HasPrefix(text[i:], "<?go"):
			if end := host.TagEnd(text, i); end > 0 {
				i = end - 1
			}
		}
	}
	return -1, false
}

// findClosing finds the element closing name, counting nested openings of
// the same name. It returns where the body ends and where the closing tag
// ends.
func findClosing(text string, from int, name string) (int, int, bool) {
	depth := 1
	opener, closer := "<"+name, "</"+name
	for i := from; i < len(text); i++ {
		if text[i] != '<' {
			continue
		}
		switch {
		case strings.HasPrefix(text[i:], closer) && boundary(text, i+len(closer)):
			j := strings.IndexByte(text[i:], '>')
			if j < 0 {
				return 0, 0, false
			}
			if depth--; depth == 0 {
				return i, i + j + 1, true
			}
			i += j
		case strings.HasPrefix(text[i:], opener) && boundary(text, i+len(opener)):
			end, closed := tagEnd(text, i)
			if end < 0 {
				return 0, 0, false
			}
			if !closed {
				depth++
			}
			i = end - 1
		}
	}
	return 0, 0, false
}

func boundary(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	switch text[i] {
	case ' ', '\t', '\n', '\r', '/', '>':
		return true
	}
	return false
}

// component builds the statement for one element and stashes it so later
// passes leave the payload alone.
func (cp *compilation) component(name, rawAttrs, body string) string {
	attrs := ParseAttributes(rawAttrs)
	call := host.ComponentCall{Name: strings.ReplaceAll(name, ":", ".")}
	if lazy, ok := attrs.Get("lazy"); ok && lazy.Expression && lazy.Value == "true" {
		call.Lazy = true
		attrs = attrs.Without("lazy")
	}
	call.Attributes = cp.callAttributes(attrs)

	if !call.Lazy && strings.TrimSpace(body) != "" {
		body = cp.compileComponents(body)
		rest, slots := cp.extractSlots(body)
		call.Slot = cp.compileFragment(rest)
		call.Slots = slots
	}

	payload, err := json.Marshal(call)
	if err != nil {
		return cp.stash("<" + name + rawAttrs + ">" + body)
	}
	return cp.stash("<?go component " + string(payload) + " ?>")
}

func (cp *compilation) callAttributes(attrs Attributes) []host.CallAttribute {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]host.CallAttribute, len(attrs))
	for i, a := range attrs {
		out[i] = host.CallAttribute{Name: a.Name, Value: cp.restore(a.Value), Expression: a.Expression}
	}
	return out
}

// extractSlots pulls named slots out of a component body. Whatever is left
// is the default slot.
func (cp *compilation) extractSlots(body string) (string, []host.CallSlot) {
	var (
		slots []host.CallSlot
		rest  strings.Builder
	)
	pos := 0
	for {
		loc := reSlotOpen.FindStringSubmatchIndex(body[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		end, closed := tagEnd(body, start)
		if end < 0 {
			break
		}
		inner := body[start+len("<slot") : end-1]
		name := ""
		if loc[2] >= 0 {
			name = body[pos+loc[2] : pos+loc[3]]
			inner = inner[1+len(name):]
		}
		if closed {
			inner = strings.TrimSuffix(inner, "/")
		}
		attrs := ParseAttributes(inner)
		if a, ok := attrs.Get("name"); ok && name == "" {
			name = a.Value
			attrs = attrs.Without("name")
		}

		content, next := "", end
		if !closed {
			c := reSlotClose.FindStringIndex(body[end:])
			if c == nil {
				break
			}
			content, next = body[end:end+c[0]], end+c[1]
		}
		rest.WriteString(body[pos:start])
		pos = next
		if name == "" {
			continue
		}
		slots = append(slots, host.CallSlot{
			Name:       name,
			Content:    cp.compileFragment(content),
			Attributes: cp.callAttributes(attrs),
		})
	}
	rest.WriteString(body[pos:])
	return rest.String(), slots
}
