package compiler

import (
	"regexp"
	"strings"

	"github.com/dangdungcntt/go-blade/v2/host"
)

var (
	reURLAttribute = regexp.MustCompile(`(?i)(?:^|\s)(?:href|src|action|formaction|poster|cite|background|ping|xlink:href)\s*=\s*(["']?)[^"'\s>]*$`)
	reEscapeCall   = regexp.MustCompile(`^(e|e_js|e_url|raw)\(`)
)

// compileEchos turns {{ }} into escaped echoes and {!! !!} into raw ones.
// The escaper follows the output context: inside <script> values are
// encoded for JavaScript, inside URL attributes for URLs.
func (cp *compilation) compileEchos(text string) string {
	if !strings.Contains(text, "{{") && !strings.Contains(text, "{!!") {
		return text
	}
	ctx := newEchoContext(text)
	var b strings.Builder
	last := 0
	for i := 0; i < len(text); i++ {
		var open, closer string
		switch {
		case strings.HasPrefix(text[i:], "<?go"):
			if end := host.TagEnd(text, i); end > 0 {
				i = end - 1
			}
			continue
		case strings.HasPrefix(text[i:], "{!!"):
			open, closer = "{!!", "!!}"
		case strings.HasPrefix(text[i:], "{{"):
			open, closer = "{{", "}}"
		default:
			continue
		}
		end := echoEnd(text, i+len(open), closer)
		if end < 0 {
			continue
		}
		inner := strings.TrimSpace(text[i+len(open) : end-len(closer)])
		if inner == "" {
			continue
		}
		b.WriteString(text[last:i])
		if open == "{!!" {
			b.WriteString(stmt("echo", inner))
		} else {
			b.WriteString(stmt("echo", ctx.escape(i, inner)))
		}
		last = end
		i = end - 1
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// echoContext answers where in the HTML an offset of the text sits. Host
// statements and echoes are blanked out of the copy it inspects so their
// contents never look like markup.
type echoContext struct {
	masked string
}

func newEchoContext(text string) *echoContext {
	b := []byte(text)
	for i := 0; i < len(b); i++ {
		end := skipRegion(text, i)
		if end == i {
			continue
		}
		for k := i; k < end; k++ {
			b[k] = '_'
		}
		i = end - 1
	}
	return &echoContext{masked: strings.ToLower(string(b))}
}

func (c *echoContext) escape(pos int, expr string) string {
	if loc := reEscapeCall.FindStringIndex(expr); loc != nil {
		if end, ok := host.MatchBracket(expr, loc[1]-1, '(', ')'); ok && end == len(expr)-1 {
			return expr
		}
	}
	switch {
	case c.inScript(pos):
		return "e_js(" + expr + ")"
	case c.inURLAttribute(pos):
		return "e_url(" + expr + ")"
	}
	return "e(" + expr + ")"
}

func (c *echoContext) inScript(pos int) bool {
	before := c.masked[:pos]
	open := strings.LastIndex(before, "<script")
	return open >= 0 && open > strings.LastIndex(before, "</script")
}

func (c *echoContext) inURLAttribute(pos int) bool {
	before := c.masked[:pos]
	lt := strings.LastIndexByte(before, '<')
	if lt < 0 || strings.IndexByte(before[lt:], '>') >= 0 {
		return false
	}
	return reURLAttribute.MatchString(before[lt:])
}
