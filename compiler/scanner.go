package compiler

import (
	"strings"

	"github.com/dangdungcntt/go-blade/v2/host"
)

// directive is one @name occurrence with its optional argument list.
type directive struct {
	name    string
	args    string
	hasArgs bool
	start   int
	nameEnd int
	end     int
}

// handler compiles a directive. consume reports whether the parenthesised
// arguments are consumed; directives that take none leave them in the text.
type handler func(d directive) (out string, consume bool, ok bool)

// nameMatcher reads a directive name starting at i, just past the '@'.
type nameMatcher func(text string, i int) (name string, end int)

func wordName(text string, i int) (string, int) {
	j := i
	for j < len(text) && isWordByte(text[j]) {
		j++
	}
	if j == i || isDigitByte(text[i]) {
		return "", i
	}
	return text[i:j], j
}

func isWordByte(c byte) bool {
	return c == '_' || isDigitByte(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigitByte(c byte) bool { return c >= '0' && c <= '9' }

// skipRegion returns the end of a host statement or echo opening at i, or i
// when none opens there.
func skipRegion(text string, i int) int {
	switch {
	case strings.HasPrefix(text[i:], "<?go"):
		if end := host.TagEnd(text, i); end > 0 {
			return end
		}
	case strings.HasPrefix(text[i:], "{!!"):
		if end := echoEnd(text, i+3, "!!}"); end > 0 {
			return end
		}
	case strings.HasPrefix(text[i:], "{{"):
		if end := echoEnd(text, i+2, "}}"); end > 0 {
			return end
		}
	}
	return i
}

// echoEnd returns the index past closer, skipping quoted strings.
func echoEnd(text string, from int, closer string) int {
	for j := from; j < len(text); j++ {
		switch text[j] {
		case '\'', '"':
			j = host.SkipString(text, j) - 1
		default:
			if strings.HasPrefix(text[j:], closer) {
				return j + len(closer)
			}
		}
	}
	return -1
}

// scan rewrites every directive recognized by match. Host statements and
// echoes are opaque, as is an '@' following a word character. A directive
// whose argument list never closes is left untouched.
func scan(text string, match nameMatcher, handlers func(name string) handler) string {
	var b strings.Builder
	last := 0
	for i := 0; i < len(text); i++ {
		if end := skipRegion(text, i); end != i {
			i = end - 1
			continue
		}
		if text[i] != '@' || (i > 0 && isWordByte(text[i-1])) {
			continue
		}
		name, nameEnd := match(text, i+1)
		if name == "" {
			continue
		}
		h := handlers(name)
		if h == nil {
			continue
		}
		d := directive{name: name, start: i, nameEnd: nameEnd, end: nameEnd}
		j := nameEnd
		for j < len(text) && (text[j] == ' ' || text[j] == '\t') {
			j++
		}
		if j < len(text) && text[j] == '(' {
			closing, ok := host.MatchBracket(text, j, '(', ')')
			if !ok {
				continue
			}
			d.args, d.hasArgs, d.end = text[j+1:closing], true, closing+1
		}
		out, consume, ok := h(d)
		if !ok {
			continue
		}
		end := d.nameEnd
		if consume {
			end = d.end
		}
		b.WriteString(text[last:i])
		b.WriteString(out)
		last = end
		i = end - 1
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// rewrite scans text for the builtin directives named in table.
func (cp *compilation) rewrite(text string, table map[string]handler) string {
	return scan(text, wordName, func(name string) handler { return table[name] })
}

// Handler constructors. bare compiles a directive taking no arguments,
// withArgs one that requires them and optArgs one where they are optional.

func bare(out string) handler {
	return func(directive) (string, bool, bool) { return out, false, true }
}

func withArgs(fn func(args string) string) handler {
	return func(d directive) (string, bool, bool) {
		if !d.hasArgs || strings.TrimSpace(d.args) == "" {
			return "", false, false
		}
		return fn(d.args), true, true
	}
}

func optArgs(fn func(args string) string) handler {
	return func(d directive) (string, bool, bool) {
		return fn(d.args), d.hasArgs, true
	}
}

func stmt(keyword, args string) string {
	if args = strings.TrimSpace(args); args == "" {
		return "<?go " + keyword + " ?>"
	}
	return "<?go " + keyword + " " + args + " ?>"
}

// quote renders s as a single-quoted template string literal.
func quote(s string) string {
	return "'" + quoteReplacer.Replace(s) + "'"
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)

// splitArgs splits an argument list on top-level commas.
func splitArgs(args string) []string {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	parts := host.SplitTopLevel(args, ',')
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// orderedPairs turns a literal keyed array into a list of pairs so key order
// survives evaluation: ['a', 'b' => $x] becomes [['a'], ['b', $x]]. Anything
// else is returned unchanged.
func orderedPairs(args string) string {
	s := strings.TrimSpace(args)
	if !strings.HasPrefix(s, "[") {
		return args
	}
	end, ok := host.MatchBracket(s, 0, '[', ']')
	if !ok || end != len(s)-1 {
		return args
	}
	var pairs []string
	for _, item := range splitArgs(s[1:end]) {
		if item == "" {
			continue
		}
		if k := host.FindTopLevel(item, "=>"); k >= 0 {
			pairs = append(pairs, "["+strings.TrimSpace(item[:k])+", "+strings.TrimSpace(item[k+2:])+"]")
			continue
		}
		pairs = append(pairs, "["+item+"]")
	}
	return "[" + strings.Join(pairs, ", ") + "]"
}
