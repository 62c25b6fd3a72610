package host

import (
	"strconv"
	"strings"
	"unicode"
)

// Normalize rewrites a template expression into expr-lang syntax:
//
//	$name          -> _name
//	$a->b          -> _a?.b
//	$a->call(x)    -> _a.Call(x)
//	=== / !==      -> == / !=
//	null           -> nil
//	'a' . $b       -> 'a' + _b
//	['k' => $v]    -> assoc('k', _v)
//
// String literals are copied untouched.
func Normalize(src string) string {
	var b strings.Builder
	b.Grow(len(src) + 8)
	n := len(src)
	for i := 0; i < n; {
		c := src[i]
		switch {
		case c == '\'' || c == '"':
			j := SkipString(src, i)
			b.WriteString(src[i:j])
			i = j
		case c == '$' && i+1 < n && isIdentStart(src[i+1]):
			j := identEnd(src, i+1)
			b.WriteByte('_')
			b.WriteString(src[i+1 : j])
			i = j
		case c == '-' && i+1 < n && src[i+1] == '>':
			j := i + 2
			k := identEnd(src, j)
			if k == j {
				b.WriteString("->")
				i = j
				continue
			}
			name := src[j:k]
			m := k
			for m < n && (src[m] == ' ' || src[m] == '\t') {
				m++
			}
			if m < n && src[m] == '(' {
				b.WriteByte('.')
				b.WriteString(upperFirst(name))
			} else {
				b.WriteString("?.")
				b.WriteString(name)
			}
			i = k
		case strings.HasPrefix(src[i:], "==="):
			b.WriteString("==")
			i += 3
		case strings.HasPrefix(src[i:], "!=="):
			b.WriteString("!=")
			i += 3
		case c == '[' && startsArray(b.String()):
			j, ok := MatchBracket(src, i, '[', ']')
			if !ok {
				b.WriteString(src[i:])
				return b.String()
			}
			b.WriteString(normalizeArray(src[i+1 : j]))
			i = j + 1
		case c == '.' && isConcat(src, i):
			b.WriteByte('+')
			i++
		case isIdentStart(c):
			j := identEnd(src, i)
			word := src[i:j]
			if i == 0 || src[i-1] != '.' {
				switch strings.ToLower(word) {
				case "null":
					word = "nil"
				case "true", "false":
					word = strings.ToLower(word)
				}
			}
			b.WriteString(word)
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// normalizeArray converts the inside of a bracket literal. Lists stay lists;
// anything with a key becomes an assoc() call. Positional entries of mixed
// arrays are keyed by their position.
func normalizeArray(inner string) string {
	parts := SplitTopLevel(inner, ',')
	if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	keyed := false
	for _, p := range parts {
		if FindTopLevel(p, "=>") >= 0 {
			keyed = true
			break
		}
	}
	if !keyed {
		out := make([]string, len(parts))
		for i, p := range parts {
			out[i] = Normalize(strings.TrimSpace(p))
		}
		return "[" + strings.Join(out, ", ") + "]"
	}
	out := make([]string, 0, len(parts)*2)
	pos := 0
	for _, p := range parts {
		if k := FindTopLevel(p, "=>"); k >= 0 {
			out = append(out, Normalize(strings.TrimSpace(p[:k])), Normalize(strings.TrimSpace(p[k+2:])))
			continue
		}
		out = append(out, strconv.Quote(strconv.Itoa(pos)), Normalize(strings.TrimSpace(p)))
		pos++
	}
	return "assoc(" + strings.Join(out, ", ") + ")"
}

// startsArray reports whether a '[' following the already written text opens
// a literal rather than indexing the previous operand.
func startsArray(written string) bool {
	t := strings.TrimRightFunc(written, unicode.IsSpace)
	if t == "" {
		return true
	}
	last := t[len(t)-1]
	if isIdentChar(last) || last == ')' || last == ']' || last == '\'' || last == '"' {
		return false
	}
	return true
}

func isConcat(src string, i int) bool {
	n := len(src)
	var prev, next byte
	if i > 0 {
		prev = src[i-1]
	}
	if i+1 < n {
		next = src[i+1]
	}
	switch {
	case prev == '.' || next == '.' || prev == '?':
		return false
	case next == '=':
		return false
	case isDigit(prev) && isDigit(next):
		return false
	case prev == ' ' || prev == '\t' || next == ' ' || next == '\t':
		return true
	case next == '$' || next == '\'' || next == '"' || next == '(':
		return true
	}
	return false
}

// SkipString returns the index just past the string literal starting at i.
// Unterminated literals run to the end of src.
func SkipString(src string, i int) int {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return len(src)
}

// MatchBracket returns the index of the delimiter closing the one at open.
// String literals are opaque.
func MatchBracket(src string, open int, left, right byte) (int, bool) {
	depth := 0
	for i := open; i < len(src); i++ {
		switch c := src[i]; c {
		case '\'', '"':
			i = SkipString(src, i) - 1
		case left:
			depth++
		case right:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return -1, false
}

// SplitTopLevel splits src on sep outside strings and brackets.
func SplitTopLevel(src string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '\'', '"':
			i = SkipString(src, i) - 1
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, src[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, src[start:])
}

// FindTopLevel returns the first index of token outside strings and brackets.
func FindTopLevel(src, token string) int {
	depth := 0
	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '\'', '"':
			i = SkipString(src, i) - 1
			continue
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			depth--
			continue
		}
		if depth == 0 && strings.HasPrefix(src[i:], token) {
			return i
		}
	}
	return -1
}

// FindTopLevelWord is FindTopLevel for a keyword surrounded by whitespace.
func FindTopLevelWord(src, word string) int {
	depth := 0
	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '\'', '"':
			i = SkipString(src, i) - 1
			continue
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			depth--
			continue
		}
		if depth != 0 || i == 0 || !isSpace(src[i-1]) {
			continue
		}
		end := i + len(word)
		if end < len(src) && strings.EqualFold(src[i:end], word) && isSpace(src[end]) {
			return i
		}
	}
	return -1
}

func identEnd(src string, i int) int {
	for i < len(src) && isIdentChar(src[i]) {
		i++
	}
	return i
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
