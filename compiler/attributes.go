package compiler

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Attribute is one attribute of a component or tag-form element.
type Attribute struct {
	Name string
	// Value is a literal, or a template expression when Expression is set.
	Value      string
	Expression bool
	// Quoted reports whether the value was written in quotes.
	Quoted bool

	pos int
}

// Attributes keeps source order.
type Attributes []Attribute

func (as Attributes) Get(name string) (Attribute, bool) {
	for _, a := range as {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

func (as Attributes) Has(name string) bool {
	_, ok := as.Get(name)
	return ok
}

func (as Attributes) Without(names ...string) Attributes {
	out := make(Attributes, 0, len(as))
	for _, a := range as {
		if !slices.Contains(names, a.Name) {
			out = append(out, a)
		}
	}
	return out
}

// Expr returns the attribute as a template expression, quoting literals.
func (as Attributes) Expr(name string) (string, bool) {
	a, ok := as.Get(name)
	if !ok {
		return "", false
	}
	return a.Expr(), true
}

func (a Attribute) Expr() string {
	if a.Expression {
		return a.Value
	}
	return quote(a.Value)
}

const interpMark = "\x1b"

var (
	reInterpolation = regexp.MustCompile(`(?s)\{\{(.+?)\}\}|\{!!(.+?)!!\}`)
	reInterpMark    = regexp.MustCompile("\x1b(\\d+)\x1b")
	reQuotedAttr    = regexp.MustCompile(`(?s)(^|\s)(::?[\w\-:.@]+|[@\w][\w\-:.@]*)\s*=\s*("[^"]*"|'[^']*')`)
	reUnquotedAttr  = regexp.MustCompile(`(^|\s)(::?[\w\-:.@]+|[@\w][\w\-:.@]*)=([^\s"'=<>` + "`" + `]+)`)
	reFlagAttr      = regexp.MustCompile(`(^|\s)(::?\$?[\w\-:.@]+|[@\w][\w\-:.@]*)`)
)

// ParseAttributes reads an attribute list. A leading ':' marks an
// expression, '::' escapes a literal colon, a value holding {{ }} becomes a
// concatenation expression and a bare name is the flag true. Quoted values
// are read before bare names and the first occurrence of a name wins.
func ParseAttributes(raw string) Attributes {
	var interps []string
	text := reInterpolation.ReplaceAllStringFunc(raw, func(m string) string {
		interps = append(interps, m)
		return interpMark + strconv.Itoa(len(interps)-1) + interpMark
	})

	var out Attributes
	seen := map[string]bool{}
	add := func(a Attribute) {
		if a.Name == "" || seen[a.Name] {
			return
		}
		seen[a.Name] = true
		out = append(out, a)
	}
	blank := func(s string, locs [][]int) string {
		b := []byte(s)
		for _, loc := range locs {
			for k := loc[0]; k < loc[1]; k++ {
				b[k] = ' '
			}
		}
		return string(b)
	}

	quoted := reQuotedAttr.FindAllStringSubmatchIndex(text, -1)
	for _, m := range quoted {
		value := text[m[6]+1 : m[7]-1]
		add(buildAttribute(text[m[4]:m[5]], value, true, m[4], interps))
	}
	text = blank(text, quoted)

	unquoted := reUnquotedAttr.FindAllStringSubmatchIndex(text, -1)
	for _, m := range unquoted {
		add(buildAttribute(text[m[4]:m[5]], text[m[6]:m[7]], false, m[4], interps))
	}
	text = blank(text, unquoted)

	for _, m := range reFlagAttr.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[4]:m[5]]
		switch {
		case strings.HasPrefix(name, ":$"):
			v := name[2:]
			add(Attribute{Name: kebab(v), Value: "$" + v, Expression: true, pos: m[4]})
		case strings.HasPrefix(name, "::"):
			add(Attribute{Name: name[1:], Value: "true", Expression: true, pos: m[4]})
		case strings.HasPrefix(name, ":"):
			add(Attribute{Name: name[1:], Value: "$" + name[1:], Expression: true, pos: m[4]})
		default:
			add(Attribute{Name: name, Value: "true", Expression: true, pos: m[4]})
		}
	}

	slices.SortStableFunc(out, func(a, b Attribute) int { return a.pos - b.pos })
	return out
}

func buildAttribute(name, value string, quoted bool, pos int, interps []string) Attribute {
	a := Attribute{Name: name, Quoted: quoted, pos: pos}
	switch {
	case strings.HasPrefix(name, "::"):
		a.Name, a.Value = name[1:], restoreInterps(value, interps)
	case strings.HasPrefix(name, ":"):
		a.Name, a.Value, a.Expression = name[1:], restoreInterps(value, interps), true
	case reInterpMark.MatchString(value):
		a.Value, a.Expression = interpolate(value, interps), true
	default:
		a.Value = value
	}
	return a
}

func restoreInterps(s string, interps []string) string {
	return reInterpMark.ReplaceAllStringFunc(s, func(m string) string {
		i, _ := strconv.Atoi(m[1 : len(m)-1])
		return interps[i]
	})
}

// interpolate builds the expression for a value mixing literal text and
// echoes. A value that is a single echo keeps the echoed value's type.
func interpolate(value string, interps []string) string {
	var parts []string
	locs := reInterpMark.FindAllStringSubmatchIndex(value, -1)
	if len(locs) == 1 && locs[0][0] == 0 && locs[0][1] == len(value) {
		return echoInner(interps, value[locs[0][2]:locs[0][3]])
	}
	last := 0
	for _, loc := range locs {
		if lit := value[last:loc[0]]; lit != "" {
			parts = append(parts, quote(lit))
		}
		parts = append(parts, "str("+echoInner(interps, value[loc[2]:loc[3]])+")")
		last = loc[1]
	}
	if lit := value[last:]; lit != "" {
		parts = append(parts, quote(lit))
	}
	return strings.Join(parts, " . ")
}

func echoInner(interps []string, index string) string {
	i, _ := strconv.Atoi(index)
	m := interps[i]
	if strings.HasPrefix(m, "{!!") {
		return strings.TrimSpace(m[3 : len(m)-3])
	}
	return strings.TrimSpace(m[2 : len(m)-2])
}

// kebab turns userId into user-id.
func kebab(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}
