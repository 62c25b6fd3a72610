package host

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/goccy/go-json"
)

const (
	tagOpen  = "<?go"
	tagClose = "?>"
)

var (
	reAssign  = regexp.MustCompile(`(?s)^\$([A-Za-z_]\w*)\s*(\+\+|--|\?\?=|\.=|\+=|-=|\*=|/=|=)\s*(.*)$`)
	reVarName = regexp.MustCompile(`^\$([A-Za-z_]\w*)$`)
)

// SyntaxError reports a malformed compiled program.
type SyntaxError struct {
	Template string
	Line     int
	Msg      string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("[%s] syntax error on line %d: %s", e.Template, e.Line, e.Msg)
}

// Program is a parsed template, ready to execute any number of times.
type Program struct {
	Name   string
	Source string
	nodes  []node
}

// Parser turns compiled template text into Programs. Expressions are
// compiled once here and only run during execution.
type Parser struct {
	options []expr.Option
}

// NewParser creates a parser knowing the builtin helpers plus funcs. Names in
// funcs override builtins.
func NewParser(funcs map[string]Func) *Parser {
	all := make(map[string]Func, len(Builtins)+len(funcs))
	for name, fn := range Builtins {
		all[name] = fn
	}
	for name, fn := range funcs {
		all[name] = fn
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	slices.Sort(names)

	options := []expr.Option{
		// Frame methods are resolved at run time: typing blade would reject
		// calls passing the optional arguments of variadic helpers.
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.DisableBuiltin("count"),
	}
	for _, name := range names {
		options = append(options, expr.Function(name, all[name]))
	}
	return &Parser{options: options}
}

// CompileExpr normalizes and compiles one template expression.
func (p *Parser) CompileExpr(src string) (*vm.Program, error) {
	return expr.Compile(Normalize(src), p.options...)
}

type token struct {
	text    bool
	keyword string
	args    string
	line    int
}

type parser struct {
	p    *Parser
	name string
	toks []token
	pos  int
}

// Parse builds a Program from compiled text.
func (p *Parser) Parse(name, src string) (*Program, error) {
	toks, err := tokenize(name, src)
	if err != nil {
		return nil, err
	}
	ps := &parser{p: p, name: name, toks: toks}
	nodes, _, err := ps.parseNodes()
	if err != nil {
		return nil, err
	}
	return &Program{Name: name, Source: src, nodes: nodes}, nil
}

func tokenize(name, src string) ([]token, error) {
	var toks []token
	line := 1
	for len(src) > 0 {
		i := strings.Index(src, tagOpen)
		if i < 0 {
			toks = append(toks, token{text: true, args: src, line: line})
			break
		}
		if i > 0 {
			toks = append(toks, token{text: true, args: src[:i], line: line})
			line += strings.Count(src[:i], "\n")
		}
		end := TagEnd(src, i)
		if end < 0 {
			return nil, &SyntaxError{Template: name, Line: line, Msg: "unterminated statement"}
		}
		body := strings.TrimSpace(src[i+len(tagOpen) : end-len(tagClose)])
		keyword, args := body, ""
		if k := strings.IndexAny(body, " \t\r\n"); k >= 0 {
			keyword, args = body[:k], strings.TrimSpace(body[k:])
		}
		toks = append(toks, token{keyword: keyword, args: args, line: line})
		line += strings.Count(src[i:end], "\n")
		src = src[end:]
	}
	return toks, nil
}

// TagEnd returns the index just past the "?>" closing the statement opened
// at i, skipping string literals, or -1.
func TagEnd(src string, i int) int {
	for j := i + len(tagOpen); j < len(src); j++ {
		switch src[j] {
		case '\'', '"':
			j = SkipString(src, j) - 1
		case '?':
			if j+1 < len(src) && src[j+1] == '>' {
				return j + 2
			}
		}
	}
	return -1
}

func (ps *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Template: ps.name, Line: t.line, Msg: fmt.Sprintf(format, args...)}
}

// parseNodes reads until one of stop is found and returns it. Without stop
// keywords it reads to the end.
func (ps *parser) parseNodes(stop ...string) ([]node, token, error) {
	var nodes []node
	for ps.pos < len(ps.toks) {
		t := ps.toks[ps.pos]
		ps.pos++
		if t.text {
			nodes = append(nodes, textNode(t.args))
			continue
		}
		if slices.Contains(stop, t.keyword) {
			return nodes, t, nil
		}
		n, err := ps.parseStatement(t)
		if err != nil {
			return nil, t, err
		}
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	if len(stop) > 0 {
		last := token{line: 1}
		if len(ps.toks) > 0 {
			last = ps.toks[len(ps.toks)-1]
		}
		return nil, last, ps.errorf(last, "unexpected end of template, expecting %s", strings.Join(stop, " or "))
	}
	return nodes, token{}, nil
}

func (ps *parser) expr(t token, src string) (*expression, error) {
	if strings.TrimSpace(src) == "" {
		return nil, ps.errorf(t, "%s: missing expression", t.keyword)
	}
	prog, err := ps.p.CompileExpr(src)
	if err != nil {
		return nil, ps.errorf(t, "%s %s: %v", t.keyword, src, err)
	}
	return &expression{src: src, prog: prog, line: t.line}, nil
}

func (ps *parser) parseStatement(t token) (node, error) {
	switch t.keyword {
	case "echo":
		e, err := ps.expr(t, t.args)
		if err != nil {
			return nil, err
		}
		return &echoNode{expr: e}, nil
	case "do":
		e, err := ps.expr(t, t.args)
		if err != nil {
			return nil, err
		}
		return &doNode{expr: e}, nil
	case "set":
		return ps.parseAssign(t, t.args)
	case "if":
		return ps.parseIf(t)
	case "foreach":
		return ps.parseForeach(t)
	case "for":
		return ps.parseFor(t)
	case "while":
		cond, err := ps.expr(t, t.args)
		if err != nil {
			return nil, err
		}
		body, _, err := ps.parseNodes("endwhile")
		if err != nil {
			return nil, err
		}
		return &whileNode{cond: cond, body: body}, nil
	case "break", "continue":
		levels := 1
		if t.args != "" {
			n, err := strconv.Atoi(t.args)
			if err != nil || n < 1 {
				return nil, ps.errorf(t, "%s expects a positive level, got %q", t.keyword, t.args)
			}
			levels = n
		}
		return &controlNode{brk: t.keyword == "break", levels: levels}, nil
	case "switch":
		return ps.parseSwitch(t)
	case "component":
		return ps.parseComponent(t)
	case "extends":
		e, err := ps.expr(t, t.args)
		if err != nil {
			return nil, err
		}
		return &extendsNode{expr: e}, nil
	}
	return nil, ps.errorf(t, "unexpected %q", t.keyword)
}

func (ps *parser) parseAssign(t token, src string) (*setNode, error) {
	m := reAssign.FindStringSubmatch(strings.TrimSpace(src))
	if m == nil {
		return nil, ps.errorf(t, "invalid assignment %q", src)
	}
	n := &setNode{name: "_" + m[1], op: m[2], line: t.line}
	switch n.op {
	case "++", "--":
		if strings.TrimSpace(m[3]) != "" {
			return nil, ps.errorf(t, "invalid assignment %q", src)
		}
		return n, nil
	}
	if strings.HasPrefix(m[3], "=") {
		return nil, ps.errorf(t, "invalid assignment %q", src)
	}
	value, err := ps.expr(t, m[3])
	if err != nil {
		return nil, err
	}
	n.value = value
	return n, nil
}

func (ps *parser) parseIf(t token) (node, error) {
	n := &ifNode{}
	cond, err := ps.expr(t, t.args)
	if err != nil {
		return nil, err
	}
	for {
		body, end, err := ps.parseNodes("elseif", "else", "endif")
		if err != nil {
			return nil, err
		}
		n.branches = append(n.branches, branch{cond: cond, body: body})
		switch end.keyword {
		case "elseif":
			if cond, err = ps.expr(end, end.args); err != nil {
				return nil, err
			}
			continue
		case "else":
			body, _, err := ps.parseNodes("endif")
			if err != nil {
				return nil, err
			}
			n.elseBody = body
		}
		return n, nil
	}
}

func (ps *parser) parseForeach(t token) (node, error) {
	as := FindTopLevelWord(t.args, "as")
	if as < 0 {
		return nil, ps.errorf(t, "foreach %q: missing 'as'", t.args)
	}
	subject, err := ps.expr(t, t.args[:as])
	if err != nil {
		return nil, err
	}
	n := &foreachNode{subject: subject}
	target := strings.TrimSpace(t.args[as+len("as"):])
	if k, v, ok := strings.Cut(target, "=>"); ok {
		km := reVarName.FindStringSubmatch(strings.TrimSpace(k))
		if km == nil {
			return nil, ps.errorf(t, "foreach %q: invalid key variable", t.args)
		}
		n.key = "_" + km[1]
		target = strings.TrimSpace(v)
	}
	vmatch := reVarName.FindStringSubmatch(target)
	if vmatch == nil {
		return nil, ps.errorf(t, "foreach %q: invalid value variable", t.args)
	}
	n.value = "_" + vmatch[1]
	if n.body, _, err = ps.parseNodes("endforeach"); err != nil {
		return nil, err
	}
	return n, nil
}

func (ps *parser) parseFor(t token) (node, error) {
	parts := SplitTopLevel(t.args, ';')
	if len(parts) != 3 {
		return nil, ps.errorf(t, "for %q: expected init; condition; step", t.args)
	}
	n := &forNode{}
	var err error
	if n.init, err = ps.parseAssignList(t, parts[0]); err != nil {
		return nil, err
	}
	if strings.TrimSpace(parts[1]) != "" {
		if n.cond, err = ps.expr(t, parts[1]); err != nil {
			return nil, err
		}
	}
	if n.step, err = ps.parseAssignList(t, parts[2]); err != nil {
		return nil, err
	}
	if n.body, _, err = ps.parseNodes("endfor"); err != nil {
		return nil, err
	}
	return n, nil
}

func (ps *parser) parseAssignList(t token, src string) ([]*setNode, error) {
	var out []*setNode
	for _, part := range SplitTopLevel(src, ',') {
		if strings.TrimSpace(part) == "" {
			continue
		}
		n, err := ps.parseAssign(t, part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (ps *parser) parseSwitch(t token) (node, error) {
	subject, err := ps.expr(t, t.args)
	if err != nil {
		return nil, err
	}
	n := &switchNode{subject: subject}
	// anything before the first case is dropped
	_, end, err := ps.parseNodes("case", "default", "endswitch")
	if err != nil {
		return nil, err
	}
	for end.keyword != "endswitch" {
		c := switchCase{}
		if end.keyword == "case" {
			if c.match, err = ps.expr(end, end.args); err != nil {
				return nil, err
			}
		}
		if c.body, end, err = ps.parseNodes("case", "default", "endswitch"); err != nil {
			return nil, err
		}
		n.cases = append(n.cases, c)
	}
	return n, nil
}

func (ps *parser) parseComponent(t token) (node, error) {
	var call ComponentCall
	if err := json.Unmarshal([]byte(t.args), &call); err != nil {
		return nil, ps.errorf(t, "component payload: %v", err)
	}
	n := &componentNode{name: call.Name, lazy: call.Lazy, line: t.line}
	var err error
	if n.attrs, err = ps.compileAttributes(t, call.Attributes); err != nil {
		return nil, err
	}
	if n.slot, err = ps.p.Parse(ps.name, call.Slot); err != nil {
		return nil, err
	}
	for _, s := range call.Slots {
		cs := compiledSlot{name: s.Name}
		if cs.attrs, err = ps.compileAttributes(t, s.Attributes); err != nil {
			return nil, err
		}
		if cs.body, err = ps.p.Parse(ps.name, s.Content); err != nil {
			return nil, err
		}
		n.slots = append(n.slots, cs)
	}
	return n, nil
}

func (ps *parser) compileAttributes(t token, attrs []CallAttribute) ([]compiledAttr, error) {
	out := make([]compiledAttr, 0, len(attrs))
	for _, a := range attrs {
		ca := compiledAttr{name: a.Name, literal: a.Value}
		if a.Expression {
			e, err := ps.expr(t, a.Value)
			if err != nil {
				return nil, err
			}
			ca.expr = e
		}
		out = append(out, ca)
	}
	return out, nil
}
