package host

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/spf13/cast"
)

// Error is a failure while executing a statement.
type Error struct {
	Template string
	Line     int
	Expr     string
	Err      error
}

func (e *Error) Error() string {
	if e.Expr != "" {
		return fmt.Sprintf("[%s] line %d: %s: %v", e.Template, e.Line, e.Expr, e.Err)
	}
	return fmt.Sprintf("[%s] line %d: %v", e.Template, e.Line, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// loopControl carries break/continue out of nested statements.
type loopControl struct {
	brk    bool
	levels int
}

func (l *loopControl) Error() string {
	if l.brk {
		return "break outside of a loop"
	}
	return "continue outside of a loop"
}

type node interface {
	exec(f *Frame) error
}

type expression struct {
	src  string
	prog *vm.Program
	line int
}

func (e *expression) eval(f *Frame) (any, error) {
	v, err := expr.Run(e.prog, f.vars)
	if err != nil {
		return nil, f.wrap(e.line, e.src, err)
	}
	return v, nil
}

func execNodes(f *Frame, nodes []node) error {
	for _, n := range nodes {
		if err := n.exec(f); err != nil {
			return err
		}
	}
	return nil
}

type textNode string

func (n textNode) exec(f *Frame) error {
	f.state.out().WriteString(string(n))
	return nil
}

type echoNode struct {
	expr *expression
}

func (n *echoNode) exec(f *Frame) error {
	v, err := n.expr.eval(f)
	if err != nil {
		return err
	}
	if err := f.write(v); err != nil {
		return f.wrap(n.expr.line, n.expr.src, err)
	}
	return nil
}

type doNode struct {
	expr *expression
}

func (n *doNode) exec(f *Frame) error {
	_, err := n.expr.eval(f)
	return err
}

type setNode struct {
	name  string
	op    string
	value *expression
	line  int
}

func (n *setNode) exec(f *Frame) error {
	current := f.vars[n.name]
	if n.op == "++" || n.op == "--" {
		delta := 1
		if n.op == "--" {
			delta = -1
		}
		next, err := arith("+", current, delta)
		if err != nil {
			return f.wrap(n.line, n.name[1:]+n.op, err)
		}
		f.vars[n.name] = next
		return nil
	}
	if n.op == "??=" && current != nil {
		return nil
	}
	v, err := n.value.eval(f)
	if err != nil {
		return err
	}
	switch n.op {
	case "=", "??=":
	case ".=":
		v = ToString(current) + ToString(v)
	default:
		if v, err = arith(n.op[:1], current, v); err != nil {
			return f.wrap(n.line, n.value.src, err)
		}
	}
	f.vars[n.name] = v
	return nil
}

// arith keeps integer results when both operands are integers.
func arith(op string, a, b any) (any, error) {
	if isInteger(a) && isInteger(b) && op != "/" {
		x, y := cast.ToInt(a), cast.ToInt(b)
		switch op {
		case "+":
			return x + y, nil
		case "-":
			return x - y, nil
		case "*":
			return x * y, nil
		}
	}
	x, err := cast.ToFloat64E(a)
	if err != nil && a != nil {
		return nil, err
	}
	y, err := cast.ToFloat64E(b)
	if err != nil {
		return nil, err
	}
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return x / y, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func isInteger(v any) bool {
	switch v.(type) {
	case nil, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

type branch struct {
	cond *expression
	body []node
}

type ifNode struct {
	branches []branch
	elseBody []node
}

func (n *ifNode) exec(f *Frame) error {
	for _, b := range n.branches {
		v, err := b.cond.eval(f)
		if err != nil {
			return err
		}
		if Truthy(v) {
			return execNodes(f, b.body)
		}
	}
	return execNodes(f, n.elseBody)
}

// loopBody runs one iteration. It reports whether the loop must stop and the
// error to hand to the enclosing statement.
func loopBody(f *Frame, body []node) (stop bool, err error) {
	err = execNodes(f, body)
	if err == nil {
		return false, nil
	}
	lc, ok := err.(*loopControl)
	if !ok {
		return true, err
	}
	if lc.levels > 1 {
		return true, &loopControl{brk: lc.brk, levels: lc.levels - 1}
	}
	return lc.brk, nil
}

type foreachNode struct {
	subject *expression
	key     string
	value   string
	body    []node
}

func (n *foreachNode) exec(f *Frame) error {
	subject, err := n.subject.eval(f)
	if err != nil {
		return err
	}
	count, seq, err := iterate(subject)
	if err != nil {
		return f.wrap(n.subject.line, n.subject.src, err)
	}

	parent := f.loop
	previous, hadPrevious := f.vars["_loop"]
	loop := NewLoop(count, parent)
	f.loop = loop
	defer func() {
		f.loop = parent
		if hadPrevious {
			f.vars["_loop"] = previous
		} else {
			delete(f.vars, "_loop")
		}
	}()

	for k, v := range seq {
		if err := f.ctx.Err(); err != nil {
			return err
		}
		loop.Tick()
		f.vars["_loop"] = loop.Vars()
		if n.key != "" {
			f.vars[n.key] = k
		}
		f.vars[n.value] = v
		stop, err := loopBody(f, n.body)
		if stop {
			return err
		}
	}
	return nil
}

type forNode struct {
	init []*setNode
	cond *expression
	step []*setNode
	body []node
}

func (n *forNode) exec(f *Frame) error {
	for _, s := range n.init {
		if err := s.exec(f); err != nil {
			return err
		}
	}
	for {
		if err := f.ctx.Err(); err != nil {
			return err
		}
		if n.cond != nil {
			v, err := n.cond.eval(f)
			if err != nil {
				return err
			}
			if !Truthy(v) {
				return nil
			}
		}
		if stop, err := loopBody(f, n.body); stop {
			return err
		}
		for _, s := range n.step {
			if err := s.exec(f); err != nil {
				return err
			}
		}
	}
}

type whileNode struct {
	cond *expression
	body []node
}

func (n *whileNode) exec(f *Frame) error {
	for {
		if err := f.ctx.Err(); err != nil {
			return err
		}
		v, err := n.cond.eval(f)
		if err != nil {
			return err
		}
		if !Truthy(v) {
			return nil
		}
		if stop, err := loopBody(f, n.body); stop {
			return err
		}
	}
}

type controlNode struct {
	brk    bool
	levels int
}

func (n *controlNode) exec(*Frame) error {
	return &loopControl{brk: n.brk, levels: n.levels}
}

type switchCase struct {
	match *expression
	body  []node
}

type switchNode struct {
	subject *expression
	cases   []switchCase
}

// exec falls through from the matching case until a break. A continue passes
// through to the enclosing loop.
func (n *switchNode) exec(f *Frame) error {
	subject, err := n.subject.eval(f)
	if err != nil {
		return err
	}
	start, fallback := -1, -1
	for i, c := range n.cases {
		if c.match == nil {
			if fallback < 0 {
				fallback = i
			}
			continue
		}
		v, err := c.match.eval(f)
		if err != nil {
			return err
		}
		if LooseEqual(subject, v) {
			start = i
			break
		}
	}
	if start < 0 {
		start = fallback
	}
	if start < 0 {
		return nil
	}
	for _, c := range n.cases[start:] {
		err := execNodes(f, c.body)
		if lc, ok := err.(*loopControl); ok && lc.brk {
			if lc.levels > 1 {
				return &loopControl{brk: true, levels: lc.levels - 1}
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type extendsNode struct {
	expr *expression
}

func (n *extendsNode) exec(f *Frame) error {
	v, err := n.expr.eval(f)
	if err != nil {
		return err
	}
	f.layout = ToString(v)
	return nil
}

type compiledAttr struct {
	name    string
	literal string
	expr    *expression
}

type compiledSlot struct {
	name  string
	attrs []compiledAttr
	body  *Program
}

type componentNode struct {
	name  string
	attrs []compiledAttr
	slot  *Program
	slots []compiledSlot
	lazy  bool
	line  int
}

func (n *componentNode) exec(f *Frame) error {
	attrs, err := evalAttributes(f, n.attrs)
	if err != nil {
		return err
	}
	inv := &Invocation{Name: n.name, Attributes: attrs, Lazy: n.lazy}

	// Slots render with this component on the stack so @aware inside them
	// sees its attributes.
	data := make(map[string]any, attrs.Len())
	for _, a := range attrs.All() {
		data[CamelCase(a.Name)] = a.Value
	}
	f.state.PushComponent(data)
	defer f.state.PopComponent()

	if !n.lazy {
		content, err := f.capture(n.slot)
		if err != nil {
			return err
		}
		inv.Slot = NewSlot(content, nil)
		for _, s := range n.slots {
			slotAttrs, err := evalAttributes(f, s.attrs)
			if err != nil {
				return err
			}
			content, err := f.capture(s.body)
			if err != nil {
				return err
			}
			inv.Slots = append(inv.Slots, NamedSlot{Name: s.name, Slot: NewSlot(content, slotAttrs)})
		}
	}
	out, err := f.rt.Component(f, inv)
	if err != nil {
		return f.wrap(n.line, "", err)
	}
	f.state.out().WriteString(string(out))
	return nil
}

func evalAttributes(f *Frame, attrs []compiledAttr) (*AttributeBag, error) {
	bag := NewAttributeBag()
	for _, a := range attrs {
		if a.expr == nil {
			bag.Set(a.name, a.literal)
			continue
		}
		v, err := a.expr.eval(f)
		if err != nil {
			return nil, err
		}
		bag.Set(a.name, v)
	}
	return bag, nil
}
