package host

import (
	"context"
	"errors"
	"fmt"
	"html"
	"slices"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/spf13/cast"
)

// ErrUnclosedBlock is returned when a template ends with a section, push,
// fragment, teleport or capture still open.
var ErrUnclosedBlock = errors.New("template ended inside an open block")

// Frame is the execution scope of one template: its variables, its place in
// the render (State) and the runtime it calls back into. Templates reach it
// as the identifier blade.
type Frame struct {
	ctx    context.Context
	rt     Runtime
	state  *State
	name   string
	vars   map[string]any
	loop   *Loop
	layout string
}

// NewFrame creates a scope for the template name with data bound as its
// variables.
func NewFrame(ctx context.Context, rt Runtime, st *State, name string, data map[string]any) *Frame {
	f := &Frame{
		ctx:   ctx,
		rt:    rt,
		state: st,
		name:  name,
		vars:  make(map[string]any, len(data)+1),
	}
	for k, v := range data {
		f.vars["_"+k] = v
	}
	f.vars["blade"] = f
	return f
}

// Run executes p in this frame and returns what it wrote.
func (f *Frame) Run(p *Program) (string, error) {
	return f.capture(p)
}

func (f *Frame) capture(p *Program) (string, error) {
	if p == nil {
		return "", nil
	}
	f.state.pushSink()
	depth := f.state.sinkDepth()
	err := execNodes(f, p.nodes)
	var lc *loopControl
	if errors.As(err, &lc) {
		err = &Error{Template: f.name, Err: lc}
	}
	if err == nil && f.state.sinkDepth() != depth {
		err = &Error{Template: f.name, Err: ErrUnclosedBlock}
	}
	for f.state.sinkDepth() > depth {
		f.state.popSink()
	}
	return f.state.popSink(), err
}

func (f *Frame) write(v any) error {
	if c, ok := v.(templ.Component); ok {
		return c.Render(f.ctx, f.state.out())
	}
	f.state.out().WriteString(ToString(v))
	return nil
}

// wrap attaches the template position to err. Errors raised by a nested
// template already carry their own position and are kept as they are.
func (f *Frame) wrap(line int, src string, err error) error {
	var he *Error
	if errors.As(err, &he) {
		return he
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Template: f.name, Line: line, Expr: strings.TrimSpace(src), Err: err}
}

func (f *Frame) Name() string { return f.name }

func (f *Frame) Context() context.Context { return f.ctx }

func (f *Frame) State() *State { return f.state }

// Layout returns the parent template declared with extends.
func (f *Frame) Layout() string { return f.layout }

// Var returns a template variable.
func (f *Frame) Var(name string) any { return f.vars["_"+name] }

// SetVar assigns a template variable.
func (f *Frame) SetVar(name string, v any) { f.vars["_"+name] = v }

// Data returns the frame's variables as they would be passed to an include.
func (f *Frame) Data() map[string]any {
	out := make(map[string]any, len(f.vars))
	for k, v := range f.vars {
		if !strings.HasPrefix(k, "_") || strings.HasPrefix(k, "___") {
			continue
		}
		out[k[1:]] = v
	}
	return out
}

func (f *Frame) services() *Services {
	if s := f.rt.Services(); s != nil {
		return s
	}
	return &Services{}
}

// Sections

func (f *Frame) StartSection(name any, content ...any) (HTML, error) {
	if len(content) > 0 {
		f.state.extendSection(ToString(name), ToString(Escape(content[0])))
		return "", nil
	}
	f.state.startSection(ToString(name))
	return "", nil
}

func (f *Frame) StopSection(overwrite ...any) (string, error) {
	return f.state.stopSection(len(overwrite) > 0 && Truthy(overwrite[0]))
}

func (f *Frame) AppendSection() (string, error) {
	return f.state.appendSection()
}

// YieldSection closes the open section and emits it.
func (f *Frame) YieldSection() (HTML, error) {
	name, err := f.state.stopSection(false)
	if err != nil {
		return "", err
	}
	return f.YieldContent(name)
}

func (f *Frame) YieldContent(name any, def ...any) (HTML, error) {
	if content, ok := f.state.Section(ToString(name)); ok {
		return HTML(content), nil
	}
	if len(def) > 0 {
		return HTML(ToString(Escape(def[0]))), nil
	}
	return "", nil
}

func (f *Frame) HasSection(name any) bool { return f.state.HasSection(ToString(name)) }

func (f *Frame) SectionMissing(name any) bool { return !f.HasSection(name) }

// Stacks

func (f *Frame) StartPush(name any) (HTML, error) {
	f.state.startPush(ToString(name), false)
	return "", nil
}

func (f *Frame) StopPush() (HTML, error) { return "", f.state.stopPush(false) }

func (f *Frame) StartPrepend(name any) (HTML, error) {
	f.state.startPush(ToString(name), true)
	return "", nil
}

func (f *Frame) StopPrepend() (HTML, error) { return "", f.state.stopPush(true) }

func (f *Frame) YieldPushContent(name any, def ...any) HTML {
	content := f.state.Stack(ToString(name))
	if content == "" && len(def) > 0 {
		return HTML(ToString(Escape(def[0])))
	}
	return HTML(content)
}

// Includes

func (f *Frame) includeData(data []any) (map[string]any, error) {
	merged := f.Data()
	delete(merged, "loop")
	if len(data) > 0 && data[0] != nil {
		extra, err := ToMap(data[0])
		if err != nil {
			return nil, err
		}
		for k, v := range extra {
			merged[k] = v
		}
	}
	return merged, nil
}

// Include renders view with the current variables plus data.
func (f *Frame) Include(view any, data ...any) (HTML, error) {
	merged, err := f.includeData(data)
	if err != nil {
		return "", err
	}
	return f.rt.Include(f, ToString(view), merged)
}

// IncludeIf renders view only when it exists.
func (f *Frame) IncludeIf(view any, data ...any) (HTML, error) {
	if !f.rt.Exists(f, ToString(view)) {
		return "", nil
	}
	return f.Include(view, data...)
}

func (f *Frame) IncludeWhen(cond, view any, data ...any) (HTML, error) {
	if !Truthy(cond) {
		return "", nil
	}
	return f.Include(view, data...)
}

func (f *Frame) IncludeUnless(cond, view any, data ...any) (HTML, error) {
	if Truthy(cond) {
		return "", nil
	}
	return f.Include(view, data...)
}

// IncludeFirst renders the first of views that exists.
func (f *Frame) IncludeFirst(views any, data ...any) (HTML, error) {
	names := cast.ToStringSlice(views)
	if len(names) == 0 {
		return "", fmt.Errorf("includeFirst: no views given")
	}
	for _, name := range names {
		if f.rt.Exists(f, name) {
			return f.Include(name, data...)
		}
	}
	// Let the runtime report the not-found error for the first candidate.
	return f.Include(names[0], data...)
}

// Each renders view once per item with the item bound as iterator and its
// key as key. When there are no items, empty is rendered instead: a view
// name, or literal text prefixed with "raw|".
func (f *Frame) Each(view, items, iterator any, empty ...any) (HTML, error) {
	_, seq, err := iterate(items)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	name, as := ToString(view), ToString(iterator)
	for k, v := range seq {
		out, err := f.rt.Include(f, name, map[string]any{"key": k, as: v})
		if err != nil {
			return "", err
		}
		sb.WriteString(string(out))
	}
	if sb.Len() > 0 || len(empty) == 0 || Count(items) > 0 {
		return HTML(sb.String()), nil
	}
	fallback := ToString(empty[0])
	if raw, ok := strings.CutPrefix(fallback, "raw|"); ok {
		return HTML(raw), nil
	}
	return f.rt.Include(f, fallback, map[string]any{})
}

// Fragments and teleports

func (f *Frame) StartFragment(name any) (HTML, error) {
	return "", f.state.startFragment(ToString(name))
}

// StopFragment closes the innermost fragment and returns its content so it
// is also written in place.
func (f *Frame) StopFragment() (HTML, error) {
	content, err := f.state.stopFragment()
	return HTML(content), err
}

func (f *Frame) StartTeleport(target any) (HTML, error) {
	f.state.startTeleport(ToString(target))
	return "", nil
}

func (f *Frame) StopTeleport(target ...any) (HTML, error) {
	name := ""
	if len(target) > 0 {
		name = ToString(target[0])
	}
	return "", f.state.stopTeleport(name)
}

// Teleports emits the teleports captured so far.
func (f *Frame) Teleports() HTML {
	return f.state.RenderTeleports(f.Nonce())
}

func (f *Frame) Once(id any) bool { return f.state.Once(ToString(id)) }

// Access checks

func (f *Frame) Auth(guard ...any) bool {
	auth := f.services().Auth
	if auth == nil {
		return false
	}
	if len(guard) == 0 {
		return auth.Check(f.ctx, "")
	}
	return auth.Check(f.ctx, ToString(guard[0]))
}

func (f *Frame) Guest(guard ...any) bool { return !f.Auth(guard...) }

func (f *Frame) Can(ability any, args ...any) bool {
	gate := f.services().Gate
	return gate != nil && gate.Allows(f.ctx, ToString(ability), args...)
}

func (f *Frame) Cannot(ability any, args ...any) bool { return !f.Can(ability, args...) }

// CanAny reports whether any of abilities is allowed.
func (f *Frame) CanAny(abilities any, args ...any) bool {
	for _, ability := range cast.ToStringSlice(abilities) {
		if f.Can(ability, args...) {
			return true
		}
	}
	return false
}

func (f *Frame) HasRole(role any) bool {
	gate := f.services().Gate
	return gate != nil && gate.HasRole(f.ctx, ToString(role))
}

// Env reports whether the application environment is one of envs.
func (f *Frame) Env(envs ...any) bool {
	current := f.services().Environment
	for _, e := range envs {
		if s, ok := e.(string); ok {
			if s == current {
				return true
			}
			continue
		}
		if slices.Contains(cast.ToStringSlice(e), current) {
			return true
		}
	}
	return false
}

func (f *Frame) Production() bool { return f.Env("production") }

// Check evaluates a registered custom condition.
func (f *Frame) Check(name any, args ...any) (bool, error) {
	cond, ok := f.services().Conditions[ToString(name)]
	if !ok {
		return false, fmt.Errorf("unknown condition %q", ToString(name))
	}
	return cond(f.ctx, args...), nil
}

func (f *Frame) errorBag(bag []any) ErrorBag {
	var src any = f.vars["_errors"]
	if len(bag) > 0 && bag[0] != nil {
		src = bag[0]
	}
	switch b := src.(type) {
	case nil:
		return nil
	case ErrorBag:
		return b
	}
	m, err := cast.ToStringMapE(src)
	if err != nil {
		return nil
	}
	return mapErrors(m)
}

type mapErrors map[string]any

func (m mapErrors) Has(field string) bool { return m.First(field) != "" }

func (m mapErrors) First(field string) string {
	v, ok := m[field]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if list := cast.ToStringSlice(v); len(list) > 0 {
		return list[0]
	}
	return ToString(v)
}

// HasError reports whether field has a validation error. The bag defaults to
// the $errors variable.
func (f *Frame) HasError(field any, bag ...any) bool {
	b := f.errorBag(bag)
	return b != nil && b.Has(ToString(field))
}

func (f *Frame) ErrorMessage(field any, bag ...any) string {
	b := f.errorBag(bag)
	if b == nil {
		return ""
	}
	return b.First(ToString(field))
}

func (f *Frame) CsrfToken() string {
	if fn := f.services().CSRF; fn != nil {
		return fn(f.ctx)
	}
	return ""
}

func (f *Frame) Nonce() string {
	if fn := f.services().Nonce; fn != nil {
		return fn(f.ctx)
	}
	return ""
}

// Component data

// propDefs reads [[name, default], [name]] lists.
func propDefs(defs any) ([]string, map[string]any) {
	list, ok := defs.([]any)
	if !ok {
		list = cast.ToSlice(defs)
	}
	var names []string
	defaults := map[string]any{}
	for _, item := range list {
		pair, ok := item.([]any)
		if !ok {
			names = append(names, ToString(item))
			continue
		}
		if len(pair) == 0 {
			continue
		}
		name := ToString(pair[0])
		names = append(names, name)
		if len(pair) > 1 {
			defaults[name] = pair[1]
		}
	}
	return names, defaults
}

func (f *Frame) attributes() *AttributeBag {
	if bag, ok := f.vars["_attributes"].(*AttributeBag); ok {
		return bag
	}
	return NewAttributeBag()
}

func (f *Frame) componentData() map[string]any {
	if n := len(f.state.components); n > 0 {
		return f.state.components[n-1]
	}
	return nil
}

// Props claims attributes as variables, applies defaults and leaves the
// remaining attributes in $attributes.
func (f *Frame) Props(defs any) (HTML, error) {
	names, defaults := propDefs(defs)
	data := f.componentData()
	bag := f.attributes()
	remaining := NewAttributeBag()
	for _, a := range bag.All() {
		name := CamelCase(a.Name)
		if !slices.Contains(names, name) && !slices.Contains(names, a.Name) {
			remaining.attrs = append(remaining.attrs, a)
			continue
		}
		if f.vars["_"+name] == nil {
			f.vars["_"+name] = a.Value
		}
	}
	for _, name := range names {
		key := "_" + CamelCase(name)
		if f.vars[key] == nil {
			if def, ok := defaults[name]; ok {
				f.vars[key] = def
			}
		}
		if data != nil {
			data[CamelCase(name)] = f.vars[key]
		}
	}
	f.vars["_attributes"] = remaining
	return "", nil
}

// Aware reads props from enclosing components, falling back to defaults.
func (f *Frame) Aware(defs any) (HTML, error) {
	names, defaults := propDefs(defs)
	bag := f.attributes()
	var drop []any
	for _, name := range names {
		key := CamelCase(name)
		if v, ok := f.state.aware(key); ok {
			f.vars["_"+key] = v
		} else if def, ok := defaults[name]; ok && f.vars["_"+key] == nil {
			f.vars["_"+key] = def
		}
		drop = append(drop, name)
	}
	f.vars["_attributes"] = bag.Except(drop...)
	return "", nil
}

// CamelCase turns kebab-case attribute names into variable names.
func CamelCase(s string) string {
	if !strings.ContainsAny(s, "-_") {
		return s
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' })
	for i := 1; i < len(parts); i++ {
		parts[i] = upperFirst(parts[i])
	}
	return strings.Join(parts, "")
}

// Cache blocks

func cacheTTL(v any) (time.Duration, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return x, nil
	case string:
		if d, err := time.ParseDuration(x); err == nil {
			return d, nil
		}
	}
	secs, err := cast.ToInt64E(v)
	if err != nil {
		return 0, fmt.Errorf("invalid cache ttl %v", v)
	}
	return time.Duration(secs) * time.Second, nil
}

// StartCache opens a cached block. It returns true when the body must be
// rendered because the store has no entry for key.
func (f *Frame) StartCache(key any, ttl ...any) (bool, error) {
	block := &cacheBlock{key: ToString(key)}
	if len(ttl) > 0 {
		block.ttl = ttl[0]
	}
	if store := f.services().Cache; store != nil {
		content, ok, err := store.Get(f.ctx, block.key)
		if err != nil {
			return false, err
		}
		if ok {
			block.hit = true
			block.content = string(content)
		}
	}
	f.state.caches = append(f.state.caches, block)
	if block.hit {
		return false, nil
	}
	f.state.pushSink()
	return true, nil
}

// StopCache closes the block and returns its content, storing it on a miss.
func (f *Frame) StopCache() (HTML, error) {
	n := len(f.state.caches)
	if n == 0 {
		return "", errors.New("cannot end a cache block without first starting one")
	}
	block := f.state.caches[n-1]
	f.state.caches = f.state.caches[:n-1]
	if block.hit {
		return HTML(block.content), nil
	}
	content := f.state.popSink()
	if store := f.services().Cache; store != nil {
		ttl, err := cacheTTL(block.ttl)
		if err != nil {
			return "", err
		}
		if err := store.Set(f.ctx, block.key, []byte(content), ttl); err != nil {
			return "", err
		}
	}
	return HTML(content), nil
}

func (f *Frame) Lazy(name any, attrs ...any) (HTML, error) {
	var data map[string]any
	if len(attrs) > 0 {
		m, err := ToMap(attrs[0])
		if err != nil {
			return "", err
		}
		data = m
	}
	return f.rt.Lazy(f, ToString(name), data)
}

// StartCapture starts buffering output for a block helper.
func (f *Frame) StartCapture() (HTML, error) {
	f.state.captures++
	f.state.pushSink()
	return "", nil
}

func (f *Frame) StopCapture() (string, error) {
	if f.state.captures == 0 {
		return "", ErrNoOpenCapture
	}
	f.state.captures--
	return f.state.popSink(), nil
}

// Collaborator helpers

// Service returns an entry of the service container.
func (f *Frame) Service(name any) (any, error) {
	v, ok := f.services().Container[ToString(name)]
	if !ok {
		return nil, fmt.Errorf("service %q is not provided", ToString(name))
	}
	return v, nil
}

func replacements(args []any) map[string]any {
	if len(args) == 0 || args[0] == nil {
		return nil
	}
	m, _ := ToMap(args[0])
	return m
}

// Trans translates key, returning key itself when there is no translation.
func (f *Frame) Trans(key any, replace ...any) string {
	k := ToString(key)
	if tr := f.services().Translator; tr != nil {
		if s, ok := tr.Translate(f.ctx, k, -1, replacements(replace)); ok {
			return s
		}
	}
	return k
}

func (f *Frame) Choice(key, count any, replace ...any) string {
	k := ToString(key)
	if tr := f.services().Translator; tr != nil {
		if s, ok := tr.Translate(f.ctx, k, cast.ToInt(count), replacements(replace)); ok {
			return s
		}
	}
	return k
}

func (f *Frame) Route(name any, params ...any) (string, error) {
	router := f.services().Router
	if router == nil {
		return "", fmt.Errorf("route %q: no router configured", ToString(name))
	}
	return router.URL(ToString(name), replacements(params))
}

func (f *Frame) Asset(p any) string {
	base := strings.TrimRight(f.services().AssetURL, "/")
	return base + "/" + strings.TrimLeft(ToString(p), "/")
}

// Config reads a configuration value, falling back to def.
func (f *Frame) Config(key any, def ...any) any {
	if cfg := f.services().Config; cfg != nil {
		if v, ok := cfg.Get(ToString(key)); ok {
			return v
		}
	}
	if len(def) > 0 {
		return def[0]
	}
	return nil
}

// Vite emits script and stylesheet tags for the given entry points.
func (f *Frame) Vite(entries any) HTML {
	list := cast.ToStringSlice(entries)
	if s, ok := entries.(string); ok {
		list = []string{s}
	}
	nonce := ""
	if n := f.Nonce(); n != "" {
		nonce = ` nonce="` + html.EscapeString(n) + `"`
	}
	var tags []string
	for _, entry := range list {
		src := string(EscapeURL(f.Asset(entry)))
		if strings.HasSuffix(entry, ".css") {
			tags = append(tags, `<link rel="stylesheet" href="`+src+`"`+nonce+`>`)
			continue
		}
		tags = append(tags, `<script type="module" src="`+src+`"`+nonce+`></script>`)
	}
	return HTML(strings.Join(tags, "\n"))
}
