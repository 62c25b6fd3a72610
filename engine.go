// Package blade compiles Blade templates into host programs and renders them.
package blade

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dangdungcntt/go-blade/v2/cache"
	"github.com/dangdungcntt/go-blade/v2/compiler"
	"github.com/dangdungcntt/go-blade/v2/host"
)

// Engine compiles and renders the views of one view filesystem. Renders may
// run concurrently; register directives, helpers and components before the
// first one.
type Engine struct {
	config    Config
	logger    *slog.Logger
	fsys      fs.FS
	root      string
	registry  prometheus.Registerer
	metrics   *metrics
	compiler  *compiler.Compiler
	finder    *finder
	files     *cache.FileCache
	encrypter Encrypter

	compiled *cache.Bounded[string, compiledView]
	inline   *cache.Bounded[string, string]
	programs *cache.Bounded[string, *host.Program]

	// services is edited under mu and published to renders through current.
	services host.Services
	current  atomic.Pointer[host.Services]
	parser   atomic.Pointer[host.Parser]

	mu             sync.RWMutex
	funcs          map[string]host.Func
	shared         map[string]any
	composers      []composer
	components     map[string]componentDef
	debugTemplates map[string]string
}

type compiledView struct {
	text    string
	modTime time.Time
}

// Composer adds data to a view before it renders. data already holds the
// shared and passed data.
type Composer func(ctx context.Context, view string, data map[string]any)

type composer struct {
	pattern string
	fn      Composer
}

// New creates an engine for the views under dir.
func New(dir string, opts ...Option) *Engine {
	return newEngine(os.DirFS(dir), dir, opts)
}

// NewFS creates an engine over a filesystem, typically an embed.FS
// narrowed with fs.Sub. Symlink containment is only checked for New.
func NewFS(fsys fs.FS, opts ...Option) *Engine {
	return newEngine(fsys, "", opts)
}

func newEngine(fsys fs.FS, root string, opts []Option) *Engine {
	e := &Engine{
		config:         DefaultConfig(),
		logger:         slog.Default(),
		fsys:           fsys,
		compiler:       compiler.New(),
		funcs:          map[string]host.Func{},
		shared:         map[string]any{},
		components:     map[string]componentDef{},
		debugTemplates: map[string]string{},
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		e.root = root
	}
	e.services.Conditions = map[string]host.Condition{}
	e.services.Container = map[string]any{}
	for _, opt := range opts {
		opt(e)
	}

	e.services.Environment = e.config.Environment
	e.services.AssetURL = e.config.AssetURL
	if e.services.CSRF == nil {
		e.services.CSRF = requestCSRFToken
	}
	if e.services.Nonce == nil {
		e.services.Nonce = requestNonce
	}
	if e.services.Cache == nil {
		e.services.Cache = cache.NewMemoryStore()
	}
	if e.encrypter == nil {
		aead, err := NewAEAD([]byte(e.config.LazyKey))
		if err != nil {
			panic(fmt.Errorf("blade: lazy payload key: %w", err))
		}
		e.encrypter = aead
	}

	size := e.config.MemoryCacheSize
	e.finder = newFinder(fsys, e.root, e.config)
	e.compiled = cache.NewBounded[string, compiledView](size)
	e.inline = cache.NewBounded[string, string](size)
	e.programs = cache.NewBounded[string, *host.Program](size)
	e.metrics = newMetrics(e.registry)
	if e.config.CachePath != "" {
		files, err := cache.NewFileCache(e.config.CachePath, e.config.TrustCache)
		if err != nil {
			e.logger.Warn("compiled template cache disabled", "path", e.config.CachePath, "error", err)
		} else {
			e.files = files
		}
	}

	e.publish()
	e.parser.Store(host.NewParser(maps.Clone(e.funcs)))
	return e
}

// publish makes the current collaborators visible to renders started from
// now on. Callers hold mu or own e exclusively.
func (e *Engine) publish() {
	s := e.services
	s.Conditions = maps.Clone(e.services.Conditions)
	s.Container = maps.Clone(e.services.Container)
	e.current.Store(&s)
}

// Config returns the settings the engine runs with.
func (e *Engine) Config() Config { return e.config }

// Compiler exposes the directive compiler, e.g. to inspect compiled output.
func (e *Engine) Compiler() *compiler.Compiler { return e.compiler }

// Registration

// Directive registers a custom directive. Compiled views are dropped from
// memory so the next render picks it up.
func (e *Engine) Directive(name string, fn compiler.DirectiveFunc) error {
	if err := e.compiler.Directive(name, fn); err != nil {
		return err
	}
	e.flushCompiled()
	return nil
}

// If registers a custom conditional: @name(args), @elsename, @unlessname and
// @endname.
func (e *Engine) If(name string, fn Condition) error {
	if err := e.compiler.If(name); err != nil {
		return err
	}
	e.mu.Lock()
	e.services.Conditions[name] = fn
	e.publish()
	e.mu.Unlock()
	e.flushCompiled()
	return nil
}

// Precompiler adds a hook run on every source before it is compiled.
func (e *Engine) Precompiler(fn compiler.Precompiler) {
	e.compiler.Precompiler(fn)
	e.flushCompiled()
}

// Func adds a helper callable from template expressions.
func (e *Engine) Func(name string, fn host.Func) {
	e.Funcs(map[string]host.Func{name: fn})
}

// Funcs adds helpers callable from template expressions. Names shadow the
// builtin helpers.
func (e *Engine) Funcs(funcs map[string]host.Func) {
	e.mu.Lock()
	maps.Copy(e.funcs, funcs)
	e.parser.Store(host.NewParser(maps.Clone(e.funcs)))
	e.mu.Unlock()
	e.programs.Flush()
}

// Provide registers a service for @inject.
func (e *Engine) Provide(name string, service any) {
	e.mu.Lock()
	e.services.Container[name] = service
	e.publish()
	e.mu.Unlock()
}

// Share makes value available to every view as $key.
func (e *Engine) Share(key string, value any) {
	e.mu.Lock()
	shared := maps.Clone(e.shared)
	shared[key] = value
	e.shared = shared
	e.mu.Unlock()
}

// Composer runs fn before every view whose name matches pattern. Patterns use
// path.Match syntax over slash names; dotted names are accepted too:
// "pages.*" matches "pages/home".
func (e *Engine) Composer(pattern string, fn Composer) error {
	pattern = strings.ReplaceAll(pattern, ".", "/")
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("composer pattern %q: %w", pattern, err)
	}
	e.mu.Lock()
	e.composers = append(e.composers[:len(e.composers):len(e.composers)], composer{pattern: pattern, fn: fn})
	e.mu.Unlock()
	return nil
}

// RegisterComponent binds a component name to a view and a factory building
// its variables. A nil factory binds the attributes only.
func (e *Engine) RegisterComponent(name, view string, factory ComponentFactory) {
	if factory == nil {
		factory = func(_ context.Context, attrs *host.AttributeBag) (map[string]any, *host.AttributeBag, error) {
			return nil, attrs, nil
		}
	}
	e.mu.Lock()
	e.components[componentKey(name)] = componentDef{view: view, factory: factory}
	e.mu.Unlock()
}

// Loading and caches

// Load compiles and parses every view. Artifacts that are still fresh are
// taken from the caches instead of being compiled again.
func (e *Engine) Load() error {
	return fs.WalkDir(e.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		name, ok := e.finder.nameFromPath(p)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		loc := located{name: name, path: p, modTime: info.ModTime()}
		text, err := e.compileFile(loc)
		if err != nil {
			return err
		}
		if _, err := e.parse(name, text); err != nil {
			return executionError(name, p, err)
		}
		return nil
	})
}

// fileKey names the artifact of file p. The compiler fingerprint is part of
// the key so artifacts written before a directive was registered are never
// served after it.
func (e *Engine) fileKey(p string) string {
	return e.filePrefix(p) + e.compiler.Fingerprint()
}

// filePrefix is shared by the keys of file p under every fingerprint.
func (e *Engine) filePrefix(p string) string {
	if e.root != "" {
		p = filepath.Join(e.root, filepath.FromSlash(p))
	}
	return "file:" + p + "#"
}

// compileFile returns the compiled text of a view, from memory, from the
// file cache or by compiling the source.
func (e *Engine) compileFile(loc located) (string, error) {
	key := e.fileKey(loc.path)
	if c, ok := e.compiled.Get(key); ok && (e.config.TrustCache || !loc.modTime.After(c.modTime)) {
		e.metrics.lookup("memory", true)
		return c.text, nil
	}
	e.metrics.lookup("memory", false)

	if e.files != nil {
		if e.files.Fresh(key, loc.modTime) {
			if data, modTime, ok := e.files.Get(key); ok {
				e.metrics.lookup("file", true)
				text := string(data)
				e.compiled.Put(key, compiledView{text: text, modTime: modTime})
				e.setDebugTemplate(loc.name, text)
				return text, nil
			}
		}
		e.metrics.lookup("file", false)
	}

	src, err := fs.ReadFile(e.fsys, loc.path)
	if err != nil {
		return "", fmt.Errorf("[%s] read %s: %w", loc.name, loc.path, err)
	}
	text := e.compiler.Compile(string(src))
	e.metrics.compiles.WithLabelValues("file").Inc()
	e.logger.Debug("compiled template", "template", loc.name, "path", loc.path)

	e.compiled.Put(key, compiledView{text: text, modTime: loc.modTime})
	if e.files != nil {
		if err := e.files.Put(key, []byte(text)); err != nil {
			e.logger.Warn("write compiled template", "template", loc.name, "error", err)
		}
	}
	e.setDebugTemplate(loc.name, text)
	return text, nil
}

func (e *Engine) compileInline(src string) string {
	key := "inline:" + digest(src)
	if text, ok := e.inline.Get(key); ok {
		e.metrics.lookup("inline", true)
		return text
	}
	e.metrics.lookup("inline", false)
	text := e.compiler.Compile(src)
	e.metrics.compiles.WithLabelValues("inline").Inc()
	e.inline.Put(key, text)
	return text
}

// parse returns the program for compiled text. Programs are keyed by the
// text itself, so views compiling to the same text share one.
func (e *Engine) parse(name, text string) (*host.Program, error) {
	key := "program:" + digest(text)
	if p, ok := e.programs.Get(key); ok {
		e.metrics.lookup("program", true)
		return p, nil
	}
	e.metrics.lookup("program", false)
	p, err := e.parser.Load().Parse(name, text)
	if err != nil {
		return nil, err
	}
	e.programs.Put(key, p)
	return p, nil
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (e *Engine) setDebugTemplate(name, text string) {
	e.mu.Lock()
	e.debugTemplates[name] = text
	e.mu.Unlock()
}

// GetDebugTemplates returns the compiled text of every view compiled so far.
func (e *Engine) GetDebugTemplates() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.debugTemplates)
}

func (e *Engine) flushCompiled() {
	e.compiled.Flush()
	e.inline.Flush()
	e.programs.Flush()
}

// Flush drops every in-memory cache and empties the file cache.
func (e *Engine) Flush() error {
	e.flushCompiled()
	e.finder.flush()
	e.mu.Lock()
	clear(e.debugTemplates)
	e.mu.Unlock()
	if e.files != nil {
		return e.files.Flush()
	}
	return nil
}

// invalidate forgets what is cached for the file p of the view filesystem.
func (e *Engine) invalidate(p string) {
	key, prefix := e.fileKey(p), e.filePrefix(p)
	e.compiled.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, prefix) })
	e.finder.flush()
	if e.files != nil {
		if err := e.files.Invalidate(key); err != nil {
			e.logger.Warn("invalidate compiled template", "path", p, "error", err)
		}
	}
	if name, ok := e.finder.nameFromPath(p); ok {
		e.mu.Lock()
		delete(e.debugTemplates, name)
		e.mu.Unlock()
	}
}

// Rendering

// Render executes the view identified by name (e.g., "pages/home" or
// "pages.home") into w with data.
func (e *Engine) Render(w io.Writer, name string, data any) error {
	return e.RenderContext(context.Background(), w, name, data)
}

// RenderContext is Render with a context, passed to collaborators and
// checked between statements.
func (e *Engine) RenderContext(ctx context.Context, w io.Writer, name string, data any) error {
	out, err := e.RenderToString(ctx, name, data)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func (e *Engine) RenderToString(ctx context.Context, name string, data any) (out string, err error) {
	defer e.observe("view", time.Now(), &err)
	vars, err := host.ToMap(data)
	if err != nil {
		return "", err
	}
	st := host.NewState()
	out, err = e.renderView(ctx, st, name, vars)
	if err != nil {
		return "", err
	}
	return e.finish(ctx, st, out), nil
}

// RenderString compiles and renders an inline template. Compiled text and
// programs are memoized by content.
func (e *Engine) RenderString(ctx context.Context, src string, data any) (out string, err error) {
	defer e.observe("string", time.Now(), &err)
	vars, err := host.ToMap(data)
	if err != nil {
		return "", err
	}
	text := e.compileInline(src)
	name := "inline:" + digest(src)[:12]
	prog, err := e.parse(name, text)
	if err != nil {
		return "", executionError(name, "", err)
	}
	st := host.NewState()
	f, out, err := e.execute(ctx, st, name, "", prog, vars)
	if err != nil {
		return "", err
	}
	if out, err = e.layout(ctx, st, f, out); err != nil {
		return "", err
	}
	return e.finish(ctx, st, out), nil
}

// RenderFragment renders the whole view and returns only what the named
// @fragment captured.
func (e *Engine) RenderFragment(ctx context.Context, name, fragment string, data any) (out string, err error) {
	defer e.observe("fragment", time.Now(), &err)
	vars, err := host.ToMap(data)
	if err != nil {
		return "", err
	}
	st := host.NewState()
	if _, err := e.renderView(ctx, st, name, vars); err != nil {
		return "", err
	}
	content, ok := st.Fragment(fragment)
	if !ok {
		return "", &FragmentNotFoundError{View: name, Fragment: fragment}
	}
	return content, nil
}

// Partial is the result of a render with the layout suppressed.
type Partial struct {
	HTML string
	// Layout is the view the page would have extended, "" when none.
	Layout string
}

// RenderPartial renders a view without its layout. The result is the
// requested section, else the configured partial section, else the view's
// own output, followed by every stack. When the view extends a layout a
// <meta name="blade-layout"> marker leads the result so clients can tell a
// partial swap from a full navigation.
func (e *Engine) RenderPartial(ctx context.Context, name string, data any, section ...string) (p Partial, err error) {
	defer e.observe("partial", time.Now(), &err)
	vars, err := host.ToMap(data)
	if err != nil {
		return p, err
	}
	st := host.NewState()
	st.Enter()
	defer st.Leave()
	f, out, err := e.executeView(ctx, st, name, vars)
	if err != nil {
		return p, err
	}
	p.Layout = f.Layout()

	var b strings.Builder
	if p.Layout != "" {
		b.WriteString(`<meta name="blade-layout" content="`)
		b.WriteString(html.EscapeString(p.Layout))
		b.WriteString(`">`)
	}
	body, found := "", false
	if len(section) > 0 && section[0] != "" {
		body, found = st.Section(section[0])
	}
	if !found {
		body, found = st.Section(e.config.PartialSection)
	}
	if !found {
		body = out
	}
	b.WriteString(body)
	for _, stack := range st.StackNames() {
		b.WriteString(st.Stack(stack))
	}
	p.HTML = e.finish(ctx, st, b.String())
	return p, nil
}

// RenderComponent renders a component outside of a template, as the
// lazy-load endpoint does.
func (e *Engine) RenderComponent(ctx context.Context, name string, attrs map[string]any, slot ...string) (out string, err error) {
	defer e.observe("component", time.Now(), &err)
	bag := attributeBag(attrs)
	inv := &host.Invocation{Name: name, Attributes: bag}
	if len(slot) > 0 {
		inv.Slot = host.NewSlot(slot[0], nil)
	}
	st := host.NewState()
	data := make(map[string]any, bag.Len())
	for _, a := range bag.All() {
		data[host.CamelCase(a.Name)] = a.Value
	}
	st.PushComponent(data)
	defer st.PopComponent()
	out, err = e.component(ctx, st, inv)
	if err != nil {
		return "", err
	}
	return e.finish(ctx, st, out), nil
}

// Hydrate renders the component sealed in a lazy payload.
func (e *Engine) Hydrate(ctx context.Context, token string) (string, error) {
	p, err := e.openLazy(token)
	if err != nil {
		return "", err
	}
	return e.RenderComponent(ctx, p.Component, p.Attributes)
}

func (e *Engine) observe(kind string, start time.Time, err *error) {
	e.metrics.observe(kind, start, *err)
	if *err != nil {
		e.logger.Debug("render failed", "kind", kind, "error", *err)
	}
}

// finish places pending teleports into the document.
func (e *Engine) finish(ctx context.Context, st *host.State, out string) string {
	nonce := ""
	if fn := e.Services().Nonce; fn != nil {
		nonce = fn(ctx)
	}
	return st.InjectTeleports(out, nonce)
}

// renderView renders a view and the layouts it extends.
func (e *Engine) renderView(ctx context.Context, st *host.State, name string, data map[string]any) (string, error) {
	if st.Enter() > e.config.MaxDepth {
		st.Leave()
		return "", fmt.Errorf("%w: %s", ErrTooDeep, name)
	}
	defer st.Leave()
	f, out, err := e.executeView(ctx, st, name, data)
	if err != nil {
		return "", err
	}
	return e.layout(ctx, st, f, out)
}

// layout renders the parent declared by f with f's variables. The child's
// own output is dropped; its sections live in the state.
func (e *Engine) layout(ctx context.Context, st *host.State, f *host.Frame, out string) (string, error) {
	if parent := f.Layout(); parent != "" {
		return e.renderView(ctx, st, parent, f.Data())
	}
	return out, nil
}

func (e *Engine) executeView(ctx context.Context, st *host.State, name string, data map[string]any) (*host.Frame, string, error) {
	loc, err := e.finder.find(name)
	if err != nil {
		return nil, "", err
	}
	text, err := e.compileFile(loc)
	if err != nil {
		return nil, "", err
	}
	prog, err := e.parse(loc.name, text)
	if err != nil {
		return nil, "", executionError(loc.name, loc.path, err)
	}
	return e.execute(ctx, st, loc.name, loc.path, prog, data)
}

func (e *Engine) execute(ctx context.Context, st *host.State, name, file string, prog *host.Program, data map[string]any) (*host.Frame, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	f := host.NewFrame(ctx, e, st, name, e.compose(ctx, name, data))
	out, err := f.Run(prog)
	if err != nil {
		return nil, "", executionError(name, file, err)
	}
	return f, out, nil
}

// compose builds the variables of a view: shared data, then the data passed
// in, then whatever matching composers add.
func (e *Engine) compose(ctx context.Context, name string, data map[string]any) map[string]any {
	e.mu.RLock()
	shared, composers := e.shared, e.composers
	e.mu.RUnlock()

	vars := make(map[string]any, len(shared)+len(data))
	maps.Copy(vars, shared)
	maps.Copy(vars, data)
	for _, c := range composers {
		if ok, _ := path.Match(c.pattern, name); ok || c.pattern == "*" {
			c.fn(ctx, name, vars)
		}
	}
	return vars
}
