// Package compiler turns Blade templates into host programs. Compilation is a
// fixed sequence of text passes and never fails: malformed directives are
// left in place and surface as syntax errors when the program is parsed.
package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrReservedDirective    = errors.New("directive name is reserved")
	ErrInvalidDirectiveName = errors.New("invalid directive name")
)

var reDirectiveName = regexp.MustCompile(`^\w+(?:::\w+)?$`)

// DirectiveFunc compiles a custom directive. It receives the argument text
// without the surrounding parentheses and returns the replacement text.
type DirectiveFunc func(expression string) string

// Precompiler rewrites raw template source before any pass runs.
type Precompiler func(source string) string

// Compiler holds the directive registrations. It is safe for concurrent use.
// Registration replaces the maps instead of writing into them, so a Compile
// keeps reading the snapshot it started with.
type Compiler struct {
	mu           sync.RWMutex
	directives   map[string]DirectiveFunc
	conditions   map[string]struct{}
	precompilers []Precompiler
	custom       *regexp.Regexp
	fingerprint  string
}

// New creates a compiler with only the builtin directives.
func New() *Compiler {
	c := &Compiler{
		directives: map[string]DirectiveFunc{},
		conditions: map[string]struct{}{},
	}
	c.fingerprint = c.computeFingerprint()
	return c
}

func (c *Compiler) reserved(name string) bool {
	if _, ok := builtinNames[name]; ok {
		return true
	}
	for cond := range c.conditions {
		if name == cond || name == "else"+cond || name == "unless"+cond || name == "end"+cond {
			return true
		}
	}
	return false
}

// Directive registers a custom directive.
func (c *Compiler) Directive(name string, fn DirectiveFunc) error {
	if !reDirectiveName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidDirectiveName, name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserved(name) {
		return fmt.Errorf("%w: @%s", ErrReservedDirective, name)
	}
	directives := maps.Clone(c.directives)
	directives[name] = fn
	c.directives = directives
	c.custom = buildCustomPattern(directives)
	c.fingerprint = c.computeFingerprint()
	return nil
}

// If registers a custom conditional: @name(args), @elsename(args),
// @unlessname(args) and @endname. The condition itself is evaluated at
// render time through blade.Check.
func (c *Compiler) If(name string) error {
	if !reDirectiveName.MatchString(name) || strings.Contains(name, "::") {
		return fmt.Errorf("%w: %q", ErrInvalidDirectiveName, name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range []string{name, "else" + name, "unless" + name, "end" + name} {
		if _, ok := builtinNames[n]; ok {
			return fmt.Errorf("%w: @%s", ErrReservedDirective, n)
		}
		if _, ok := c.directives[n]; ok {
			return fmt.Errorf("%w: @%s", ErrReservedDirective, n)
		}
	}
	conditions := maps.Clone(c.conditions)
	conditions[name] = struct{}{}
	c.conditions = conditions
	c.fingerprint = c.computeFingerprint()
	return nil
}

// Precompiler adds a hook run on the raw source before the first pass.
func (c *Compiler) Precompiler(fn Precompiler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.precompilers = append(slices.Clip(c.precompilers), fn)
	c.fingerprint = c.computeFingerprint()
}

// Fingerprint identifies the registration state. Output compiled under one
// fingerprint is only valid while the compiler reports the same one.
func (c *Compiler) Fingerprint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fingerprint
}

func (c *Compiler) computeFingerprint() string {
	var b strings.Builder
	for _, name := range slices.Sorted(maps.Keys(c.directives)) {
		b.WriteString("d:" + name + "\n")
	}
	for _, name := range slices.Sorted(maps.Keys(c.conditions)) {
		b.WriteString("c:" + name + "\n")
	}
	b.WriteString("p:" + strconv.Itoa(len(c.precompilers)))
	return shortHash(b.String())
}

// Directives returns the custom directive names in order.
func (c *Compiler) Directives() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.directives))
	for name := range c.directives {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Builtins returns the names of the builtin directives in order.
func Builtins() []string {
	names := make([]string, 0, len(builtinNames))
	for name := range builtinNames {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// buildCustomPattern matches custom and builtin names longest first so a
// short name never wins over a longer one sharing its prefix.
func buildCustomPattern(custom map[string]DirectiveFunc) *regexp.Regexp {
	if len(custom) == 0 {
		return nil
	}
	names := make([]string, 0, len(custom)+len(builtinNames))
	for name := range custom {
		names = append(names, name)
	}
	for name := range builtinNames {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = regexp.QuoteMeta(name)
	}
	return regexp.MustCompile(`^(?:` + strings.Join(quoted, "|") + `)`)
}

// compilation is the state of one Compile call.
type compilation struct {
	directives map[string]DirectiveFunc
	conditions map[string]struct{}
	custom     *regexp.Regexp
	handlers   map[string]handler

	id      string
	stashed []string
	forelse []int
	empties int
	once    int
	footer  string
}

// Compile runs every pass over source and returns the host program text.
// The output depends only on source and the registered directives.
func (c *Compiler) Compile(source string) string {
	c.mu.RLock()
	cp := &compilation{
		directives: c.directives,
		conditions: c.conditions,
		custom:     c.custom,
		id:         shortHash(source),
	}
	precompilers := slices.Clone(c.precompilers)
	c.mu.RUnlock()
	cp.handlers = cp.builtinHandlers()

	text := source
	for _, pre := range precompilers {
		text = pre(text)
	}
	text = stripComments(text)
	text = cp.extractVerbatim(text)
	text = cp.compileComponents(text)
	text = cp.compileBody(text)
	return cp.restore(text) + cp.footer
}

// compileBody runs the passes that follow component extraction. Slot bodies
// go through it too.
func (cp *compilation) compileBody(text string) string {
	text = cp.compileTags(text)
	text = cp.compileRawBlocks(text)
	text = cp.compileStructures(text)
	text = cp.compileCustom(text)
	text = cp.compileInheritance(text)
	text = cp.compileForms(text)
	text = cp.compileComponentDirectives(text)
	text = cp.compileHelpers(text)
	return cp.compileEchos(text)
}

// compileFragment compiles a slot body to its final text.
func (cp *compilation) compileFragment(text string) string {
	return cp.restore(cp.compileBody(text))
}

const placeholderMark = "\x1a"

var rePlaceholder = regexp.MustCompile("\x1a(\\d+)\x1a")

// stash hides text from the remaining passes.
func (cp *compilation) stash(text string) string {
	cp.stashed = append(cp.stashed, text)
	return placeholderMark + strconv.Itoa(len(cp.stashed)-1) + placeholderMark
}

// restore puts stashed text back. Stashed text may itself hold placeholders.
func (cp *compilation) restore(text string) string {
	for range len(cp.stashed) + 1 {
		if !strings.Contains(text, placeholderMark) {
			break
		}
		text = rePlaceholder.ReplaceAllStringFunc(text, func(m string) string {
			i, err := strconv.Atoi(m[1 : len(m)-1])
			if err != nil || i >= len(cp.stashed) {
				return m
			}
			return cp.stashed[i]
		})
	}
	return text
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:4])
}
