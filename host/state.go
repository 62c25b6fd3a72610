package host

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ParentPlaceholder marks where @parent pulls in the parent's section body.
const ParentPlaceholder = "##parent-placeholder-d8fd39d0bbdd2dcf322d8b11390a4c5825b11495##"

var (
	ErrFragmentReentered = errors.New("fragment already open")
	ErrTeleportNotOpen   = errors.New("no open teleport")
	ErrNoOpenSection     = errors.New("cannot end a section without first starting one")
	ErrNoOpenPush        = errors.New("cannot end a push stack without first starting one")
	ErrNoOpenFragment    = errors.New("cannot end a fragment without first starting one")
	ErrNoOpenCapture     = errors.New("cannot end a capture without first starting one")
)

type pushEntry struct {
	name    string
	prepend bool
}

type cacheBlock struct {
	key     string
	ttl     any
	hit     bool
	content string
}

// State is the mutable per-render context: output sinks, sections, stacks,
// fragments, teleports and once-markers. A new State is created for every
// top-level render and passed down explicitly to layouts, includes and
// components, so concurrent renders never share one.
type State struct {
	sinks []*strings.Builder

	sections     map[string]string
	sectionStack []string

	stacks     map[string][]string
	stackOrder []string
	pushStack  []pushEntry

	fragments     map[string]string
	fragmentStack []string

	teleports     map[string][]string
	teleportOrder []string
	teleportStack []string

	once       map[string]struct{}
	components []map[string]any
	caches     []*cacheBlock
	captures   int
	depth      int
}

// NewState creates an empty render state.
func NewState() *State {
	return &State{
		sections:  map[string]string{},
		stacks:    map[string][]string{},
		fragments: map[string]string{},
		teleports: map[string][]string{},
		once:      map[string]struct{}{},
	}
}

func (s *State) pushSink() {
	s.sinks = append(s.sinks, &strings.Builder{})
}

func (s *State) popSink() string {
	if len(s.sinks) == 0 {
		return ""
	}
	top := s.sinks[len(s.sinks)-1]
	s.sinks = s.sinks[:len(s.sinks)-1]
	return top.String()
}

func (s *State) sinkDepth() int { return len(s.sinks) }

func (s *State) out() *strings.Builder {
	if len(s.sinks) == 0 {
		s.pushSink()
	}
	return s.sinks[len(s.sinks)-1]
}

// Enter bumps the nesting depth of renders and returns it.
func (s *State) Enter() int {
	s.depth++
	return s.depth
}

// Leave undoes Enter.
func (s *State) Leave() { s.depth-- }

// Sections

func (s *State) startSection(name string) {
	s.sectionStack = append(s.sectionStack, name)
	s.pushSink()
}

func (s *State) stopSection(overwrite bool) (string, error) {
	if len(s.sectionStack) == 0 {
		return "", ErrNoOpenSection
	}
	name := s.sectionStack[len(s.sectionStack)-1]
	s.sectionStack = s.sectionStack[:len(s.sectionStack)-1]
	content := s.popSink()
	if overwrite {
		s.sections[name] = content
	} else {
		s.extendSection(name, content)
	}
	return name, nil
}

func (s *State) appendSection() (string, error) {
	if len(s.sectionStack) == 0 {
		return "", ErrNoOpenSection
	}
	name := s.sectionStack[len(s.sectionStack)-1]
	s.sectionStack = s.sectionStack[:len(s.sectionStack)-1]
	s.sections[name] += s.popSink()
	return name, nil
}

// extendSection keeps content captured earlier in the render (the child's)
// and substitutes the new content for its @parent markers.
func (s *State) extendSection(name, content string) {
	if existing, ok := s.sections[name]; ok {
		content = strings.ReplaceAll(existing, ParentPlaceholder, content)
	}
	s.sections[name] = content
}

// Section returns the final content of a section.
func (s *State) Section(name string) (string, bool) {
	content, ok := s.sections[name]
	if !ok {
		return "", false
	}
	return strings.ReplaceAll(content, ParentPlaceholder, ""), true
}

// HasSection reports whether name has non-blank content.
func (s *State) HasSection(name string) bool {
	content, ok := s.Section(name)
	return ok && strings.TrimSpace(content) != ""
}

// Stacks

func (s *State) startPush(name string, prepend bool) {
	s.pushStack = append(s.pushStack, pushEntry{name: name, prepend: prepend})
	s.pushSink()
}

func (s *State) stopPush(prepend bool) error {
	if len(s.pushStack) == 0 || s.pushStack[len(s.pushStack)-1].prepend != prepend {
		return ErrNoOpenPush
	}
	entry := s.pushStack[len(s.pushStack)-1]
	s.pushStack = s.pushStack[:len(s.pushStack)-1]
	s.Push(entry.name, s.popSink(), prepend)
	return nil
}

// Push adds content to a stack, at the head when prepend is set.
func (s *State) Push(name, content string, prepend bool) {
	if _, ok := s.stacks[name]; !ok {
		s.stackOrder = append(s.stackOrder, name)
	}
	if prepend {
		s.stacks[name] = append([]string{content}, s.stacks[name]...)
		return
	}
	s.stacks[name] = append(s.stacks[name], content)
}

// Stack returns the concatenated entries of a stack.
func (s *State) Stack(name string) string {
	return strings.Join(s.stacks[name], "")
}

// StackNames returns stacks in the order they were first pushed to.
func (s *State) StackNames() []string {
	return slices.Clone(s.stackOrder)
}

// Fragments

func (s *State) startFragment(name string) error {
	if slices.Contains(s.fragmentStack, name) {
		return fmt.Errorf("%w: %q", ErrFragmentReentered, name)
	}
	s.fragmentStack = append(s.fragmentStack, name)
	s.pushSink()
	return nil
}

func (s *State) stopFragment() (string, error) {
	if len(s.fragmentStack) == 0 {
		return "", ErrNoOpenFragment
	}
	name := s.fragmentStack[len(s.fragmentStack)-1]
	s.fragmentStack = s.fragmentStack[:len(s.fragmentStack)-1]
	content := s.popSink()
	s.fragments[name] = content
	return content, nil
}

// Fragment returns the last captured content for name.
func (s *State) Fragment(name string) (string, bool) {
	content, ok := s.fragments[name]
	return content, ok
}

// ResetFragments forgets every captured fragment.
func (s *State) ResetFragments() {
	s.fragments = map[string]string{}
	s.fragmentStack = nil
}

// Once reports whether id is seen for the first time in this render.
func (s *State) Once(id string) bool {
	if _, ok := s.once[id]; ok {
		return false
	}
	s.once[id] = struct{}{}
	return true
}

// PushComponent records the data of a component being rendered.
func (s *State) PushComponent(data map[string]any) {
	s.components = append(s.components, data)
}

// PopComponent undoes PushComponent.
func (s *State) PopComponent() {
	if len(s.components) > 0 {
		s.components = s.components[:len(s.components)-1]
	}
}

// aware looks a key up in the enclosing components, nearest first. The
// component currently rendering is skipped.
func (s *State) aware(key string) (any, bool) {
	for i := len(s.components) - 2; i >= 0; i-- {
		if v, ok := s.components[i][key]; ok {
			return v, true
		}
	}
	return nil, false
}
