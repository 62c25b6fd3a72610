package blade

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dangdungcntt/go-blade/v2/compiler"
	"github.com/dangdungcntt/go-blade/v2/host"
)

// Sentinel errors. Every typed error below matches one of them with errors.Is.
var (
	ErrTemplateNotFound  = errors.New("blade: template not found")
	ErrComponentNotFound = errors.New("blade: component not found")
	ErrInvalidPath       = errors.New("blade: invalid template path")
	ErrExecution         = errors.New("blade: template execution failed")
	ErrFragmentNotFound  = errors.New("blade: fragment not found")
	ErrLazyPayload       = errors.New("blade: invalid lazy payload")
	ErrTooDeep           = errors.New("blade: templates nested too deep")

	ErrFragmentReentered    = host.ErrFragmentReentered
	ErrTeleportNotOpen      = host.ErrTeleportNotOpen
	ErrUnclosedBlock        = host.ErrUnclosedBlock
	ErrReservedDirective    = compiler.ErrReservedDirective
	ErrInvalidDirectiveName = compiler.ErrInvalidDirectiveName
)

// TemplateNotFoundError is returned when no file matches a view name.
type TemplateNotFoundError struct {
	Name     string
	Searched []string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template %q not found (searched %s)", e.Name, strings.Join(e.Searched, ", "))
}

func (e *TemplateNotFoundError) Is(target error) bool { return target == ErrTemplateNotFound }

// ComponentNotFoundError is returned when a component is neither registered
// nor backed by a view.
type ComponentNotFoundError struct {
	Name     string
	Searched []string
}

func (e *ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component %q not found (searched %s)", e.Name, strings.Join(e.Searched, ", "))
}

func (e *ComponentNotFoundError) Is(target error) bool { return target == ErrComponentNotFound }

// InvalidPathError rejects names that would leave the view root.
type InvalidPathError struct {
	Name string
	Path string
}

func (e *InvalidPathError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid template name %q", e.Name)
	}
	return fmt.Sprintf("template %q resolves outside the view root: %s", e.Name, e.Path)
}

func (e *InvalidPathError) Is(target error) bool { return target == ErrInvalidPath }

// ExecutionError carries the template, file and line where rendering failed.
type ExecutionError struct {
	Template string
	File     string
	Line     int
	Err      error
}

func (e *ExecutionError) Error() string {
	loc := e.File
	if loc == "" {
		loc = e.Template
	}
	if e.Line > 0 {
		return fmt.Sprintf("[%s] %s:%d: %v", e.Template, loc, e.Line, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Template, loc, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// FragmentNotFoundError is returned by RenderFragment when the view never
// defines the fragment.
type FragmentNotFoundError struct {
	View     string
	Fragment string
}

func (e *FragmentNotFoundError) Error() string {
	return fmt.Sprintf("fragment %q not found in %q", e.Fragment, e.View)
}

func (e *FragmentNotFoundError) Is(target error) bool { return target == ErrFragmentNotFound }

// IsNotFound reports whether err is a missing template or component.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound) || errors.Is(err, ErrComponentNotFound)
}

// executionError attaches the position of the failing statement. An error
// raised inside a nested view already carries its own position and is
// returned as it is.
func executionError(name, file string, err error) error {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	line := 0
	var he *host.Error
	var se *host.SyntaxError
	switch {
	case errors.As(err, &he):
		line = he.Line
	case errors.As(err, &se):
		line = se.Line
	}
	return &ExecutionError{Template: name, File: file, Line: line, Err: err}
}
