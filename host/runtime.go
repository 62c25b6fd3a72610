package host

import (
	"context"

	"github.com/dangdungcntt/go-blade/v2/cache"
)

// Runtime is implemented by the engine that owns view resolution, component
// lookup and lazy payloads. Frames call back into it while executing.
type Runtime interface {
	// Include renders view with exactly data and returns its output.
	Include(f *Frame, view string, data map[string]any) (HTML, error)
	// Exists reports whether view can be resolved.
	Exists(f *Frame, view string) bool
	// Component renders a component invocation.
	Component(f *Frame, inv *Invocation) (HTML, error)
	// Lazy renders the deferred-load wrapper for a component.
	Lazy(f *Frame, name string, attrs map[string]any) (HTML, error)
	// Services returns the collaborators available to templates.
	Services() *Services
}

// Authenticator reports whether the current request is authenticated with
// the given guard ("" for the default guard).
type Authenticator interface {
	Check(ctx context.Context, guard string) bool
}

// Authorizer answers ability and role checks.
type Authorizer interface {
	Allows(ctx context.Context, ability string, args ...any) bool
	HasRole(ctx context.Context, role string) bool
}

// ConfigAccessor reads configuration values by dotted key.
type ConfigAccessor interface {
	Get(key string) (any, bool)
}

// Translator resolves translation keys. count is negative for plain lookups.
type Translator interface {
	Translate(ctx context.Context, key string, count int, replace map[string]any) (string, bool)
}

// Router builds URLs for named routes.
type Router interface {
	URL(name string, params map[string]any) (string, error)
}

// ErrorBag is the validation error source read by @error.
type ErrorBag interface {
	Has(field string) bool
	First(field string) string
}

// Condition backs a custom conditional directive.
type Condition func(ctx context.Context, args ...any) bool

// Services are the collaborators consulted by template helpers. Any of them
// may be nil; helpers then behave as if the check failed or the value is
// missing.
type Services struct {
	Auth        Authenticator
	Gate        Authorizer
	Config      ConfigAccessor
	Cache       cache.Store
	Translator  Translator
	Router      Router
	Conditions  map[string]Condition
	Container   map[string]any
	CSRF        func(ctx context.Context) string
	Nonce       func(ctx context.Context) string
	Environment string
	AssetURL    string
}
