package blade

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dangdungcntt/go-blade/v2/cache"
	"github.com/dangdungcntt/go-blade/v2/host"
)

// ValidFileExtensions are tried in order when resolving a view name.
var ValidFileExtensions = []string{".blade.html", ".blade", ".html", ".tmpl", ".gohtml"}

// Config holds the engine settings. The CLI loads it with viper, so every
// field carries a mapstructure tag.
type Config struct {
	// Extensions overrides ValidFileExtensions.
	Extensions []string `mapstructure:"extensions"`
	// Theme is a directory under themes/ searched before the view root.
	Theme string `mapstructure:"theme"`
	// CachePath enables the on-disk compiled artifact cache.
	CachePath string `mapstructure:"cache_path"`
	// TrustCache serves cached artifacts without comparing modification
	// times.
	TrustCache      bool   `mapstructure:"trust_cache"`
	Debug           bool   `mapstructure:"debug"`
	Environment     string `mapstructure:"environment"`
	AssetURL        string `mapstructure:"asset_url"`
	MemoryCacheSize int    `mapstructure:"memory_cache_size"`
	// LazyKey seeds the key sealing lazy component payloads. When empty a
	// random key is generated and payloads only survive the process.
	LazyKey      string `mapstructure:"lazy_key"`
	LazyEndpoint string `mapstructure:"lazy_endpoint"`
	// PartialSection is the section returned by partial renders.
	PartialSection string `mapstructure:"partial_section"`
	MaxDepth       int    `mapstructure:"max_depth"`
}

// DefaultConfig returns the settings used when no Config is given.
func DefaultConfig() Config {
	return Config{
		Extensions:      ValidFileExtensions,
		Environment:     "production",
		MemoryCacheSize: cache.DefaultSize,
		LazyEndpoint:    "/_blade/lazy",
		PartialSection:  "content",
		MaxDepth:        64,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if len(c.Extensions) == 0 {
		c.Extensions = def.Extensions
	}
	if c.Environment == "" {
		c.Environment = def.Environment
	}
	if c.MemoryCacheSize <= 0 {
		c.MemoryCacheSize = def.MemoryCacheSize
	}
	if c.LazyEndpoint == "" {
		c.LazyEndpoint = def.LazyEndpoint
	}
	if c.PartialSection == "" {
		c.PartialSection = def.PartialSection
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = def.MaxDepth
	}
	return c
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the engine settings. Zero fields take their defaults.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.config = cfg.withDefaults() }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRegistry registers the engine metrics on reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.registry = reg }
}

func WithAuth(auth Authenticator) Option {
	return func(e *Engine) { e.services.Auth = auth }
}

func WithGate(gate Authorizer) Option {
	return func(e *Engine) { e.services.Gate = gate }
}

// WithConfigAccessor backs @config.
func WithConfigAccessor(cfg ConfigAccessor) Option {
	return func(e *Engine) { e.services.Config = cfg }
}

// WithStore backs @cache blocks.
func WithStore(store cache.Store) Option {
	return func(e *Engine) { e.services.Cache = store }
}

func WithTranslator(t Translator) Option {
	return func(e *Engine) { e.services.Translator = t }
}

func WithRouter(r Router) Option {
	return func(e *Engine) { e.services.Router = r }
}

// WithCSRF overrides the token source of @csrf. The default reads the token
// gorilla/csrf attached to the request bound with Middleware.
func WithCSRF(fn func(ctx context.Context) string) Option {
	return func(e *Engine) { e.services.CSRF = fn }
}

// WithNonce sets the CSP nonce source used by teleports and @vite.
func WithNonce(fn func(ctx context.Context) string) Option {
	return func(e *Engine) { e.services.Nonce = fn }
}

// WithEncrypter replaces the sealing of lazy component payloads.
func WithEncrypter(enc Encrypter) Option {
	return func(e *Engine) { e.encrypter = enc }
}

// WithFuncs adds helpers callable from template expressions.
func WithFuncs(funcs map[string]host.Func) Option {
	return func(e *Engine) {
		for name, fn := range funcs {
			e.funcs[name] = fn
		}
	}
}
