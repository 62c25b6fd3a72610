package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	blade "github.com/dangdungcntt/go-blade/v2"
	"github.com/dangdungcntt/go-blade/v2/cache"
)

// settings carries what every command needs: the loaded configuration and
// the logger built from it.
type settings struct {
	v       *viper.Viper
	cfgFile string
	logger  *slog.Logger
}

// flagKeys maps persistent flags to their configuration keys.
var flagKeys = map[string]string{
	"views":       "views",
	"theme":       "theme",
	"cache-path":  "cache_path",
	"trust-cache": "trust_cache",
	"debug":       "debug",
	"store":       "store",
	"log-level":   "log_level",
}

func newRootCmd() *cobra.Command {
	s := &settings{v: viper.New()}

	root := &cobra.Command{
		Use:   "blade",
		Short: "Compile, render and serve Blade views",
		Long: `blade works on a directory of Blade views.

Quick Start:
  blade compile --print pages.home   Show the compiled program of a view
  blade render pages.home -d data.yml Render a view with data
  blade cache clear                  Drop compiled artifacts
  blade serve                        Serve views/pages over HTTP`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&s.cfgFile, "config", "", "config file (default is .blade.yml, can also use BLADE_CONFIG_FILE env var)")
	pf.String("views", "views", "view directory")
	pf.String("theme", "", "theme directory under themes/ searched first")
	pf.String("cache-path", "", "directory for compiled artifacts")
	pf.Bool("trust-cache", false, "serve cached artifacts without checking modification times")
	pf.Bool("debug", false, "include error details in rendered output")
	pf.String("store", "", "sqlite database backing @cache blocks (default in memory)")
	pf.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	for flag, key := range flagKeys {
		_ = s.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		newCompileCmd(s),
		newRenderCmd(s),
		newCacheCmd(s),
		newServeCmd(s),
	)
	return root
}

// load reads .env, the config file and the environment.
func (s *settings) load(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	v := s.v
	switch {
	case s.cfgFile != "":
		v.SetConfigFile(s.cfgFile)
	case os.Getenv("BLADE_CONFIG_FILE") != "":
		v.SetConfigFile(os.Getenv("BLADE_CONFIG_FILE"))
	default:
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".blade")
	}
	v.SetEnvPrefix("BLADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	def := blade.DefaultConfig()
	v.SetDefault("extensions", def.Extensions)
	v.SetDefault("environment", def.Environment)
	v.SetDefault("asset_url", def.AssetURL)
	v.SetDefault("memory_cache_size", def.MemoryCacheSize)
	v.SetDefault("lazy_key", def.LazyKey)
	v.SetDefault("lazy_endpoint", def.LazyEndpoint)
	v.SetDefault("partial_section", def.PartialSection)
	v.SetDefault("max_depth", def.MaxDepth)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	s.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	if used := v.ConfigFileUsed(); used != "" {
		s.logger.Debug("using config file", "path", used)
	}
	return nil
}

func (s *settings) config() (blade.Config, error) {
	var cfg blade.Config
	if err := s.v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// engine builds an engine over the view directory. The app, routes and lang
// sections of the config file back @config, @route and @lang.
func (s *settings) engine(opts ...blade.Option) (*blade.Engine, error) {
	cfg, err := s.config()
	if err != nil {
		return nil, err
	}
	dir := s.v.GetString("views")
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("view directory %q not found", dir)
	}
	base := []blade.Option{
		blade.WithConfig(cfg),
		blade.WithLogger(s.logger),
		blade.WithConfigAccessor(blade.MapConfig(s.v.GetStringMap("app"))),
		blade.WithRouter(blade.MapRouter(s.v.GetStringMapString("routes"))),
		blade.WithTranslator(blade.MapTranslator(s.v.GetStringMapString("lang"))),
	}
	return blade.New(dir, append(base, opts...)...), nil
}

// store opens the sqlite database named by --store, or nil when @cache
// blocks should stay in memory.
func (s *settings) store(ctx context.Context) (*cache.SQLStore, func() error, error) {
	dsn := s.v.GetString("store")
	if dsn == "" {
		return nil, func() error { return nil }, nil
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	st, err := cache.NewSQLStore(ctx, db, "")
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return st, db.Close, nil
}
