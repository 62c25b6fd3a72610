package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	blade "github.com/dangdungcntt/go-blade/v2"
)

func newServeCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the views under pages/ over HTTP",
		Long: `Serve the views under pages/ over HTTP: /about renders pages/about and /
renders pages/index. Requests carrying X-Blade-Partial get the page without
its layout. Views are recompiled as they change unless --watch=false.

Lazy components are answered on the lazy endpoint; clients post the payload
with the X-CSRF-Token header set from @csrf.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), s)
		},
	}
	f := cmd.Flags()
	f.String("addr", ":8080", "address to listen on")
	f.String("csrf-key", "", "32 byte CSRF authentication key (default random)")
	f.Bool("watch", true, "recompile views as they change")
	_ = s.v.BindPFlag("addr", f.Lookup("addr"))
	_ = s.v.BindPFlag("csrf_key", f.Lookup("csrf-key"))
	_ = s.v.BindPFlag("watch", f.Lookup("watch"))
	return cmd
}

func runServe(ctx context.Context, s *settings) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []blade.Option{blade.WithRegistry(prometheus.DefaultRegisterer)}
	st, closeStore, err := s.store(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	if st != nil {
		opts = append(opts, blade.WithStore(st))
	}
	e, err := s.engine(opts...)
	if err != nil {
		return err
	}
	cfg := e.Config()

	if s.v.GetBool("watch") {
		go func() {
			if err := e.Watch(ctx); err != nil {
				s.logger.Warn("watch views", "error", err)
			}
		}()
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.HTMLRender = blade.NewHTMLRender(e)
	r.Any(cfg.LazyEndpoint, gin.WrapH(e.LazyHandler()))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(func(c *gin.Context) {
		e.Handler(pageView(c.Request.URL.Path), requestData).ServeHTTP(c.Writer, c.Request)
	})

	key, err := csrfKey(s.v.GetString("csrf_key"))
	if err != nil {
		return err
	}
	protect := csrf.Protect(key, csrf.Secure(!cfg.Debug), csrf.Path("/"))

	srv := &http.Server{
		Addr:              s.v.GetString("addr"),
		Handler:           plaintext(protect(blade.Middleware(r))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving views", "addr", srv.Addr, "views", s.v.GetString("views"))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// pageView maps a request path to a view under pages/.
func pageView(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		p = "index"
	}
	return "pages/" + p
}

func requestData(r *http.Request) any {
	query := map[string]any{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}
	return map[string]any{
		"path":  r.URL.Path,
		"query": query,
	}
}

// plaintext tells gorilla/csrf which requests arrived without TLS so its
// origin checks accept http:// referers.
func plaintext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			r = csrf.PlaintextHTTPRequest(r)
		}
		next.ServeHTTP(w, r)
	})
}

func csrfKey(configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
