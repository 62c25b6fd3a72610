package blade

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/csrf"
)

// Request headers exchanged with partial-swap clients.
const (
	HeaderPartial = "X-Blade-Partial"
	HeaderSection = "X-Blade-Section"
	HeaderLayout  = "X-Blade-Layout"
)

type requestKey struct{}

type nonceKey struct{}

// WithRequest binds r to ctx so @csrf can read the token gorilla/csrf issued
// for it.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// ContextWithNonce sets the CSP nonce read by teleport and @vite output.
func ContextWithNonce(ctx context.Context, nonce string) context.Context {
	return context.WithValue(ctx, nonceKey{}, nonce)
}

// Middleware binds every request to its own context. Place it inside
// csrf.Protect so the token is available.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithRequest(r.Context(), r)))
	})
}

func requestCSRFToken(ctx context.Context) string {
	if r, ok := ctx.Value(requestKey{}).(*http.Request); ok {
		return csrf.Token(r)
	}
	return ""
}

func requestNonce(ctx context.Context) string {
	nonce, _ := ctx.Value(nonceKey{}).(string)
	return nonce
}

// IsPartial reports whether the client asked for the page without its
// layout.
func IsPartial(r *http.Request) bool {
	return r.Header.Get(HeaderPartial) != ""
}

// Respond renders a view as the response to r. Partial requests get
// RenderPartial output, with the suppressed layout in X-Blade-Layout.
func (e *Engine) Respond(w http.ResponseWriter, r *http.Request, name string, data any, status int) error {
	ctx := WithRequest(r.Context(), r)
	var out string
	if IsPartial(r) {
		p, err := e.RenderPartial(ctx, name, data, r.Header.Get(HeaderSection))
		if err != nil {
			return err
		}
		if p.Layout != "" {
			w.Header().Set(HeaderLayout, p.Layout)
		}
		w.Header().Add("Vary", HeaderPartial)
		out = p.HTML
	} else {
		var err error
		if out, err = e.RenderToString(ctx, name, data); err != nil {
			return err
		}
	}
	writeContentType(w)
	w.WriteHeader(status)
	_, err := io.WriteString(w, out)
	return err
}

// Handler serves one view, building its data from the request.
func (e *Engine) Handler(name string, data func(r *http.Request) any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var d any
		if data != nil {
			d = data(r)
		}
		if err := e.Respond(w, r, name, d, http.StatusOK); err != nil {
			e.fail(w, r, err)
		}
	})
}

// LazyHandler answers the requests lazy component wrappers make. The sealed
// payload comes in the "payload" form or query value.
func (e *Engine) LazyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.FormValue("payload")
		if token == "" {
			http.Error(w, "missing payload", http.StatusBadRequest)
			return
		}
		out, err := e.Hydrate(WithRequest(r.Context(), r), token)
		if err != nil {
			e.fail(w, r, err)
			return
		}
		writeContentType(w)
		_, _ = io.WriteString(w, out)
	})
}

func (e *Engine) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrLazyPayload):
		status = http.StatusBadRequest
	case IsNotFound(err) && !errors.Is(err, ErrExecution):
		status = http.StatusNotFound
	}
	e.logger.Error("render request", "path", r.URL.Path, "status", status, "error", err)
	http.Error(w, http.StatusText(status), status)
}

func writeContentType(w http.ResponseWriter) {
	header := w.Header()
	if val := header["Content-Type"]; len(val) == 0 {
		header["Content-Type"] = []string{"text/html; charset=utf-8"}
	}
}
