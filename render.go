package blade

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin/render"
)

// genericRenderError replaces render failures in contexts that cannot
// return an error.
const genericRenderError = "An error occurred while rendering the view."

// View is a view bound to an engine. It renders when coerced to a string.
type View interface {
	Name() string
	Data() any
	Status() int
	fmt.Stringer
}

type view struct {
	e      *Engine
	ctx    context.Context
	name   string
	data   any
	status int
}

// NewView binds name and data to the engine. ctx reaches the collaborators
// when the view renders.
func (e *Engine) NewView(ctx context.Context, name string, data any, status ...int) View {
	statusCode := http.StatusOK
	if len(status) > 0 {
		statusCode = status[0]
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &view{
		e:      e,
		ctx:    ctx,
		name:   name,
		data:   data,
		status: statusCode,
	}
}

func (v *view) Name() string {
	return v.name
}

func (v *view) Data() any {
	return v.data
}

func (v *view) Status() int {
	return v.status
}

// String renders the view. Errors cannot escape a string coercion, so they
// are logged and replaced by a generic message, or by the details in debug
// mode.
func (v *view) String() string {
	out, err := v.e.RenderToString(v.ctx, v.name, v.data)
	if err != nil {
		v.e.logger.Warn("view rendered as string failed", "view", v.name, "error", err)
		return v.e.errorMessage(err)
	}
	return out
}

// ToHTML lets a view echoed from another view render unescaped.
func (v *view) ToHTML() string {
	return v.String()
}

const maxDebugStack = 2048

func (e *Engine) errorMessage(err error) string {
	if !e.config.Debug {
		return genericRenderError
	}
	file, line := "", 0
	var ee *ExecutionError
	if errors.As(err, &ee) {
		file, line = ee.File, ee.Line
	}
	stack := debug.Stack()
	if len(stack) > maxDebugStack {
		stack = append(stack[:maxDebugStack], "\n..."...)
	}
	return fmt.Sprintf("<pre class=\"blade-error\">%s\nfile: %s\nline: %d\n\n%s</pre>",
		html.EscapeString(err.Error()), html.EscapeString(file), line, html.EscapeString(string(stack)))
}

var _ render.HTMLRender = (*HtmlRender)(nil)

// HtmlRender gin HtmlRender compatible
type HtmlRender struct {
	e *Engine
}

// NewHTMLRender create a new HtmlRender
func NewHTMLRender(e *Engine) *HtmlRender {
	return &HtmlRender{e: e}
}

// Instance returns a new render.Render. data may be a View from NewView,
// which carries the request context and, with an empty name, the view name.
func (h *HtmlRender) Instance(name string, data any) render.Render {
	r := &Render{e: h.e, ctx: context.Background(), name: name, data: data}
	if v, ok := data.(*view); ok {
		r.ctx, r.data = v.ctx, v.data
		if r.name == "" {
			r.name = v.name
		}
	}
	return r
}

// Render renders HTML template with data and write to w
type Render struct {
	e    *Engine
	ctx  context.Context
	name string
	data any
}

// Render renders HTML template with data and writes to w
func (r *Render) Render(w http.ResponseWriter) error {
	r.WriteContentType(w)
	return r.e.RenderContext(r.ctx, w, r.name, r.data)
}

// WriteContentType write an HTML content type to the response header if not set
func (r *Render) WriteContentType(w http.ResponseWriter) {
	writeContentType(w)
}
