package blade

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Templ adapts a view to a templ.Component so it can be nested in templ
// markup. templ components echoed from a view render in place as well.
func (e *Engine) Templ(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return e.RenderContext(ctx, w, name, data)
	})
}
