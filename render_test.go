package blade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestViewRendersAsString(t *testing.T) {
	views := map[string]string{
		"hello.blade": "Hello {{ $name }}",
		"boom.blade":  "first\n@route('x')",
	}
	e := newTestEngine(t, views)

	v := e.NewView(context.Background(), "hello", map[string]any{"name": "Ann"}, http.StatusAccepted)
	assert.Equal(t, "hello", v.Name())
	assert.Equal(t, http.StatusAccepted, v.Status())
	assert.Equal(t, "Hello Ann", v.String())

	assert.Equal(t, genericRenderError, e.NewView(context.Background(), "boom", nil).String())

	debug := newTestEngine(t, views, WithConfig(Config{Debug: true}))
	msg := debug.NewView(context.Background(), "boom", nil).String()
	assert.Contains(t, msg, `<pre class="blade-error">`)
	assert.Contains(t, msg, "no router configured")
	assert.Contains(t, msg, "line: 2")
}

func TestViewsNestInsideViews(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"card.blade": "[{{ $title }}]",
		"page.blade": "<main>{{ $card }}</main>",
	})

	card := e.NewView(context.Background(), "card", map[string]any{"title": "<b>"})
	out := renderView(t, e, "page", map[string]any{"card": card})
	assert.Equal(t, "<main>[&lt;b&gt;]</main>", out)
}

func TestGinHTMLRender(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := newTestEngine(t, map[string]string{"hello.blade": "Hello {{ $Name }}"})

	r := gin.New()
	r.HTMLRender = NewHTMLRender(e)
	r.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "hello", gin.H{"Name": "Gin"})
	})
	r.GET("/view", func(c *gin.Context) {
		c.HTML(http.StatusCreated, "", e.NewView(c, "hello", gin.H{"Name": "View"}))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Hello Gin", rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/view", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Hello View", rec.Body.String())
}
