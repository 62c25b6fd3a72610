package host

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, name string, args ...any) any {
	t.Helper()
	fn, ok := Builtins[name]
	require.True(t, ok, name)
	v, err := fn(args...)
	require.NoError(t, err)
	return v
}

func TestFormattingHelpers(t *testing.T) {
	assert.Equal(t, "USD 1,234.50", call(t, "money", 1234.5))
	assert.Equal(t, "EUR 10.00", call(t, "money", "10", "eur"))
	assert.Equal(t, "12.5%", call(t, "percent", 12.5, 1))
	assert.Equal(t, "1,234.57", call(t, "number_format", 1234.567, 2))
	assert.Equal(t, "1.5 kB", call(t, "bytes", 1500))
	assert.Equal(t, "hello-world", call(t, "slug", "Hello World"))
	assert.Equal(t, "Hello World", call(t, "title", "hello world"))
	assert.Equal(t, "hello...", call(t, "limit", "hello world", 5))
	assert.Equal(t, "hi", call(t, "limit", "hi", 5))
	assert.Equal(t, HTML("a &amp; b<br>\nc"), call(t, "nl2br", "a & b\nc"))
	assert.Equal(t, "05 Mar 2024", call(t, "date_format", "2024-03-05", "02 Jan 2006"))
	assert.Equal(t, "Hello", call(t, "ucfirst", "hello"))
	assert.Equal(t, "a, b", call(t, "implode", ", ", []string{"a", "b"}))
	assert.Equal(t, true, call(t, "in_array", "2", []int{1, 2}))
}

func TestAgo(t *testing.T) {
	out := call(t, "ago", time.Now().Add(-3*time.Hour))
	assert.Equal(t, "3 hours ago", out)
}

func TestEscapingHelpers(t *testing.T) {
	js, err := EscapeJS("</script>")
	require.NoError(t, err)
	assert.Equal(t, HTML(`"\u003c/script\u003e"`), js)

	assert.Equal(t, HTML("#"), EscapeURL("javascript:alert(1)"))
	assert.Equal(t, HTML("#"), EscapeURL(" JaVaScRiPt:alert(1)"))
	assert.Equal(t, HTML("#"), EscapeURL("data:text/html;base64,xx"))
	assert.Equal(t, HTML("data:image/png;base64,xx"), EscapeURL("data:image/png;base64,xx"))
	assert.Equal(t, HTML("https://x.test/?a=1&amp;b=2"), EscapeURL("https://x.test/?a=1&b=2"))

	assert.Equal(t, HTML(`{"a":1}`), call(t, "json_encode", map[string]any{"a": 1}))
	assert.Equal(t, HTML(`JSON.parse('{"a":"it\'s"}')`), call(t, "js", map[string]any{"a": "it's"}))
	assert.Equal(t, HTML(`42`), call(t, "js", 42))
}

func TestContentHelpers(t *testing.T) {
	md, err := Markdown("**bold** <script>alert(1)</script>")
	require.NoError(t, err)
	assert.Contains(t, string(md), "<strong>bold</strong>")
	assert.NotContains(t, string(md), "<script>")

	assert.Equal(t, HTML(`<a href="https://x.test" rel="nofollow">x</a>`), call(t, "sanitize", `<a href="https://x.test" onclick="x()">x</a>`))
	assert.Equal(t, HTML(`<pre class="blade-dump">&#34;x&#34;</pre>`), call(t, "dump", "x"))
	assert.Equal(t, map[string]any{"a": 1, "0": "x"}, call(t, "assoc", "a", 1, "0", "x"))
	assert.Equal(t, false, call(t, "isset", 1, nil))
}
