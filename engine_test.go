package blade

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeViews(t *testing.T, views map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range views {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	}
	return dir
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, views map[string]string, opts ...Option) *Engine {
	t.Helper()
	return New(writeViews(t, views), append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func renderView(t *testing.T, e *Engine, name string, data any) string {
	t.Helper()
	out, err := e.RenderToString(context.Background(), name, data)
	require.NoError(t, err)
	return out
}

var layoutViews = map[string]string{
	"layouts/app.blade.html": `<html><head><title>@yield('title', 'Site')</title>@stack('styles')</head>` +
		`<body>@yield('content')</body></html>`,
	"pages/home.blade.html": "@extends('layouts.app')\n" +
		"@section('title', 'Home')\n" +
		"@section('content')<h1>Hello, {{ $name }}</h1>@endsection\n" +
		"@push('styles')<link rel=\"stylesheet\" href=\"/home.css\">@endpush\n",
	"pages/plain.blade.html": "@extends('layouts.app')",
}

func TestRenderLayoutWithSectionsAndStacks(t *testing.T) {
	e := newTestEngine(t, layoutViews)

	out := renderView(t, e, "pages.home", map[string]any{"name": "<Ada>"})
	assert.Contains(t, out, "<title>Home</title>")
	assert.Contains(t, out, `<link rel="stylesheet" href="/home.css"></head>`)
	assert.Contains(t, out, "<body><h1>Hello, &lt;Ada&gt;</h1></body>")
	assert.NotContains(t, out, "@")

	out = renderView(t, e, "pages/plain", nil)
	assert.Contains(t, out, "<title>Site</title>")
	assert.Contains(t, out, "<body></body>")
}

func TestRenderWritesToWriter(t *testing.T) {
	e := newTestEngine(t, map[string]string{"hello.blade": "Hello {{ $Name }}"})

	var sb strings.Builder
	require.NoError(t, e.Render(&sb, "hello", struct{ Name string }{"John Doe"}))
	assert.Equal(t, "Hello John Doe", sb.String())
}

func TestLoopsAndConditionals(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"list.blade.html": "@foreach($items as $item)@if(!$loop->first), @endif{{ $item }}@endforeach" +
			"|@forelse($none as $x){{ $x }}@empty none @endforelse" +
			"|@unless($flag)<i>off</i>@endunless",
	})

	out := renderView(t, e, "list", map[string]any{"items": []int{1, 2, 3}, "none": []string{}, "flag": false})
	assert.Equal(t, "1, 2, 3| none |<i>off</i>", out)
}

func TestIncludesShareParentData(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"partials/greet.blade": "Hello {{ $who }} from {{ $site }}",
		"page.blade":           "@include('partials.greet', ['who' => 'World'])@includeIf('partials.nope')",
	})

	assert.Equal(t, "Hello World from Blade", renderView(t, e, "page", map[string]any{"site": "Blade"}))
}

func TestIncludeRecursionIsBounded(t *testing.T) {
	e := newTestEngine(t, map[string]string{"loop.blade": "@include('loop')"})

	_, err := e.RenderToString(context.Background(), "loop", nil)
	assert.ErrorIs(t, err, ErrTooDeep)
}

func TestTemplateNotFound(t *testing.T) {
	e := newTestEngine(t, map[string]string{"a.blade": "a"})

	_, err := e.RenderToString(context.Background(), "pages.missing", nil)
	var nf *TemplateNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Contains(t, nf.Searched, "pages/missing.blade.html")
	assert.True(t, IsNotFound(err))
}

func TestPathTraversalIsRejected(t *testing.T) {
	dir := writeViews(t, map[string]string{"ok.blade": "ok"})
	e := New(dir, WithLogger(quietLogger()))

	for _, name := range []string{"../secret", "/etc/passwd", "pages/../../x", "..secret", ""} {
		t.Run(name, func(t *testing.T) {
			_, err := e.RenderToString(context.Background(), name, nil)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}

	outside := filepath.Join(t.TempDir(), "secret.blade")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
	if err := os.Symlink(outside, filepath.Join(dir, "link.blade")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	_, err := e.RenderToString(context.Background(), "link", nil)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestThemeIsSearchedFirst(t *testing.T) {
	views := map[string]string{
		"pages/home.blade.html":             "default",
		"pages/about.blade.html":            "about",
		"themes/dark/pages/home.blade.html": "dark",
	}
	e := newTestEngine(t, views, WithConfig(Config{Theme: "dark"}))

	assert.Equal(t, "dark", renderView(t, e, "pages.home", nil))
	assert.Equal(t, "about", renderView(t, e, "pages.about", nil))
}

func TestExecutionErrorCarriesPosition(t *testing.T) {
	e := newTestEngine(t, map[string]string{"pages/err.blade.html": "line one\nline two\n@route('missing')"})

	_, err := e.RenderToString(context.Background(), "pages.err", nil)
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, ErrExecution)
	assert.Equal(t, "pages/err", ee.Template)
	assert.Equal(t, 3, ee.Line)
	assert.True(t, strings.HasSuffix(ee.File, "pages/err.blade.html"))
	assert.ErrorContains(t, err, "no router configured")
}

func TestRenderString(t *testing.T) {
	e := newTestEngine(t, layoutViews)
	ctx := context.Background()

	for range 2 {
		out, err := e.RenderString(ctx, "{{ $a + $b }} @upper($word)", map[string]any{"a": 1, "b": 2, "word": "go"})
		require.NoError(t, err)
		assert.Equal(t, "3 GO", out)
	}
	assert.Equal(t, 1, e.inline.Len())

	out, err := e.RenderString(ctx, "@extends('layouts.app')@section('content')<p>inline</p>@endsection", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "<body><p>inline</p></body>")
}

func TestIdenticalSourcesShareOneProgram(t *testing.T) {
	e := newTestEngine(t, map[string]string{"a.blade": "same {{ $x }}", "b.blade": "same {{ $x }}"})

	assert.Equal(t, "same 1", renderView(t, e, "a", map[string]any{"x": 1}))
	assert.Equal(t, "same 2", renderView(t, e, "b", map[string]any{"x": 2}))
	assert.Equal(t, 2, e.compiled.Len())
	assert.Equal(t, 1, e.programs.Len())
}

func TestChangedSourcesAreRecompiled(t *testing.T) {
	dir := writeViews(t, map[string]string{"v.blade": "one"})
	e := New(dir, WithLogger(quietLogger()))
	assert.Equal(t, "one", renderView(t, e, "v", nil))

	p := filepath.Join(dir, "v.blade")
	require.NoError(t, os.WriteFile(p, []byte("two"), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(p, later, later))
	assert.Equal(t, "two", renderView(t, e, "v", nil))
}

func TestTrustedCacheIgnoresChangesUntilFlushed(t *testing.T) {
	dir := writeViews(t, map[string]string{"v.blade": "one"})
	e := New(dir, WithLogger(quietLogger()), WithConfig(Config{TrustCache: true}))
	assert.Equal(t, "one", renderView(t, e, "v", nil))

	p := filepath.Join(dir, "v.blade")
	require.NoError(t, os.WriteFile(p, []byte("two"), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(p, later, later))
	assert.Equal(t, "one", renderView(t, e, "v", nil))

	require.NoError(t, e.Flush())
	assert.Equal(t, "two", renderView(t, e, "v", nil))
}

func TestFileCacheIsSharedBetweenEngines(t *testing.T) {
	dir := writeViews(t, map[string]string{"v.blade": "cached {{ $n }}"})
	cacheDir := t.TempDir()
	cfg := Config{CachePath: cacheDir}

	first := New(dir, WithLogger(quietLogger()), WithConfig(cfg))
	assert.Equal(t, "cached 1", renderView(t, first, "v", map[string]any{"n": 1}))
	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".blade.txt"))

	second := New(dir, WithLogger(quietLogger()), WithConfig(cfg))
	assert.Equal(t, "cached 2", renderView(t, second, "v", map[string]any{"n": 2}))
	assert.Equal(t, entries[0].Name(), filepath.Base(second.files.Path(second.fileKey("v.blade"))))
	assert.Equal(t, 1.0, testutil.ToFloat64(second.metrics.lookups.WithLabelValues("file", "hit")))
	assert.Zero(t, testutil.ToFloat64(second.metrics.compiles.WithLabelValues("file")))

	require.NoError(t, second.Flush())
	entries, err = os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRegistrationInvalidatesFileCache(t *testing.T) {
	dir := writeViews(t, map[string]string{"v.blade": "@hello"})
	e := New(dir, WithLogger(quietLogger()), WithConfig(Config{CachePath: t.TempDir()}))
	assert.Equal(t, "@hello", renderView(t, e, "v", nil))

	require.NoError(t, e.Directive("hello", func(string) string { return "HI" }))
	assert.Equal(t, "HI", renderView(t, e, "v", nil))
}

func TestLoadPrecompilesEveryView(t *testing.T) {
	e := newTestEngine(t, layoutViews)
	require.NoError(t, e.Load())

	templates := e.GetDebugTemplates()
	assert.Contains(t, templates, "pages/home")
	assert.Contains(t, templates, "layouts/app")
	assert.Contains(t, templates["pages/home"], "<?go extends 'layouts.app' ?>")

	broken := newTestEngine(t, map[string]string{"pages/broken.blade": "@if($x) never closed"})
	err := broken.Load()
	assert.ErrorIs(t, err, ErrExecution)
	assert.ErrorContains(t, err, "pages/broken")
}

func TestFragmentsAndPartials(t *testing.T) {
	views := map[string]string{
		"layouts/app.blade.html": layoutViews["layouts/app.blade.html"],
		"pages/list.blade.html": "@extends('layouts.app')" +
			"@section('content')<ul>@fragment('items')<li>{{ $n }}</li>@endfragment</ul>@endsection" +
			"@section('aside')<aside></aside>@endsection" +
			"@push('styles')<style></style>@endpush",
		"pages/bare.blade.html": "<p>bare</p>",
	}
	e := newTestEngine(t, views)
	ctx := context.Background()

	out, err := e.RenderFragment(ctx, "pages.list", "items", map[string]any{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, "<li>1</li>", out)

	_, err = e.RenderFragment(ctx, "pages.list", "nope", map[string]any{"n": 1})
	var fe *FragmentNotFoundError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, ErrFragmentNotFound)

	p, err := e.RenderPartial(ctx, "pages.list", map[string]any{"n": 2})
	require.NoError(t, err)
	assert.Equal(t, "layouts.app", p.Layout)
	assert.Equal(t, `<meta name="blade-layout" content="layouts.app"><ul><li>2</li></ul><style></style>`, p.HTML)

	p, err = e.RenderPartial(ctx, "pages.list", map[string]any{"n": 2}, "aside")
	require.NoError(t, err)
	assert.Equal(t, `<meta name="blade-layout" content="layouts.app"><aside></aside><style></style>`, p.HTML)

	p, err = e.RenderPartial(ctx, "pages.bare", nil)
	require.NoError(t, err)
	assert.Empty(t, p.Layout)
	assert.Equal(t, "<p>bare</p>", p.HTML)
}

func TestTeleportsAreInjectedBeforeBody(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"page.blade": `<html><body><main>@teleport('#modals')<div>m</div>@endteleport</main></body></html>`,
	})

	out := renderView(t, e, "page", nil)
	assert.Contains(t, out, "<main></main>")
	tpl := strings.Index(out, `<template data-blade-teleport="#modals"><div>m</div></template>`)
	require.GreaterOrEqual(t, tpl, 0)
	assert.Less(t, tpl, strings.Index(out, "</body>"))
}

func TestSharedDataAndComposers(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"pages/about.blade": "{{ $site }} {{ $section }}",
		"other.blade":       "{{ $site }}[{{ $section }}]",
	})
	e.Share("site", "Blade")
	require.NoError(t, e.Composer("pages.*", func(_ context.Context, view string, data map[string]any) {
		data["section"] = view
	}))
	assert.Error(t, e.Composer("[", nil))

	assert.Equal(t, "Blade pages/about", renderView(t, e, "pages.about", nil))
	assert.Equal(t, "Blade[]", renderView(t, e, "other", nil))
}

type fixedClock struct{}

func (fixedClock) Now() string { return "noon" }

func TestExtensionPoints(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"page.blade": "@shout($word) {{ double(21) }} @admin($user)<b>yes</b>@else<i>no</i>@endadmin " +
			"@inject($clock, 'clock'){{ $clock->Now() }}",
	})
	require.NoError(t, e.Directive("shout", func(expr string) string {
		return "<?go echo e(upper(" + expr + ")) ?>"
	}))
	require.NoError(t, e.If("admin", func(_ context.Context, args ...any) bool {
		return len(args) > 0 && args[0] == "ann"
	}))
	e.Func("double", func(args ...any) (any, error) { return cast.ToInt(args[0]) * 2, nil })
	e.Provide("clock", fixedClock{})

	assert.Equal(t, "HEY 42 <b>yes</b> noon", renderView(t, e, "page", map[string]any{"word": "hey", "user": "ann"}))
	assert.Equal(t, "HEY 42 <i>no</i> noon", renderView(t, e, "page", map[string]any{"word": "hey", "user": "bob"}))

	assert.ErrorIs(t, e.Directive("if", func(string) string { return "" }), ErrReservedDirective)
	assert.ErrorIs(t, e.Directive("bad name", func(string) string { return "" }), ErrInvalidDirectiveName)
}

func TestContextCancellationStopsRender(t *testing.T) {
	e := newTestEngine(t, map[string]string{"v.blade": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.RenderToString(ctx, "v", nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestYieldPrefersTheChildSection(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"layouts/base.blade.html":  "<main>@yield('content', 'fallback')</main>",
		"layouts/shell.blade.html": "@extends('layouts.base')@section('content')[shell]@endsection",
		"child.blade.html":         "@extends('layouts.base')@section('content')<b>X</b>@endsection",
		"grandchild.blade.html":    "@extends('layouts.shell')@section('content')<i>Y</i> @parent|@endsection",
	})

	assert.Equal(t, "<main><b>X</b></main>", renderView(t, e, "child", nil))
	assert.Equal(t, "<main><i>Y</i> [shell]|</main>", renderView(t, e, "grandchild", nil))
}

func TestForeachTicksOncePerItem(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"items.blade.html": "@foreach($items as $i) {{ $i }}:{{ $loop->index }} @endforeach",
	})

	out := renderView(t, e, "items", map[string]any{"items": []int{1, 2, 3}})
	assert.Equal(t, []string{"1:0", "2:1", "3:2"}, strings.Fields(out))
}

func TestVerbatimRendersHostTagsAsText(t *testing.T) {
	e := newTestEngine(t, nil)
	src := " {{ $x }} @if <?go echo 1 ?> 'q' \\ "

	out, err := e.RenderString(context.Background(), "@verbatim"+src+"@endverbatim", map[string]any{"x": 2})
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func TestDirectivesAfterWordCharactersStayText(t *testing.T) {
	e := newTestEngine(t, nil)

	out, err := e.RenderString(context.Background(), "mail a@if.com or @if(true)<b>yes</b>@endif", nil)
	require.NoError(t, err)
	assert.Equal(t, "mail a@if.com or <b>yes</b>", out)
}
