package blade

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchInvalidatesChangedViews(t *testing.T) {
	dir := writeViews(t, map[string]string{"pages/v.blade": "one"})
	e := New(dir, WithLogger(quietLogger()), WithConfig(Config{TrustCache: true, CachePath: t.TempDir()}))
	assert.Equal(t, "one", renderView(t, e, "pages.v", nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	p := filepath.Join(dir, "pages", "v.blade")
	assert.Eventually(t, func() bool {
		if err := os.WriteFile(p, []byte("two"), 0o644); err != nil {
			return false
		}
		out, err := e.RenderToString(context.Background(), "pages.v", nil)
		return err == nil && out == "two"
	}, 5*time.Second, 50*time.Millisecond)

	nested := filepath.Join(dir, "pages", "fresh")
	require.NoError(t, os.Mkdir(nested, 0o755))
	assert.Eventually(t, func() bool {
		if err := os.WriteFile(filepath.Join(nested, "n.blade"), []byte("new"), 0o644); err != nil {
			return false
		}
		out, err := e.RenderToString(context.Background(), "pages.fresh.n", nil)
		return err == nil && out == "new"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatchNeedsADirectory(t *testing.T) {
	e := NewFS(fstest.MapFS{"v.blade": {Data: []byte("x")}}, WithLogger(quietLogger()))
	assert.ErrorIs(t, e.Watch(context.Background()), ErrNotWatchable)
}

func TestEnginesOverFileSystems(t *testing.T) {
	fsys := fstest.MapFS{
		"layouts/app.blade.html": {Data: []byte("<main>@yield('content')</main>")},
		"home.blade.html":        {Data: []byte("@extends('layouts.app')@section('content')<p>home</p>@endsection")},
	}
	e := NewFS(fsys, WithLogger(quietLogger()))

	assert.Equal(t, "<main><p>home</p></main>", renderView(t, e, "home", nil))
	require.NoError(t, e.Load())
	assert.Len(t, e.GetDebugTemplates(), 2)
}
