package blade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapConfig(t *testing.T) {
	cfg := MapConfig{"app": map[string]any{"name": "Blade", "debug": false}}

	v, ok := cfg.Get("app.name")
	assert.True(t, ok)
	assert.Equal(t, "Blade", v)

	_, ok = cfg.Get("app.name.first")
	assert.False(t, ok)
	_, ok = cfg.Get("db")
	assert.False(t, ok)
}

func TestMapTranslator(t *testing.T) {
	tr := MapTranslator{
		"welcome": "Welcome, :name",
		"apples":  "one apple|:count apples",
		"counter": ":count and :co",
	}
	ctx := context.Background()

	s, ok := tr.Translate(ctx, "welcome", -1, map[string]any{"name": "Ann"})
	assert.True(t, ok)
	assert.Equal(t, "Welcome, Ann", s)

	s, _ = tr.Translate(ctx, "apples", 1, nil)
	assert.Equal(t, "one apple", s)
	s, _ = tr.Translate(ctx, "apples", 4, nil)
	assert.Equal(t, "4 apples", s)

	s, _ = tr.Translate(ctx, "counter", -1, map[string]any{"count": 2, "co": "x"})
	assert.Equal(t, "2 and x", s)

	_, ok = tr.Translate(ctx, "missing", -1, nil)
	assert.False(t, ok)
}

func TestMapRouter(t *testing.T) {
	r := MapRouter{"user": "/users/{id}", "home": "/"}

	u, err := r.URL("user", map[string]any{"id": 5, "tab": "posts"})
	require.NoError(t, err)
	assert.Equal(t, "/users/5?tab=posts", u)

	u, err = r.URL("home", nil)
	require.NoError(t, err)
	assert.Equal(t, "/", u)

	_, err = r.URL("user", nil)
	assert.ErrorContains(t, err, "missing parameters")
	_, err = r.URL("nope", nil)
	assert.ErrorContains(t, err, "not defined")
}

type fakeAuth struct{ user bool }

func (a fakeAuth) Check(_ context.Context, guard string) bool { return a.user && guard != "admin" }

type fakeGate map[string]bool

func (g fakeGate) Allows(_ context.Context, ability string, _ ...any) bool { return g[ability] }

func (g fakeGate) HasRole(_ context.Context, role string) bool { return g["role:"+role] }

func TestCollaboratorsReachTemplates(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"page.blade": "@lang('welcome', ['name' => $who])|@choice('apples', 3)|@config('app.name')|" +
			"@route('user', ['id' => 5])|@auth<b>in</b>@endauth|@guest<b>out</b>@endguest|" +
			"@can('edit')<b>edit</b>@endcan|@cannot('delete')<b>no-delete</b>@endcannot",
	},
		WithTranslator(MapTranslator{"welcome": "Hi :name", "apples": "one|:count apples"}),
		WithConfigAccessor(MapConfig{"app": map[string]any{"name": "Blade"}}),
		WithRouter(MapRouter{"user": "/users/{id}"}),
		WithAuth(fakeAuth{user: true}),
		WithGate(fakeGate{"edit": true}),
	)

	assert.Equal(t, "Hi Ann|3 apples|Blade|/users/5|<b>in</b>||<b>edit</b>|<b>no-delete</b>",
		renderView(t, e, "page", map[string]any{"who": "Ann"}))
}

func TestMissingCollaboratorsFailClosed(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"page.blade": "@lang('welcome')|@auth<b>in</b>@else<b>out</b>@endauth|@can('edit')<b>edit</b>@endcan",
	})

	assert.Equal(t, "welcome|<b>out</b>|", renderView(t, e, "page", nil))
}
