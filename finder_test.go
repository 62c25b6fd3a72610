package blade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	exts := DefaultConfig().Extensions
	tests := map[string]string{
		"pages.home":             "pages.home",
		" 'pages.home' ":         "pages.home",
		"pages\\home.blade.html": "pages/home",
		"pages/home.blade":       "pages/home",
		"emails/welcome.gohtml":  "emails/welcome",
		"layouts/app.blade.html": "layouts/app",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeName(in, exts), in)
	}
}

func TestRelativeRejectsEscapes(t *testing.T) {
	fd := &finder{extensions: DefaultConfig().Extensions}
	rel, err := fd.relative("pages.home")
	require.NoError(t, err)
	assert.Equal(t, "pages/home", rel)

	for _, name := range []string{"", "..", "../x", "/abs", "a/../b", "a//b", "..secret"} {
		_, err := fd.relative(name)
		assert.ErrorIs(t, err, ErrInvalidPath, name)
	}
}

func TestCandidatesSearchThemeFirst(t *testing.T) {
	fd := &finder{theme: "dark", extensions: []string{".blade.html", ".blade"}}

	assert.Equal(t, []string{
		"themes/dark/pages/home.blade.html",
		"themes/dark/pages/home.blade",
		"pages/home.blade.html",
		"pages/home.blade",
	}, fd.candidates("pages/home"))
}

func TestMissingViewsAreRememberedWhenTrusted(t *testing.T) {
	e := newTestEngine(t, map[string]string{"a.blade": "a"}, WithConfig(Config{TrustCache: true}))

	assert.False(t, e.finder.exists("b"))
	assert.Equal(t, 1, e.finder.missing.Len())

	require.NoError(t, e.Flush())
	assert.Zero(t, e.finder.missing.Len())
}
