package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestFileCachePutGetInvalidate(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), false)
	require.NoError(t, err)

	artifact := []byte("<?go echo e($name) ?>\n")
	require.NoError(t, c.Put("file:/views/home.blade.html", artifact))

	got, _, ok := c.Get("file:/views/home.blade.html")
	require.True(t, ok)
	assert.Equal(t, artifact, got)

	require.NoError(t, c.Invalidate("file:/views/home.blade.html"))
	_, _, ok = c.Get("file:/views/home.blade.html")
	assert.False(t, ok)

	// invalidating twice is fine
	require.NoError(t, c.Invalidate("file:/views/home.blade.html"))
}

func TestFileCacheNamesAreHashes(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, false)
	require.NoError(t, err)

	p := c.Path("file:../../etc/passwd")
	assert.Equal(t, dir, filepath.Dir(p))
	assert.Len(t, filepath.Base(p), 64+len(FileExtension))
	assert.Equal(t, p, c.Path("file:../../etc/passwd"))
}

func TestFileCacheFreshness(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), false)
	require.NoError(t, err)
	require.NoError(t, c.Put("k", []byte("x")))

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	assert.True(t, c.Fresh("k", past))
	assert.False(t, c.Fresh("k", future))
	assert.False(t, c.Fresh("missing", past))

	trusted, err := NewFileCache(c.Dir(), true)
	require.NoError(t, err)
	assert.True(t, trusted.Fresh("k", future))
	assert.False(t, trusted.Fresh("missing", past))
}

func TestFileCacheFlush(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, false)
	require.NoError(t, err)
	for i := range 5 {
		require.NoError(t, c.Put(fmt.Sprintf("k%d", i), []byte("x")))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.me"), []byte("y"), 0o644))

	require.NoError(t, c.Flush())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.me", entries[0].Name())
}

func TestFileCacheConcurrentWritersNeverExposePartialBytes(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), false)
	require.NoError(t, err)

	a := make([]byte, 64*1024)
	b := make([]byte, 64*1024)
	for i := range a {
		a[i] = 'a'
		b[i] = 'b'
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data := a
			if i%2 == 0 {
				data = b
			}
			for range 10 {
				assert.NoError(t, c.Put("same", data))
			}
		}()
	}
	wg.Wait()

	got, _, ok := c.Get("same")
	require.True(t, ok)
	require.Len(t, got, len(a))
	first := got[0]
	for _, ch := range got {
		require.Equal(t, first, ch)
	}
}

func TestBoundedEvictsOldest(t *testing.T) {
	b := NewBounded[string, int](10)
	for i := range 10 {
		b.Put(fmt.Sprintf("k%d", i), i)
	}
	assert.Equal(t, 10, b.Len())

	b.Put("k10", 10)
	assert.Equal(t, 10, b.Len())
	_, ok := b.Get("k0")
	assert.False(t, ok)
	v, ok := b.Get("k10")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestBoundedDeleteAndFlush(t *testing.T) {
	b := NewBounded[string, string](0)
	b.Put("file:a", "1")
	b.Put("file:b", "2")
	b.Put("inline:c", "3")

	b.Delete("file:a")
	_, ok := b.Get("file:a")
	assert.False(t, ok)

	b.DeleteFunc(func(k string) bool { return k == "file:b" })
	assert.Equal(t, 1, b.Len())

	b.Flush()
	assert.Equal(t, 0, b.Len())
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "a", []byte("A"), time.Minute))
	require.NoError(t, s.Set(ctx, "b", []byte("B"), 0))

	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", string(v))

	now = now.Add(2 * time.Minute)
	_, ok, _ = s.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "b")
	assert.True(t, ok)

	s.DeletePrefix("b")
	_, ok, _ = s.Get(ctx, "b")
	assert.False(t, ok)
}

func TestSQLStore(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLStore(ctx, db, "")
	require.NoError(t, err)
	now := time.Now()
	s.now = func() time.Time { return now }

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "fragment", []byte("<p>cached</p>"), time.Minute))
	require.NoError(t, s.Set(ctx, "fragment", []byte("<p>again</p>"), time.Minute))
	v, ok, err := s.Get(ctx, "fragment")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<p>again</p>", string(v))

	now = now.Add(time.Hour)
	_, ok, err = s.Get(ctx, "fragment")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "forever", []byte("x"), 0))
	require.NoError(t, s.Clear(ctx))
	_, ok, err = s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLStoreRejectsBadTableName(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = NewSQLStore(context.Background(), db, "x; DROP TABLE y")
	assert.Error(t, err)
}
