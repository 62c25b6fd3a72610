package blade

import (
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dangdungcntt/go-blade/v2/cache"
)

// located is a view name resolved to a file of the view filesystem.
type located struct {
	name    string
	path    string
	modTime time.Time
}

// finder resolves view names. The theme directory is searched before the
// view root and every extension is tried in order. Resolutions are memoized;
// outside trust mode a memoized path is re-checked on every lookup.
type finder struct {
	fsys       fs.FS
	root       string
	theme      string
	extensions []string
	trust      bool
	memo       *cache.Bounded[string, string]
	missing    *cache.Bounded[string, []string]
}

func newFinder(fsys fs.FS, root string, cfg Config) *finder {
	fd := &finder{
		fsys:       fsys,
		theme:      cfg.Theme,
		extensions: cfg.Extensions,
		trust:      cfg.TrustCache,
		memo:       cache.NewBounded[string, string](cfg.MemoryCacheSize),
		missing:    cache.NewBounded[string, []string](cfg.MemoryCacheSize),
	}
	if root != "" {
		if real, err := filepath.EvalSymlinks(root); err == nil {
			root = real
		}
		fd.root = root
	}
	return fd
}

// normalizeName removes quotes, spaces and a known extension, then maps the
// dotted form to a path: "pages.home" is "pages/home".
func normalizeName(n string, extensions []string) string {
	n = strings.TrimSpace(n)
	n = strings.Trim(n, `"' `)
	n = strings.ReplaceAll(n, `\`, "/")
	for _, ext := range extensions {
		if strings.HasSuffix(n, ext) && len(n) > len(ext) {
			n = strings.TrimSuffix(n, ext)
			break
		}
	}
	return n
}

// relative turns name into a slash path relative to the view root. Parent
// segments and absolute names are rejected before dots become separators, so
// "..secret" can never climb out.
func (fd *finder) relative(name string) (string, error) {
	n := normalizeName(name, fd.extensions)
	if n == "" || strings.HasPrefix(n, "/") || filepath.IsAbs(n) || filepath.VolumeName(n) != "" {
		return "", &InvalidPathError{Name: name}
	}
	for _, seg := range strings.Split(n, "/") {
		if seg == ".." || strings.Contains(seg, "..") {
			return "", &InvalidPathError{Name: name}
		}
	}
	n = strings.ReplaceAll(n, ".", "/")
	if !fs.ValidPath(n) {
		return "", &InvalidPathError{Name: name}
	}
	return n, nil
}

func (fd *finder) candidates(rel string) []string {
	dirs := []string{""}
	if fd.theme != "" {
		dirs = []string{path.Join("themes", fd.theme), ""}
	}
	out := make([]string, 0, len(dirs)*len(fd.extensions))
	for _, dir := range dirs {
		for _, ext := range fd.extensions {
			out = append(out, path.Join(dir, rel+ext))
		}
	}
	return out
}

func (fd *finder) find(name string) (located, error) {
	rel, err := fd.relative(name)
	if err != nil {
		return located{}, err
	}
	if p, ok := fd.memo.Get(rel); ok {
		if fd.trust {
			return located{name: rel, path: p}, nil
		}
		if info, err := fs.Stat(fd.fsys, p); err == nil && !info.IsDir() {
			return located{name: rel, path: p, modTime: info.ModTime()}, nil
		}
		fd.memo.Delete(rel)
	}
	if searched, ok := fd.missing.Get(rel); ok {
		return located{}, &TemplateNotFoundError{Name: name, Searched: searched}
	}
	searched := fd.candidates(rel)
	for _, p := range searched {
		info, err := fs.Stat(fd.fsys, p)
		if err != nil || info.IsDir() {
			continue
		}
		if err := fd.contained(name, p); err != nil {
			return located{}, err
		}
		fd.memo.Put(rel, p)
		return located{name: rel, path: p, modTime: info.ModTime()}, nil
	}
	if fd.trust {
		fd.missing.Put(rel, searched)
	}
	return located{}, &TemplateNotFoundError{Name: name, Searched: searched}
}

// exists answers @includeIf and friends without building an error.
func (fd *finder) exists(name string) bool {
	_, err := fd.find(name)
	return err == nil
}

// contained rejects files that are symlinks resolving outside the root.
func (fd *finder) contained(name, p string) error {
	if fd.root == "" {
		return nil
	}
	real, err := filepath.EvalSymlinks(filepath.Join(fd.root, filepath.FromSlash(p)))
	if err != nil {
		return &InvalidPathError{Name: name, Path: p}
	}
	rel, err := filepath.Rel(fd.root, real)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &InvalidPathError{Name: name, Path: real}
	}
	return nil
}

// nameFromPath converts a file of the view filesystem to its view name.
func (fd *finder) nameFromPath(p string) (string, bool) {
	p = filepath.ToSlash(p)
	for _, ext := range fd.extensions {
		if strings.HasSuffix(p, ext) {
			return strings.TrimSuffix(p, ext), true
		}
	}
	return "", false
}

func (fd *finder) flush() {
	fd.memo.Flush()
	fd.missing.Flush()
}
