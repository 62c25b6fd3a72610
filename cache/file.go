package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileExtension is appended to every artifact written by FileCache.
const FileExtension = ".blade.txt"

// FileCache stores compiled artifacts as individual files under a root
// directory. File names are the SHA-256 of the key, so they are stable across
// processes and never contain path separators from the key itself.
type FileCache struct {
	dir   string
	trust bool
}

// NewFileCache creates the cache directory when missing. With trust enabled
// Fresh only checks presence and never compares modification times.
func NewFileCache(dir string, trust bool) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &FileCache{dir: dir, trust: trust}, nil
}

// Dir returns the cache root.
func (c *FileCache) Dir() string {
	return c.dir
}

// Path returns the file an artifact for key is stored in.
func (c *FileCache) Path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+FileExtension)
}

// Get reads the artifact stored for key with its modification time.
func (c *FileCache) Get(key string) ([]byte, time.Time, bool) {
	p := c.Path(key)
	info, err := os.Stat(p)
	if err != nil {
		return nil, time.Time{}, false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, time.Time{}, false
	}
	return data, info.ModTime(), true
}

// Fresh reports whether the artifact for key can be served for a source last
// modified at sourceModTime.
func (c *FileCache) Fresh(key string, sourceModTime time.Time) bool {
	info, err := os.Stat(c.Path(key))
	if err != nil {
		return false
	}
	if c.trust {
		return true
	}
	return !sourceModTime.After(info.ModTime())
}

// Put writes data for key. The bytes go to a temp file in the same directory
// which is then renamed over the target, so readers never see a partial file.
func (c *FileCache) Put(key string, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err == nil {
		err = tmp.Close()
	} else {
		_ = tmp.Close()
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmpName, c.Path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit artifact: %w", err)
	}
	return nil
}

// Invalidate removes the artifact for key. Missing artifacts are not an error.
func (c *FileCache) Invalidate(key string) error {
	err := os.Remove(c.Path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Flush removes every artifact and leftover temp file under the cache root.
func (c *FileCache) Flush() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, FileExtension) || strings.HasPrefix(name, ".tmp-")) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
