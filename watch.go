package blade

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// ErrNotWatchable is returned by Watch for engines not created with New.
var ErrNotWatchable = errors.New("blade: only directory engines can be watched")

// Watch drops cached artifacts of views as they change on disk. It blocks
// until ctx is done. Directories created while watching are watched too.
func (e *Engine) Watch(ctx context.Context) error {
	if e.root == "" {
		return ErrNotWatchable
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := watchDirRecursive(w, e.root); err != nil {
		return err
	}
	e.logger.Info("watching views", "root", e.root)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchDirRecursive(w, event.Name); err != nil {
						e.logger.Warn("watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			rel, err := filepath.Rel(e.root, event.Name)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			e.logger.Debug("view changed", "path", rel, "op", event.Op.String())
			e.invalidate(filepath.ToSlash(rel))

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("watcher error", "error", err)
		}
	}
}

// watchDirRecursive adds a directory and its subdirectories to the watch list
func watchDirRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
}
