package search

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates a library's cached universe whenever its backing file is
// written, replaced or removed. It blocks until ctx is done.
func (e *Engine) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	byPath := make(map[string]string)
	dirs := make(map[string]bool)
	for _, h := range e.libs {
		if h.Path == "" {
			continue
		}
		p := filepath.Clean(h.Path)
		byPath[p] = h.Name
		// Watch the directory: atomic replacement renames over the file.
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name, tracked := byPath[filepath.Clean(ev.Name)]
			if !tracked || !ev.Has(relevant) {
				continue
			}
			e.log.WithField("library", name).Debugf("library changed (%s), invalidating search cache", ev.Op)
			e.Invalidate(name)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.log.WithError(err).Warn("library watcher")
		}
	}
}
