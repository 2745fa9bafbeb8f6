package fscache

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates cached scans when files change under a watched root,
// so discovery queries after an external mutation never serve stale entries.
type Watcher struct {
	cache   *Cache
	watcher *fsnotify.Watcher
	mu      sync.Mutex
	roots   map[string]struct{}
	done    chan struct{}
}

// NewWatcher creates a watcher bound to cache.
func NewWatcher(cache *Cache) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		cache:   cache,
		watcher: fsWatcher,
		roots:   make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	go w.watch()
	return w, nil
}

// Add starts watching a scan root. Adding the same root twice is a no-op.
func (w *Watcher) Add(root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.roots[root]; ok {
		return nil
	}
	if err := w.watcher.Add(root); err != nil {
		return err
	}
	w.roots[root] = struct{}{}
	return nil
}

func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.cache.InvalidatePath(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("fs cache watcher error", slog.String("error", err.Error()))
		}
	}
}

// Close stops watching and cleans up.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
