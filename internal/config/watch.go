package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/voicebrain/engine/internal/logger"
)

const watchDebounce = 100 * time.Millisecond

// Watcher reloads a tenant document on file change and hands the fresh
// document to OnChange. It watches the containing directory rather
// than the file itself, since some filesystems don't support watching
// a single file directly.
type Watcher struct {
	loader *Loader
	path   string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool

	// OnChange is invoked with the freshly reloaded document after
	// every debounced change. A reload that fails to parse or validate
	// is logged and skipped; OnChange is not called for it.
	OnChange func(*TenantDocument)
}

// NewWatcher constructs a Watcher for the tenant document at path.
func NewWatcher(path string) *Watcher {
	return &Watcher{loader: NewLoader(path), path: path}
}

// Start begins watching for file changes and blocks until ctx is
// cancelled or the watcher is closed. Run it in its own goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fw
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)

	if err := fw.Add(dir); err != nil {
		fw.Close()
		return err
	}

	w.watchLoop(ctx, fw, file)
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context, fw *fsnotify.Watcher, file string) {
	defer fw.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != file {
				continue
			}

			switch {
			case event.Op&fsnotify.Write == fsnotify.Write, event.Op&fsnotify.Create == fsnotify.Create:
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(watchDebounce, func() { w.reload(ctx) })
			case event.Op&fsnotify.Remove == fsnotify.Remove:
				logger.Default().Warn("tenant config file removed", "path", w.path)
				go w.tryRewatch(ctx, fw, file)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logger.Default().Warn("tenant config watcher error", "error", err)
		}
	}
}

func (w *Watcher) tryRewatch(ctx context.Context, fw *fsnotify.Watcher, file string) {
	dir := filepath.Dir(w.path)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; i < 10; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fw.Add(dir); err == nil {
				logger.Default().Info("re-established watch on tenant config", "path", w.path)
				w.reload(ctx)
				return
			}
		}
	}
	logger.Default().Warn("failed to re-establish watch on tenant config", "path", w.path)
}

func (w *Watcher) reload(ctx context.Context) {
	doc, err := w.loader.Load(ctx)
	if err != nil {
		logger.Default().Warn("tenant config reload failed", "path", w.path, "error", err)
		return
	}
	if w.OnChange != nil {
		w.OnChange(doc)
	}
}

// Close stops watching and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.watcher != nil {
		err := w.watcher.Close()
		w.watcher = nil
		return err
	}
	return nil
}
