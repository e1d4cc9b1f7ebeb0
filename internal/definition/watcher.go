package definition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before reloading.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads the template registry when files under the template
// directories change.
type Watcher struct {
	dirs     []string
	loader   *Loader
	registry *Registry
	logger   *zap.Logger
	debounce time.Duration

	// OnReload is called after every reload attempt with the number of
	// templates loaded or the error that kept the previous snapshot.
	OnReload func(count int, err error)

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a Watcher. A zero debounce uses DefaultDebounce.
func NewWatcher(dirs []string, loader *Loader, registry *Registry, logger *zap.Logger, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dirs:     dirs,
		loader:   loader,
		registry: registry,
		logger:   logger,
		debounce: debounce,
	}
}

// Run watches until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating template watcher: %w", err)
	}
	defer fw.Close()

	for _, dir := range w.dirs {
		if err := w.addTree(fw, dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	w.logger.Info("template watcher started", zap.Strings("dirs", w.dirs))

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			w.logger.Info("template watcher stopped")
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, event)
		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("template watcher error", zap.Error(werr))
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, event fsnotify.Event) {
	clean := filepath.Clean(event.Name)

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(clean); err == nil && info.IsDir() {
			if err := w.addTree(fw, clean); err != nil {
				w.logger.Warn("watching new template directory failed", zap.String("dir", clean), zap.Error(err))
			}
			w.schedule()
			return
		}
	}
	if !isTemplateFile(clean) {
		return
	}
	w.schedule()
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.Reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Reload rebuilds the registry from the builtin templates and the watched
// directories. On error the current snapshot is kept.
func (w *Watcher) Reload() {
	tmpls, err := w.loader.LoadCatalog(w.dirs)
	if err != nil {
		w.logger.Error("template reload failed, keeping previous templates", zap.Error(err))
		if w.OnReload != nil {
			w.OnReload(0, err)
		}
		return
	}
	w.registry.Replace(tmpls)
	w.logger.Info("templates reloaded",
		zap.Int("count", w.registry.Len()),
		zap.String("checksum", w.registry.Checksum()),
	)
	if w.OnReload != nil {
		w.OnReload(w.registry.Len(), nil)
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(p)
		}
		return nil
	})
}
