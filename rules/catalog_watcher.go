package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before reloading.
const DefaultDebounce = 200 * time.Millisecond

// CatalogWatcher reloads a catalog directory when its files change.
type CatalogWatcher struct {
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewCatalogWatcher creates a watcher for dir. A non-positive debounce uses
// DefaultDebounce.
func NewCatalogWatcher(dir string, debounce time.Duration) (*CatalogWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &CatalogWatcher{
		dir:      dir,
		debounce: debounce,
		watcher:  w,
		logger:   slog.Default().With("component", "rules.catalog"),
	}, nil
}

// Watch blocks until ctx is cancelled, calling onReload with the freshly
// loaded catalog after each settled burst of changes.
func (cw *CatalogWatcher) Watch(ctx context.Context, onReload func(*Catalog) error) error {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	cw.running = true
	cw.mu.Unlock()

	defer cw.watcher.Close()

	if err := cw.watcher.Add(cw.dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", cw.dir, err)
	}
	cw.logger.Info("catalog watcher started", "dir", cw.dir, "debounce_ms", cw.debounce.Milliseconds())

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			cw.logger.Info("catalog watcher stopped")
			return nil

		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return nil
			}
			if !isCatalogFile(ev.Name) || ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(cw.debounce)
			} else {
				timer.Reset(cw.debounce)
			}
			fire = timer.C

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return nil
			}
			cw.logger.Warn("catalog watcher error", "error", err)

		case <-fire:
			fire = nil
			catalog, err := LoadCatalogDir(cw.dir)
			if err != nil {
				cw.logger.Error("catalog reload failed", "error", err)
				continue
			}
			if err := onReload(catalog); err != nil {
				cw.logger.Error("catalog reload rejected", "error", err)
				continue
			}
			cw.logger.Info("catalog reloaded", "rules", len(catalog.Rules), "templates", len(catalog.Templates))
		}
	}
}
