package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 2 * time.Second

// Watcher reloads a Store when files in its directory change. Bursts of
// events within the debounce window trigger a single reload.
type Watcher struct {
	store    *Store
	logger   *slog.Logger
	debounce time.Duration
	fsw      *fsnotify.Watcher

	// OnReload runs after every successful reload. Set it before Run.
	OnReload func()

	// reloaded is signalled after each reload attempt; tests use it.
	reloaded chan error
}

// NewWatcher starts watching the store directory. Call Run to process events
// and Close to release the watch.
func NewWatcher(store *Store, logger *slog.Logger, debounce time.Duration) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(store.Dir()); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", store.Dir(), err)
	}
	return &Watcher{
		store:    store,
		logger:   logger,
		debounce: debounce,
		fsw:      fsw,
		reloaded: make(chan error, 1),
	}, nil
}

// Run processes events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			w.logger.Debug("dataset change", "file", filepath.Base(ev.Name), "op", ev.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		case <-timer.C:
			err := w.store.Reload()
			if err != nil {
				w.logger.Error("reload failed, keeping previous dataset", "error", err)
			} else if w.OnReload != nil {
				w.OnReload()
			}
			select {
			case w.reloaded <- err:
			default:
			}
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// relevant filters out hidden and temporary files, including the
// temporaries SaveGob writes before renaming.
func relevant(ev fsnotify.Event) bool {
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove)
}
