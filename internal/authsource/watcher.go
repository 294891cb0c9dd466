package authsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/steveyegge/authcap/internal/credstore"
)

// DefaultDebounce coalesces the bursts of events a single atomic write makes.
const DefaultDebounce = 250 * time.Millisecond

// Reloader is notified when the store changes.
type Reloader interface {
	ReloadAuthSources() error
}

// Watcher reloads a Reloader when credential files in the store directory
// are created, written, removed or renamed.
type Watcher struct {
	dir      string
	target   Reloader
	debounce time.Duration
	logger   func(format string, args ...interface{})
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, target Reloader, logger func(format string, args ...interface{})) *Watcher {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	return &Watcher{dir: dir, target: target, debounce: DefaultDebounce, logger: logger}
}

// Run watches until ctx is done. The store directory is created if missing.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("creating credential dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	fire := make(chan struct{}, 1)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			if err := w.target.ReloadAuthSources(); err != nil {
				w.logger("authsource: reload after store change: %v", err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger("authsource: watch error: %v", err)
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	_, ok := credstore.ParseFilename(filepath.Base(ev.Name))
	return ok
}
