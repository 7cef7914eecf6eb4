package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a catalog file when it changes. The parent directory is
// watched so editors that replace the file by rename are picked up too.
// Invalid edits are logged and ignored; the last valid catalog stays current.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	updates  chan *Catalog
}

// NewWatcher starts watching path. Call Run to process events and Close when done.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving catalog path: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating catalog watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	slog.Debug("catalog.NewWatcher: watching", "path", abs, "debounce", debounce)
	return &Watcher{
		path:     abs,
		debounce: debounce,
		watcher:  fsw,
		updates:  make(chan *Catalog, 1),
	}, nil
}

// Updates delivers each successfully reloaded catalog. Only the newest
// unread catalog is kept. The channel is closed when Run returns.
func (w *Watcher) Updates() <-chan *Catalog {
	return w.updates
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.updates)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	dirty := false
	var lastEvent time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				dirty = true
				lastEvent = time.Now()
				slog.Debug("catalog.Watcher.Run: change detected", "path", w.path, "op", event.Op.String())
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("catalog.Watcher.Run: watcher error", "error", err)

		case <-ticker.C:
			if !dirty || time.Since(lastEvent) < w.debounce {
				continue
			}
			dirty = false
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	c, err := Load(w.path)
	if err != nil {
		slog.Warn("catalog.Watcher.reload: ignoring invalid catalog edit", "path", w.path, "error", err)
		return
	}
	// drop an unread older catalog in favour of this one
	select {
	case <-w.updates:
	default:
	}
	w.updates <- c
	slog.Info("catalog.Watcher.reload: catalog reloaded", "path", w.path, "interventions", c.Len())
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
