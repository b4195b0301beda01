package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader watches the sensitivity config file and swaps the whole
// config into the pipeline on change. A partially updated config never
// takes effect: the swap happens only after the file re-validates.
type Reloader struct {
	watcher *fsnotify.Watcher
	server  *Server
	logger  *slog.Logger
}

// NewReloader creates a file watcher for the given config path.
// Returns nil (no watcher) when the path does not exist yet.
func NewReloader(server *Server, path string, logger *slog.Logger) (*Reloader, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %q: %w", path, err)
	}

	return &Reloader{watcher: watcher, server: server, logger: logger}, nil
}

// Run watches for config changes and reloads. Blocks until ctx is
// cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: wait 500ms after the last write before reloading, so
	// editors that write in several chunks trigger one reload.
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := r.server.Reload(); err != nil {
						r.logger.Error("hot-reload failed, keeping previous config", "error", err)
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", "error", err)
		}
	}
}
