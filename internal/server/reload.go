package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce is how long to wait after the last change before
// reloading, so one editor save does not trigger several reloads.
const reloadDebounce = 500 * time.Millisecond

// Reloader watches config files and hot-reloads the engine on change.
// It watches the parent directories rather than the files themselves:
// editors and atomic writers replace the file by rename, which drops a
// per-file watch.
type Reloader struct {
	watcher *fsnotify.Watcher
	server  *Server
	targets map[string]struct{}
}

// NewReloader creates a watcher covering the given config paths.
// Missing or empty paths are skipped.
func NewReloader(server *Server, paths []string) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	r := &Reloader{
		watcher: watcher,
		server:  server,
		targets: make(map[string]struct{}),
	}

	dirs := make(map[string]struct{})
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		r.targets[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %q: %w", dir, err)
		}
	}

	return r, nil
}

// Run blocks until ctx is cancelled, reloading the engine after each
// burst of changes to a watched config file.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

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

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if !r.relevant(event) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, r.reload)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "file watcher error: %v\n", err)
		}
	}
}

// relevant reports whether the event touches a watched config file.
// Create and Rename cover atomic replace; Write covers in-place edits.
func (r *Reloader) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	_, ok := r.targets[abs]
	return ok
}

func (r *Reloader) reload() {
	if err := r.server.Reload(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "hot-reload failed: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "hot-reload: config reloaded\n")
}
