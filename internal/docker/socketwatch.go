package docker

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchSocket waits for the daemon socket at socketPath to appear and calls
// onCreate each time it does. The parent directory must exist. The watch
// stops when ctx is cancelled.
func WatchSocket(ctx context.Context, socketPath string, onCreate func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(socketPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go runSocketWatcher(ctx, watcher, filepath.Clean(socketPath), onCreate)

	slog.Info("docker socket watcher started", "socket", socketPath)
	return nil
}

func runSocketWatcher(ctx context.Context, watcher *fsnotify.Watcher, socketPath string, onCreate func()) {
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != socketPath {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				slog.Debug("docker socket created", "socket", socketPath)
				onCreate()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("docker socket watcher", "err", err)
		}
	}
}
