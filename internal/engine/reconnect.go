package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/doctainr/doctainr/internal/docker"
)

var errNotUnixSocket = errors.New("docker host is not a unix socket")

const (
	reconnectAttempts = 5
	reconnectDelay    = 200 * time.Millisecond
)

// ReconnectOnSocket watches the daemon's Unix socket and, whenever it
// appears while the engine is disconnected, installs a fresh Gateway. No
// sync is started; the UI refreshes when it chooses to.
func (e *Engine) ReconnectOnSocket(ctx context.Context, opts docker.Options) error {
	host := docker.ResolveHost(opts.Host)
	path := docker.SocketPath(host)
	if path == "" {
		return errNotUnixSocket
	}
	opts.Host = host

	return docker.WatchSocket(ctx, path, func() {
		if e.store.Snapshot().Connected {
			return
		}
		// The socket file exists slightly before the daemon accepts on it.
		var lastErr error
		for attempt := 0; attempt < reconnectAttempts; attempt++ {
			gw, err := docker.Connect(ctx, opts)
			if err == nil {
				e.SetGateway(gw)
				e.RecordAction("Connected to Docker daemon at " + host)
				return
			}
			lastErr = err
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
		slog.Warn("docker socket appeared but daemon is not answering", "host", host, "err", lastErr)
	})
}
