package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/doctainr/doctainr/internal/docker"
	"github.com/doctainr/doctainr/internal/store"
)

const (
	debounceDelay = 200 * time.Millisecond
	maxBackoff    = 30 * time.Second
)

var errEventsClosed = errors.New("docker events channel closed")

// classDebouncer runs one trailing-edge timer per class. Each trigger
// resets that class's timer; fn runs debounceDelay after the last trigger.
type classDebouncer struct {
	mu     sync.Mutex
	delay  time.Duration
	timers map[store.Class]*time.Timer
}

func newClassDebouncer(delay time.Duration) *classDebouncer {
	return &classDebouncer{delay: delay, timers: make(map[store.Class]*time.Timer)}
}

func (d *classDebouncer) trigger(class store.Class, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[class]; ok {
		t.Stop()
	}
	d.timers[class] = time.AfterFunc(d.delay, fn)
}

func (d *classDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.timers {
		t.Stop()
	}
}

// WatchEvents subscribes to daemon events and refreshes the affected class
// shortly after each burst. A broken stream is resubscribed with
// exponential backoff, picking up whatever Gateway is current, so the
// watcher survives daemon restarts and SetGateway. It runs until ctx ends.
func (e *Engine) WatchEvents(ctx context.Context) {
	go e.runWatchLoop(ctx, newClassDebouncer(debounceDelay))
}

func (e *Engine) runWatchLoop(ctx context.Context, debouncer *classDebouncer) {
	defer debouncer.stop()

	backoff := time.Second
	for {
		eventCh, errCh := e.Gateway().Events(ctx)

		received, err := e.consumeEvents(ctx, eventCh, errCh, debouncer)
		if ctx.Err() != nil {
			return
		}
		if received {
			backoff = time.Second
		}

		slog.Warn("docker events: resubscribing", "backoff", backoff, "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// consumeEvents dispatches events until the stream ends. It reports whether
// any event arrived.
func (e *Engine) consumeEvents(ctx context.Context, eventCh <-chan docker.ResourceEvent, errCh <-chan error, debouncer *classDebouncer) (bool, error) {
	received := false
	for {
		select {
		case <-ctx.Done():
			return received, ctx.Err()

		case evt, ok := <-eventCh:
			if !ok {
				// The error, if any, is sent before the channels close.
				select {
				case err, ok := <-errCh:
					if ok && err != nil {
						return received, err
					}
				default:
				}
				return received, errEventsClosed
			}
			received = true
			class, ok := eventClass(evt.Type)
			if !ok {
				continue
			}
			slog.Debug("docker event", "type", evt.Type, "action", evt.Action, "id", evt.ID)
			debouncer.trigger(class, func() { e.Refresh(class) })

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			return received, err
		}
	}
}

func eventClass(typ string) (store.Class, bool) {
	switch typ {
	case "container":
		return store.Containers, true
	case "image":
		return store.Images, true
	case "volume":
		return store.Volumes, true
	}
	return "", false
}
