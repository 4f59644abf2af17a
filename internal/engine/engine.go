// Package engine keeps the store in step with the Docker daemon.
//
// Refresh* and Start/Stop calls return at once with a *Task and do their
// work in the background; Sync* calls block until the store reflects the
// result. Either way the outcome lands in the store, which is the only
// thing a UI needs to watch.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/doctainr/doctainr/internal/docker"
	"github.com/doctainr/doctainr/internal/store"
)

// Options tunes an Engine.
type Options struct {
	// RequestTimeout bounds each Gateway call. Zero means no bound beyond
	// the caller's context.
	RequestTimeout time.Duration

	// StopTimeout is added to RequestTimeout for stop requests so the
	// daemon's grace period is not cut short.
	StopTimeout time.Duration

	// OnPhase observes every action phase transition.
	OnPhase func(id string, p Phase)
}

// Engine combines the Controller and Executor around a Gateway that can be
// replaced while running.
type Engine struct {
	store *store.Store
	ctrl  *Controller
	exec  *Executor

	ctx    context.Context
	cancel context.CancelFunc

	mu sync.RWMutex
	gw docker.Gateway
}

// New returns an Engine that reads from gw and writes to st. The store is
// marked connected.
func New(gw docker.Gateway, st *store.Store, opts Options) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:  st,
		gw:     gw,
		ctx:    ctx,
		cancel: cancel,
	}
	e.ctrl = newController(st, e.Gateway, opts.RequestTimeout)
	e.exec = newExecutor(st, e.Gateway, e.ctrl, opts.RequestTimeout, opts.StopTimeout)
	e.exec.onPhase = opts.OnPhase
	st.SetConnected(true)
	return e
}

// NewDegraded returns an Engine whose Gateway fails every call with cause
// until SetGateway installs a live one.
func NewDegraded(host string, cause error, st *store.Store, opts Options) *Engine {
	e := New(docker.Unavailable(host, cause), st, opts)
	e.Degrade(host, cause)
	return e
}

func (e *Engine) Store() *store.Store { return e.store }

// Gateway returns the current Gateway.
func (e *Engine) Gateway() docker.Gateway {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gw
}

// SetGateway installs a live Gateway, closing the previous one. No sync is
// triggered; the next refresh uses the new Gateway.
func (e *Engine) SetGateway(gw docker.Gateway) {
	e.swap(gw)
	e.store.SetConnected(true)
	e.store.ClearErrorFrom(store.SourceEngine)
	slog.Info("docker gateway connected", "host", gw.Host())
}

// Degrade switches to a Gateway that fails every call with cause and
// records the connection failure in the store. Lists already in the store
// stay visible.
func (e *Engine) Degrade(host string, cause error) {
	gw := docker.Unavailable(host, cause)
	e.swap(gw)
	e.store.SetConnected(false)
	e.store.SetError(storeError(store.SourceEngine, "connect", docker.ConnectionError("connect", cause)))
	slog.Warn("docker gateway unavailable", "host", host, "err", cause)
}

func (e *Engine) swap(gw docker.Gateway) {
	e.mu.Lock()
	old := e.gw
	e.gw = gw
	e.mu.Unlock()
	if old != nil && old != gw {
		old.Close()
	}
}

// Close cancels in-flight work and closes the Gateway.
func (e *Engine) Close() error {
	e.cancel()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gw == nil {
		return nil
	}
	return e.gw.Close()
}

// SyncAll fetches all three classes concurrently and returns once each has
// been applied. The first error is returned; other classes still land.
func (e *Engine) SyncAll(ctx context.Context) error {
	return e.ctrl.syncAll(ctx)
}

func (e *Engine) SyncContainers(ctx context.Context) error {
	return e.ctrl.sync(ctx, store.Containers)
}

func (e *Engine) SyncImages(ctx context.Context) error {
	return e.ctrl.sync(ctx, store.Images)
}

func (e *Engine) SyncVolumes(ctx context.Context) error {
	return e.ctrl.sync(ctx, store.Volumes)
}

// RefreshAll starts a background fetch of every class. The busy flags are
// already set when it returns.
func (e *Engine) RefreshAll() *Task {
	return e.ctrl.refresh(e.ctx, store.Classes...)
}

func (e *Engine) RefreshContainers() *Task {
	return e.ctrl.refresh(e.ctx, store.Containers)
}

func (e *Engine) RefreshImages() *Task {
	return e.ctrl.refresh(e.ctx, store.Images)
}

func (e *Engine) RefreshVolumes() *Task {
	return e.ctrl.refresh(e.ctx, store.Volumes)
}

// Refresh starts a background fetch of one class.
func (e *Engine) Refresh(class store.Class) *Task {
	return e.ctrl.refresh(e.ctx, class)
}

// StartContainer starts id in the background and resyncs containers on
// success. Starting a running container fails with a conflict.
func (e *Engine) StartContainer(id string) *Task {
	return e.exec.dispatch(e.ctx, startAction, id)
}

// StopContainer stops id in the background and resyncs containers on
// success. Stopping a stopped container fails with a conflict.
func (e *Engine) StopContainer(id string) *Task {
	return e.exec.dispatch(e.ctx, stopAction, id)
}

// SetState moves id towards the desired state.
func (e *Engine) SetState(id string, state docker.State) *Task {
	if state == docker.Running {
		return e.StartContainer(id)
	}
	return e.StopContainer(id)
}

// RecordAction sets the store's last action message.
func (e *Engine) RecordAction(msg string) {
	e.store.SetLastAction(msg)
}
