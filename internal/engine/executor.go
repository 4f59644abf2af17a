package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/doctainr/doctainr/internal/docker"
	"github.com/doctainr/doctainr/internal/store"
)

type action struct {
	op   string // "start container"
	verb string // "Started"
	call func(gw docker.Gateway, ctx context.Context, id string) error
}

var (
	startAction = action{
		op:   "start container",
		verb: "Started",
		call: docker.Gateway.StartContainer,
	}
	stopAction = action{
		op:   "stop container",
		verb: "Stopped",
		call: docker.Gateway.StopContainer,
	}
)

// Executor runs start/stop requests followed by a container resync. It
// never edits the container list optimistically: the list changes only
// when the resync lands.
type Executor struct {
	store       *store.Store
	gateway     func() docker.Gateway
	ctrl        *Controller
	timeout     time.Duration
	stopTimeout time.Duration

	// onPhase, when set, is called on every phase transition of every task.
	onPhase func(id string, p Phase)
}

func newExecutor(st *store.Store, gateway func() docker.Gateway, ctrl *Controller, timeout, stopTimeout time.Duration) *Executor {
	return &Executor{
		store:       st,
		gateway:     gateway,
		ctrl:        ctrl,
		timeout:     timeout,
		stopTimeout: stopTimeout,
	}
}

func (x *Executor) dispatch(ctx context.Context, a action, id string) *Task {
	var hook func(Phase)
	if x.onPhase != nil {
		hook = func(p Phase) { x.onPhase(id, p) }
	}
	task := newTask(hook)

	x.ctrl.hold(store.Containers)
	task.setPhase(Dispatching)

	go func() {
		err := x.run(ctx, task, a, id)
		task.setPhase(Idle)
		task.finish(err)
	}()
	return task
}

func (x *Executor) run(ctx context.Context, task *Task, a action, id string) error {
	defer x.ctrl.release(store.Containers)

	callCtx := ctx
	if x.timeout > 0 {
		d := x.timeout
		if a.op == stopAction.op {
			d += x.stopTimeout
		}
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	if err := a.call(x.gateway(), callCtx, id); err != nil {
		task.setPhase(Failed)
		slog.Warn("action", "op", a.op, "container", id, "err", err)
		x.store.SetError(storeError(store.SourceActions, a.op, err))
		markConnection(x.store, err)
		return err
	}

	task.setPhase(Succeeded)
	slog.Info("action", "op", a.op, "container", id)
	x.store.SetLastAction(a.verb + " container " + id)
	x.store.ClearErrorFrom(store.SourceActions, store.SourceContainers)

	// The resync draws its own busy hold before ours is released, so the
	// container busy flag stays up across the hand-off.
	task.setPhase(Resyncing)
	return x.ctrl.sync(ctx, store.Containers)
}
