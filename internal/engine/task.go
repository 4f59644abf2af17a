package engine

import (
	"context"
	"sync/atomic"
)

// Phase is the lifecycle position of a Task.
//
// Actions move Idle → Dispatching → Succeeded → Resyncing → Idle on
// success and Idle → Dispatching → Failed → Idle on failure. Refreshes move
// Idle → Dispatching → Idle.
type Phase int32

const (
	Idle Phase = iota
	Dispatching
	Succeeded
	Resyncing
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Dispatching:
		return "dispatching"
	case Succeeded:
		return "succeeded"
	case Resyncing:
		return "resyncing"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Task is the handle for one background refresh or action. Callers may drop
// it; the outcome is always reflected in the store as well.
type Task struct {
	done    chan struct{}
	err     error
	phase   atomic.Int32
	onPhase func(Phase)
}

func newTask(onPhase func(Phase)) *Task {
	return &Task{done: make(chan struct{}), onPhase: onPhase}
}

func (t *Task) setPhase(p Phase) {
	t.phase.Store(int32(p))
	if t.onPhase != nil {
		t.onPhase(p)
	}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Phase returns the current phase.
func (t *Task) Phase() Phase {
	return Phase(t.phase.Load())
}

// Done is closed when the task has finished and the store reflects its
// outcome.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx ends. It returns the task's
// error, or ctx's error if ctx ended first.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task's error once it is done, nil before that.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}
