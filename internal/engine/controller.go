package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/doctainr/doctainr/internal/docker"
	"github.com/doctainr/doctainr/internal/store"
)

// Controller fetches resource lists from the Gateway and merges them into
// the store. Fetches of different classes are independent: there is no
// all-succeeded barrier and one class's failure never touches another.
//
// Failed fetches are not retried.
type Controller struct {
	store   *store.Store
	gateway func() docker.Gateway
	timeout time.Duration

	mu       sync.Mutex
	inflight map[store.Class]int
	issued   map[store.Class]uint64
	applied  map[store.Class]uint64
}

func newController(st *store.Store, gateway func() docker.Gateway, timeout time.Duration) *Controller {
	return &Controller{
		store:    st,
		gateway:  gateway,
		timeout:  timeout,
		inflight: make(map[store.Class]int),
		issued:   make(map[store.Class]uint64),
		applied:  make(map[store.Class]uint64),
	}
}

// hold marks class busy. Busy is reference counted so overlapping work on
// one class keeps the flag up until the last piece finishes.
func (c *Controller) hold(class store.Class) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdLocked(class)
}

func (c *Controller) holdLocked(class store.Class) {
	c.inflight[class]++
	if c.inflight[class] == 1 {
		c.store.SetBusy(class, true)
	}
}

func (c *Controller) release(class store.Class) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked(class)
}

func (c *Controller) releaseLocked(class store.Class) {
	c.inflight[class]--
	if c.inflight[class] <= 0 {
		c.inflight[class] = 0
		c.store.SetBusy(class, false)
	}
}

// begin marks class busy and returns the sequence number of a new fetch.
func (c *Controller) begin(class store.Class) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdLocked(class)
	c.issued[class]++
	return c.issued[class]
}

// run performs the fetch started by begin and applies its result unless a
// newer fetch of the same class has already been applied.
func (c *Controller) run(ctx context.Context, class store.Class, seq uint64) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	gw := c.gateway()
	var (
		apply func()
		err   error
	)
	switch class {
	case store.Containers:
		var list []docker.ContainerRecord
		if list, err = gw.ListContainers(ctx); err == nil {
			apply = func() { c.store.ReplaceContainers(list) }
		}
	case store.Images:
		var list []docker.ImageRecord
		if list, err = gw.ListImages(ctx); err == nil {
			apply = func() { c.store.ReplaceImages(list) }
		}
	case store.Volumes:
		var list []docker.VolumeRecord
		if list, err = gw.ListVolumes(ctx); err == nil {
			apply = func() { c.store.ReplaceVolumes(list) }
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.releaseLocked(class)

	if seq < c.applied[class] {
		slog.Debug("sync: discarding stale result", "class", class, "seq", seq, "applied", c.applied[class])
		return err
	}
	c.applied[class] = seq

	if err != nil {
		slog.Warn("sync", "class", class, "err", err)
		c.store.SetError(storeError(store.SourceOf(class), "list "+string(class), err))
		markConnection(c.store, err)
		return err
	}
	apply()
	c.store.ClearErrorFrom(successClears(class)...)
	if !c.store.Snapshot().Connected {
		c.store.SetConnected(true)
	}
	return nil
}

// markConnection flags the store disconnected when err says the daemon is
// unreachable, which lets the socket watcher reconnect.
func markConnection(st *store.Store, err error) {
	if docker.KindOf(err) == docker.KindConnection && st.Snapshot().Connected {
		st.SetConnected(false)
	}
}

// successClears lists the error sources a successful fetch of class
// supersedes. A fresh container list also supersedes a failed action.
func successClears(class store.Class) []store.Source {
	if class == store.Containers {
		return []store.Source{store.SourceContainers, store.SourceActions, store.SourceEngine}
	}
	return []store.Source{store.SourceOf(class), store.SourceEngine}
}

// sync fetches one class and blocks until the store reflects the result.
func (c *Controller) sync(ctx context.Context, class store.Class) error {
	return c.run(ctx, class, c.begin(class))
}

// syncAll fetches every class concurrently and returns the first error.
func (c *Controller) syncAll(ctx context.Context) error {
	seqs := make(map[store.Class]uint64, len(store.Classes))
	for _, class := range store.Classes {
		seqs[class] = c.begin(class)
	}

	var g errgroup.Group
	for _, class := range store.Classes {
		g.Go(func() error {
			return c.run(ctx, class, seqs[class])
		})
	}
	return g.Wait()
}

// refresh marks classes busy before returning, then fetches them in the
// background.
func (c *Controller) refresh(ctx context.Context, classes ...store.Class) *Task {
	task := newTask(nil)
	seqs := make([]uint64, len(classes))
	for i, class := range classes {
		seqs[i] = c.begin(class)
	}
	task.setPhase(Dispatching)

	go func() {
		var g errgroup.Group
		for i, class := range classes {
			g.Go(func() error {
				return c.run(ctx, class, seqs[i])
			})
		}
		err := g.Wait()
		task.setPhase(Idle)
		task.finish(err)
	}()
	return task
}

// storeError converts a Gateway failure into the store's user-facing error.
func storeError(source store.Source, op string, err error) *store.Error {
	return &store.Error{
		Source:  source,
		Kind:    docker.KindOf(err),
		Message: "Failed to " + op + ": " + docker.Message(err),
	}
}
