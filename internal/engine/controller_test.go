package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/doctainr/doctainr/internal/docker"
	"github.com/doctainr/doctainr/internal/store"
)

// scriptedGateway answers ListContainers from a queue of scripted calls.
// Each call blocks until its release channel is closed.
type scriptedGateway struct {
	calls   []scriptedCall
	next    atomic.Int32
	entered chan int
}

type scriptedCall struct {
	release chan struct{}
	list    []docker.ContainerRecord
	err     error
}

func (g *scriptedGateway) ListContainers(ctx context.Context) ([]docker.ContainerRecord, error) {
	i := int(g.next.Add(1)) - 1
	call := g.calls[i]
	g.entered <- i
	select {
	case <-call.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return call.list, call.err
}

func (g *scriptedGateway) ListImages(context.Context) ([]docker.ImageRecord, error) {
	return []docker.ImageRecord{}, nil
}

func (g *scriptedGateway) ListVolumes(context.Context) ([]docker.VolumeRecord, error) {
	return []docker.VolumeRecord{}, nil
}

func (g *scriptedGateway) StartContainer(context.Context, string) error { return nil }
func (g *scriptedGateway) StopContainer(context.Context, string) error  { return nil }

func (g *scriptedGateway) Events(ctx context.Context) (<-chan docker.ResourceEvent, <-chan error) {
	out := make(chan docker.ResourceEvent)
	errCh := make(chan error)
	go func() {
		<-ctx.Done()
		close(out)
		close(errCh)
	}()
	return out, errCh
}

func (g *scriptedGateway) Host() string { return "scripted://" }
func (g *scriptedGateway) Close() error { return nil }

func newScripted(calls ...scriptedCall) *scriptedGateway {
	for i := range calls {
		calls[i].release = make(chan struct{})
	}
	return &scriptedGateway{calls: calls, entered: make(chan int, len(calls))}
}

func TestController_StaleResultDiscarded(t *testing.T) {
	older := []docker.ContainerRecord{{ID: "old", Name: "old", State: docker.Stopped}}
	newer := []docker.ContainerRecord{{ID: "new", Name: "new", State: docker.Running}}
	gw := newScripted(scriptedCall{list: older}, scriptedCall{list: newer})

	eng := New(gw, store.New(), Options{})
	defer eng.Close()
	ctx := waitCtx(t)

	first := eng.RefreshContainers()
	<-gw.entered
	second := eng.RefreshContainers()
	<-gw.entered

	close(gw.calls[1].release)
	if err := second.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if !eng.Store().Snapshot().Busy.Containers {
		t.Error("busy cleared while the first refresh is still in flight")
	}

	close(gw.calls[0].release)
	if err := first.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	snap := eng.Store().Snapshot()
	if len(snap.Containers) != 1 || snap.Containers[0].ID != "new" {
		t.Errorf("containers = %+v, want the newer result", snap.Containers)
	}
	if snap.Busy.Containers {
		t.Error("containers still busy")
	}
}

func TestController_StaleFailureDiscarded(t *testing.T) {
	newer := []docker.ContainerRecord{{ID: "new", Name: "new"}}
	boom := docker.ConnectionError("list containers", errors.New("connection reset"))
	gw := newScripted(scriptedCall{err: boom}, scriptedCall{list: newer})

	eng := New(gw, store.New(), Options{})
	defer eng.Close()
	ctx := waitCtx(t)

	first := eng.RefreshContainers()
	<-gw.entered
	second := eng.RefreshContainers()
	<-gw.entered

	close(gw.calls[1].release)
	if err := second.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	close(gw.calls[0].release)
	if err := first.Wait(ctx); !errors.Is(err, docker.ErrConnection) {
		t.Fatalf("first refresh err = %v", err)
	}

	snap := eng.Store().Snapshot()
	if snap.Error != nil {
		t.Errorf("stale failure recorded: %+v", snap.Error)
	}
	if len(snap.Containers) != 1 || snap.Containers[0].ID != "new" {
		t.Errorf("containers = %+v", snap.Containers)
	}
}

func TestRefresh_TaskPhase(t *testing.T) {
	gw := newScripted(scriptedCall{list: []docker.ContainerRecord{}})
	eng := New(gw, store.New(), Options{})
	defer eng.Close()

	task := eng.RefreshContainers()
	<-gw.entered
	if task.Phase() != Dispatching {
		t.Errorf("phase while fetching = %v", task.Phase())
	}
	if task.Err() != nil {
		t.Error("Err non-nil before completion")
	}
	select {
	case <-task.Done():
		t.Fatal("done before release")
	default:
	}

	close(gw.calls[0].release)
	if err := task.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	if task.Phase() != Idle {
		t.Errorf("final phase = %v", task.Phase())
	}
}

func TestTask_WaitHonoursContext(t *testing.T) {
	gw := newScripted(scriptedCall{})
	eng := New(gw, store.New(), Options{})

	task := eng.RefreshContainers()
	<-gw.entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := task.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}

	// Closing the engine cancels the in-flight fetch.
	eng.Close()
	if err := task.Wait(waitCtx(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("fetch err after Close = %v", err)
	}
}

func TestPhase_String(t *testing.T) {
	for p, want := range map[Phase]string{
		Idle: "idle", Dispatching: "dispatching", Succeeded: "succeeded",
		Resyncing: "resyncing", Failed: "failed", Phase(42): "unknown",
	} {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", p, got, want)
		}
	}
}
