package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coder/websocket"

	"github.com/doctainr/doctainr/internal/docker"
	"github.com/doctainr/doctainr/internal/engine"
	"github.com/doctainr/doctainr/internal/store"
	"github.com/doctainr/doctainr/internal/testutil"
	"github.com/doctainr/doctainr/internal/ws"
)

// setupApp starts a FakeDaemon with one stopped container, an Engine on it,
// and an httptest server running the App's routes.
func setupApp(t *testing.T) (*docker.FakeDaemon, *App, *httptest.Server) {
	t.Helper()

	fd, gw := testutil.Daemon(t, docker.FakeSeed{
		Containers: []docker.FakeContainer{{Name: "web", Image: "nginx:latest"}},
		Volumes:    []docker.FakeVolume{{Name: "pgdata"}},
	})
	eng := engine.New(gw, store.New(), engine.Options{})
	t.Cleanup(func() { eng.Close() })

	app := NewApp(eng, ws.NewServer(), "test")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	app.StartBroadcaster(ctx)

	srv := httptest.NewServer(app.Routes())
	t.Cleanup(srv.Close)
	return fd, app, srv
}

// dial connects and consumes the snapshot sent on connect.
func dial(t *testing.T, srv *httptest.Server) (*testutil.WSClient, store.Snapshot) {
	t.Helper()
	c := testutil.DialWS(t, srv)
	m := c.Read()
	if m.Event != evSnapshot {
		t.Fatalf("first message event = %q, want %s", m.Event, evSnapshot)
	}
	var snap store.Snapshot
	if err := json.Unmarshal(m.Data, &snap); err != nil {
		t.Fatal(err)
	}
	return c, snap
}

func snapshotWhere(t *testing.T, cond func(store.Snapshot) bool) func(testutil.Message) bool {
	return func(m testutil.Message) bool {
		if m.Event != evSnapshot {
			return false
		}
		var snap store.Snapshot
		if err := json.Unmarshal(m.Data, &snap); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		return cond(snap)
	}
}

func TestWS_SnapshotOnConnect(t *testing.T) {
	_, _, srv := setupApp(t)
	_, snap := dial(t, srv)
	if !snap.Connected || len(snap.Containers) != 0 {
		t.Errorf("initial snapshot = %+v", snap)
	}
}

func TestWS_RefreshAllPushesLists(t *testing.T) {
	_, _, srv := setupApp(t)
	c, _ := dial(t, srv)

	ack, _ := c.SendAndAwait(evRefreshAll, snapshotWhere(t, func(s store.Snapshot) bool {
		return len(s.Containers) == 1 && len(s.Volumes) == 1 && s.Busy == (store.Busy{})
	}))
	var ok ws.OkResponse
	json.Unmarshal(ack, &ok)
	if !ok.OK {
		t.Fatalf("ack = %s", ack)
	}
}

func TestWS_StartContainer(t *testing.T) {
	_, _, srv := setupApp(t)
	c, _ := dial(t, srv)

	_, m := c.SendAndAwait(evStartContainer, snapshotWhere(t, func(s store.Snapshot) bool {
		web, ok := s.Container("web")
		return ok && web.State == docker.Running && !s.Busy.Containers
	}), "web")
	var snap store.Snapshot
	json.Unmarshal(m.Data, &snap)
	if snap.LastAction == nil || *snap.LastAction != "Started container web" {
		t.Errorf("last action = %v", snap.LastAction)
	}
}

func TestWS_ConflictSurfacesError(t *testing.T) {
	_, _, srv := setupApp(t)
	c, _ := dial(t, srv)

	c.SendAndAwait(evStopContainer, snapshotWhere(t, func(s store.Snapshot) bool {
		return s.Error != nil && s.Error.Kind == docker.KindConflict &&
			s.Error.Message == "Failed to stop container: Container web is already stopped"
	}), "web")
}

func TestWS_BadRequests(t *testing.T) {
	_, _, srv := setupApp(t)
	c, _ := dial(t, srv)

	var resp ws.ErrorResponse
	json.Unmarshal(c.SendAndReceive(evStartContainer), &resp)
	if resp.OK || resp.Msg != "container id required" {
		t.Errorf("missing id ack = %+v", resp)
	}

	resp = ws.ErrorResponse{}
	json.Unmarshal(c.SendAndReceive("removeContainer", "web"), &resp)
	if resp.OK || resp.Msg != "unknown event: removeContainer" {
		t.Errorf("unknown event ack = %+v", resp)
	}
}

func TestHTTP_HealthzAndSnapshot(t *testing.T) {
	_, app, srv := setupApp(t)
	if err := app.Engine.SyncAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/api/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var snap store.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Containers) != 1 || snap.Containers[0].Name != "web" {
		t.Errorf("snapshot containers = %+v", snap.Containers)
	}
}

func TestBroadcast_DedupPerConnection(t *testing.T) {
	_, gw := testutil.Daemon(t, docker.FakeSeed{})
	eng := engine.New(gw, store.New(), engine.Options{})
	t.Cleanup(func() { eng.Close() })
	app := NewApp(eng, ws.NewServer(), "test")
	srv := httptest.NewServer(app.Routes())
	t.Cleanup(srv.Close)

	c, _ := dial(t, srv)
	st := eng.Store()

	versionOnly := func() *store.Snapshot {
		snap := *st.Snapshot()
		snap.Version += 100
		return &snap
	}
	if n := app.bcast.broadcast(app.WS, versionOnly); n != 0 {
		t.Errorf("version-only change sent to %d connections", n)
	}

	st.SetLastAction("Started container web")
	if n := app.bcast.broadcast(app.WS, st.Snapshot); n != 1 {
		t.Fatalf("content change sent to %d connections, want 1", n)
	}
	var snap store.Snapshot
	json.Unmarshal(c.Read().Data, &snap)
	if snap.LastAction == nil || *snap.LastAction != "Started container web" {
		t.Errorf("pushed last action = %v", snap.LastAction)
	}
}

// A client that connects while nobody was listening must still see the
// store return to content that was broadcast to an earlier client.
func TestBroadcast_ReconnectSeesRevertedState(t *testing.T) {
	_, app, srv := setupApp(t)
	st := app.Engine.Store()

	first, _ := dial(t, srv)
	st.SetLastAction("x")
	awaitSnapshot(t, first, func(s store.Snapshot) bool {
		return s.LastAction != nil && *s.LastAction == "x" && !s.Busy.Containers
	})
	first.Conn.Close(websocket.StatusNormalClosure, "")
	testutil.WaitFor(t, "first client to disconnect", func() bool { return app.WS.ConnectionCount() == 0 })

	st.SetBusy(store.Containers, true)

	second, snap := dial(t, srv)
	if !snap.Busy.Containers {
		t.Fatalf("connect snapshot busy = %+v, want containers busy", snap.Busy)
	}

	st.SetBusy(store.Containers, false)
	awaitSnapshot(t, second, func(s store.Snapshot) bool { return !s.Busy.Containers })
}

// awaitSnapshot reads pushes until one satisfies cond.
func awaitSnapshot(t *testing.T, c *testutil.WSClient, cond func(store.Snapshot) bool) {
	t.Helper()
	match := snapshotWhere(t, cond)
	for !match(c.Read()) {
	}
}

func TestParseArgs(t *testing.T) {
	if args := parseArgs(nil); args != nil {
		t.Error("expected nil for nil message")
	}
	if args := parseArgs(&ws.ClientMessage{Event: "x", Args: json.RawMessage(`not json`)}); args != nil {
		t.Error("expected nil for invalid JSON")
	}

	args := parseArgs(&ws.ClientMessage{Event: "x", Args: json.RawMessage(`["web", 42]`)})
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(args))
	}
	if got := argString(args, 0); got != "web" {
		t.Errorf("argString(0) = %q", got)
	}
	if got := argString(args, 1); got != "" {
		t.Errorf("argString(non-string) = %q", got)
	}
	if got := argString(args, 5); got != "" {
		t.Errorf("argString(out of range) = %q", got)
	}
}
