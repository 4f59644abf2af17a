// Package testutil holds helpers shared by tests that need a fake Docker
// daemon or a WebSocket client.
package testutil

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/doctainr/doctainr/internal/docker"
)

var msgIDCounter int64

// Daemon starts a FakeDaemon with seed and returns it together with an
// SDK-backed Gateway connected to it. Both are closed on cleanup.
func Daemon(t testing.TB, seed docker.FakeSeed) (*docker.FakeDaemon, *docker.SDKGateway) {
	t.Helper()

	fd, err := docker.StartFakeDaemon()
	if err != nil {
		t.Fatalf("start fake daemon: %v", err)
	}
	t.Cleanup(func() { fd.Close() })
	fd.Seed(seed)

	gw, err := docker.NewSDKGatewayWithHost(fd.Host(), time.Second)
	if err != nil {
		t.Fatalf("new sdk gateway: %v", err)
	}
	t.Cleanup(func() { gw.Close() })
	return fd, gw
}

// WaitFor polls cond every 10ms until it holds, failing after 5s.
func WaitFor(t testing.TB, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Message is any frame the server sends: an ack carries ID, a push carries
// Event.
type Message struct {
	ID    *int64          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSClient is a test WebSocket client.
type WSClient struct {
	t    testing.TB
	Conn *websocket.Conn
	ctx  context.Context
}

// DialWS opens a WebSocket connection to srv's /ws endpoint. Every read and
// write shares a 10s budget.
func DialWS(t testing.TB, srv *httptest.Server) *WSClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	wsURL := "ws" + srv.URL[4:] + "/ws" // http -> ws
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatal("dial ws:", err)
	}
	conn.SetReadLimit(1 << 20)

	t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "")
	})
	return &WSClient{t: t, Conn: conn, ctx: ctx}
}

// Read returns the next frame.
func (c *WSClient) Read() Message {
	c.t.Helper()
	_, data, err := c.Conn.Read(c.ctx)
	if err != nil {
		c.t.Fatal("read:", err)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		c.t.Fatalf("unmarshal %s: %v", data, err)
	}
	return m
}

// Send writes an event with a fresh ack ID and returns that ID.
func (c *WSClient) Send(event string, args ...any) int64 {
	c.t.Helper()

	id := atomic.AddInt64(&msgIDCounter, 1)
	argsJSON, err := json.Marshal(args)
	if err != nil {
		c.t.Fatal("marshal args:", err)
	}
	data, err := json.Marshal(map[string]any{
		"id":    id,
		"event": event,
		"args":  json.RawMessage(argsJSON),
	})
	if err != nil {
		c.t.Fatal("marshal msg:", err)
	}
	if err := c.Conn.Write(c.ctx, websocket.MessageText, data); err != nil {
		c.t.Fatal("write:", err)
	}
	return id
}

// SendAndReceive sends an event and returns the raw data of its ack,
// skipping push messages.
func (c *WSClient) SendAndReceive(event string, args ...any) json.RawMessage {
	c.t.Helper()
	id := c.Send(event, args...)
	for {
		m := c.Read()
		if m.ID != nil && *m.ID == id {
			return m.Data
		}
	}
}

// SendAndAwait sends an event and reads until both its ack and a push
// for which match returns true have arrived, in either order. It returns
// the ack data and the matching push.
func (c *WSClient) SendAndAwait(event string, match func(Message) bool, args ...any) (json.RawMessage, Message) {
	c.t.Helper()
	id := c.Send(event, args...)

	var (
		ack     json.RawMessage
		pushed  Message
		gotAck  bool
		gotPush bool
	)
	for !gotAck || !gotPush {
		m := c.Read()
		switch {
		case m.ID != nil && *m.ID == id:
			ack, gotAck = m.Data, true
		case !gotPush && m.Event != "" && match(m):
			pushed, gotPush = m, true
		}
	}
	return ack, pushed
}
