package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 1 << 20 // 1 MB
)

var lastConnID atomic.Uint64

// Conn is one UI client. Writes are serialised; each connection remembers
// the hash of the last state push it received so that pushes are
// deduplicated per client rather than server-wide.
type Conn struct {
	id     string
	ws     *websocket.Conn
	server *Server
	done   chan struct{}

	mu       sync.Mutex // guards writes, closed and lastPush
	closed   bool
	lastPush uint64
}

func newConn(ws *websocket.Conn, server *Server) *Conn {
	return &Conn{
		id:     "c" + strconv.FormatUint(lastConnID.Add(1), 10),
		ws:     ws,
		server: server,
		done:   make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Done is closed once the connection is gone.
func (c *Conn) Done() <-chan struct{} { return c.done }

// SendAck answers the client request with the given id.
func SendAck[T any](c *Conn, id int64, data T) {
	if msg, ok := marshal(AckMessage[T]{ID: id, Data: data}); ok {
		c.Send(msg)
	}
}

// SendEvent pushes an event without touching the push dedup state.
func SendEvent[T any](c *Conn, event string, data T) {
	if msg, ok := marshal(ServerMessage[T]{Event: event, Data: data}); ok {
		c.Send(msg)
	}
}

func marshal(v any) ([]byte, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("ws marshal", "err", err)
		return nil, false
	}
	return data, true
}

// Send writes a pre-marshalled frame.
func (c *Conn) Send(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeLocked(frame)
}

// Push writes frame unless this connection's last push had the same hash.
// It reports whether the frame was written.
func (c *Conn) Push(hash uint64, frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || hash == c.lastPush {
		return false
	}
	if !c.writeLocked(frame) {
		return false
	}
	c.lastPush = hash
	return true
}

func (c *Conn) writeLocked(frame []byte) bool {
	if c.closed {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := c.ws.Write(ctx, websocket.MessageText, frame); err != nil {
		slog.Debug("ws write", "conn", c.id, "err", err)
		c.closeLocked()
		return false
	}
	return true
}

// readPump decodes client requests and dispatches them in order until the
// peer goes away.
func (c *Conn) readPump(ctx context.Context) {
	defer func() {
		c.server.remove(c)
		c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			slog.Debug("ws read", "conn", c.id, "err", err)
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("ws bad request", "conn", c.id, "err", err)
			continue
		}
		c.server.dispatch(c, &msg)
	}
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Conn) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	c.ws.Close(websocket.StatusNormalClosure, "")
}
