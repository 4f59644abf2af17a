package ws

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// HandlerFunc processes a client message. Handlers must return immediately;
// long-running work belongs in a goroutine.
type HandlerFunc func(c *Conn, msg *ClientMessage)

// Server manages WebSocket connections and message dispatch.
type Server struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}

	handlers  map[string]HandlerFunc
	connectFn func(c *Conn)
}

func NewServer() *Server {
	return &Server{
		conns:    make(map[*Conn]struct{}),
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers a handler for a named event.
func (s *Server) Handle(event string, fn HandlerFunc) {
	s.handlers[event] = fn
}

// HandleConnect registers a callback that fires when a new connection is
// established, before its read pump starts.
func (s *Server) HandleConnect(fn func(c *Conn)) {
	s.connectFn = fn
}

// ServeHTTP upgrades the HTTP request to a WebSocket connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The UI is served from another origin during development.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("ws accept", "err", err)
		return
	}

	c := newConn(ws, s)
	s.add(c)

	slog.Debug("ws connected", "conn", c.id, "remote", r.RemoteAddr)

	if s.connectFn != nil {
		s.connectFn(c)
	}

	// Block on the read pump; this goroutine is owned by net/http
	c.readPump(r.Context())
}

// Push offers a pre-marshalled state frame to every connection. Clients
// whose last push carried the same hash are skipped. It returns how many
// connections were written to.
func (s *Server) Push(hash uint64, frame []byte) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sent := 0
	for c := range s.conns {
		if c.Push(hash, frame) {
			sent++
		}
	}
	return sent
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// CloseAll closes every connection, used on shutdown.
func (s *Server) CloseAll() {
	s.mu.RLock()
	all := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		all = append(all, c)
	}
	s.mu.RUnlock()

	for _, c := range all {
		c.Close()
	}
}

func (s *Server) add(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) remove(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()

	slog.Debug("ws disconnected", "conn", c.id, "remaining", s.ConnectionCount())
}

func (s *Server) dispatch(c *Conn, msg *ClientMessage) {
	h, ok := s.handlers[msg.Event]
	if !ok {
		slog.Warn("ws unknown event", "event", msg.Event)
		if msg.ID != nil {
			SendAck(c, *msg.ID, ErrorResponse{OK: false, Msg: "unknown event: " + msg.Event})
		}
		return
	}
	h(c, msg)
}
