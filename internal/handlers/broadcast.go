package handlers

import (
	"context"
	"encoding/json"
	"hash"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/doctainr/doctainr/internal/store"
	"github.com/doctainr/doctainr/internal/ws"
)

const evSnapshot = "snapshot"

// broadcastState hashes snapshot frames with FNV-1a. Dedup happens per
// connection: each ws.Conn remembers the hash of the last snapshot it got,
// so a client that joined while nothing was broadcast still receives every
// change after its connect snapshot.
//
// mu also serialises "read the store, then write" so a connect snapshot can
// never overtake a newer broadcast on the same connection.
type broadcastState struct {
	mu     sync.Mutex
	hasher hash.Hash64
}

func newBroadcastState() *broadcastState {
	return &broadcastState{hasher: fnv.New64a()}
}

func marshalSnapshot(snap *store.Snapshot) ([]byte, error) {
	return json.Marshal(ws.ServerMessage[*store.Snapshot]{Event: evSnapshot, Data: snap})
}

// frameLocked marshals snap and hashes the envelope. Version is not part of
// the JSON, so a write that changes nothing visible hashes the same.
func (bs *broadcastState) frameLocked(snap *store.Snapshot) (uint64, []byte, bool) {
	msg, err := marshalSnapshot(snap)
	if err != nil {
		slog.Error("broadcast marshal", "err", err)
		return 0, nil, false
	}
	bs.hasher.Reset()
	bs.hasher.Write(msg)
	return bs.hasher.Sum64(), msg, true
}

// broadcast pushes the snapshot returned by latest to every connection
// that has not already received identical content. latest is read under
// the broadcast lock so the frame written is never older than one a
// concurrent connect already sent. Returns the number of connections
// written.
func (bs *broadcastState) broadcast(wss *ws.Server, latest func() *store.Snapshot) int {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	snap := latest()
	sum, msg, ok := bs.frameLocked(snap)
	if !ok {
		return 0
	}
	sent := wss.Push(sum, msg)
	slog.Debug("broadcast", "version", snap.Version, "bytes", len(msg), "conns", sent)
	return sent
}

// sendTo pushes snap to a single connection.
func (bs *broadcastState) sendTo(c *ws.Conn, snap func() *store.Snapshot) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if sum, msg, ok := bs.frameLocked(snap()); ok {
		c.Push(sum, msg)
	}
}

// sendSnapshotTo sends the current snapshot to a single connection (used
// on connect).
func (app *App) sendSnapshotTo(c *ws.Conn) {
	app.bcast.sendTo(c, app.Engine.Store().Snapshot)
}

// StartBroadcaster pushes the store's snapshot to every connection after
// each change until ctx ends.
func (app *App) StartBroadcaster(ctx context.Context) {
	st := app.Engine.Store()
	changes, cancel := st.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				if app.WS.ConnectionCount() == 0 {
					continue
				}
				app.bcast.broadcast(app.WS, st.Snapshot)
			}
		}
	}()
}
