package handlers

import (
	"github.com/doctainr/doctainr/internal/engine"
	"github.com/doctainr/doctainr/internal/ws"
)

// Event names clients may send.
const (
	evRefreshAll        = "refreshAll"
	evRefreshContainers = "refreshContainers"
	evRefreshImages     = "refreshImages"
	evRefreshVolumes    = "refreshVolumes"
	evStartContainer    = "startContainer"
	evStopContainer     = "stopContainer"
)

// App holds shared dependencies for all handlers.
type App struct {
	Engine  *engine.Engine
	WS      *ws.Server
	Version string

	bcast *broadcastState
}

// NewApp wires the WebSocket server to the engine: every connection gets the
// current snapshot on connect and the action events are registered.
func NewApp(eng *engine.Engine, wss *ws.Server, version string) *App {
	app := &App{
		Engine:  eng,
		WS:      wss,
		Version: version,
		bcast:   newBroadcastState(),
	}
	wss.HandleConnect(app.sendSnapshotTo)
	RegisterResourceHandlers(app)
	return app
}
