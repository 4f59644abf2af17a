package handlers

import (
	"github.com/doctainr/doctainr/internal/engine"
	"github.com/doctainr/doctainr/internal/ws"
)

// RegisterResourceHandlers registers the refresh and container action
// events. Each request is acknowledged as soon as it is dispatched; its
// outcome reaches the client through later snapshots.
func RegisterResourceHandlers(app *App) {
	app.WS.Handle(evRefreshAll, app.refresh(app.Engine.RefreshAll))
	app.WS.Handle(evRefreshContainers, app.refresh(app.Engine.RefreshContainers))
	app.WS.Handle(evRefreshImages, app.refresh(app.Engine.RefreshImages))
	app.WS.Handle(evRefreshVolumes, app.refresh(app.Engine.RefreshVolumes))
	app.WS.Handle(evStartContainer, app.containerAction(app.Engine.StartContainer))
	app.WS.Handle(evStopContainer, app.containerAction(app.Engine.StopContainer))
}

func (app *App) refresh(fn func() *engine.Task) ws.HandlerFunc {
	return func(c *ws.Conn, msg *ws.ClientMessage) {
		fn()
		ack(c, msg, ws.OkResponse{OK: true})
	}
}

func (app *App) containerAction(fn func(id string) *engine.Task) ws.HandlerFunc {
	return func(c *ws.Conn, msg *ws.ClientMessage) {
		id := argString(parseArgs(msg), 0)
		if id == "" {
			ack(c, msg, ws.ErrorResponse{OK: false, Msg: "container id required"})
			return
		}
		fn(id)
		ack(c, msg, ws.OkResponse{OK: true})
	}
}
