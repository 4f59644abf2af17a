package handlers

import (
	"encoding/json"
	"log/slog"

	"github.com/doctainr/doctainr/internal/ws"
)

// parseArgs unmarshals the Args JSON array into a slice of json.RawMessage.
func parseArgs(msg *ws.ClientMessage) []json.RawMessage {
	if msg == nil || len(msg.Args) == 0 {
		return nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(msg.Args, &args); err != nil {
		slog.Warn("parse args", "err", err)
		return nil
	}
	return args
}

// argString extracts a string from args at the given index.
func argString(args []json.RawMessage, index int) string {
	if index >= len(args) {
		return ""
	}
	var s string
	if err := json.Unmarshal(args[index], &s); err != nil {
		return ""
	}
	return s
}

// ack replies to msg if the client asked for a reply.
func ack[T any](c *ws.Conn, msg *ws.ClientMessage, data T) {
	if msg.ID != nil {
		ws.SendAck(c, *msg.ID, data)
	}
}
