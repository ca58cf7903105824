// Package server defines the contract between the transport and the room
// service plus small helpers shared by client and hub logic.
package server

import (
	"strings"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// RoomHandler receives the lifecycle events of every connection.
// *chat.Service satisfies it.
type RoomHandler interface {
	OnOpen(conn chat.Conn, user, room string)
	OnMessage(conn chat.Conn, raw []byte) error
	OnClose(conn chat.Conn)
}

// RoomQuerier answers the read-only room queries served over HTTP.
// *chat.Service satisfies it.
type RoomQuerier interface {
	OnlineCount(room string) int
	ChatHistoryJSON(room string) ([]byte, error)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
