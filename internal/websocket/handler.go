package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs runs one channel until the peer goes away.
func ServeWs(hub *Hub, conn *websocket.Conn, ownerID string, handler MessageHandler) {
	client := NewClient(hub, conn, uuid.NewString(), ownerID)
	select {
	case client.Hub.register <- client:
	case <-client.Hub.stopped:
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	client.readPump(handler) // Run readPump in current goroutine (handler)
}
