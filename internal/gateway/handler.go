package gateway

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"realm-chat-core/internal/session"
)

// ServeWs attaches an upgraded websocket connection to the hub and runs its
// pumps until the peer goes away.
func ServeWs(hub *Hub, c *websocket.Conn, user session.Identity) {
	client := &Client{
		Hub:  hub,
		Conn: c,
		ID:   uuid.NewString(),
		User: user,
		Send: make(chan []byte, 256),
	}
	client.Hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	client.readPump() // Run readPump in current goroutine (handler)
}
