package gateway

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"realm-chat-core/internal/model"
	"realm-chat-core/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// ID identifies this connection; distinct from the user, who may be
	// connected from several devices.
	ID string

	// User authenticated on upgrade.
	User session.Identity

	// HallID / RealmID the connection is currently joined to. Guarded by the
	// hub's lock; the pumps never touch them directly.
	HallID  uuid.UUID
	RealmID uuid.UUID

	// Buffered channel of outbound frames.
	Send chan []byte
}

// readPump pumps envelopes from the websocket connection into the hub.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Gateway", "Unexpected close", map[string]interface{}{
					"user_id": c.User.ID, "error": err.Error(),
				})
			}
			break
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	env, err := ParseEnvelope(data)
	if err != nil {
		c.Hub.logger.Warn("Gateway", "Dropping invalid frame", map[string]interface{}{
			"user_id": c.User.ID, "error": err.Error(),
		})
		return
	}

	switch env.Event {
	case EventJoinHall:
		p, err := DecodeJoinHall(env.Data)
		if err != nil {
			c.Hub.logger.Warn("Gateway", "Dropping invalid join-hall", map[string]interface{}{"error": err.Error()})
			return
		}
		c.Hub.join <- joinRequest{client: c, hallID: p.HallID, realmID: p.RealmID}

	case EventLeaveHall:
		c.Hub.leave <- c

	case EventSendScroll:
		p, err := DecodeSendScroll(env.Data)
		if err != nil {
			c.Hub.logger.Warn("Gateway", "Dropping invalid send-scroll", map[string]interface{}{"error": err.Error()})
			return
		}
		// The web client persists before publishing and echoes the
		// store-assigned id; one is minted only when the frame carries none.
		id := p.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		// Authorship comes from the authenticated session, never the frame.
		scroll := model.Scroll{
			ID:         id,
			CID:        p.CID,
			HallID:     p.HallID,
			RealmID:    p.RealmID,
			AuthorID:   c.User.ID,
			AuthorName: c.User.Name,
			Content:    p.Content,
			CreatedAt:  time.Now(),
		}
		c.Hub.PublishScroll(c, scroll)
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(frame)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
