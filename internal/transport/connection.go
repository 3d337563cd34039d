package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"realm-chat-core/internal/model"
	"realm-chat-core/internal/pkg/logger"
	"realm-chat-core/pkg/broker"
)

// Event names on the hall wire protocol. They mirror the websocket envelope
// the gateway speaks, so a native client and a web client are interchangeable
// from the broker's point of view.
const (
	EventJoinHall      = "join-hall"
	EventLeaveHall     = "leave-hall"
	EventSendScroll    = "send-scroll"
	EventReceiveScroll = "receive-scroll"
)

// Handler receives the raw payload of an inbound event.
type Handler func(data []byte)

// Connection is one client's live link to the real-time broker.
//
// Send never returns an error to the layer above: a send while the link is
// down is logged and dropped, not retried. On keeps exactly one active handler
// per event name; registering again releases the previous one first.
type Connection interface {
	Connect(ctx context.Context) error
	Send(event string, payload interface{})
	On(event string, h Handler)
	Off(event string)
	Close()
}

type controlEvent struct {
	Type   string    `json:"type"` // "join" or "leave"
	HallID uuid.UUID `json:"hall_id"`
	UserID uuid.UUID `json:"user_id"`
}

// NatsConnection rides a NATS connection. Reconnection is delegated to the
// NATS client itself; joining a hall maps to a subject subscription plus a
// fire-and-forget control event, leaving tears both down again.
type NatsConnection struct {
	url    string
	userID uuid.UUID
	logger logger.ILogger

	mu       sync.Mutex
	broker   *broker.Broker
	handlers map[string]Handler
	hallSub  *nats.Subscription
	hallID   uuid.UUID
}

var _ Connection = &NatsConnection{}

func NewNatsConnection(url string, userID uuid.UUID, log logger.ILogger) *NatsConnection {
	return &NatsConnection{
		url:      url,
		userID:   userID,
		logger:   log,
		handlers: make(map[string]Handler),
	}
}

// Connect establishes the link. Calling it while already connected is a no-op.
func (c *NatsConnection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broker != nil {
		return nil
	}

	b, err := broker.Connect(c.url)
	if err != nil {
		return err
	}
	c.broker = b
	c.logger.Info("Transport", "Connected to broker", map[string]interface{}{"url": c.url})
	return nil
}

// Send dispatches an outbound event. Failures are logged, never surfaced:
// the chat surface stays available whether or not the broker heard us.
func (c *NatsConnection) Send(event string, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broker == nil || !c.broker.IsConnected() {
		c.logger.Warn("Transport", "Send while link down, dropping", map[string]interface{}{"event": event})
		return
	}

	switch event {
	case EventJoinHall:
		hallID, ok := payload.(uuid.UUID)
		if !ok {
			c.logger.Error("Transport", "join-hall payload is not a hall id", nil)
			return
		}
		c.joinHall(hallID)

	case EventLeaveHall:
		hallID, ok := payload.(uuid.UUID)
		if !ok {
			c.logger.Error("Transport", "leave-hall payload is not a hall id", nil)
			return
		}
		c.leaveHall(hallID)

	case EventSendScroll:
		scroll, ok := payload.(model.Scroll)
		if !ok {
			c.logger.Error("Transport", "send-scroll payload is not a scroll", nil)
			return
		}
		data, err := json.Marshal(scroll)
		if err != nil {
			c.logger.Error("Transport", "Failed to marshal scroll", map[string]interface{}{"error": err.Error()})
			return
		}
		if err := c.broker.Publish(broker.ScrollSubject(scroll.HallID), data); err != nil {
			c.logger.Warn("Transport", "Failed to publish scroll", map[string]interface{}{"error": err.Error()})
		}

	default:
		c.logger.Warn("Transport", "Unknown outbound event", map[string]interface{}{"event": event})
	}
}

// joinHall subscribes to the hall's scroll subject and announces the join.
// Callers hold c.mu.
func (c *NatsConnection) joinHall(hallID uuid.UUID) {
	// A lingering subscription from a previous hall must never deliver into
	// the new context.
	c.dropHallSub()

	sub, err := c.broker.Subscribe(broker.ScrollSubject(hallID), func(data []byte) {
		c.dispatch(EventReceiveScroll, data)
	})
	if err != nil {
		c.logger.Warn("Transport", "Failed to subscribe to hall", map[string]interface{}{
			"hall_id": hallID, "error": err.Error(),
		})
		return
	}
	c.hallSub = sub
	c.hallID = hallID

	c.publishControl("join", hallID)
}

// leaveHall announces the leave and releases the subscription. Callers hold c.mu.
func (c *NatsConnection) leaveHall(hallID uuid.UUID) {
	c.publishControl("leave", hallID)
	if c.hallID == hallID {
		c.dropHallSub()
	}
}

func (c *NatsConnection) dropHallSub() {
	if c.hallSub != nil {
		_ = c.hallSub.Unsubscribe()
		c.hallSub = nil
		c.hallID = uuid.Nil
	}
}

func (c *NatsConnection) publishControl(typ string, hallID uuid.UUID) {
	data, _ := json.Marshal(controlEvent{Type: typ, HallID: hallID, UserID: c.userID})
	if err := c.broker.Publish(broker.ControlSubject(hallID), data); err != nil {
		c.logger.Warn("Transport", "Failed to publish control event", map[string]interface{}{
			"type": typ, "hall_id": hallID, "error": err.Error(),
		})
	}
}

func (c *NatsConnection) dispatch(event string, data []byte) {
	c.mu.Lock()
	h := c.handlers[event]
	c.mu.Unlock()

	if h != nil {
		h(data)
	}
}

// On registers the single active handler for an event. A previous handler for
// the same event is released first, so delivery is never duplicated.
func (c *NatsConnection) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// Off releases the handler for an event.
func (c *NatsConnection) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// Close tears the link down for good.
func (c *NatsConnection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropHallSub()
	if c.broker != nil {
		c.broker.Close()
		c.broker = nil
	}
}
