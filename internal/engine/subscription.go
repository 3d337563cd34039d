package engine

import (
	"github.com/google/uuid"

	"realm-chat-core/internal/model"
	"realm-chat-core/internal/pkg/logger"
	"realm-chat-core/internal/transport"
)

type subscriptionState int

const (
	stateUnsubscribed subscriptionState = iota
	stateSubscribing
	stateSubscribed
)

// subscriptionManager tracks the single hall the client is subscribed to.
// Join and leave are fire-and-forget control events: a join for a new hall
// always follows the leave for the old one, but neither is acknowledgment-gated.
//
// Methods run on the engine's owning goroutine only.
type subscriptionManager struct {
	conn   transport.Connection
	logger logger.ILogger
	state  subscriptionState
	hallID uuid.UUID
}

func newSubscriptionManager(conn transport.Connection, log logger.ILogger) *subscriptionManager {
	return &subscriptionManager{conn: conn, logger: log}
}

// Current returns the hall currently subscribed (or being subscribed), or
// uuid.Nil when unsubscribed.
func (m *subscriptionManager) Current() uuid.UUID {
	if m.state == stateUnsubscribed {
		return uuid.Nil
	}
	return m.hallID
}

// Switch moves the subscription to hallID. Selecting the hall that is already
// subscribed is a no-op; reports whether a switch happened.
func (m *subscriptionManager) Switch(hallID uuid.UUID, onScroll transport.Handler) bool {
	if m.state != stateUnsubscribed && m.hallID == hallID {
		return false
	}

	// Leave first. The manager never holds two subscriptions at once.
	if m.state != stateUnsubscribed {
		m.conn.Send(transport.EventLeaveHall, m.hallID)
	}

	m.state = stateSubscribing
	m.hallID = hallID

	// Exactly one live receive handler at any time: release before re-register.
	m.conn.Off(transport.EventReceiveScroll)
	m.conn.On(transport.EventReceiveScroll, onScroll)

	m.conn.Send(transport.EventJoinHall, hallID)
	m.state = stateSubscribed

	m.logger.Info("Subscription", "Hall subscribed", map[string]interface{}{"hall_id": hallID})
	return true
}

// Publish sends a confirmed scroll to the hall's other subscribers.
func (m *subscriptionManager) Publish(scroll model.Scroll) {
	if m.state == stateUnsubscribed {
		m.logger.Warn("Subscription", "Publish without a subscribed hall, dropping", nil)
		return
	}
	m.conn.Send(transport.EventSendScroll, scroll)
}

// Teardown emits a final leave for the current hall, if any, and releases the
// receive handler.
func (m *subscriptionManager) Teardown() {
	if m.state == stateUnsubscribed {
		return
	}
	m.conn.Send(transport.EventLeaveHall, m.hallID)
	m.conn.Off(transport.EventReceiveScroll)
	m.state = stateUnsubscribed
	m.hallID = uuid.Nil
}
