package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"realm-chat-core/internal/model"
	"realm-chat-core/internal/pkg/logger"
	"realm-chat-core/internal/transport"
)

func TestSwitchEmitsLeaveThenJoin(t *testing.T) {
	conn := newFakeConn()
	m := newSubscriptionManager(conn, logger.NewNopLogger())

	h1 := uuid.New()
	h2 := uuid.New()

	assert.True(t, m.Switch(h1, func([]byte) {}))
	assert.Equal(t, h1, m.Current())

	assert.True(t, m.Switch(h2, func([]byte) {}))
	assert.Equal(t, h2, m.Current())

	events := conn.sent()
	assert.Equal(t, []sentEvent{
		{event: transport.EventJoinHall, payload: h1},
		{event: transport.EventLeaveHall, payload: h1},
		{event: transport.EventJoinHall, payload: h2},
	}, events)
}

func TestSwitchToCurrentHallIsNoOp(t *testing.T) {
	conn := newFakeConn()
	m := newSubscriptionManager(conn, logger.NewNopLogger())

	h1 := uuid.New()
	assert.True(t, m.Switch(h1, func([]byte) {}))
	assert.False(t, m.Switch(h1, func([]byte) {}))

	assert.Len(t, conn.sentByEvent(transport.EventJoinHall), 1)
	assert.Empty(t, conn.sentByEvent(transport.EventLeaveHall))
}

func TestSwitchReplacesReceiveHandler(t *testing.T) {
	conn := newFakeConn()
	m := newSubscriptionManager(conn, logger.NewNopLogger())

	var firstCalls, secondCalls int
	m.Switch(uuid.New(), func([]byte) { firstCalls++ })
	m.Switch(uuid.New(), func([]byte) { secondCalls++ })

	conn.handlers[transport.EventReceiveScroll]([]byte("{}"))
	assert.Zero(t, firstCalls, "stale handler still registered")
	assert.Equal(t, 1, secondCalls)
}

func TestTeardownEmitsFinalLeave(t *testing.T) {
	conn := newFakeConn()
	m := newSubscriptionManager(conn, logger.NewNopLogger())

	h1 := uuid.New()
	m.Switch(h1, func([]byte) {})
	m.Teardown()

	leaves := conn.sentByEvent(transport.EventLeaveHall)
	assert.Len(t, leaves, 1)
	assert.Equal(t, h1, leaves[0].payload)
	assert.Equal(t, uuid.Nil, m.Current())

	// Teardown without a subscription stays quiet.
	m.Teardown()
	assert.Len(t, conn.sentByEvent(transport.EventLeaveHall), 1)
}

func TestPublishWithoutSubscriptionDropped(t *testing.T) {
	conn := newFakeConn()
	m := newSubscriptionManager(conn, logger.NewNopLogger())

	m.Publish(model.Scroll{CID: uuid.New(), HallID: uuid.New(), Content: "nowhere to go"})
	assert.Empty(t, conn.sentByEvent(transport.EventSendScroll))
}
