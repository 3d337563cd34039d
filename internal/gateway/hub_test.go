package gateway

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realm-chat-core/internal/model"
	"realm-chat-core/internal/pkg/logger"
	"realm-chat-core/internal/session"
)

func newTestHub() *Hub {
	return NewHub(nil, nil, logger.NewNopLogger())
}

func newTestClient(hub *Hub, name string) *Client {
	return &Client{
		Hub:  hub,
		ID:   uuid.NewString(),
		User: session.Identity{ID: uuid.New(), Name: name},
		Send: make(chan []byte, 8),
	}
}

func TestAttachDetachMembership(t *testing.T) {
	hub := newTestHub()
	hallID := uuid.New()

	c1 := newTestClient(hub, "Frodo")
	c2 := newTestClient(hub, "Sam")

	hub.attach(c1, hallID)
	hub.attach(c2, hallID)
	assert.Equal(t, 2, hub.Members(hallID))
	assert.Equal(t, hallID, c1.HallID)

	hub.detach(c1)
	assert.Equal(t, 1, hub.Members(hallID))
	assert.Equal(t, uuid.Nil, c1.HallID)

	hub.detach(c2)
	assert.Zero(t, hub.Members(hallID))
}

func TestJoinReplacesPreviousHall(t *testing.T) {
	hub := newTestHub()
	h1 := uuid.New()
	h2 := uuid.New()
	c := newTestClient(hub, "Frodo")

	hub.attach(c, h1)
	hub.detach(c)
	hub.attach(c, h2)

	assert.Zero(t, hub.Members(h1))
	assert.Equal(t, 1, hub.Members(h2))
	assert.Equal(t, h2, c.HallID)
}

func TestPublishScrollFansOutToHallExceptSender(t *testing.T) {
	hub := newTestHub()
	hallID := uuid.New()

	sender := newTestClient(hub, "Frodo")
	peer := newTestClient(hub, "Sam")
	outsider := newTestClient(hub, "Gollum")

	hub.attach(sender, hallID)
	hub.attach(peer, hallID)
	hub.attach(outsider, uuid.New())

	scroll := model.Scroll{
		ID: uuid.New(), CID: uuid.New(), HallID: hallID,
		AuthorID: sender.User.ID, AuthorName: "Frodo", Content: "hello",
	}
	hub.PublishScroll(sender, scroll)

	require.Len(t, peer.Send, 1)
	assert.Empty(t, sender.Send, "sender received its own echo")
	assert.Empty(t, outsider.Send, "scroll leaked into another hall")

	var frame struct {
		Event string       `json:"event"`
		Data  model.Scroll `json:"data"`
	}
	require.NoError(t, json.Unmarshal(<-peer.Send, &frame))
	assert.Equal(t, EventReceiveScroll, frame.Event)
	assert.Equal(t, scroll.ID, frame.Data.ID)
}

func TestPublishScrollDropsDuplicateCID(t *testing.T) {
	hub := newTestHub()
	hallID := uuid.New()

	sender := newTestClient(hub, "Frodo")
	peer := newTestClient(hub, "Sam")
	hub.attach(sender, hallID)
	hub.attach(peer, hallID)

	scroll := model.Scroll{ID: uuid.New(), CID: uuid.New(), HallID: hallID, Content: "once"}
	hub.PublishScroll(sender, scroll)
	hub.PublishScroll(sender, scroll)

	assert.Len(t, peer.Send, 1)
}

func TestFanOutDropsWhenClientBufferFull(t *testing.T) {
	hub := newTestHub()
	hallID := uuid.New()

	slow := newTestClient(hub, "Sam")
	slow.Send = make(chan []byte) // unbuffered, nobody reading
	hub.attach(slow, hallID)

	// Must not block or panic.
	hub.fanOut(model.Scroll{ID: uuid.New(), HallID: hallID, Content: "hello"}, "")
	assert.Equal(t, 1, hub.Members(hallID))
}

func TestSendScrollFrameKeepsStoreAssignedID(t *testing.T) {
	hub := newTestHub()
	hallID := uuid.New()

	sender := newTestClient(hub, "Frodo")
	peer := newTestClient(hub, "Sam")
	hub.attach(sender, hallID)
	hub.attach(peer, hallID)

	id := uuid.New()
	frame := `{"event":"send-scroll","data":{"id":"` + id.String() + `","cid":"` + uuid.NewString() +
		`","hall_id":"` + hallID.String() + `","content":"hello"}}`
	sender.handleFrame([]byte(frame))

	require.Len(t, peer.Send, 1)
	var got struct {
		Data model.Scroll `json:"data"`
	}
	require.NoError(t, json.Unmarshal(<-peer.Send, &got))
	assert.Equal(t, id, got.Data.ID, "store-assigned id replaced on the way through")
	assert.Equal(t, sender.User.ID, got.Data.AuthorID, "authorship must come from the session")

	// A frame without an id still gets one minted.
	frame = `{"event":"send-scroll","data":{"cid":"` + uuid.NewString() +
		`","hall_id":"` + hallID.String() + `","content":"again"}}`
	sender.handleFrame([]byte(frame))

	require.Len(t, peer.Send, 1)
	require.NoError(t, json.Unmarshal(<-peer.Send, &got))
	assert.NotEqual(t, uuid.Nil, got.Data.ID)
}

func TestBridgeScrollExcludesLocalSender(t *testing.T) {
	hub := newTestHub()
	hallID := uuid.New()

	sender := newTestClient(hub, "Frodo")
	peer := newTestClient(hub, "Sam")
	hub.attach(sender, hallID)
	hub.attach(peer, hallID)

	scroll := model.Scroll{ID: uuid.New(), CID: uuid.New(), HallID: hallID, Content: "hello"}
	require.True(t, hub.markSeen(scroll.CID, sender.ID))

	data, err := json.Marshal(scroll)
	require.NoError(t, err)
	hub.onBridgeScroll(data)

	assert.Len(t, peer.Send, 1)
	assert.Empty(t, sender.Send)
}

func TestBridgeScrollMalformedDropped(t *testing.T) {
	hub := newTestHub()
	hallID := uuid.New()
	peer := newTestClient(hub, "Sam")
	hub.attach(peer, hallID)

	hub.onBridgeScroll([]byte("not json"))
	assert.Empty(t, peer.Send)
}
