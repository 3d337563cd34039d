package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"realm-chat-core/internal/model"
	"realm-chat-core/internal/pkg/logger"
)

func newTestStream(hallID uuid.UUID) *Stream {
	s := NewStream(logger.NewNopLogger())
	s.Reset(hallID)
	return s
}

func TestStreamResetClears(t *testing.T) {
	h1 := uuid.New()
	h2 := uuid.New()
	s := newTestStream(h1)

	s.AppendOptimistic(model.Scroll{HallID: h1, Content: "one"})
	s.AppendOptimistic(model.Scroll{HallID: h1, Content: "two"})
	assert.Equal(t, 2, s.Len())

	s.Reset(h2)
	assert.Zero(t, s.Len())
	assert.Equal(t, h2, s.HallID())
}

func TestLoadHistoryOrderedAheadOfLocalAppends(t *testing.T) {
	h1 := uuid.New()
	s := newTestStream(h1)

	// A send racing the history fetch lands first locally.
	s.AppendOptimistic(model.Scroll{HallID: h1, Content: "local"})

	base := time.Now()
	s.LoadHistory([]model.Scroll{
		{ID: uuid.New(), HallID: h1, Content: "newer", CreatedAt: base.Add(-time.Minute)},
		{ID: uuid.New(), HallID: h1, Content: "older", CreatedAt: base.Add(-time.Hour)},
		{ID: uuid.New(), HallID: uuid.New(), Content: "other hall", CreatedAt: base},
	})

	got := s.Snapshot()
	assert.Len(t, got, 3)
	assert.Equal(t, "older", got[0].Content)
	assert.Equal(t, "newer", got[1].Content)
	assert.Equal(t, "local", got[2].Content)
	assert.Equal(t, model.OriginHistorical, got[0].Origin)
}

func TestLoadHistorySkipsEntriesAlreadyPresent(t *testing.T) {
	h1 := uuid.New()
	s := newTestStream(h1)

	echoed := model.Scroll{ID: uuid.New(), CID: uuid.New(), HallID: h1, Content: "raced the fetch"}
	s.AppendBroadcast(echoed)

	s.LoadHistory([]model.Scroll{echoed})
	assert.Equal(t, 1, s.Len())
}

func TestBroadcastDiscardedForOtherHall(t *testing.T) {
	h1 := uuid.New()
	s := newTestStream(h1)

	changed := s.AppendBroadcast(model.Scroll{ID: uuid.New(), HallID: uuid.New(), Content: "stale handler"})
	assert.False(t, changed)
	assert.Zero(t, s.Len())
}

func TestBroadcastMergesIntoOptimisticByCID(t *testing.T) {
	h1 := uuid.New()
	s := newTestStream(h1)

	sent := s.AppendOptimistic(model.Scroll{HallID: h1, AuthorName: "Frodo", Content: "hello"})
	assert.NotEqual(t, uuid.Nil, sent.CID, "provisional CID assigned")

	serverID := uuid.New()
	serverTime := time.Now().Add(time.Second)
	changed := s.AppendBroadcast(model.Scroll{
		ID: serverID, CID: sent.CID, HallID: h1, AuthorName: "Frodo", Content: "hello", CreatedAt: serverTime,
	})

	assert.True(t, changed)
	got := s.Snapshot()
	assert.Len(t, got, 1, "echo of own scroll duplicated")
	assert.Equal(t, serverID, got[0].ID)
	assert.Equal(t, serverTime.Unix(), got[0].CreatedAt.Unix())
}

func TestBroadcastFromOtherAuthorAppends(t *testing.T) {
	h1 := uuid.New()
	s := newTestStream(h1)

	s.AppendOptimistic(model.Scroll{HallID: h1, Content: "mine"})
	s.AppendBroadcast(model.Scroll{ID: uuid.New(), CID: uuid.New(), HallID: h1, AuthorName: "Sam", Content: "theirs"})

	got := s.Snapshot()
	assert.Len(t, got, 2)
	assert.Equal(t, "theirs", got[1].Content)
	assert.Equal(t, model.OriginBroadcast, got[1].Origin)
}

func TestBroadcastDuplicateIDDropped(t *testing.T) {
	h1 := uuid.New()
	s := newTestStream(h1)

	scroll := model.Scroll{ID: uuid.New(), HallID: h1, Content: "once", CreatedAt: time.Now()}
	s.LoadHistory([]model.Scroll{scroll})

	changed := s.AppendBroadcast(scroll)
	assert.False(t, changed)
	assert.Equal(t, 1, s.Len())
}

func TestConfirmMergesWithoutAppending(t *testing.T) {
	h1 := uuid.New()
	s := newTestStream(h1)

	sent := s.AppendOptimistic(model.Scroll{HallID: h1, Content: "hello"})
	confirmed := sent
	confirmed.ID = uuid.New()

	assert.True(t, s.Confirm(confirmed))
	got := s.Snapshot()
	assert.Len(t, got, 1)
	assert.Equal(t, confirmed.ID, got[0].ID)
}

func TestConfirmAfterResetDropped(t *testing.T) {
	h1 := uuid.New()
	s := newTestStream(h1)

	sent := s.AppendOptimistic(model.Scroll{HallID: h1, Content: "hello"})
	s.Reset(uuid.New())

	confirmed := sent
	confirmed.ID = uuid.New()
	assert.False(t, s.Confirm(confirmed))
	assert.Zero(t, s.Len())
}

func TestAssistantEntriesNeverReconciled(t *testing.T) {
	h1 := uuid.New()
	s := newTestStream(h1)

	cid := uuid.New()
	s.AppendAssistant(model.Scroll{ID: uuid.New(), CID: cid, HallID: h1, Content: "an answer"})

	// A broadcast reusing the same correlation id must not fold into the
	// assistant entry.
	s.AppendBroadcast(model.Scroll{ID: uuid.New(), CID: cid, HallID: h1, AuthorName: "Sam", Content: "unrelated"})

	got := s.Snapshot()
	assert.Len(t, got, 2)
	assert.Equal(t, model.AssistantAuthorID, got[0].AuthorID)
	assert.Equal(t, model.OriginAssistant, got[0].Origin)
}
