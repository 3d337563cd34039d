package model

import (
	"time"

	"github.com/google/uuid"
)

// Origin tags where a scroll entered the local message stream.
type Origin string

const (
	OriginHistorical Origin = "historical"
	OriginOptimistic Origin = "optimistic"
	OriginBroadcast  Origin = "broadcast"
	OriginAssistant  Origin = "assistant"
)

// AssistantAuthorID is the reserved author identity for assistant scrolls.
// It never collides with real users because the store only ever assigns v4 ids.
var AssistantAuthorID = uuid.MustParse("00000000-0000-4000-8000-000000000001")

const AssistantAuthorName = "Assistant"

// Scroll is a single chat message.
//
// ID is assigned by the store once the scroll is persisted; CID is assigned by
// the sending client and echoed back on both the store confirmation and the
// broadcast path, so a locally-originated scroll and its echo collapse to one
// stream entry.
type Scroll struct {
	ID         uuid.UUID `json:"id"`
	CID        uuid.UUID `json:"cid"`
	HallID     uuid.UUID `json:"hall_id"`
	RealmID    uuid.UUID `json:"realm_id,omitempty"`
	AuthorID   uuid.UUID `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`

	// Origin is local bookkeeping, never sent over the wire.
	Origin Origin `json:"-"`
}

// Hall is a channel scoped to a parent realm.
type Hall struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	RealmID uuid.UUID `json:"realm_id"`
}

// Realm is a top-level shared space containing halls.
type Realm struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
