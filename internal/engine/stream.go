package engine

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"realm-chat-core/internal/model"
	"realm-chat-core/internal/pkg/logger"
)

// Stream is the ordered, append-only view of scrolls for the currently
// subscribed hall. It is owned by that hall's context: switching halls resets
// it completely, never merges.
//
// All mutations arrive serialized through the engine's op queue; the mutex
// only covers external snapshot readers.
type Stream struct {
	mu      sync.RWMutex
	logger  logger.ILogger
	hallID  uuid.UUID
	scrolls []model.Scroll
}

func NewStream(log logger.ILogger) *Stream {
	return &Stream{logger: log}
}

// Reset clears everything and rebinds the stream to a hall. It runs before the
// historical fetch resolves, so the previous hall can never bleed through.
func (s *Stream) Reset(hallID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hallID = hallID
	s.scrolls = nil
}

// LoadHistory installs the historical page, ordered by creation timestamp
// ascending, ahead of anything appended locally since the reset. Entries the
// stream already holds (an echo that raced the fetch) are skipped.
func (s *Stream) LoadHistory(items []model.Scroll) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]model.Scroll, 0, len(items))
	for _, item := range items {
		if item.HallID != s.hallID {
			continue
		}
		if s.contains(item) {
			continue
		}
		item.Origin = model.OriginHistorical
		history = append(history, item)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.Before(history[j].CreatedAt)
	})

	s.scrolls = append(history, s.scrolls...)
}

// AppendOptimistic appends a locally-originated scroll immediately, before any
// server confirmation, so the sender sees it at once. A provisional CID is
// assigned if the caller did not set one.
func (s *Stream) AppendOptimistic(scroll model.Scroll) model.Scroll {
	s.mu.Lock()
	defer s.mu.Unlock()

	if scroll.CID == uuid.Nil {
		scroll.CID = uuid.New()
	}
	scroll.Origin = model.OriginOptimistic
	s.scrolls = append(s.scrolls, scroll)
	return scroll
}

// AppendBroadcast applies an inbound broadcast. A scroll for another hall is
// discarded; a scroll whose CID matches a pending local entry merges into it
// instead of appending a duplicate; everything else appends in arrival order.
// Reports whether the visible stream changed.
func (s *Stream) AppendBroadcast(scroll model.Scroll) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if scroll.HallID != s.hallID {
		s.logger.Debug("Stream", "Discarding broadcast for other hall", map[string]interface{}{
			"got": scroll.HallID, "subscribed": s.hallID,
		})
		return false
	}

	if s.mergeByCID(scroll, model.OriginBroadcast) {
		return true
	}

	// An id we already hold (late echo of a historical entry) is a duplicate.
	if scroll.ID != uuid.Nil && s.containsID(scroll.ID) {
		return false
	}

	scroll.Origin = model.OriginBroadcast
	s.scrolls = append(s.scrolls, scroll)
	return true
}

// Confirm merges the store-confirmed instance into its optimistic placeholder.
// The optimistic entry keeps its position; only the server-assigned fields are
// adopted. A confirmation with no matching placeholder is dropped — the stream
// was reset underneath it.
func (s *Stream) Confirm(confirmed model.Scroll) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if confirmed.HallID != s.hallID {
		return false
	}
	return s.mergeByCID(confirmed, model.OriginOptimistic)
}

// AppendAssistant appends a synthetic assistant scroll. Assistant entries
// never participate in reconciliation.
func (s *Stream) AppendAssistant(scroll model.Scroll) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scroll.Origin = model.OriginAssistant
	scroll.AuthorID = model.AssistantAuthorID
	scroll.AuthorName = model.AssistantAuthorName
	s.scrolls = append(s.scrolls, scroll)
}

// HallID returns the hall this stream is bound to.
func (s *Stream) HallID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hallID
}

// Snapshot returns a copy of the visible stream in order.
func (s *Stream) Snapshot() []model.Scroll {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Scroll, len(s.scrolls))
	copy(out, s.scrolls)
	return out
}

// Len returns the number of visible entries.
func (s *Stream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scrolls)
}

// mergeByCID folds a confirmed/echoed instance into the entry carrying the
// same correlation id. Callers hold s.mu.
func (s *Stream) mergeByCID(incoming model.Scroll, origin model.Origin) bool {
	if incoming.CID == uuid.Nil {
		return false
	}
	for i := range s.scrolls {
		if s.scrolls[i].Origin == model.OriginAssistant {
			continue
		}
		if s.scrolls[i].CID == incoming.CID {
			if incoming.ID != uuid.Nil {
				s.scrolls[i].ID = incoming.ID
			}
			if !incoming.CreatedAt.IsZero() {
				s.scrolls[i].CreatedAt = incoming.CreatedAt
			}
			if incoming.AuthorName != "" {
				s.scrolls[i].AuthorName = incoming.AuthorName
			}
			s.scrolls[i].Origin = origin
			return true
		}
	}
	return false
}

func (s *Stream) contains(scroll model.Scroll) bool {
	for i := range s.scrolls {
		if scroll.ID != uuid.Nil && s.scrolls[i].ID == scroll.ID {
			return true
		}
		if scroll.CID != uuid.Nil && s.scrolls[i].CID == scroll.CID {
			return true
		}
	}
	return false
}

func (s *Stream) containsID(id uuid.UUID) bool {
	for i := range s.scrolls {
		if s.scrolls[i].ID == id {
			return true
		}
	}
	return false
}
