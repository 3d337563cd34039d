package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/patrickmn/go-cache"

	"realm-chat-core/internal/model"
	"realm-chat-core/internal/pkg/logger"
	"realm-chat-core/pkg/broker"
)

type joinRequest struct {
	client  *Client
	hallID  uuid.UUID
	realmID uuid.UUID
}

// Hub is the server-side hall fan-out the frontend protocol implies. It keeps
// the registry hall -> local clients, bridges scroll broadcasts across gateway
// instances over NATS, and deduplicates publishes by correlation id.
type Hub struct {
	// halls maps a hall to the clients of THIS instance subscribed to it.
	halls map[uuid.UUID]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	leave      chan *Client

	// Lock for safe map access from the bridge goroutine
	mu sync.RWMutex

	brk       *broker.Broker
	bridgeSub *nats.Subscription

	// seen maps a scroll CID to the publishing connection id, so a duplicate
	// publish is dropped and the sender is excluded from local fan-out.
	seen *cache.Cache

	presence *Presence

	logger logger.ILogger
}

func NewHub(brk *broker.Broker, presence *Presence, log logger.ILogger) *Hub {
	return &Hub{
		halls:      make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest),
		leave:      make(chan *Client),
		brk:        brk,
		seen:       cache.New(2*time.Minute, 5*time.Minute),
		presence:   presence,
		logger:     log,
	}
}

func (h *Hub) Run() {
	// Bridge inbound scrolls from other instances and native clients.
	if h.brk != nil {
		sub, err := h.brk.Subscribe(broker.ScrollWildcard, h.onBridgeScroll)
		if err != nil {
			h.logger.Error("Hub", "Failed to start bridge subscription", map[string]interface{}{"error": err.Error()})
		} else {
			h.bridgeSub = sub
		}
	}

	for {
		select {
		case client := <-h.register:
			h.logger.Info("Hub", "Client registered", map[string]interface{}{
				"user_id": client.User.ID, "conn_id": client.ID,
			})

		case client := <-h.unregister:
			h.detach(client)
			close(client.Send)
			h.logger.Info("Hub", "Client unregistered", map[string]interface{}{
				"user_id": client.User.ID, "conn_id": client.ID,
			})

		case req := <-h.join:
			// One hall per client: joining implies leaving the previous hall.
			h.detach(req.client)
			h.attach(req.client, req.hallID)
			if h.presence != nil && req.realmID != uuid.Nil {
				req.client.RealmID = req.realmID
				h.presence.Join(context.Background(), req.realmID, req.client.User)
			}

		case client := <-h.leave:
			h.detach(client)
		}
	}
}

func (h *Hub) attach(client *Client, hallID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.halls[hallID]
	if !ok {
		members = make(map[*Client]struct{})
		h.halls[hallID] = members
	}
	members[client] = struct{}{}
	client.HallID = hallID
}

func (h *Hub) detach(client *Client) {
	h.mu.Lock()
	hallID := client.HallID
	if members, ok := h.halls[hallID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.halls, hallID)
		}
	}
	client.HallID = uuid.Nil
	h.mu.Unlock()

	if h.presence != nil && client.RealmID != uuid.Nil {
		h.presence.Leave(context.Background(), client.RealmID, client.User.ID)
	}
}

// PublishScroll pushes a validated scroll from a local client onto the broker.
// A CID seen before is a duplicate publish and is dropped.
func (h *Hub) PublishScroll(client *Client, scroll model.Scroll) {
	if !h.markSeen(scroll.CID, client.ID) {
		h.logger.Warn("Hub", "Duplicate scroll publish, dropping", map[string]interface{}{
			"cid": scroll.CID, "user_id": scroll.AuthorID,
		})
		return
	}

	if h.brk == nil {
		// No broker: degrade to single-instance local fan-out.
		h.fanOut(scroll, client.ID)
		return
	}

	data, err := json.Marshal(scroll)
	if err != nil {
		h.logger.Error("Hub", "Failed to marshal scroll", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := h.brk.Publish(broker.ScrollSubject(scroll.HallID), data); err != nil {
		h.logger.Warn("Hub", "Failed to publish scroll to broker", map[string]interface{}{"error": err.Error()})
	}
}

// markSeen records cid -> connection id; reports false when already present.
func (h *Hub) markSeen(cid uuid.UUID, connID string) bool {
	if cid == uuid.Nil {
		return true
	}
	return h.seen.Add(cid.String(), connID, cache.DefaultExpiration) == nil
}

// onBridgeScroll handles every scroll the broker delivers, wherever it was
// published, and fans it out to this instance's hall members.
func (h *Hub) onBridgeScroll(data []byte) {
	var scroll model.Scroll
	if err := json.Unmarshal(data, &scroll); err != nil {
		h.logger.Warn("Hub", "Malformed bridge scroll, dropping", map[string]interface{}{"error": err.Error()})
		return
	}

	// Exclude the publishing connection when it lives on this instance; its
	// optimistic entry already covers the self-echo.
	senderConn := ""
	if v, ok := h.seen.Get(scroll.CID.String()); ok {
		senderConn, _ = v.(string)
	}
	h.fanOut(scroll, senderConn)
}

func (h *Hub) fanOut(scroll model.Scroll, excludeConnID string) {
	frame := EncodeReceiveScroll(scroll)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.halls[scroll.HallID] {
		if excludeConnID != "" && client.ID == excludeConnID {
			continue
		}
		select {
		case client.Send <- frame:
		default:
			h.logger.Warn("Hub", "Client send buffer full, dropping frame", map[string]interface{}{
				"user_id": client.User.ID, "conn_id": client.ID,
			})
		}
	}
}

// Members returns how many local clients are attached to a hall.
func (h *Hub) Members(hallID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.halls[hallID])
}
