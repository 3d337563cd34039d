package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"realm-chat-core/internal/model"
	"realm-chat-core/internal/pkg/logger"
	"realm-chat-core/internal/session"
	"realm-chat-core/internal/store"
	"realm-chat-core/internal/transport"
	"realm-chat-core/pkg/llm"
)

// TopicStreamUpdated is published on the update bus whenever the visible
// stream changes. The payload is the hall id; renderers re-read Scrolls().
const TopicStreamUpdated = "stream.updated"

// Engine is the client-side core of the realm chat: it owns the transport
// link, the single hall subscription, the message stream and the assistant
// overlay for one user session.
//
// Every mutation path — hall selection, sends, inbound broadcasts, async
// completions — funnels through one owning goroutine fed by the op queue, so
// no state is touched from two scheduling contexts at once.
type Engine struct {
	user     session.Identity
	conn     transport.Connection
	store    store.Client
	overlay  *assistantOverlay
	logger   logger.ILogger
	stream   *Stream
	sub      *subscriptionManager
	bus      *gochannel.GoChannel
	ops      chan func()
	done     chan struct{}
	closeOne sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	// epoch is bumped on every hall switch; async completions issued under an
	// older epoch are discarded instead of appended to the current stream.
	epoch uint64
}

func New(user session.Identity, conn transport.Connection, storeClient store.Client, provider llm.Provider, log logger.ILogger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		user:    user,
		conn:    conn,
		store:   storeClient,
		overlay: newAssistantOverlay(provider, log),
		logger:  log,
		stream:  NewStream(log),
		sub:     newSubscriptionManager(conn, log),
		bus: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NewStdLogger(false, false),
		),
		ops:    make(chan func(), 64),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start connects the transport and starts the owning goroutine.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.conn.Connect(ctx); err != nil {
		return err
	}
	go e.run()
	return nil
}

func (e *Engine) run() {
	for {
		select {
		case op := <-e.ops:
			op()
		case <-e.done:
			return
		}
	}
}

// do enqueues an op for the owning goroutine. Ops arriving after Close are dropped.
func (e *Engine) do(op func()) {
	select {
	case e.ops <- op:
	case <-e.done:
	}
}

// SelectHall switches the live subscription to hallID. The stream is cleared
// immediately; the historical page arrives asynchronously and is discarded if
// another switch happens first. Selecting the current hall is a no-op.
func (e *Engine) SelectHall(hallID uuid.UUID) {
	e.do(func() {
		if e.sub.Current() == hallID {
			return
		}

		e.epoch++
		epoch := e.epoch

		e.sub.Switch(hallID, e.onScrollData)
		e.stream.Reset(hallID)
		e.publishUpdate(hallID)

		go e.fetchHistory(epoch, hallID)
	})
}

func (e *Engine) fetchHistory(epoch uint64, hallID uuid.UUID) {
	scrolls, err := e.store.History(e.ctx, hallID)

	e.do(func() {
		if epoch != e.epoch {
			e.logger.Debug("Engine", "Discarding stale history fetch", map[string]interface{}{"hall_id": hallID})
			return
		}
		if err != nil {
			// The hall stays usable for live traffic even without history.
			e.logger.Error("Engine", "History fetch failed", map[string]interface{}{
				"hall_id": hallID, "error": err.Error(),
			})
			return
		}
		e.stream.LoadHistory(scrolls)
		e.publishUpdate(hallID)
	})
}

// SendScroll sends a message to the current hall. Assistant-addressed content
// is routed to the overlay and never published; everything else appends
// optimistically, persists to the store, and is then broadcast to the hall.
func (e *Engine) SendScroll(content string) {
	e.do(func() {
		hallID := e.sub.Current()
		if hallID == uuid.Nil {
			e.logger.Warn("Engine", "SendScroll without a subscribed hall, dropping", nil)
			return
		}

		scroll := model.Scroll{
			CID:        uuid.New(),
			HallID:     hallID,
			AuthorID:   e.user.ID,
			AuthorName: e.user.Name,
			Content:    content,
			CreatedAt:  time.Now(),
		}
		scroll = e.stream.AppendOptimistic(scroll)
		e.publishUpdate(hallID)

		if e.overlay.Matches(content) {
			e.askAssistant(e.epoch, hallID, e.overlay.Question(content))
			return
		}

		go e.persistAndPublish(e.epoch, scroll)
	})
}

func (e *Engine) persistAndPublish(epoch uint64, scroll model.Scroll) {
	confirmed, err := e.store.Persist(e.ctx, scroll)
	if err != nil {
		// The optimistic entry is not rolled back; the scroll simply never
		// converges to a confirmed instance.
		e.logger.Error("Engine", "Scroll not confirmed by store", map[string]interface{}{
			"cid": scroll.CID, "error": err.Error(),
		})
		return
	}

	e.do(func() {
		if epoch == e.epoch && e.stream.Confirm(confirmed) {
			e.publishUpdate(confirmed.HallID)
		}
		// Publish regardless: other subscribers still want the scroll even if
		// this client already moved to another hall.
		e.sub.Publish(confirmed)
	})
}

// RequestSummary asks the assistant to summarize the current hall's history.
func (e *Engine) RequestSummary() {
	e.do(func() {
		hallID := e.sub.Current()
		if hallID == uuid.Nil {
			e.logger.Warn("Engine", "RequestSummary without a subscribed hall, dropping", nil)
			return
		}

		question := model.Scroll{
			CID:        uuid.New(),
			HallID:     hallID,
			AuthorID:   e.user.ID,
			AuthorName: e.user.Name,
			Content:    AssistantPrefix + " summarize this hall",
			CreatedAt:  time.Now(),
		}
		e.stream.AppendOptimistic(question)
		e.publishUpdate(hallID)

		epoch := e.epoch
		history := e.stream.Snapshot()
		go func() {
			summary, err := e.overlay.Summarize(e.ctx, history)
			e.appendAssistantReply(epoch, hallID, summary, err)
		}()
	})
}

// askAssistant runs on the owning goroutine; the question is already appended.
func (e *Engine) askAssistant(epoch uint64, hallID uuid.UUID, question string) {
	go func() {
		answer, err := e.overlay.Ask(e.ctx, question)
		e.appendAssistantReply(epoch, hallID, answer, err)
	}()
}

func (e *Engine) appendAssistantReply(epoch uint64, hallID uuid.UUID, reply string, err error) {
	e.do(func() {
		if err != nil {
			// Silent failure: logged, nothing appended, no retry.
			e.logger.Error("Engine", "Assistant request failed", map[string]interface{}{
				"hall_id": hallID, "error": err.Error(),
			})
			return
		}
		if epoch != e.epoch {
			e.logger.Debug("Engine", "Discarding assistant reply for stale hall", map[string]interface{}{"hall_id": hallID})
			return
		}
		e.stream.AppendAssistant(model.Scroll{
			ID:        uuid.New(),
			HallID:    hallID,
			Content:   reply,
			CreatedAt: time.Now(),
		})
		e.publishUpdate(hallID)
	})
}

// onScrollData is the single receive-scroll handler; it hops from the
// transport's delivery goroutine onto the owning goroutine.
func (e *Engine) onScrollData(data []byte) {
	var scroll model.Scroll
	if err := json.Unmarshal(data, &scroll); err != nil {
		e.logger.Warn("Engine", "Malformed broadcast payload, dropping", map[string]interface{}{"error": err.Error()})
		return
	}

	e.do(func() {
		if e.stream.AppendBroadcast(scroll) {
			e.publishUpdate(scroll.HallID)
		}
	})
}

// Scrolls returns an ordered snapshot of the current hall's stream.
func (e *Engine) Scrolls() []model.Scroll {
	return e.stream.Snapshot()
}

// CurrentHall returns the subscribed hall id, or uuid.Nil.
func (e *Engine) CurrentHall() uuid.UUID {
	return e.stream.HallID()
}

// User returns the session identity the engine was built with.
func (e *Engine) User() session.Identity {
	return e.user
}

// Updates returns the reactive view for rendering: one message per visible
// stream change. Subscribe before the first SelectHall to see every update.
func (e *Engine) Updates(ctx context.Context) (<-chan *message.Message, error) {
	return e.bus.Subscribe(ctx, TopicStreamUpdated)
}

func (e *Engine) publishUpdate(hallID uuid.UUID) {
	msg := message.NewMessage(watermill.NewUUID(), []byte(hallID.String()))
	if err := e.bus.Publish(TopicStreamUpdated, msg); err != nil {
		e.logger.Warn("Engine", "Failed to publish stream update", map[string]interface{}{"error": err.Error()})
	}
}

// Close emits a final leave for the subscribed hall, stops the owning
// goroutine and tears the transport down.
func (e *Engine) Close() {
	e.closeOne.Do(func() {
		flushed := make(chan struct{})
		e.do(func() {
			e.sub.Teardown()
			close(flushed)
		})
		select {
		case <-flushed:
		case <-time.After(2 * time.Second):
			e.logger.Warn("Engine", "Timed out waiting for final leave", nil)
		}

		close(e.done)
		e.cancel()
		e.conn.Close()
		if err := e.bus.Close(); err != nil {
			e.logger.Warn("Engine", "Failed to close update bus", map[string]interface{}{"error": err.Error()})
		}
	})
}
