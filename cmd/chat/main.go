package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"realm-chat-core/internal/config"
	"realm-chat-core/internal/engine"
	"realm-chat-core/internal/model"
	"realm-chat-core/internal/pkg/logger"
	"realm-chat-core/internal/session"
	"realm-chat-core/internal/store"
	"realm-chat-core/internal/transport"
	"realm-chat-core/pkg/llm/factory"
)

var (
	ownColor       = color.New(color.FgGreen)
	otherColor     = color.New(color.FgCyan)
	assistantColor = color.New(color.FgMagenta)
	systemColor    = color.New(color.FgYellow)
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	appLogger := logger.NewIsolatedLogger(cfg.App.LogFilePath)
	defer appLogger.Sync()

	// 2. Resolve Session Identity
	token := os.Getenv("SESSION_TOKEN")
	identity, err := session.FromToken(token, cfg.Auth.JWTSecret)
	if err != nil {
		log.Fatalf("Unable to resolve session identity: %v", err)
	}

	// 3. Wire the engine: transport, store, assistant provider
	conn := transport.NewNatsConnection(cfg.App.NatsURL, identity.ID, appLogger)
	storeClient := store.NewRESTClient(cfg.Store.BaseURL, token)
	provider, err := factory.NewProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, cfg.Ai.OllamaBaseURL, cfg.Ai.HuggingFaceKey)
	if err != nil {
		log.Fatalf("Unable to initialize LLM provider: %v", err)
	}

	eng := engine.New(identity, conn, storeClient, provider, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := eng.Updates(ctx)
	if err != nil {
		log.Fatalf("Unable to subscribe to stream updates: %v", err)
	}

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Unable to start engine: %v", err)
	}
	defer eng.Close()

	systemColor.Printf("Connected as %s. Commands: /hall <uuid>, /summary, /quit\n", identity.Name)

	// 4. Render loop
	go func() {
		tracker := newRenderTracker()
		lastHall := uuid.Nil
		for msg := range updates {
			hall := eng.CurrentHall()
			if hall != lastHall {
				lastHall = hall
				systemColor.Printf("--- hall %s ---\n", hall)
			}
			for _, s := range tracker.pending(hall, eng.Scrolls()) {
				printScroll(s, identity)
			}
			msg.Ack()
		}
	}()

	// 5. Input loop
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/summary":
			eng.RequestSummary()
		case strings.HasPrefix(line, "/hall "):
			hallID, err := uuid.Parse(strings.TrimSpace(strings.TrimPrefix(line, "/hall ")))
			if err != nil {
				systemColor.Println("Invalid hall id")
				continue
			}
			eng.SelectHall(hallID)
		default:
			eng.SendScroll(line)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "stdin error: %v\n", err)
	}
}

// renderTracker remembers which scrolls were already printed. The stream is not
// append-only: a historical page loading after a local send prepends entries,
// so rendering tracks identity instead of an index.
type renderTracker struct {
	hall    uuid.UUID
	printed map[uuid.UUID]struct{}
}

func newRenderTracker() *renderTracker {
	return &renderTracker{printed: make(map[uuid.UUID]struct{})}
}

// pending returns the scrolls not yet rendered, in stream order. Switching
// halls forgets everything printed for the previous one.
func (r *renderTracker) pending(hall uuid.UUID, scrolls []model.Scroll) []model.Scroll {
	if hall != r.hall {
		r.hall = hall
		r.printed = make(map[uuid.UUID]struct{})
	}

	var out []model.Scroll
	for _, s := range scrolls {
		// The CID survives confirmation merges; assistant entries only carry an id.
		key := s.CID
		if key == uuid.Nil {
			key = s.ID
		}
		if _, ok := r.printed[key]; ok {
			continue
		}
		r.printed[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

func printScroll(s model.Scroll, me session.Identity) {
	switch {
	case s.Origin == model.OriginAssistant:
		assistantColor.Printf("[%s] %s\n", s.AuthorName, s.Content)
	case s.AuthorID == me.ID:
		ownColor.Printf("[%s] %s\n", s.AuthorName, s.Content)
	default:
		otherColor.Printf("[%s] %s\n", s.AuthorName, s.Content)
	}
}
