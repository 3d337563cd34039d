package main

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"

	"realm-chat-core/internal/config"
	"realm-chat-core/internal/gateway"
	"realm-chat-core/internal/pkg/logger"
	"realm-chat-core/internal/tracer"
	"realm-chat-core/pkg/broker"
)

func main() {
	// 0. Initialize Tracer
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Loggers: main log plus an isolated one for the chatty hub
	appLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	defer appLogger.Sync()
	hubLogger := logger.NewIsolatedLogger(cfg.App.HubLogFilePath)
	defer hubLogger.Sync()

	// 3. Broker
	brk, err := broker.Connect(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS: %v (single-instance fan-out only)", err)
		brk = nil
	}

	// 4. Presence (optional; gateway works without Redis)
	var presence *gateway.Presence
	opts, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Invalid Redis URL: %v (presence disabled)", err)
	} else {
		presence = gateway.NewPresence(redis.NewClient(opts), cfg.App.PresenceTTL, appLogger)
	}

	// 5. Hub
	hub := gateway.NewHub(brk, presence, hubLogger)
	go hub.Run()

	// 6. Run Server
	srv := gateway.NewServer(cfg, hub, presence)
	log.Fatal(srv.Run())
}
