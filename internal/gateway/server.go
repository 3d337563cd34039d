package gateway

import (
	"log"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"realm-chat-core/internal/config"
	"realm-chat-core/internal/session"
)

type Server struct {
	app *fiber.App
	cfg *config.Config
	hub *Hub
}

func NewServer(cfg *config.Config, hub *Hub, presence *Presence) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // 1MB; the gateway only moves small frames
	})

	// Middleware
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CorsAllowedOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, OPTIONS",
	}))

	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())

	registerRoutes(app, cfg, hub, presence)

	return &Server{app: app, cfg: cfg, hub: hub}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	log.Printf("Gateway is running on http://localhost:%s", s.cfg.App.Port)
	return s.app.Listen(":" + s.cfg.App.Port)
}

func registerRoutes(app *fiber.App, cfg *config.Config, hub *Hub, presence *Presence) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/api/presence/:realmId", func(c *fiber.Ctx) error {
		if presence == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"message": "presence disabled"})
		}
		realmID, err := uuid.Parse(c.Params("realmId"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid realm id"})
		}
		names, err := presence.Online(c.Context(), realmID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "presence lookup failed"})
		}
		return c.JSON(fiber.Map{"online": names})
	})

	// Websocket upgrade, authenticated by the session token. Browsers cannot
	// set headers on the upgrade request, so the token rides a query param.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		token := c.Query("token")
		identity, err := session.FromToken(token, cfg.Auth.JWTSecret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid token"})
		}
		c.Locals("identity", identity)
		return c.Next()
	})
	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		identity, ok := conn.Locals("identity").(session.Identity)
		if !ok {
			conn.Close()
			return
		}
		ServeWs(hub, conn, identity)
	}))
}
