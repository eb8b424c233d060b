// Package diagnostics exposes a read-only view of boat state over HTTP and
// WebSocket, for a shore-side dashboard. It never accepts operator
// commands; those remain exclusively the "helm" hash in the command
// channel.
package diagnostics

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/martinmarsh/helm/internal/boatstate"
	"github.com/martinmarsh/helm/internal/diagnostics/middleware"
)

// Server serves /healthz, /state and /ws against a live boat state.
type Server struct {
	app   *fiber.App
	state *boatstate.State
	addr  string
}

// New builds a Server; every route but /healthz requires a valid JWT.
func New(addr, jwtSecret string, state *boatstate.State) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	protected := app.Group("", middleware.JWTMiddleware(jwtSecret))

	protected.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(snapshotJSON(state))
	})

	protected.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	protected.Get("/ws", websocket.New(func(c *websocket.Conn) {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := c.WriteJSON(snapshotJSON(state)); err != nil {
				return
			}
		}
	}))

	return &Server{app: app, state: state, addr: addr}
}

// Run blocks serving until the process shuts down.
func (s *Server) Run() error {
	if err := s.app.Listen(s.addr); err != nil {
		return fmt.Errorf("diagnostics: listen on %s: %w", s.addr, err)
	}
	return nil
}

// Shutdown stops accepting new connections and drains existing ones.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func snapshotJSON(state *boatstate.State) fiber.Map {
	out := fiber.Map{}
	for k, v := range state.Snapshot() {
		switch v.Kind {
		case boatstate.KindInt:
			out[string(k)] = v.Int
		case boatstate.KindFloat:
			out[string(k)] = v.Float
		default:
			out[string(k)] = v.Text
		}
	}
	return out
}
