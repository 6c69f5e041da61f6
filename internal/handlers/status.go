package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"subconscious/internal/dispatch"
	"subconscious/internal/engine"
)

// StatusHandler serves the engine status and health endpoints.
type StatusHandler struct {
	engine *engine.Engine
	client *dispatch.Client
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(eng *engine.Engine, client *dispatch.Client) *StatusHandler {
	return &StatusHandler{engine: eng, client: client}
}

// Health responds with server health status
// GET /health
func (h *StatusHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Status reports queue composition and model backend reachability
// GET /api/status
func (h *StatusHandler) Status(c *fiber.Ctx) error {
	stats, err := h.engine.Stats()
	if err != nil {
		log.Printf("❌ [STATUS] Failed to collect stats: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to collect stats",
		})
	}

	counts := make(map[string]int, len(stats))
	for status, n := range stats {
		counts[string(status)] = n
	}

	return c.JSON(fiber.Map{
		"thoughts":      counts,
		"model_backend": h.client.Available(c.Context()),
		"timestamp":     time.Now().Format(time.RFC3339),
	})
}
