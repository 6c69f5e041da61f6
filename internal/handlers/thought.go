package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"subconscious/internal/engine"
	"subconscious/internal/models"
)

// ThoughtHandler handles thought submission and lifecycle requests.
type ThoughtHandler struct {
	engine *engine.Engine
}

// NewThoughtHandler creates a new thought handler.
func NewThoughtHandler(eng *engine.Engine) *ThoughtHandler {
	return &ThoughtHandler{engine: eng}
}

// SubmitRequest is the body of a thought submission.
type SubmitRequest struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Priority string `json:"priority"`
}

// Submit enqueues a new thought
// POST /api/thoughts
func (h *ThoughtHandler) Submit(c *fiber.Ctx) error {
	var req SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Priority == "" {
		req.Priority = "normal"
	}

	id, err := h.engine.Submit(req.Type, req.Content, req.Priority)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		log.Printf("❌ [THOUGHT] Failed to submit thought: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to submit thought",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":     id,
		"status": string(models.StatusQueued),
	})
}

// Get returns the status snapshot of a thought
// GET /api/thoughts/:id
func (h *ThoughtHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")

	snap, err := h.engine.Status(id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Thought not found",
			})
		}
		log.Printf("❌ [THOUGHT] Failed to load thought %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load thought",
		})
	}

	resp := fiber.Map{
		"id":     snap.ID,
		"status": string(snap.Status),
	}
	if snap.Significance != nil {
		resp["significance"] = *snap.Significance
	}
	if snap.Result != "" {
		resp["result"] = snap.Result
	}
	return c.JSON(resp)
}

// Cancel withdraws a queued thought before it is dispatched
// DELETE /api/thoughts/:id
func (h *ThoughtHandler) Cancel(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.engine.Cancel(id); err != nil {
		if errors.Is(err, models.ErrStorageFailure) {
			log.Printf("❌ [THOUGHT] Failed to cancel thought %s: %v", id, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to cancel thought",
			})
		}
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Thought not found or no longer queued",
		})
	}

	log.Printf("🚮 [THOUGHT] Cancelled queued thought %s", id)
	return c.JSON(fiber.Map{
		"id":     id,
		"status": "cancelled",
	})
}

// RecordUsage notes that a thought's result was referenced by a consumer
// POST /api/thoughts/:id/usage
func (h *ThoughtHandler) RecordUsage(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.engine.RecordUsage(id); err != nil {
		log.Printf("❌ [THOUGHT] Failed to record usage for %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record usage",
		})
	}
	return c.JSON(fiber.Map{"recorded": true})
}
