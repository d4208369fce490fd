package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"poker-league/middleware"
	"poker-league/services"

	"github.com/gofiber/fiber/v2"
)

// TimerHandler serves a game date's blind clock.
type TimerHandler struct {
	Timers      *services.TimerService
	Broadcaster *services.TimerBroadcaster
}

type advanceRequest struct {
	Level *int `json:"level"`
}

func (h *TimerHandler) Get(c *fiber.Ctx) error {
	view, err := h.Timers.View(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

func (h *TimerHandler) Start(c *fiber.Ctx) error {
	view, err := h.Timers.StartClock(c.UserContext(), c.Params("id"), middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

func (h *TimerHandler) Pause(c *fiber.Ctx) error {
	view, err := h.Timers.Pause(c.UserContext(), c.Params("id"), middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

func (h *TimerHandler) Resume(c *fiber.Ctx) error {
	view, err := h.Timers.Resume(c.UserContext(), c.Params("id"), middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// Advance moves to the level in the body, or to the next one when the body is empty.
func (h *TimerHandler) Advance(c *fiber.Ctx) error {
	var req advanceRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	view, err := h.Timers.AdvanceLevel(c.UserContext(), c.Params("id"), req.Level, middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// Stream sends the clock as server-sent events until the client goes away.
func (h *TimerHandler) Stream(c *fiber.Ctx) error {
	// fiber reuses the request buffers once the handler returns.
	gameDateID := strings.Clone(c.Params("id"))

	if _, err := h.Timers.View(c.UserContext(), gameDateID); err != nil {
		return respondError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	serverDone := c.Context().Done()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-serverDone:
				cancel()
			case <-ctx.Done():
			}
		}()

		_ = h.Broadcaster.Run(ctx, gameDateID, func(view services.TimerView) error {
			return writeTimerEvent(w, view)
		})
	})
	return nil
}

// writeTimerEvent writes one SSE frame. A failed flush means the client disconnected.
func writeTimerEvent(w *bufio.Writer, view services.TimerView) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: timer\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}
