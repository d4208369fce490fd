package handlers

import (
	"poker-league/middleware"
	"poker-league/services"

	"github.com/gofiber/fiber/v2"
)

type PlayerHandler struct {
	Players *services.GormPlayerRepository
}

func SetupPlayerRoutes(app *fiber.App, h *PlayerHandler) {
	app.Get("/players", middleware.UserContextMiddleware(), h.Search)
}

// Search lists players matching ?q=, at most ?limit= of them.
func (h *PlayerHandler) Search(c *fiber.Ctx) error {
	res, err := h.Players.Search(c.UserContext(), c.Query("q"), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}
