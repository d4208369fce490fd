package handlers

import (
	"poker-league/middleware"
	"poker-league/services"

	"github.com/gofiber/fiber/v2"
)

// GameDateHandler serves the game date lifecycle and its elimination ledger.
type GameDateHandler struct {
	GameDates *services.GameDateService
	Ledger    *services.EliminationLedger
}

type registerEliminationRequest struct {
	PlayerID     string `json:"player_id"`
	EliminatorID string `json:"eliminator_id"`
}

type playerRequest struct {
	PlayerID string `json:"player_id"`
}

func SetupGameDateRoutes(app *fiber.App, h *GameDateHandler, t *TimerHandler) {
	gd := app.Group("/game-dates", middleware.UserContextMiddleware())

	gd.Post("/", h.Create)
	gd.Get("/:id", h.Get)
	gd.Post("/:id/start", h.Start)
	gd.Post("/:id/cancel", h.Cancel)

	gd.Get("/:id/eliminations", h.Standings)
	gd.Post("/:id/eliminations", h.RegisterElimination)
	gd.Delete("/:id/eliminations/:player_id", h.RemoveElimination)
	gd.Post("/:id/winner", h.RegisterWinner)
	gd.Post("/:id/recalculate", h.Recalculate)

	gd.Post("/:id/players", h.AddPlayer)
	gd.Delete("/:id/players/:player_id", h.RemovePlayer)

	gd.Get("/:id/timer", t.Get)
	gd.Get("/:id/timer/stream", t.Stream)
	gd.Post("/:id/timer/start", t.Start)
	gd.Post("/:id/timer/pause", t.Pause)
	gd.Post("/:id/timer/resume", t.Resume)
	gd.Post("/:id/timer/advance", t.Advance)
}

func (h *GameDateHandler) Create(c *fiber.Ctx) error {
	var in services.CreateGameDateInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}
	if in.TournamentID == "" {
		return badRequest(c, "tournament_id is required")
	}
	gd, err := h.GameDates.Create(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(gd)
}

func (h *GameDateHandler) Get(c *fiber.Ctx) error {
	gd, err := h.GameDates.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(gd)
}

func (h *GameDateHandler) Start(c *fiber.Ctx) error {
	gd, err := h.GameDates.Start(c.UserContext(), c.Params("id"), middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(gd)
}

func (h *GameDateHandler) Cancel(c *fiber.Ctx) error {
	gd, err := h.GameDates.Cancel(c.UserContext(), c.Params("id"), middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(gd)
}

func (h *GameDateHandler) Standings(c *fiber.Ctx) error {
	rows, err := h.Ledger.Standings(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"eliminations": rows})
}

func (h *GameDateHandler) RegisterElimination(c *fiber.Ctx) error {
	var req registerEliminationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.PlayerID == "" || req.EliminatorID == "" {
		return badRequest(c, "player_id and eliminator_id are required")
	}
	e, err := h.Ledger.RegisterElimination(c.UserContext(), c.Params("id"), req.PlayerID, req.EliminatorID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

func (h *GameDateHandler) RemoveElimination(c *fiber.Ctx) error {
	if err := h.Ledger.RemoveElimination(c.UserContext(), c.Params("id"), c.Params("player_id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *GameDateHandler) RegisterWinner(c *fiber.Ctx) error {
	res, err := h.Ledger.RegisterWinner(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if !res.Completed {
		return c.Status(fiber.StatusAccepted).JSON(res)
	}
	return c.JSON(res)
}

func (h *GameDateHandler) Recalculate(c *fiber.Ctx) error {
	n, err := h.Ledger.Recalculate(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"updated": n})
}

func (h *GameDateHandler) AddPlayer(c *fiber.Ctx) error {
	var req playerRequest
	if err := c.BodyParser(&req); err != nil || req.PlayerID == "" {
		return badRequest(c, "player_id is required")
	}
	if err := h.Ledger.AddPlayer(c.UserContext(), c.Params("id"), req.PlayerID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *GameDateHandler) RemovePlayer(c *fiber.Ctx) error {
	if err := h.Ledger.RemovePlayer(c.UserContext(), c.Params("id"), c.Params("player_id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
