package handlers

import (
	"game-match-system/middleware"
	"game-match-system/services"

	"github.com/gofiber/fiber/v2"
)

// CreateTournament takes the creator from the gateway identity, never the body.
func (h *Handler) CreateTournament(c *fiber.Ctx) error {
	var in services.CreateTournamentInput
	if err := parse(c, &in); err != nil {
		return err
	}
	in.CreatedBy = middleware.UserID(c)

	t, err := h.tournaments.CreateTournament(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (h *Handler) GetTournament(c *fiber.Ctx) error {
	t, err := h.tournaments.GetTournament(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(t)
}

func (h *Handler) RegisterPlayer(c *fiber.Ctx) error {
	req, err := h.bindPlayer(c)
	if err != nil {
		return err
	}
	p, err := h.tournaments.Register(c.UserContext(), c.Params("id"), req.UserID, req.Username)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *Handler) UnregisterPlayer(c *fiber.Ctx) error {
	if err := h.tournaments.Unregister(c.UserContext(), c.Params("id"), c.Params("user_id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) CancelTournament(c *fiber.Ctx) error {
	t, err := h.lifecycle.CancelTournament(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(t)
}

func (h *Handler) GetStandings(c *fiber.Ctx) error {
	standings, err := h.tournaments.GetStandings(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(standings)
}

func (h *Handler) GetTimerCounts(c *fiber.Ctx) error {
	return c.JSON(h.lifecycle.GetTimerCounts())
}
