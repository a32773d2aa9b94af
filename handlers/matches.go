package handlers

import (
	"github.com/gofiber/fiber/v2"
)

const defaultHistoryLimit = 20

func (h *Handler) GetMatch(c *fiber.Ctx) error {
	m, err := h.matches.GetMatch(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(m)
}

func (h *Handler) AcknowledgeMatch(c *fiber.Ctx) error {
	req, err := h.identify(c)
	if err != nil {
		return err
	}
	m, err := h.matches.Acknowledge(c.UserContext(), c.Params("id"), req.UserID)
	if err != nil {
		return err
	}
	return c.JSON(m)
}

func (h *Handler) ReportResult(c *fiber.Ctx) error {
	var req resultRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	if err := h.check(req); err != nil {
		return err
	}
	m, err := h.matches.ReportResult(c.UserContext(), c.Params("id"), req.WinnerID, *req.Player1Score, *req.Player2Score)
	if err != nil {
		return err
	}
	return c.JSON(m)
}

func (h *Handler) ForfeitMatch(c *fiber.Ctx) error {
	req, err := h.identify(c)
	if err != nil {
		return err
	}
	m, err := h.matches.Forfeit(c.UserContext(), c.Params("id"), req.UserID)
	if err != nil {
		return err
	}
	return c.JSON(m)
}

// GetHistory lists a player's finished matches, newest first.
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be positive")
	}
	entries, err := h.reporting.GetMatchHistory(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(entries)
}
