package handlers

import (
	"game-match-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type poolInfo struct {
	GameMode string `json:"game_mode"`
	Size     int    `json:"size"`
}

func (h *Handler) ListPools(c *fiber.Ctx) error {
	pools := h.matchmaker.Pools()
	out := make([]poolInfo, 0, len(pools))
	for _, p := range pools {
		out = append(out, poolInfo{GameMode: p.Mode(), Size: p.Size()})
	}
	return c.JSON(out)
}

func (h *Handler) GetPool(c *fiber.Ctx) error {
	p, err := h.matchmaker.Pool(c.Params("mode"))
	if err != nil {
		return err
	}
	return c.JSON(poolInfo{GameMode: p.Mode(), Size: p.Size()})
}

// JoinPool enqueues the caller and pairs the pool right away when it can.
func (h *Handler) JoinPool(c *fiber.Ctx) error {
	p, err := h.matchmaker.Pool(c.Params("mode"))
	if err != nil {
		return err
	}
	req, err := h.bindPlayer(c)
	if err != nil {
		return err
	}

	res, err := p.JoinPool(req.UserID, req.Username)
	if err != nil {
		return err
	}
	if !res.Success {
		return c.JSON(res)
	}

	h.pairWaiting(c, p)
	return c.Status(fiber.StatusCreated).JSON(res)
}

// pairWaiting forms at most one match. Pairing failures are left to the
// pool maintenance sweep.
func (h *Handler) pairWaiting(c *fiber.Ctx, p *services.MatchmakingService) {
	if !p.CanFormPair() {
		return
	}
	if _, err := p.TryAutoPair(c.UserContext()); err != nil {
		h.logger.Warn("pairing after join failed",
			zap.String("game_mode", p.Mode()),
			zap.Error(err))
	}
}

func (h *Handler) LeavePool(c *fiber.Ctx) error {
	p, err := h.matchmaker.Pool(c.Params("mode"))
	if err != nil {
		return err
	}
	req, err := h.identify(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"left": p.LeavePool(req.UserID)})
}

func (h *Handler) GetPosition(c *fiber.Ctx) error {
	p, err := h.matchmaker.Pool(c.Params("mode"))
	if err != nil {
		return err
	}
	pos := p.Position(c.Params("user_id"))
	if pos < 0 {
		return fiber.NewError(fiber.StatusNotFound, "user is not waiting in this pool")
	}
	return c.JSON(fiber.Map{"game_mode": p.Mode(), "position": pos})
}
