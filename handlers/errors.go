package handlers

import (
	"errors"

	"game-match-system/clients"
	"game-match-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorHandler renders every error returned by a route as {"error": "..."}
// with a status derived from the service error it wraps.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := statusFor(err)
		msg := err.Error()
		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
			msg = "internal server error"
		}
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}

func statusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}

	switch {
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrUnknownGameMode),
		errors.Is(err, clients.ErrUnknownUser):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrNotMatchPlayer):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrInvalidWinner),
		errors.Is(err, services.ErrInvalidScore),
		errors.Is(err, services.ErrInvalidTournament):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrDuplicateEntry),
		errors.Is(err, services.ErrAlreadyInAnotherPool),
		errors.Is(err, services.ErrAlreadyRegistered),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrRegistrationClosed),
		errors.Is(err, services.ErrTournamentFull),
		errors.Is(err, services.ErrStaleUpdate):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}
