package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"game-match-system/clients"
	"game-match-system/middleware"
	"game-match-system/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// UsernameResolver supplies a display name when a request carries none.
type UsernameResolver interface {
	Username(ctx context.Context, userID string) (string, error)
}

type Deps struct {
	Matchmaker  *services.Matchmaker
	Matches     *services.MatchService
	Reporting   *services.MatchReporting
	Tournaments *services.TournamentService
	Lifecycle   *services.TournamentLifecycleManager
	Users       UsernameResolver
	Logger      *zap.Logger
}

type Handler struct {
	matchmaker  *services.Matchmaker
	matches     *services.MatchService
	reporting   *services.MatchReporting
	tournaments *services.TournamentService
	lifecycle   *services.TournamentLifecycleManager
	users       UsernameResolver
	logger      *zap.Logger
	validate    *validator.Validate
}

func NewHandler(d Deps) *Handler {
	users := d.Users
	if users == nil {
		users = clients.StaticUsernames{}
	}
	return &Handler{
		matchmaker:  d.Matchmaker,
		matches:     d.Matches,
		reporting:   d.Reporting,
		tournaments: d.Tournaments,
		lifecycle:   d.Lifecycle,
		users:       users,
		logger:      d.Logger.Named("http"),
		validate:    validator.New(),
	}
}

// playerRequest identifies the acting player. UserID falls back to the
// gateway's X-User-ID header.
type playerRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Username string `json:"username"`
}

type resultRequest struct {
	WinnerID     string `json:"winner_id" validate:"required"`
	Player1Score *int   `json:"player1_score" validate:"required"`
	Player2Score *int   `json:"player2_score" validate:"required"`
}

// parse decodes an optional JSON body.
func parse(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}

func (h *Handler) check(req interface{}) error {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fiber.NewError(fiber.StatusBadRequest, strings.Join(parts, ", "))
}

// identify parses a playerRequest and applies the header fallback.
func (h *Handler) identify(c *fiber.Ctx) (playerRequest, error) {
	var req playerRequest
	if err := parse(c, &req); err != nil {
		return req, err
	}
	if req.UserID == "" {
		req.UserID = middleware.UserID(c)
	}
	return req, h.check(req)
}

// bindPlayer is identify plus a username lookup when none was sent.
func (h *Handler) bindPlayer(c *fiber.Ctx) (playerRequest, error) {
	req, err := h.identify(c)
	if err != nil || req.Username != "" {
		return req, err
	}

	name, err := h.users.Username(c.UserContext(), req.UserID)
	switch {
	case errors.Is(err, clients.ErrUnknownUser):
		return req, err
	case err != nil:
		h.logger.Warn("username lookup failed, using user id",
			zap.String("user_id", req.UserID),
			zap.Error(err))
		req.Username = req.UserID
	default:
		req.Username = name
	}
	return req, nil
}
