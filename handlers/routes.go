package handlers

import (
	"strings"

	"game-match-system/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type AppConfig struct {
	// ServiceToken is the gateway secret. Empty disables the check.
	ServiceToken   string
	AllowedOrigins []string
	Registry       *prometheus.Registry
	Logger         *zap.Logger
}

// NewApp builds the fiber app with every route mounted.
func NewApp(h *Handler, cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(cfg.Logger),
	})
	app.Use(recover.New())
	if len(cfg.AllowedOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
			AllowMethods:     "GET,POST,DELETE,OPTIONS",
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Service-Token, X-User-ID, X-User-Roles",
			AllowCredentials: !lo.Contains(cfg.AllowedOrigins, "*"),
			MaxAge:           86400,
		}))
	}

	SetupRoutes(app, h, cfg)
	return app
}

func SetupRoutes(app *fiber.App, h *Handler, cfg AppConfig) {
	// Health and metrics stay outside the gateway check
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if cfg.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})))
	}

	secured := app.Group("/", middleware.GatewayAuth(cfg.ServiceToken, cfg.Logger), middleware.UserContext())

	// Matchmaking pools
	secured.Get("/pools", h.ListPools)
	secured.Get("/pools/:mode", h.GetPool)
	secured.Post("/pools/:mode/join", h.JoinPool)
	secured.Post("/pools/:mode/leave", h.LeavePool)
	secured.Get("/pools/:mode/position/:user_id", h.GetPosition)

	// Matches
	secured.Get("/matches/:id", h.GetMatch)
	secured.Post("/matches/:id/acknowledge", h.AcknowledgeMatch)
	secured.Post("/matches/:id/result", h.ReportResult)
	secured.Post("/matches/:id/forfeit", h.ForfeitMatch)
	secured.Get("/players/:id/history", h.GetHistory)

	// Tournaments (creation and cancellation are Admin/Manager only)
	staff := middleware.RequireRole("admin", "manager")
	secured.Post("/tournaments", staff, h.CreateTournament)
	secured.Get("/tournaments/:id", h.GetTournament)
	secured.Post("/tournaments/:id/register", h.RegisterPlayer)
	secured.Delete("/tournaments/:id/register/:user_id", h.UnregisterPlayer)
	secured.Post("/tournaments/:id/cancel", staff, h.CancelTournament)
	secured.Get("/tournaments/:id/standings", h.GetStandings)

	secured.Get("/timers", h.GetTimerCounts)
}
