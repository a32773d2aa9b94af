package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"game-match-system/clients"
	"game-match-system/config"
	"game-match-system/handlers"
	"game-match-system/metrics"
	"game-match-system/repositories"
	"game-match-system/services"
	"game-match-system/utils"
	"game-match-system/workers"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store repositories.Store
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using the in-memory store; matches and tournaments are lost on restart")
		store = repositories.NewMemoryStore()
	} else {
		gs, err := repositories.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		store = gs
	}

	token := cfg.ServiceToken
	if cfg.AuthDisabled {
		token = ""
	}

	var chat services.ChatNotifier = clients.NopNotifier{}
	switch {
	case cfg.Notifier == "redis":
		rn, err := clients.DialRedisNotifier(ctx, cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			return err
		}
		defer func() { _ = rn.Close() }()
		chat = rn
		logger.Info("publishing match notifications to redis", zap.String("channel", cfg.RedisChannel))
	case cfg.ChatServiceURL != "":
		chat = clients.NewChatClient(cfg.ChatServiceURL, token, utils.HTTPClient)
	default:
		logger.Warn("CHAT_SERVICE_URL not set, match notifications are dropped")
	}

	var rooms services.RoomProvisioner = clients.LocalRooms{}
	if cfg.GameServerURL != "" {
		rooms = clients.NewGameServerClient(cfg.GameServerURL, token, utils.HTTPClient)
	} else {
		logger.Warn("GAME_SERVER_URL not set, rooms are named locally")
	}

	var stats services.StatsSink = clients.NopStats{}
	var users handlers.UsernameResolver = clients.StaticUsernames{}
	if cfg.UserServiceURL != "" {
		stats = clients.NewStatsClient(cfg.UserServiceURL, token, utils.HTTPClient)
		users = clients.NewUserDirectory(cfg.UserServiceURL, token, utils.HTTPClient)
	} else {
		logger.Warn("USER_SERVICE_URL not set, stats are not reported and user ids double as names")
	}

	var archive services.StandingsArchive = clients.NopArchive{}
	if cfg.Archive.Enabled() {
		r2, err := clients.NewR2Archive(ctx, cfg.Archive)
		if err != nil {
			return err
		}
		archive = r2
	}

	m := metrics.New()
	clock := clockwork.NewRealClock()

	timers, err := services.NewTimerArena(clock, logger, m)
	if err != nil {
		return err
	}
	reporting := services.NewMatchReporting(store, stats, m, logger)
	matches := services.NewMatchService(services.MatchServiceConfig{
		Store:      store,
		Timers:     timers,
		Chat:       chat,
		Rooms:      rooms,
		Reporting:  reporting,
		Clock:      clock,
		Metrics:    m,
		Logger:     logger,
		AckTimeout: cfg.MatchAckTimeout,
	})
	matchmaker := services.NewMatchmaker(cfg.GameModes, matches, clock, m, logger)
	tournaments := services.NewTournamentService(store, cfg.GameModes, clock, m, logger)
	lifecycle := services.NewTournamentLifecycleManager(services.LifecycleConfig{
		Store:         store,
		Tournaments:   tournaments,
		Matches:       matches,
		Timers:        timers,
		Archive:       archive,
		Clock:         clock,
		Metrics:       m,
		Logger:        logger,
		SweepInterval: cfg.LifecycleSweepInterval,
	})

	// Recovery runs before the listener opens.
	if err := lifecycle.Start(ctx); err != nil {
		_ = lifecycle.Shutdown()
		return err
	}

	maintenance := workers.NewPoolMaintenance(matchmaker, cfg.PoolSweepInterval, cfg.PoolStaleAfter, clock, logger)
	if err := maintenance.Start(ctx); err != nil {
		_ = lifecycle.Shutdown()
		return err
	}

	h := handlers.NewHandler(handlers.Deps{
		Matchmaker:  matchmaker,
		Matches:     matches,
		Reporting:   reporting,
		Tournaments: tournaments,
		Lifecycle:   lifecycle,
		Users:       users,
		Logger:      logger,
	})
	app := handlers.NewApp(h, handlers.AppConfig{
		ServiceToken:   token,
		AllowedOrigins: cfg.AllowedOrigins,
		Registry:       m.Registry,
		Logger:         logger,
	})

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(cfg.HTTPAddr)
	}()
	logger.Info("server running",
		zap.String("addr", cfg.HTTPAddr),
		zap.Strings("game_modes", cfg.GameModes),
		zap.Bool("gateway_auth", token != ""))

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case serveErr = <-listenErr:
		logger.Error("listener stopped", zap.Error(serveErr))
	}

	return errors.Join(
		serveErr,
		app.ShutdownWithTimeout(10*time.Second),
		maintenance.Stop(),
		lifecycle.Shutdown(),
	)
}
