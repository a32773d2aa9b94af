package services

import (
	"context"
	"time"

	"game-match-system/clients"
	"game-match-system/metrics"
	"game-match-system/models"

	"go.uber.org/zap"
)

// ChatNotifier sends user-facing match prompts. Both calls are best-effort.
type ChatNotifier interface {
	SendMatchAck(ctx context.Context, matchID string, playerIDs []string, gameMode string, expiresAt time.Time) clients.Delivery
	CreateGameSessionChannel(ctx context.Context, playerIDs []string, gameSessionID string) clients.Delivery
}

// RoomProvisioner turns an accepted match into a playable session.
type RoomProvisioner interface {
	CreateRoom(ctx context.Context, m *models.Match) (string, error)
}

type StatsSink interface {
	ReportMatchResult(ctx context.Context, r clients.StatsReport) clients.Delivery
}

type StandingsArchive interface {
	ArchiveStandings(ctx context.Context, t *models.Tournament, standings []models.Standing) clients.Delivery
}

// logDelivery records a failed best-effort call and otherwise does nothing.
func logDelivery(logger *zap.Logger, m *metrics.Metrics, d clients.Delivery, msg string, fields ...zap.Field) {
	if d.OK() {
		return
	}
	m.AdvisoryFailure(d.Target)
	logger.Warn(msg, append(fields, zap.String("target", d.Target), zap.Error(d.Err))...)
}
