package services

import (
	"context"
	"sort"

	"game-match-system/clients"
	"game-match-system/metrics"
	"game-match-system/models"
	"game-match-system/repositories"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// MatchReporting fans finished matches out to the stats sink and projects
// per-player match history.
type MatchReporting struct {
	store   repositories.MatchStore
	stats   StatsSink
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewMatchReporting(store repositories.MatchStore, stats StatsSink, m *metrics.Metrics, logger *zap.Logger) *MatchReporting {
	return &MatchReporting{
		store:   store,
		stats:   stats,
		metrics: m,
		logger:  logger.Named("reporting"),
	}
}

// countsTowardRecord reports whether a terminal match belongs in win/loss
// records and history. Casual matches that were never played do not.
func countsTowardRecord(m *models.Match) bool {
	if m.ResultSource != nil && *m.ResultSource == models.ResultSourceTournamentCancelled {
		return false
	}
	switch m.Status {
	case models.MatchStatusCompleted:
		return true
	case models.MatchStatusForfeited, models.MatchStatusTimeout:
		return m.IsTournament()
	case models.MatchStatusPendingAcknowledgement, models.MatchStatusScheduled:
		return false
	}
	return false
}

// ReportMatchResult sends one stats report per player. A match with no
// winner reports both players as losers. The returned deliveries are
// informational; failures are already logged.
func (r *MatchReporting) ReportMatchResult(ctx context.Context, m *models.Match) []clients.Delivery {
	if !countsTowardRecord(m) {
		r.logger.Debug("match not reported",
			zap.String("match_id", m.ID),
			zap.String("status", string(m.Status)))
		return nil
	}

	deliveries := make([]clients.Delivery, 0, 2)
	for _, playerID := range m.PlayerIDs() {
		d := r.stats.ReportMatchResult(ctx, clients.StatsReport{
			PlayerID: playerID,
			IsWinner: m.IsWinner(playerID),
			MatchID:  m.ID,
			GameMode: m.GameMode,
		})
		logDelivery(r.logger, r.metrics, d, "stats report failed",
			zap.String("match_id", m.ID),
			zap.String("player_id", playerID))
		deliveries = append(deliveries, d)
	}
	return deliveries
}

// GetMatchHistory returns the player's recorded matches, newest first.
// A limit of zero or less returns everything.
func (r *MatchReporting) GetMatchHistory(ctx context.Context, playerID string, limit int) ([]models.MatchHistoryEntry, error) {
	matches, err := r.store.FindMatchesByPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	recorded := lo.Filter(matches, func(m models.Match, _ int) bool {
		return countsTowardRecord(&m) && m.CompletedAt != nil
	})
	entries := lo.Map(recorded, func(m models.Match, _ int) models.MatchHistoryEntry {
		return historyEntry(&m, playerID)
	})

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CompletedAt.After(entries[j].CompletedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func historyEntry(m *models.Match, playerID string) models.MatchHistoryEntry {
	opponentID, opponentName := m.Opponent(playerID)
	own, opp := m.Scores(playerID)
	entry := models.MatchHistoryEntry{
		MatchID:          m.ID,
		GameMode:         m.GameMode,
		Status:           m.Status,
		OpponentID:       opponentID,
		OpponentUsername: opponentName,
		PlayerScore:      own,
		OpponentScore:    opp,
		IsWinner:         m.IsWinner(playerID),
		TournamentID:     m.TournamentID,
		IsGoldenGame:     m.IsGoldenGame,
		CompletedAt:      *m.CompletedAt,
	}
	if m.ResultSource != nil {
		entry.ResultSource = *m.ResultSource
	}
	return entry
}
