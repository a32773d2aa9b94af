package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"game-match-system/metrics"
	"game-match-system/models"
	"game-match-system/repositories"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// PriorityRequeuer puts a player back at the head of a casual pool.
type PriorityRequeuer interface {
	RequeueFront(gameMode, userID, username string) error
}

// TournamentOutcomeHandler persists a finished tournament match, conditional
// on its stored status still being expected, and applies it to its
// tournament. Outcomes of one tournament never interleave.
type TournamentOutcomeHandler interface {
	RecordOutcome(ctx context.Context, m *models.Match, expected models.MatchStatus) error
}

// MatchSpec describes a match to open.
type MatchSpec struct {
	Player1ID       string
	Player1Username string
	Player2ID       string
	Player2Username string
	GameMode        string
	TournamentID    *string
	Round           int
	IsGoldenGame    bool
	// AckWindow overrides the default acknowledgement timeout when set.
	AckWindow time.Duration
}

// MatchService owns match acknowledgement, results and deadlines.
type MatchService struct {
	store      repositories.Store
	timers     *TimerArena
	chat       ChatNotifier
	rooms      RoomProvisioner
	reporting  *MatchReporting
	clock      clockwork.Clock
	metrics    *metrics.Metrics
	logger     *zap.Logger
	ackTimeout time.Duration

	locks    stripedMutex
	requeuer PriorityRequeuer
	outcomes TournamentOutcomeHandler
}

type MatchServiceConfig struct {
	Store      repositories.Store
	Timers     *TimerArena
	Chat       ChatNotifier
	Rooms      RoomProvisioner
	Reporting  *MatchReporting
	Clock      clockwork.Clock
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	AckTimeout time.Duration
}

func NewMatchService(cfg MatchServiceConfig) *MatchService {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &MatchService{
		store:      cfg.Store,
		timers:     cfg.Timers,
		chat:       cfg.Chat,
		rooms:      cfg.Rooms,
		reporting:  cfg.Reporting,
		clock:      cfg.Clock,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.Named("matches"),
		ackTimeout: cfg.AckTimeout,
	}
}

func (s *MatchService) SetRequeuer(r PriorityRequeuer)               { s.requeuer = r }
func (s *MatchService) SetOutcomeHandler(h TournamentOutcomeHandler) { s.outcomes = h }

func (s *MatchService) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	return s.store.FindMatchByID(ctx, matchID)
}

// OpenMatch creates a match awaiting acknowledgement, arms its deadline and
// prompts both players.
func (s *MatchService) OpenMatch(ctx context.Context, spec MatchSpec) (*models.Match, error) {
	window := spec.AckWindow
	if window <= 0 {
		window = s.ackTimeout
	}
	deadline := s.clock.Now().Add(window)

	m := &models.Match{
		ID:              uuid.NewString(),
		Player1ID:       spec.Player1ID,
		Player2ID:       spec.Player2ID,
		Player1Username: spec.Player1Username,
		Player2Username: spec.Player2Username,
		GameMode:        spec.GameMode,
		Status:          models.MatchStatusPendingAcknowledgement,
		TournamentID:    spec.TournamentID,
		Round:           spec.Round,
		IsGoldenGame:    spec.IsGoldenGame,
		Deadline:        &deadline,
	}
	if err := s.store.CreateMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	s.metrics.MatchTransition(string(m.Status))

	s.ArmDeadline(m)

	d := s.chat.SendMatchAck(ctx, m.ID, m.PlayerIDs(), m.GameMode, deadline)
	logDelivery(s.logger, s.metrics, d, "match ack prompt not delivered", zap.String("match_id", m.ID))

	s.logger.Info("match opened",
		zap.String("match_id", m.ID),
		zap.String("player1_id", m.Player1ID),
		zap.String("player2_id", m.Player2ID),
		zap.String("game_mode", m.GameMode),
		zap.Bool("golden_game", m.IsGoldenGame),
		zap.Time("deadline", deadline))
	return m, nil
}

// ArmDeadline (re)arms the match timer, or disarms it when the match has no deadline.
func (s *MatchService) ArmDeadline(m *models.Match) {
	if m.Deadline == nil || m.Status.IsTerminal() {
		s.timers.Disarm(TimerMatch, m.ID)
		return
	}
	matchID := m.ID
	err := s.timers.Arm(TimerMatch, matchID, *m.Deadline, func(ctx context.Context) {
		if err := s.ExpireMatch(ctx, matchID); err != nil {
			s.logger.Error("match deadline handling failed; will retry on sweep",
				zap.String("match_id", matchID), zap.Error(err))
		}
	})
	if err != nil {
		s.logger.Warn("match deadline not armed", zap.String("match_id", matchID), zap.Error(err))
	}
}

// Acknowledge records userID's readiness. Acknowledging twice is not an
// error. When both players have acknowledged a room is provisioned and the
// match becomes SCHEDULED; a provisioning failure leaves it pending with the
// acknowledgements kept.
func (s *MatchService) Acknowledge(ctx context.Context, matchID, userID string) (*models.Match, error) {
	unlock := s.locks.lock(matchID)
	defer unlock()

	m, err := s.store.FindMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.HasPlayer(userID) {
		return nil, ErrNotMatchPlayer
	}

	alreadyAcked := (m.Player1ID == userID && m.Player1Acknowledged) ||
		(m.Player2ID == userID && m.Player2Acknowledged)

	switch m.Status {
	case models.MatchStatusPendingAcknowledgement:
	case models.MatchStatusScheduled:
		if alreadyAcked {
			return m, nil
		}
		return nil, fmt.Errorf("%w: match %s is %s", ErrInvalidTransition, m.ID, m.Status)
	case models.MatchStatusCompleted, models.MatchStatusForfeited, models.MatchStatusTimeout:
		return nil, fmt.Errorf("%w: match %s is %s", ErrInvalidTransition, m.ID, m.Status)
	}

	if s.pastDeadline(m) {
		if err := s.expireLocked(ctx, m); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: acknowledgement deadline passed", ErrInvalidTransition)
	}

	if m.Player1ID == userID {
		m.Player1Acknowledged = true
	} else {
		m.Player2Acknowledged = true
	}

	if !m.BothAcknowledged() {
		if alreadyAcked {
			return m, nil
		}
		if err := s.store.UpdateMatch(ctx, m, models.MatchStatusPendingAcknowledgement); err != nil {
			return nil, fmt.Errorf("record acknowledgement: %w", err)
		}
		s.logger.Debug("match acknowledged", zap.String("match_id", m.ID), zap.String("user_id", userID))
		return m, nil
	}

	roomID, roomErr := s.rooms.CreateRoom(ctx, m)
	if roomErr != nil {
		if err := s.store.UpdateMatch(ctx, m, models.MatchStatusPendingAcknowledgement); err != nil {
			s.logger.Error("failed to persist acknowledgement after room failure",
				zap.String("match_id", m.ID), zap.Error(err))
		}
		return nil, fmt.Errorf("provision room for match %s: %w", m.ID, roomErr)
	}

	playDeadline, err := s.playDeadline(ctx, m)
	if err != nil {
		return nil, err
	}
	m.Status = models.MatchStatusScheduled
	m.GameSessionID = &roomID
	m.Deadline = playDeadline
	if err := s.store.UpdateMatch(ctx, m, models.MatchStatusPendingAcknowledgement); err != nil {
		return nil, fmt.Errorf("schedule match: %w", err)
	}
	s.metrics.MatchTransition(string(m.Status))
	s.ArmDeadline(m)

	d := s.chat.CreateGameSessionChannel(ctx, m.PlayerIDs(), roomID)
	logDelivery(s.logger, s.metrics, d, "game session channel not created", zap.String("match_id", m.ID))

	s.logger.Info("match scheduled",
		zap.String("match_id", m.ID),
		zap.String("game_session_id", roomID))
	return m, nil
}

// playDeadline is the SCHEDULED deadline: tournament matches get their
// tournament's match window, casual matches have none.
func (s *MatchService) playDeadline(ctx context.Context, m *models.Match) (*time.Time, error) {
	if !m.IsTournament() {
		return nil, nil
	}
	t, err := s.store.FindTournamentByID(ctx, *m.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("load tournament for match %s: %w", m.ID, err)
	}
	d := s.clock.Now().Add(t.MatchDeadline())
	return &d, nil
}

// ReportResult completes a scheduled match.
func (s *MatchService) ReportResult(ctx context.Context, matchID, winnerID string, player1Score, player2Score int) (*models.Match, error) {
	unlock := s.locks.lock(matchID)
	defer unlock()

	m, err := s.store.FindMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MatchStatusScheduled {
		return nil, fmt.Errorf("%w: match %s is %s", ErrInvalidTransition, m.ID, m.Status)
	}
	if !m.HasPlayer(winnerID) {
		return nil, ErrInvalidWinner
	}
	if player1Score < 0 || player2Score < 0 {
		return nil, ErrInvalidScore
	}

	now := s.clock.Now()
	m.Status = models.MatchStatusCompleted
	m.WinnerID = &winnerID
	m.Player1Score = &player1Score
	m.Player2Score = &player2Score
	m.ResultSource = sourcePtr(models.ResultSourceReported)
	m.CompletedAt = &now
	m.Deadline = nil

	if err := s.finish(ctx, m, models.MatchStatusScheduled); err != nil {
		return nil, err
	}
	return m, nil
}

// Forfeit concedes the match for userID; the opponent wins. A casual match
// forfeited before it was scheduled returns the opponent to the front of
// their pool.
func (s *MatchService) Forfeit(ctx context.Context, matchID, userID string) (*models.Match, error) {
	unlock := s.locks.lock(matchID)
	defer unlock()

	m, err := s.store.FindMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.HasPlayer(userID) {
		return nil, ErrNotMatchPlayer
	}
	if !m.Status.CanTransitionTo(models.MatchStatusForfeited) {
		return nil, fmt.Errorf("%w: match %s is %s", ErrInvalidTransition, m.ID, m.Status)
	}

	expected := m.Status
	opponentID, opponentName := m.Opponent(userID)
	now := s.clock.Now()
	m.Status = models.MatchStatusForfeited
	m.WinnerID = &opponentID
	m.ResultSource = sourcePtr(models.ResultSourceForfeit)
	m.CompletedAt = &now
	m.Deadline = nil

	if err := s.finish(ctx, m, expected); err != nil {
		return nil, err
	}
	if !m.IsTournament() && expected == models.MatchStatusPendingAcknowledgement {
		s.requeue(m.GameMode, opponentID, opponentName)
	}
	return m, nil
}

// ExpireMatch handles a match deadline. It is a no-op for terminal matches
// and for deadlines that have not passed yet.
func (s *MatchService) ExpireMatch(ctx context.Context, matchID string) error {
	unlock := s.locks.lock(matchID)
	defer unlock()

	m, err := s.store.FindMatchByID(ctx, matchID)
	if errors.Is(err, ErrNotFound) {
		s.timers.Disarm(TimerMatch, matchID)
		return nil
	}
	if err != nil {
		return err
	}
	if m.Status.IsTerminal() || m.Deadline == nil {
		return nil
	}
	if !s.pastDeadline(m) {
		s.ArmDeadline(m)
		return nil
	}
	return s.expireLocked(ctx, m)
}

func (s *MatchService) pastDeadline(m *models.Match) bool {
	return m.Deadline != nil && !s.clock.Now().Before(*m.Deadline)
}

func (s *MatchService) expireLocked(ctx context.Context, m *models.Match) error {
	expected := m.Status
	now := s.clock.Now()
	var requeueID, requeueName string

	switch m.Status {
	case models.MatchStatusPendingAcknowledgement:
		acker := ""
		switch {
		case m.Player1Acknowledged && !m.Player2Acknowledged:
			acker = m.Player1ID
		case m.Player2Acknowledged && !m.Player1Acknowledged:
			acker = m.Player2ID
		}
		m.Status = models.MatchStatusTimeout
		if acker != "" {
			m.WinnerID = &acker
			if !m.IsTournament() {
				m.Status = models.MatchStatusForfeited
				requeueID, requeueName = acker, m.Username(acker)
			}
		}
		m.ResultSource = sourcePtr(models.ResultSourceAckTimeout)
	case models.MatchStatusScheduled:
		if !m.IsTournament() {
			return nil
		}
		// Neither player reported in time: both take the loss.
		m.Status = models.MatchStatusTimeout
		m.WinnerID = nil
		m.ResultSource = sourcePtr(models.ResultSourcePlayTimeout)
	case models.MatchStatusCompleted, models.MatchStatusForfeited, models.MatchStatusTimeout:
		return nil
	}
	m.CompletedAt = &now
	m.Deadline = nil

	if err := s.finish(ctx, m, expected); err != nil {
		return err
	}
	if requeueID != "" {
		s.requeue(m.GameMode, requeueID, requeueName)
	}
	return nil
}

// CloseForCancellation times out an open match of a cancelled tournament.
// Nothing is reported anywhere.
func (s *MatchService) CloseForCancellation(ctx context.Context, matchID string) error {
	unlock := s.locks.lock(matchID)
	defer unlock()

	m, err := s.store.FindMatchByID(ctx, matchID)
	if err != nil {
		return err
	}
	if m.Status.IsTerminal() {
		return nil
	}
	expected := m.Status
	now := s.clock.Now()
	m.Status = models.MatchStatusTimeout
	m.WinnerID = nil
	m.ResultSource = sourcePtr(models.ResultSourceTournamentCancelled)
	m.CompletedAt = &now
	m.Deadline = nil

	if err := s.store.UpdateMatch(ctx, m, expected); err != nil {
		return fmt.Errorf("close match %s: %w", m.ID, err)
	}
	s.timers.Disarm(TimerMatch, m.ID)
	s.metrics.MatchTransition(string(m.Status))
	return nil
}

// finish persists a terminal transition, then reports it. Tournament
// matches are committed through the outcome handler.
func (s *MatchService) finish(ctx context.Context, m *models.Match, expected models.MatchStatus) error {
	var err error
	if m.IsTournament() && s.outcomes != nil {
		err = s.outcomes.RecordOutcome(ctx, m, expected)
	} else {
		err = s.store.UpdateMatch(ctx, m, expected)
	}
	if err != nil {
		return fmt.Errorf("finish match %s: %w", m.ID, err)
	}

	s.timers.Disarm(TimerMatch, m.ID)
	s.metrics.MatchTransition(string(m.Status))
	s.logger.Info("match finished",
		zap.String("match_id", m.ID),
		zap.String("status", string(m.Status)),
		zap.Stringp("winner_id", m.WinnerID),
		zap.String("source", string(*m.ResultSource)))

	s.reporting.ReportMatchResult(ctx, m)
	return nil
}

func (s *MatchService) requeue(gameMode, userID, username string) {
	if s.requeuer == nil {
		return
	}
	if err := s.requeuer.RequeueFront(gameMode, userID, username); err != nil {
		s.logger.Warn("could not requeue player",
			zap.String("user_id", userID),
			zap.String("game_mode", gameMode),
			zap.Error(err))
	}
}

func sourcePtr(s models.ResultSource) *models.ResultSource { return &s }
