package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"game-match-system/metrics"
	"game-match-system/models"
	"game-match-system/repositories"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type TimerCounts struct {
	Tournaments int `json:"tournaments"`
	Matches     int `json:"matches"`
}

type LifecycleConfig struct {
	Store         repositories.Store
	Tournaments   *TournamentService
	Matches       *MatchService
	Timers        *TimerArena
	Archive       StandingsArchive
	Clock         clockwork.Clock
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	SweepInterval time.Duration
}

// TournamentLifecycleManager drives tournaments through their statuses:
// closing registration, starting, opening rounds and golden games, and
// completing with final ranks. Deadlines live in the timer arena; a periodic
// sweep catches anything a timer missed.
type TournamentLifecycleManager struct {
	store         repositories.Store
	tournaments   *TournamentService
	matches       *MatchService
	timers        *TimerArena
	archive       StandingsArchive
	clock         clockwork.Clock
	metrics       *metrics.Metrics
	logger        *zap.Logger
	sweepInterval time.Duration

	sweeper gocron.Scheduler

	retryMu sync.Mutex
	retry   map[string]struct{}
}

func NewTournamentLifecycleManager(cfg LifecycleConfig) *TournamentLifecycleManager {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	m := &TournamentLifecycleManager{
		store:         cfg.Store,
		tournaments:   cfg.Tournaments,
		matches:       cfg.Matches,
		timers:        cfg.Timers,
		archive:       cfg.Archive,
		clock:         cfg.Clock,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger.Named("lifecycle"),
		sweepInterval: cfg.SweepInterval,
		retry:         make(map[string]struct{}),
	}
	cfg.Tournaments.SetHook(m)
	cfg.Matches.SetOutcomeHandler(m)
	return m
}

// Start recovers persisted state and then schedules the periodic sweep.
func (m *TournamentLifecycleManager) Start(ctx context.Context) error {
	if err := m.Recover(ctx); err != nil {
		return fmt.Errorf("recover lifecycle state: %w", err)
	}
	if m.sweepInterval <= 0 {
		return nil
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(m.clock))
	if err != nil {
		return fmt.Errorf("create lifecycle scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(m.sweepInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), m.sweepInterval)
			defer cancel()
			if err := m.reconcile(ctx, false); err != nil {
				m.logger.Warn("lifecycle sweep finished with errors", zap.Error(err))
			}
		}),
		gocron.WithName("lifecycle-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule lifecycle sweep: %w", err)
	}
	sched.Start()
	m.sweeper = sched

	m.logger.Info("lifecycle manager started", zap.Duration("sweep_interval", m.sweepInterval))
	return nil
}

// Recover rebuilds every timer from persisted deadlines, handles deadlines
// that passed while the process was down, and re-evaluates every running
// tournament.
func (m *TournamentLifecycleManager) Recover(ctx context.Context) error {
	err := m.reconcile(ctx, true)
	tc := m.GetTimerCounts()
	m.logger.Info("lifecycle state recovered",
		zap.Int("tournament_timers", tc.Tournaments),
		zap.Int("match_timers", tc.Matches))
	return err
}

// reconcile brings persisted state and timers back in line. Running
// tournaments are advanced on recovery, or when an earlier advance failed.
func (m *TournamentLifecycleManager) reconcile(ctx context.Context, advanceAll bool) error {
	var errs []error

	tournaments, err := m.store.FindTournamentsByStatus(ctx,
		models.TournamentStatusRegistration,
		models.TournamentStatusScheduled,
		models.TournamentStatusInProgress)
	if err != nil {
		errs = append(errs, fmt.Errorf("load active tournaments: %w", err))
	}
	for i := range tournaments {
		t := &tournaments[i]
		switch t.Status {
		case models.TournamentStatusRegistration:
			if m.due(t.RegistrationEnd) {
				errs = append(errs, m.closeRegistration(ctx, t.ID))
			} else if !m.timers.Has(TimerTournament, t.ID) {
				m.armTournament(t)
			}
		case models.TournamentStatusScheduled:
			if t.StartTime == nil || m.due(*t.StartTime) {
				errs = append(errs, m.startTournament(ctx, t.ID))
			} else if !m.timers.Has(TimerTournament, t.ID) {
				m.armTournament(t)
			}
		case models.TournamentStatusInProgress:
			if advanceAll || m.takeRetry(t.ID) {
				errs = append(errs, m.advance(ctx, t.ID))
			}
		}
	}

	open, err := m.store.FindMatchesByStatus(ctx,
		models.MatchStatusPendingAcknowledgement,
		models.MatchStatusScheduled)
	if err != nil {
		errs = append(errs, fmt.Errorf("load open matches: %w", err))
	}
	for i := range open {
		match := &open[i]
		if match.Deadline == nil {
			continue
		}
		if m.due(*match.Deadline) {
			errs = append(errs, m.matches.ExpireMatch(ctx, match.ID))
		} else if !m.timers.Has(TimerMatch, match.ID) {
			m.matches.ArmDeadline(match)
		}
	}

	return errors.Join(errs...)
}

func (m *TournamentLifecycleManager) due(at time.Time) bool {
	return !m.clock.Now().Before(at)
}

// armTournament sets the timer for the tournament's next time-driven step.
func (m *TournamentLifecycleManager) armTournament(t *models.Tournament) {
	id := t.ID
	var (
		at time.Time
		fn func(ctx context.Context) error
	)
	switch {
	case t.Status == models.TournamentStatusRegistration:
		at, fn = t.RegistrationEnd, func(ctx context.Context) error { return m.closeRegistration(ctx, id) }
	case t.Status == models.TournamentStatusScheduled && t.StartTime != nil:
		at, fn = *t.StartTime, func(ctx context.Context) error { return m.startTournament(ctx, id) }
	default:
		m.timers.Disarm(TimerTournament, id)
		return
	}

	err := m.timers.Arm(TimerTournament, id, at, func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			m.logger.Error("tournament timer failed; will retry on sweep",
				zap.String("tournament_id", id), zap.Error(err))
		}
	})
	if err != nil {
		m.logger.Warn("tournament timer not armed", zap.String("tournament_id", id), zap.Error(err))
	}
}

// closeRegistration ends registration: the tournament is scheduled when
// enough players signed up and cancelled otherwise.
func (m *TournamentLifecycleManager) closeRegistration(ctx context.Context, tournamentID string) error {
	unlock := m.tournaments.lock(tournamentID)
	defer unlock()

	t, err := m.store.FindTournamentByID(ctx, tournamentID)
	if err != nil {
		return err
	}
	if t.Status != models.TournamentStatusRegistration {
		return nil
	}
	if !m.due(t.RegistrationEnd) {
		m.armTournament(t)
		return nil
	}

	enough, err := m.tournaments.HasMinimumPlayers(ctx, t)
	if err != nil {
		return err
	}
	if !enough {
		if err := m.tournaments.transition(ctx, t, models.TournamentStatusCancelled); err != nil {
			return err
		}
		m.timers.Disarm(TimerTournament, t.ID)
		m.logger.Info("tournament cancelled at registration close: not enough players",
			zap.String("tournament_id", t.ID),
			zap.Int("min_players", t.MinPlayers))
		return nil
	}

	if err := m.tournaments.transition(ctx, t, models.TournamentStatusScheduled); err != nil {
		return err
	}
	if t.StartTime == nil || m.due(*t.StartTime) {
		return m.startLocked(ctx, t)
	}
	m.armTournament(t)
	return nil
}

func (m *TournamentLifecycleManager) startTournament(ctx context.Context, tournamentID string) error {
	unlock := m.tournaments.lock(tournamentID)
	defer unlock()

	t, err := m.store.FindTournamentByID(ctx, tournamentID)
	if err != nil {
		return err
	}
	if t.Status != models.TournamentStatusScheduled {
		return nil
	}
	if t.StartTime != nil && !m.due(*t.StartTime) {
		m.armTournament(t)
		return nil
	}
	return m.startLocked(ctx, t)
}

// startLocked moves a SCHEDULED tournament to IN_PROGRESS and opens round 1.
func (m *TournamentLifecycleManager) startLocked(ctx context.Context, t *models.Tournament) error {
	m.timers.Disarm(TimerTournament, t.ID)

	prevStart := t.StartTime
	if t.StartTime == nil {
		now := m.clock.Now()
		t.StartTime = &now
	}
	if err := m.tournaments.transition(ctx, t, models.TournamentStatusInProgress); err != nil {
		t.StartTime = prevStart
		return err
	}
	if err := m.advanceLocked(ctx, t); err != nil {
		m.markRetry(t.ID)
		return fmt.Errorf("open first round of %s: %w", t.ID, err)
	}
	return nil
}

func (m *TournamentLifecycleManager) advance(ctx context.Context, tournamentID string) error {
	unlock := m.tournaments.lock(tournamentID)
	defer unlock()

	t, err := m.store.FindTournamentByID(ctx, tournamentID)
	if err != nil {
		return err
	}
	if t.Status != models.TournamentStatusInProgress {
		return nil
	}
	if err := m.advanceLocked(ctx, t); err != nil {
		m.markRetry(t.ID)
		return err
	}
	return nil
}

// advanceLocked opens whatever the tournament needs next once no match is
// open: the next round, owed golden games, or completion. Matches a
// previous attempt already created are not created again.
func (m *TournamentLifecycleManager) advanceLocked(ctx context.Context, t *models.Tournament) error {
	participants, err := m.store.FindParticipantsByTournament(ctx, t.ID)
	if err != nil {
		return err
	}
	matches, err := m.store.FindMatchesByTournament(ctx, t.ID)
	if err != nil {
		return err
	}
	for _, match := range matches {
		if !match.Status.IsTerminal() {
			return nil
		}
	}

	switch t.Format {
	case models.FormatRoundRobin:
		byRound := regularByRound(matches)
		for i, pairs := range roundRobinRounds(participantIDs(participants)) {
			if missing := missingPairs(pairs, byRound[i+1]); len(missing) > 0 {
				return m.openRound(ctx, t, participants, i+1, missing, false)
			}
		}
		ordered, golden := rankRoundRobin(participants, matches)
		if len(golden) > 0 {
			return m.openRound(ctx, t, participants, maxRound(matches)+1, golden, true)
		}
		return m.complete(ctx, t, ordered, nil)

	case models.FormatSingleElimination:
		st := replayElimination(participantIDs(participants), matches)
		if len(st.pending) > 0 {
			return m.openRound(ctx, t, participants, st.pendingRound, st.pending, false)
		}
		if !st.done() {
			return nil
		}
		return m.complete(ctx, t, rankSingleElimination(participants, st), st.eliminated)
	}
	return fmt.Errorf("%w: unknown format %q", ErrInvalidTournament, t.Format)
}

func maxRound(matches []models.Match) int {
	highest := 0
	for _, m := range matches {
		if m.Round > highest {
			highest = m.Round
		}
	}
	return highest
}

func (m *TournamentLifecycleManager) openRound(ctx context.Context, t *models.Tournament, participants []models.TournamentParticipant, round int, pairs []Pair, golden bool) error {
	names := make(map[string]string, len(participants))
	for _, p := range participants {
		names[p.UserID] = p.Username
	}
	tournamentID := t.ID

	for _, pair := range pairs {
		_, err := m.matches.OpenMatch(ctx, MatchSpec{
			Player1ID:       pair.Player1ID,
			Player1Username: names[pair.Player1ID],
			Player2ID:       pair.Player2ID,
			Player2Username: names[pair.Player2ID],
			GameMode:        t.GameMode,
			TournamentID:    &tournamentID,
			Round:           round,
			IsGoldenGame:    golden,
			AckWindow:       t.MatchDeadline(),
		})
		if err != nil {
			return fmt.Errorf("open round %d match %s vs %s: %w", round, pair.Player1ID, pair.Player2ID, err)
		}
	}

	m.logger.Info("tournament round opened",
		zap.String("tournament_id", t.ID),
		zap.Int("round", round),
		zap.Int("matches", len(pairs)),
		zap.Bool("golden", golden))
	return nil
}

// complete assigns final ranks in order, marks the tournament COMPLETED and
// archives the final standings.
func (m *TournamentLifecycleManager) complete(ctx context.Context, t *models.Tournament, ordered []models.TournamentParticipant, eliminated map[string]int) error {
	ranks := make(map[string]int, len(ordered))
	for i, p := range ordered {
		ranks[p.UserID] = i + 1
	}
	if err := m.store.SetAllFinalRanks(ctx, t.ID, ranks); err != nil && !errors.Is(err, repositories.ErrFinalRankAssigned) {
		return fmt.Errorf("assign final ranks: %w", err)
	}
	if err := m.tournaments.transition(ctx, t, models.TournamentStatusCompleted); err != nil {
		return err
	}

	standings := toStandings(ordered, eliminated)
	if m.archive != nil {
		d := m.archive.ArchiveStandings(ctx, t, standings)
		logDelivery(m.logger, m.metrics, d, "final standings not archived", zap.String("tournament_id", t.ID))
	}
	if len(standings) > 0 {
		m.logger.Info("tournament completed",
			zap.String("tournament_id", t.ID),
			zap.String("champion", standings[0].UserID))
	}
	return nil
}

// RecordOutcome commits a finished tournament match together with its
// standings change under the tournament lock, then advances the tournament.
// A failed commit leaves the match open and is returned; a failed advance is
// retried by the sweep.
func (m *TournamentLifecycleManager) RecordOutcome(ctx context.Context, match *models.Match, expected models.MatchStatus) error {
	tournamentID := *match.TournamentID
	unlock := m.tournaments.lock(tournamentID)
	defer unlock()

	t, err := m.store.FindTournamentByID(ctx, tournamentID)
	if err != nil {
		return fmt.Errorf("load tournament %s: %w", tournamentID, err)
	}
	if t.Status != models.TournamentStatusInProgress {
		return m.store.UpdateMatch(ctx, match, expected)
	}

	if err := m.store.CompleteTournamentMatch(ctx, match, expected, recordDeltas(match)); err != nil {
		return err
	}
	if err := m.advanceLocked(ctx, t); err != nil {
		m.markRetry(tournamentID)
		m.logger.Error("tournament not advanced; will retry on sweep",
			zap.String("tournament_id", tournamentID), zap.Error(err))
	}
	return nil
}

// recordDeltas is the standings change of a finished match. Golden games only
// break ties and change nothing; a match without a winner is a loss for both.
func recordDeltas(match *models.Match) []repositories.RecordDelta {
	if match.IsGoldenGame {
		return nil
	}
	if match.WinnerID == nil {
		return lo.Map(match.PlayerIDs(), func(id string, _ int) repositories.RecordDelta {
			own, opp := match.Scores(id)
			return repositories.RecordDelta{UserID: id, ScoreDelta: own - opp}
		})
	}

	winner := *match.WinnerID
	loser, _ := match.Opponent(winner)
	own, opp := match.Scores(winner)
	return []repositories.RecordDelta{
		{UserID: winner, Won: true, ScoreDelta: own - opp},
		{UserID: loser, ScoreDelta: opp - own},
	}
}

func (m *TournamentLifecycleManager) markRetry(tournamentID string) {
	m.retryMu.Lock()
	m.retry[tournamentID] = struct{}{}
	m.retryMu.Unlock()
}

func (m *TournamentLifecycleManager) takeRetry(tournamentID string) bool {
	m.retryMu.Lock()
	defer m.retryMu.Unlock()
	_, ok := m.retry[tournamentID]
	delete(m.retry, tournamentID)
	return ok
}

// TournamentCreated arms the registration-close timer.
func (m *TournamentLifecycleManager) TournamentCreated(t *models.Tournament) {
	m.armTournament(t)
}

// TournamentCancelled drops the tournament's timer and closes its open
// matches without recording results.
func (m *TournamentLifecycleManager) TournamentCancelled(ctx context.Context, t *models.Tournament) {
	m.timers.Disarm(TimerTournament, t.ID)
	m.takeRetry(t.ID)

	matches, err := m.store.FindMatchesByTournament(ctx, t.ID)
	if err != nil {
		m.logger.Error("open matches of cancelled tournament not loaded",
			zap.String("tournament_id", t.ID), zap.Error(err))
		return
	}
	closed := 0
	for _, match := range matches {
		if match.Status.IsTerminal() {
			continue
		}
		if err := m.matches.CloseForCancellation(ctx, match.ID); err != nil {
			m.logger.Error("match of cancelled tournament not closed",
				zap.String("tournament_id", t.ID), zap.String("match_id", match.ID), zap.Error(err))
			continue
		}
		closed++
	}
	m.logger.Info("tournament cancelled",
		zap.String("tournament_id", t.ID),
		zap.Int("matches_closed", closed))
}

func (m *TournamentLifecycleManager) CancelTournament(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	return m.tournaments.Cancel(ctx, tournamentID)
}

func (m *TournamentLifecycleManager) GetTimerCounts() TimerCounts {
	t, mt := m.timers.Counts()
	return TimerCounts{Tournaments: t, Matches: mt}
}

// Shutdown stops the sweep and every live timer.
func (m *TournamentLifecycleManager) Shutdown() error {
	var errs []error
	if m.sweeper != nil {
		errs = append(errs, m.sweeper.Shutdown())
	}
	errs = append(errs, m.timers.Shutdown())
	return errors.Join(errs...)
}
