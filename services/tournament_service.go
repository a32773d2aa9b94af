package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"game-match-system/metrics"
	"game-match-system/models"
	"game-match-system/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// TournamentHook is notified of lifecycle-relevant changes made through
// TournamentService.
type TournamentHook interface {
	TournamentCreated(t *models.Tournament)
	TournamentCancelled(ctx context.Context, t *models.Tournament)
}

type TournamentService struct {
	store    repositories.Store
	modes    map[string]bool
	clock    clockwork.Clock
	validate *validator.Validate
	metrics  *metrics.Metrics
	logger   *zap.Logger

	locks stripedMutex
	hook  TournamentHook
}

func NewTournamentService(store repositories.Store, modes []string, clock clockwork.Clock, m *metrics.Metrics, logger *zap.Logger) *TournamentService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	known := make(map[string]bool, len(modes))
	for _, mode := range modes {
		known[mode] = true
	}
	return &TournamentService{
		store:    store,
		modes:    known,
		clock:    clock,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		metrics:  m,
		logger:   logger.Named("tournaments"),
	}
}

func (s *TournamentService) SetHook(h TournamentHook) { s.hook = h }

// lock serializes every state change of one tournament.
func (s *TournamentService) lock(tournamentID string) func() {
	return s.locks.lock(tournamentID)
}

type CreateTournamentInput struct {
	Name             string                  `json:"name" validate:"required,min=3,max=120"`
	GameMode         string                  `json:"game_mode" validate:"required"`
	Format           models.TournamentFormat `json:"format" validate:"required,oneof=ROUND_ROBIN SINGLE_ELIMINATION"`
	MinPlayers       int                     `json:"min_players" validate:"gte=2"`
	MaxPlayers       int                     `json:"max_players" validate:"gtefield=MinPlayers"`
	MatchDeadlineMin int                     `json:"match_deadline_min" validate:"gt=0"`
	RegistrationEnd  time.Time               `json:"registration_end" validate:"required"`
	StartTime        *time.Time              `json:"start_time,omitempty"`
	CreatedBy        string                  `json:"created_by"`
}

func (s *TournamentService) CreateTournament(ctx context.Context, in CreateTournamentInput) (*models.Tournament, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTournament, describeValidation(err))
	}
	if !s.modes[in.GameMode] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGameMode, in.GameMode)
	}
	if !in.RegistrationEnd.After(s.clock.Now()) {
		return nil, fmt.Errorf("%w: registration_end must be in the future", ErrInvalidTournament)
	}
	if in.StartTime != nil && in.StartTime.Before(in.RegistrationEnd) {
		return nil, fmt.Errorf("%w: start_time must not precede registration_end", ErrInvalidTournament)
	}

	t := &models.Tournament{
		ID:               uuid.NewString(),
		Name:             strings.TrimSpace(in.Name),
		Slug:             slug.Make(in.Name),
		GameMode:         in.GameMode,
		Format:           in.Format,
		MinPlayers:       in.MinPlayers,
		MaxPlayers:       in.MaxPlayers,
		MatchDeadlineMin: in.MatchDeadlineMin,
		RegistrationEnd:  in.RegistrationEnd,
		StartTime:        in.StartTime,
		Status:           models.TournamentStatusRegistration,
		CreatedBy:        in.CreatedBy,
	}
	if err := s.store.CreateTournament(ctx, t); err != nil {
		return nil, fmt.Errorf("create tournament: %w", err)
	}
	s.metrics.TournamentTransition(string(t.Status))
	s.logger.Info("tournament created",
		zap.String("tournament_id", t.ID),
		zap.String("name", t.Name),
		zap.String("format", string(t.Format)),
		zap.Time("registration_end", t.RegistrationEnd))

	if s.hook != nil {
		s.hook.TournamentCreated(t)
	}
	return t, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

func (s *TournamentService) GetTournament(ctx context.Context, id string) (*models.Tournament, error) {
	return s.store.FindTournamentByID(ctx, id)
}

// Register adds a participant while registration is open and capacity remains.
func (s *TournamentService) Register(ctx context.Context, tournamentID, userID, username string) (*models.TournamentParticipant, error) {
	unlock := s.lock(tournamentID)
	defer unlock()

	t, err := s.store.FindTournamentByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TournamentStatusRegistration || !s.clock.Now().Before(t.RegistrationEnd) {
		return nil, ErrRegistrationClosed
	}

	p := &models.TournamentParticipant{
		ID:           uuid.NewString(),
		TournamentID: tournamentID,
		UserID:       userID,
		Username:     username,
		RegisteredAt: s.clock.Now(),
	}
	err = s.store.CreateParticipant(ctx, p, t.MaxPlayers)
	switch {
	case errors.Is(err, repositories.ErrCapacityReached):
		return nil, ErrTournamentFull
	case err != nil:
		return nil, err
	}

	s.logger.Info("participant registered",
		zap.String("tournament_id", tournamentID),
		zap.String("user_id", userID))
	return p, nil
}

// Unregister withdraws a participant; only possible during registration.
func (s *TournamentService) Unregister(ctx context.Context, tournamentID, userID string) error {
	unlock := s.lock(tournamentID)
	defer unlock()

	t, err := s.store.FindTournamentByID(ctx, tournamentID)
	if err != nil {
		return err
	}
	if t.Status != models.TournamentStatusRegistration {
		return ErrRegistrationClosed
	}
	return s.store.DeleteParticipant(ctx, tournamentID, userID)
}

func (s *TournamentService) HasMinimumPlayers(ctx context.Context, t *models.Tournament) (bool, error) {
	n, err := s.store.CountParticipants(ctx, t.ID)
	if err != nil {
		return false, err
	}
	return n >= t.MinPlayers, nil
}

// GetStandings projects the current table. Once final ranks are assigned
// they decide the order; before that the order is provisional.
func (s *TournamentService) GetStandings(ctx context.Context, tournamentID string) ([]models.Standing, error) {
	t, err := s.store.FindTournamentByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.FindParticipantsByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	matches, err := s.store.FindMatchesByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return computeStandings(t, participants, matches), nil
}

func computeStandings(t *models.Tournament, participants []models.TournamentParticipant, matches []models.Match) []models.Standing {
	var eliminated map[string]int
	var ordered []models.TournamentParticipant

	switch t.Format {
	case models.FormatSingleElimination:
		st := replayElimination(participantIDs(participants), matches)
		eliminated = st.eliminated
		ordered = rankSingleElimination(participants, st)
	case models.FormatRoundRobin:
		ordered, _ = rankRoundRobin(participants, matches)
	}

	if allRanked(ordered) {
		sortByFinalRank(ordered)
	}
	standings := toStandings(ordered, eliminated)
	for i, p := range ordered {
		if p.FinalRank != nil {
			standings[i].Rank = *p.FinalRank
		}
	}
	return standings
}

func allRanked(ps []models.TournamentParticipant) bool {
	for _, p := range ps {
		if p.FinalRank == nil {
			return false
		}
	}
	return len(ps) > 0
}

func sortByFinalRank(ps []models.TournamentParticipant) {
	sort.SliceStable(ps, func(i, j int) bool { return *ps[i].FinalRank < *ps[j].FinalRank })
}

// Cancel moves a tournament in any non-terminal status to CANCELLED.
func (s *TournamentService) Cancel(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	t, err := s.cancelLocked(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	// Open matches are closed outside the tournament lock; match work never
	// waits on a tournament lock holder that waits on it.
	if s.hook != nil {
		s.hook.TournamentCancelled(ctx, t)
	}
	return t, nil
}

func (s *TournamentService) cancelLocked(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	unlock := s.lock(tournamentID)
	defer unlock()

	t, err := s.store.FindTournamentByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if !t.Status.CanTransitionTo(models.TournamentStatusCancelled) {
		return nil, fmt.Errorf("%w: tournament %s is %s", ErrInvalidTransition, t.ID, t.Status)
	}
	if err := s.transition(ctx, t, models.TournamentStatusCancelled); err != nil {
		return nil, err
	}
	return t, nil
}

// transition persists t in status next. The caller holds the tournament lock.
func (s *TournamentService) transition(ctx context.Context, t *models.Tournament, next models.TournamentStatus) error {
	prev, prevEnd := t.Status, t.EndTime
	if !prev.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
	}
	t.Status = next
	if next.IsTerminal() {
		now := s.clock.Now()
		t.EndTime = &now
	}
	if err := s.store.UpdateTournament(ctx, t, prev); err != nil {
		t.Status, t.EndTime = prev, prevEnd
		return fmt.Errorf("tournament %s %s -> %s: %w", t.ID, prev, next, err)
	}
	s.metrics.TournamentTransition(string(next))
	s.logger.Info("tournament transition",
		zap.String("tournament_id", t.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)))
	return nil
}
