package repositories

import (
	"context"
	"errors"

	"game-match-system/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrStaleUpdate       = errors.New("record changed since it was read")
	ErrAlreadyRegistered = errors.New("user already registered for tournament")
	ErrCapacityReached   = errors.New("tournament is full")
	ErrFinalRankAssigned = errors.New("final rank already assigned")
)

type MatchStore interface {
	CreateMatch(ctx context.Context, m *models.Match) error
	FindMatchByID(ctx context.Context, id string) (*models.Match, error)
	FindMatchesByStatus(ctx context.Context, statuses ...models.MatchStatus) ([]models.Match, error)
	FindMatchesByTournament(ctx context.Context, tournamentID string) ([]models.Match, error)
	FindMatchesByPlayer(ctx context.Context, userID string) ([]models.Match, error)
	// UpdateMatch writes m only if the persisted status still equals expected.
	UpdateMatch(ctx context.Context, m *models.Match, expected models.MatchStatus) error
	DeleteMatch(ctx context.Context, id string) error
}

type TournamentStore interface {
	CreateTournament(ctx context.Context, t *models.Tournament) error
	FindTournamentByID(ctx context.Context, id string) (*models.Tournament, error)
	FindTournamentsByStatus(ctx context.Context, statuses ...models.TournamentStatus) ([]models.Tournament, error)
	// UpdateTournament writes t only if the persisted status still equals expected.
	UpdateTournament(ctx context.Context, t *models.Tournament, expected models.TournamentStatus) error
	DeleteTournament(ctx context.Context, id string) error
}

type ParticipantStore interface {
	// CreateParticipant inserts p unless the tournament already holds capacity
	// participants. A capacity of zero or less disables the check.
	CreateParticipant(ctx context.Context, p *models.TournamentParticipant, capacity int) error
	FindParticipant(ctx context.Context, tournamentID, userID string) (*models.TournamentParticipant, error)
	// FindParticipantsByTournament returns participants in registration order.
	FindParticipantsByTournament(ctx context.Context, tournamentID string) ([]models.TournamentParticipant, error)
	CountParticipants(ctx context.Context, tournamentID string) (int, error)
	DeleteParticipant(ctx context.Context, tournamentID, userID string) error
	IncrementWins(ctx context.Context, tournamentID, userID string, scoreDelta int) error
	IncrementLosses(ctx context.Context, tournamentID, userID string, scoreDelta int) error
	SetFinalRank(ctx context.Context, tournamentID, userID string, rank int) error
	FindTiedParticipants(ctx context.Context, tournamentID string, wins, scoreDiff int) ([]models.TournamentParticipant, error)
	// SetAllFinalRanks assigns every rank or none of them.
	SetAllFinalRanks(ctx context.Context, tournamentID string, ranks map[string]int) error
}

// RecordDelta is one participant's record change from a finished match.
type RecordDelta struct {
	UserID     string
	Won        bool
	ScoreDelta int
}

// Store is the persistence facade consumed by the services.
type Store interface {
	MatchStore
	TournamentStore
	ParticipantStore
	// CompleteTournamentMatch writes m like UpdateMatch and applies deltas to
	// the participants of m's tournament. Either all of it lands or none does.
	CompleteTournamentMatch(ctx context.Context, m *models.Match, expected models.MatchStatus, deltas []RecordDelta) error
}
