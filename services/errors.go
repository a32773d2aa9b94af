package services

import (
	"errors"

	"game-match-system/pool"
	"game-match-system/repositories"
)

var (
	ErrUnknownGameMode    = errors.New("unknown game mode")
	ErrNotMatchPlayer     = errors.New("user is not a player in this match")
	ErrInvalidWinner      = errors.New("winner must be one of the match players")
	ErrInvalidScore       = errors.New("scores must not be negative")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrRegistrationClosed = errors.New("tournament registration is closed")
	ErrTournamentFull     = errors.New("tournament is full")
	ErrInvalidTournament  = errors.New("invalid tournament")

	ErrDuplicateEntry       = pool.ErrDuplicateEntry
	ErrAlreadyInAnotherPool = pool.ErrAlreadyInAnotherPool
	ErrAlreadyRegistered    = repositories.ErrAlreadyRegistered
	ErrNotFound             = repositories.ErrNotFound
	ErrStaleUpdate          = repositories.ErrStaleUpdate
)
