package models

import (
	"time"
)

// TournamentStatus is the closed set of tournament lifecycle states.
type TournamentStatus string

const (
	TournamentStatusRegistration TournamentStatus = "REGISTRATION"
	TournamentStatusScheduled    TournamentStatus = "SCHEDULED"
	TournamentStatusInProgress   TournamentStatus = "IN_PROGRESS"
	TournamentStatusCompleted    TournamentStatus = "COMPLETED"
	TournamentStatusCancelled    TournamentStatus = "CANCELLED"
)

func (s TournamentStatus) Valid() bool {
	switch s {
	case TournamentStatusRegistration, TournamentStatusScheduled, TournamentStatusInProgress,
		TournamentStatusCompleted, TournamentStatusCancelled:
		return true
	}
	return false
}

func (s TournamentStatus) IsTerminal() bool {
	switch s {
	case TournamentStatusCompleted, TournamentStatusCancelled:
		return true
	case TournamentStatusRegistration, TournamentStatusScheduled, TournamentStatusInProgress:
		return false
	}
	return false
}

// CanTransitionTo reports whether a tournament in status s may move to next.
func (s TournamentStatus) CanTransitionTo(next TournamentStatus) bool {
	switch s {
	case TournamentStatusRegistration:
		return next == TournamentStatusScheduled || next == TournamentStatusCancelled
	case TournamentStatusScheduled:
		return next == TournamentStatusInProgress || next == TournamentStatusCancelled
	case TournamentStatusInProgress:
		return next == TournamentStatusCompleted || next == TournamentStatusCancelled
	case TournamentStatusCompleted, TournamentStatusCancelled:
		return false
	}
	return false
}

// TournamentFormat selects how rounds are generated.
type TournamentFormat string

const (
	FormatRoundRobin        TournamentFormat = "ROUND_ROBIN"
	FormatSingleElimination TournamentFormat = "SINGLE_ELIMINATION"
)

func (f TournamentFormat) Valid() bool {
	switch f {
	case FormatRoundRobin, FormatSingleElimination:
		return true
	}
	return false
}

// Tournament is a bracketed competition driven through its lifecycle by timers.
type Tournament struct {
	ID               string           `json:"id" gorm:"primaryKey;type:uuid"`
	Name             string           `json:"name" gorm:"not null"`
	Slug             string           `json:"slug" gorm:"index"`
	GameMode         string           `json:"game_mode" gorm:"not null"`
	Format           TournamentFormat `json:"format" gorm:"type:varchar(32);not null"`
	MinPlayers       int              `json:"min_players" gorm:"not null"`
	MaxPlayers       int              `json:"max_players" gorm:"not null"`
	MatchDeadlineMin int              `json:"match_deadline_min" gorm:"not null"`
	RegistrationEnd  time.Time        `json:"registration_end" gorm:"not null;index"`
	StartTime        *time.Time       `json:"start_time,omitempty" gorm:"index"`
	EndTime          *time.Time       `json:"end_time,omitempty"`
	Status           TournamentStatus `json:"status" gorm:"type:varchar(32);index;not null"`
	CreatedBy        string           `json:"created_by"`

	Timestamps
}

// MatchDeadline is the window a scheduled tournament match has before it times out.
func (t *Tournament) MatchDeadline() time.Duration {
	return time.Duration(t.MatchDeadlineMin) * time.Minute
}

// TournamentParticipant is a registered player and their running record.
type TournamentParticipant struct {
	ID           string    `json:"id" gorm:"primaryKey;type:uuid"`
	TournamentID string    `json:"tournament_id" gorm:"not null;uniqueIndex:idx_participant_tournament_user"`
	UserID       string    `json:"user_id" gorm:"not null;uniqueIndex:idx_participant_tournament_user"`
	Username     string    `json:"username"`
	Wins         int       `json:"wins" gorm:"default:0"`
	Losses       int       `json:"losses" gorm:"default:0"`
	ScoreDiff    int       `json:"score_diff" gorm:"default:0"`
	FinalRank    *int      `json:"final_rank,omitempty"` // assigned once at completion
	RegisteredAt time.Time `json:"registered_at" gorm:"index"`
}

// Standing is one row of a tournament's ranked table.
type Standing struct {
	Rank              int    `json:"rank"`
	UserID            string `json:"user_id"`
	Username          string `json:"username"`
	Wins              int    `json:"wins"`
	Losses            int    `json:"losses"`
	ScoreDiff         int    `json:"score_diff"`
	EliminatedInRound *int   `json:"eliminated_in_round,omitempty"`
}
