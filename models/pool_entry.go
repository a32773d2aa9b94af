package models

import "time"

// PlayerPoolEntry is a queued player. It only exists while the player waits in a pool.
type PlayerPoolEntry struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	JoinedAt   time.Time `json:"joined_at"`
	LastActive time.Time `json:"last_active"`
}

// MatchHistoryEntry is a match seen from one player's side.
type MatchHistoryEntry struct {
	MatchID          string       `json:"match_id"`
	GameMode         string       `json:"game_mode"`
	Status           MatchStatus  `json:"status"`
	OpponentID       string       `json:"opponent_id"`
	OpponentUsername string       `json:"opponent_username"`
	PlayerScore      int          `json:"player_score"`
	OpponentScore    int          `json:"opponent_score"`
	IsWinner         bool         `json:"is_winner"`
	TournamentID     *string      `json:"tournament_id,omitempty"`
	IsGoldenGame     bool         `json:"is_golden_game"`
	ResultSource     ResultSource `json:"result_source,omitempty"`
	CompletedAt      time.Time    `json:"completed_at"`
}
