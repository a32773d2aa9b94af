package models

import "time"

// MatchStatus is the closed set of states a Match moves through.
type MatchStatus string

const (
	MatchStatusPendingAcknowledgement MatchStatus = "PENDING_ACKNOWLEDGEMENT"
	MatchStatusScheduled              MatchStatus = "SCHEDULED"
	MatchStatusCompleted              MatchStatus = "COMPLETED"
	MatchStatusForfeited              MatchStatus = "FORFEITED"
	MatchStatusTimeout                MatchStatus = "TIMEOUT"
)

// Valid reports whether s is one of the declared match statuses.
func (s MatchStatus) Valid() bool {
	switch s {
	case MatchStatusPendingAcknowledgement, MatchStatusScheduled,
		MatchStatusCompleted, MatchStatusForfeited, MatchStatusTimeout:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s MatchStatus) IsTerminal() bool {
	switch s {
	case MatchStatusCompleted, MatchStatusForfeited, MatchStatusTimeout:
		return true
	case MatchStatusPendingAcknowledgement, MatchStatusScheduled:
		return false
	}
	return false
}

// CanTransitionTo reports whether a match in status s may move to next.
// Unknown statuses never transition.
func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	switch s {
	case MatchStatusPendingAcknowledgement:
		return next == MatchStatusScheduled || next == MatchStatusForfeited || next == MatchStatusTimeout
	case MatchStatusScheduled:
		return next == MatchStatusCompleted || next == MatchStatusForfeited || next == MatchStatusTimeout
	case MatchStatusCompleted, MatchStatusForfeited, MatchStatusTimeout:
		return false
	}
	return false
}

// ResultSource records how a match reached its terminal status.
type ResultSource string

const (
	ResultSourceReported            ResultSource = "REPORTED"
	ResultSourceForfeit             ResultSource = "FORFEIT"
	ResultSourceAckTimeout          ResultSource = "ACK_TIMEOUT"
	ResultSourcePlayTimeout         ResultSource = "PLAY_TIMEOUT"
	ResultSourceTournamentCancelled ResultSource = "TOURNAMENT_CANCELLED"
)

// Match records a single 1v1 pairing, casual (TournamentID nil) or tournament.
type Match struct {
	ID              string      `json:"id" gorm:"primaryKey;type:uuid"`
	Player1ID       string      `json:"player1_id" gorm:"index;not null"`
	Player2ID       string      `json:"player2_id" gorm:"index;not null"`
	Player1Username string      `json:"player1_username"`
	Player2Username string      `json:"player2_username"`
	GameMode        string      `json:"game_mode" gorm:"index;not null"`
	Status          MatchStatus `json:"status" gorm:"type:varchar(32);index;not null"`

	Player1Acknowledged bool `json:"player1_acknowledged" gorm:"default:false"`
	Player2Acknowledged bool `json:"player2_acknowledged" gorm:"default:false"`

	TournamentID *string    `json:"tournament_id,omitempty" gorm:"index"` // nil = casual match
	Round        int        `json:"round" gorm:"default:0"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	IsGoldenGame bool       `json:"is_golden_game" gorm:"default:false"`

	// Outcome
	WinnerID      *string       `json:"winner_id,omitempty"`
	Player1Score  *int          `json:"player1_score,omitempty"`
	Player2Score  *int          `json:"player2_score,omitempty"`
	GameSessionID *string       `json:"game_session_id,omitempty"`
	ResultSource  *ResultSource `json:"result_source,omitempty" gorm:"type:varchar(32)"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty" gorm:"index"`

	Timestamps
}

// IsTournament reports whether the match belongs to a tournament.
func (m *Match) IsTournament() bool {
	return m.TournamentID != nil && *m.TournamentID != ""
}

// HasPlayer reports whether userID is one of the two players.
func (m *Match) HasPlayer(userID string) bool {
	return userID != "" && (m.Player1ID == userID || m.Player2ID == userID)
}

// PlayerIDs returns both player ids in slot order.
func (m *Match) PlayerIDs() []string {
	return []string{m.Player1ID, m.Player2ID}
}

// Opponent returns the other player's id and username.
func (m *Match) Opponent(userID string) (string, string) {
	if m.Player1ID == userID {
		return m.Player2ID, m.Player2Username
	}
	return m.Player1ID, m.Player1Username
}

// Username returns the username stored for userID in this match.
func (m *Match) Username(userID string) string {
	if m.Player1ID == userID {
		return m.Player1Username
	}
	return m.Player2Username
}

// BothAcknowledged reports whether both players confirmed readiness.
func (m *Match) BothAcknowledged() bool {
	return m.Player1Acknowledged && m.Player2Acknowledged
}

// Scores returns userID's score and the opponent's score (0 when unset).
func (m *Match) Scores(userID string) (own, opponent int) {
	p1, p2 := derefInt(m.Player1Score), derefInt(m.Player2Score)
	if m.Player1ID == userID {
		return p1, p2
	}
	return p2, p1
}

// IsWinner reports whether userID won the match.
func (m *Match) IsWinner(userID string) bool {
	return m.WinnerID != nil && *m.WinnerID == userID
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
