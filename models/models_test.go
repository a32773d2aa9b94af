package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchStatusTransitions(t *testing.T) {
	tests := []struct {
		from MatchStatus
		to   MatchStatus
		want bool
	}{
		{MatchStatusPendingAcknowledgement, MatchStatusScheduled, true},
		{MatchStatusPendingAcknowledgement, MatchStatusTimeout, true},
		{MatchStatusPendingAcknowledgement, MatchStatusForfeited, true},
		{MatchStatusPendingAcknowledgement, MatchStatusCompleted, false},
		{MatchStatusScheduled, MatchStatusCompleted, true},
		{MatchStatusScheduled, MatchStatusPendingAcknowledgement, false},
		{MatchStatusCompleted, MatchStatusTimeout, false},
		{MatchStatusTimeout, MatchStatusScheduled, false},
		{MatchStatus("BOGUS"), MatchStatusScheduled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, MatchStatusForfeited.IsTerminal())
	assert.False(t, MatchStatusScheduled.IsTerminal())
	assert.False(t, MatchStatus("BOGUS").Valid())
}

func TestTournamentStatusTransitions(t *testing.T) {
	assert.True(t, TournamentStatusRegistration.CanTransitionTo(TournamentStatusScheduled))
	assert.True(t, TournamentStatusRegistration.CanTransitionTo(TournamentStatusCancelled))
	assert.False(t, TournamentStatusRegistration.CanTransitionTo(TournamentStatusInProgress))
	assert.True(t, TournamentStatusScheduled.CanTransitionTo(TournamentStatusInProgress))
	assert.True(t, TournamentStatusInProgress.CanTransitionTo(TournamentStatusCompleted))
	assert.True(t, TournamentStatusInProgress.CanTransitionTo(TournamentStatusCancelled))
	assert.False(t, TournamentStatusCompleted.CanTransitionTo(TournamentStatusCancelled))
	assert.False(t, TournamentStatusCancelled.CanTransitionTo(TournamentStatusRegistration))
}

func TestMatchPerspective(t *testing.T) {
	p1, p2 := 7, 3
	winner := "b"
	m := &Match{
		Player1ID: "a", Player1Username: "alice",
		Player2ID: "b", Player2Username: "bob",
		Player1Score: &p1, Player2Score: &p2,
		WinnerID: &winner,
	}

	id, name := m.Opponent("a")
	assert.Equal(t, "b", id)
	assert.Equal(t, "bob", name)

	own, opp := m.Scores("b")
	assert.Equal(t, 3, own)
	assert.Equal(t, 7, opp)

	assert.True(t, m.IsWinner("b"))
	assert.False(t, m.IsWinner("a"))
	assert.True(t, m.HasPlayer("a"))
	assert.False(t, m.HasPlayer("c"))
	assert.False(t, m.IsTournament())
}
