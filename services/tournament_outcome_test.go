package services

import (
	"testing"
	"time"

	"game-match-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) record(tournamentID, userID string) (wins, losses, diff int) {
	h.t.Helper()
	p, err := h.store.FindParticipant(h.ctx, tournamentID, userID)
	require.NoError(h.t, err)
	return p.Wins, p.Losses, p.ScoreDiff
}

func TestResultRejectedWhenStandingsCannotBeWritten(t *testing.T) {
	h := newHarness(t)
	tt := h.startTournament(tournamentOpts{format: models.FormatRoundRobin, players: []string{"A", "B", "C"}})
	open := h.openMatches(tt.ID)
	require.Len(t, open, 1)
	m := h.schedule(&open[0])
	winner, loser := m.Player1ID, m.Player2ID

	h.store.setFailing(opCompleteMatch, true)
	_, err := h.matches.ReportResult(h.ctx, m.ID, winner, 5, 0)
	require.ErrorIs(t, err, errStoreDown)

	assert.Equal(t, models.MatchStatusScheduled, h.match(m.ID).Status)
	for _, p := range []string{winner, loser} {
		wins, losses, diff := h.record(tt.ID, p)
		assert.Zero(t, wins+losses+diff, "no partial record for %s", p)
	}

	// A sweep in between must not apply anything either.
	require.NoError(t, h.lifecycle.reconcile(h.ctx, false))
	wins, _, _ := h.record(tt.ID, winner)
	assert.Zero(t, wins)

	h.store.setFailing(opCompleteMatch, false)
	_, err = h.matches.ReportResult(h.ctx, m.ID, winner, 5, 0)
	require.NoError(t, err)

	assert.Equal(t, models.MatchStatusCompleted, h.match(m.ID).Status)
	wins, losses, diff := h.record(tt.ID, winner)
	assert.Equal(t, []int{1, 0, 5}, []int{wins, losses, diff})
	wins, losses, diff = h.record(tt.ID, loser)
	assert.Equal(t, []int{0, 1, -5}, []int{wins, losses, diff})
	assert.Len(t, h.openMatches(tt.ID), 1, "next round opened")
}

func TestMatchDeadlineFailureIsRetriedOnNextSweep(t *testing.T) {
	h := newHarness(t)
	tt := h.startTournament(tournamentOpts{format: models.FormatRoundRobin, players: []string{"A", "B"}})
	open := h.openMatches(tt.ID)
	require.Len(t, open, 1)
	m := h.schedule(&open[0])
	require.True(t, h.timers.Has(TimerMatch, m.ID))

	h.store.setFailing(opCompleteMatch, true)
	h.clock.Advance(30 * time.Minute)

	assert.Eventually(t, func() bool { return h.store.failureCount(opCompleteMatch) > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, h.timers.Has(TimerMatch, m.ID))
	_, matchTimers := h.timers.Counts()
	assert.Zero(t, matchTimers)
	assert.Equal(t, models.MatchStatusScheduled, h.match(m.ID).Status)

	h.store.setFailing(opCompleteMatch, false)
	require.NoError(t, h.lifecycle.reconcile(h.ctx, false))

	got := h.match(m.ID)
	assert.Equal(t, models.MatchStatusTimeout, got.Status)
	assert.Equal(t, models.ResultSourcePlayTimeout, *got.ResultSource)
	for _, p := range []string{"A", "B"} {
		wins, losses, diff := h.record(tt.ID, p)
		assert.Equal(t, []int{0, 1, 0}, []int{wins, losses, diff}, p)
	}

	golden := h.openMatches(tt.ID)
	require.Len(t, golden, 1)
	assert.True(t, golden[0].IsGoldenGame)
}

func TestStartFailsWhenRecoveryFails(t *testing.T) {
	h := newHarness(t)
	h.store.setFailing(opFindTournaments, true)

	err := h.lifecycle.Start(h.ctx)
	require.ErrorIs(t, err, errStoreDown)
	assert.Contains(t, err.Error(), "recover lifecycle state")

	h.store.setFailing(opFindTournaments, false)
	require.NoError(t, h.lifecycle.Start(h.ctx))
}
