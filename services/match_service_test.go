package services

import (
	"errors"
	"testing"

	"game-match-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcknowledgeSchedulesOnceBothAccept(t *testing.T) {
	h := newHarness(t)
	m := h.pairCasual("A", "B")

	got, err := h.matches.Acknowledge(h.ctx, m.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusPendingAcknowledgement, got.Status)
	assert.True(t, got.Player1Acknowledged)
	assert.False(t, got.Player2Acknowledged)

	_, err = h.matches.Acknowledge(h.ctx, m.ID, "A")
	require.NoError(t, err, "acknowledging twice is harmless")

	got, err = h.matches.Acknowledge(h.ctx, m.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusScheduled, got.Status)
	require.NotNil(t, got.GameSessionID)
	assert.Equal(t, "room-"+m.ID, *got.GameSessionID)
	assert.Nil(t, got.Deadline, "casual matches are not timed once scheduled")
	assert.Equal(t, []string{"room-" + m.ID}, h.chat.channels)

	_, matchTimers := h.timers.Counts()
	assert.Equal(t, 0, matchTimers)

	_, err = h.matches.Acknowledge(h.ctx, m.ID, "B")
	assert.NoError(t, err)
}

func TestAcknowledgeRejectsStrangers(t *testing.T) {
	h := newHarness(t)
	m := h.pairCasual("A", "B")

	_, err := h.matches.Acknowledge(h.ctx, m.ID, "C")
	assert.ErrorIs(t, err, ErrNotMatchPlayer)

	_, err = h.matches.Acknowledge(h.ctx, "missing", "A")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRoomFailureLeavesMatchPending(t *testing.T) {
	h := newHarness(t)
	m := h.pairCasual("A", "B")
	h.rooms.fail(errors.New("no capacity"))

	_, err := h.matches.Acknowledge(h.ctx, m.ID, "A")
	require.NoError(t, err)
	_, err = h.matches.Acknowledge(h.ctx, m.ID, "B")
	require.Error(t, err)

	stored := h.match(m.ID)
	assert.Equal(t, models.MatchStatusPendingAcknowledgement, stored.Status)
	assert.True(t, stored.BothAcknowledged())
	assert.Nil(t, stored.GameSessionID)

	h.rooms.fail(nil)
	got, err := h.matches.Acknowledge(h.ctx, m.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusScheduled, got.Status)
	assert.Equal(t, 2, h.rooms.calls)
}

func TestReportResultHistoryRoundTrip(t *testing.T) {
	h := newHarness(t)
	m := h.schedule(h.pairCasual("A", "B"))

	done, err := h.matches.ReportResult(h.ctx, m.ID, "A", 3, 1)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, done.Status)

	histA, err := h.reporting.GetMatchHistory(h.ctx, "A", 10)
	require.NoError(t, err)
	histB, err := h.reporting.GetMatchHistory(h.ctx, "B", 10)
	require.NoError(t, err)
	require.Len(t, histA, 1)
	require.Len(t, histB, 1)

	a, b := histA[0], histB[0]
	assert.Equal(t, m.ID, a.MatchID)
	assert.Equal(t, m.ID, b.MatchID)
	assert.Equal(t, "B", a.OpponentID)
	assert.Equal(t, "A", b.OpponentID)
	assert.Equal(t, "B-name", a.OpponentUsername)
	assert.Equal(t, [2]int{3, 1}, [2]int{a.PlayerScore, a.OpponentScore})
	assert.Equal(t, [2]int{1, 3}, [2]int{b.PlayerScore, b.OpponentScore})
	assert.True(t, a.IsWinner)
	assert.False(t, b.IsWinner)
	assert.Equal(t, models.ResultSourceReported, a.ResultSource)

	reports := h.stats.forMatch(m.ID)
	require.Len(t, reports, 2)
	assert.True(t, reports[0].IsWinner)
	assert.False(t, reports[1].IsWinner)
}

func TestReportResultRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	m := h.pairCasual("A", "B")

	_, err := h.matches.ReportResult(h.ctx, m.ID, "A", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition, "not scheduled yet")

	h.schedule(m)
	_, err = h.matches.ReportResult(h.ctx, m.ID, "C", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidWinner)
	_, err = h.matches.ReportResult(h.ctx, m.ID, "A", -1, 0)
	assert.ErrorIs(t, err, ErrInvalidScore)

	_, err = h.matches.ReportResult(h.ctx, m.ID, "B", 0, 2)
	require.NoError(t, err)
	_, err = h.matches.ReportResult(h.ctx, m.ID, "A", 2, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition, "already completed")
}

func TestCasualAckTimeoutRequeuesTheAcker(t *testing.T) {
	h := newHarness(t)
	m := h.pairCasual("A", "B")
	h.join("casual", "C")

	_, err := h.matches.Acknowledge(h.ctx, m.ID, "B")
	require.NoError(t, err)

	h.clock.Advance(testAckTimeout)
	require.NoError(t, h.matches.ExpireMatch(h.ctx, m.ID))

	got := h.match(m.ID)
	assert.Equal(t, models.MatchStatusForfeited, got.Status)
	require.NotNil(t, got.WinnerID)
	assert.Equal(t, "B", *got.WinnerID)
	require.NotNil(t, got.ResultSource)
	assert.Equal(t, models.ResultSourceAckTimeout, *got.ResultSource)

	svc := h.pool("casual")
	assert.Equal(t, 1, svc.Position("B"))
	assert.Equal(t, 2, svc.Position("C"))
	assert.Equal(t, -1, svc.Position("A"))

	hist, err := h.reporting.GetMatchHistory(h.ctx, "B", 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
	assert.Empty(t, h.stats.forMatch(m.ID))
}

func TestCasualAckTimeoutWithoutAcks(t *testing.T) {
	h := newHarness(t)
	m := h.pairCasual("A", "B")

	h.clock.Advance(testAckTimeout / 2)
	require.NoError(t, h.matches.ExpireMatch(h.ctx, m.ID))
	assert.Equal(t, models.MatchStatusPendingAcknowledgement, h.match(m.ID).Status, "deadline not reached")

	h.clock.Advance(testAckTimeout)
	require.NoError(t, h.matches.ExpireMatch(h.ctx, m.ID))
	got := h.match(m.ID)
	assert.Equal(t, models.MatchStatusTimeout, got.Status)
	assert.Nil(t, got.WinnerID)
	assert.Equal(t, 0, h.pool("casual").Size())

	require.NoError(t, h.matches.ExpireMatch(h.ctx, m.ID), "expiring twice is a no-op")
}

func TestAcknowledgeAfterDeadlineExpiresMatch(t *testing.T) {
	h := newHarness(t)
	m := h.pairCasual("A", "B")

	h.clock.Advance(testAckTimeout)
	_, err := h.matches.Acknowledge(h.ctx, m.ID, "A")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.MatchStatusTimeout, h.match(m.ID).Status)
}

func TestCasualForfeit(t *testing.T) {
	t.Run("while pending requeues the opponent", func(t *testing.T) {
		h := newHarness(t)
		m := h.pairCasual("A", "B")

		got, err := h.matches.Forfeit(h.ctx, m.ID, "A")
		require.NoError(t, err)
		assert.Equal(t, models.MatchStatusForfeited, got.Status)
		assert.Equal(t, "B", *got.WinnerID)
		assert.Equal(t, 1, h.pool("casual").Position("B"))
	})

	t.Run("never reaches history or stats", func(t *testing.T) {
		h := newHarness(t)
		m := h.schedule(h.pairCasual("A", "B"))

		_, err := h.matches.Forfeit(h.ctx, m.ID, "A")
		require.NoError(t, err)
		assert.Equal(t, -1, h.pool("casual").Position("B"), "scheduled forfeits do not requeue")

		for _, p := range []string{"A", "B"} {
			hist, err := h.reporting.GetMatchHistory(h.ctx, p, 0)
			require.NoError(t, err)
			assert.Empty(t, hist, p)
		}
		assert.Empty(t, h.stats.forMatch(m.ID))

		_, err = h.matches.Forfeit(h.ctx, m.ID, "B")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("strangers cannot forfeit", func(t *testing.T) {
		h := newHarness(t)
		m := h.pairCasual("A", "B")
		_, err := h.matches.Forfeit(h.ctx, m.ID, "C")
		assert.ErrorIs(t, err, ErrNotMatchPlayer)
	})
}

func TestHistoryLimitNewestFirst(t *testing.T) {
	h := newHarness(t)
	first := h.schedule(h.pairCasual("A", "B"))
	_, err := h.matches.ReportResult(h.ctx, first.ID, "A", 1, 0)
	require.NoError(t, err)

	second := h.schedule(h.pairCasual("A", "C"))
	_, err = h.matches.ReportResult(h.ctx, second.ID, "C", 0, 1)
	require.NoError(t, err)

	hist, err := h.reporting.GetMatchHistory(h.ctx, "A", 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, second.ID, hist[0].MatchID)
	assert.False(t, hist[0].IsWinner)
}
