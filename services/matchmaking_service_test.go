package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"game-match-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAutoPairTakesTwoOldest(t *testing.T) {
	h := newHarness(t)
	h.join("casual", "A", "B", "C")
	svc := h.pool("casual")

	res, err := svc.TryAutoPair(h.ctx)
	require.NoError(t, err)
	require.True(t, res.Paired)
	assert.Equal(t, "A", res.Player1ID)
	assert.Equal(t, "B", res.Player2ID)

	assert.Equal(t, 1, svc.Size())
	assert.Equal(t, 1, svc.Position("C"))
	assert.False(t, svc.CanFormPair())

	_, inPool := h.matchmaker.CurrentPool("A")
	assert.False(t, inPool)
	mode, inPool := h.matchmaker.CurrentPool("C")
	assert.True(t, inPool)
	assert.Equal(t, "casual", mode)

	m := h.match(res.MatchID)
	assert.Equal(t, models.MatchStatusPendingAcknowledgement, m.Status)
	require.NotNil(t, m.Deadline)
	assert.WithinDuration(t, h.clock.Now().Add(testAckTimeout), *m.Deadline, 0)
	assert.Equal(t, 1, h.chat.ackCount())

	_, matchTimers := h.timers.Counts()
	assert.Equal(t, 1, matchTimers)
}

func TestTryAutoPairNoopBelowTwo(t *testing.T) {
	h := newHarness(t)
	svc := h.pool("casual")

	res, err := svc.TryAutoPair(h.ctx)
	require.NoError(t, err)
	assert.False(t, res.Paired)

	h.join("casual", "A")
	res, err = svc.TryAutoPair(h.ctx)
	require.NoError(t, err)
	assert.False(t, res.Paired)
	assert.Equal(t, 1, svc.Size())
}

func TestJoinPool(t *testing.T) {
	h := newHarness(t, "casual", "ranked")
	casual := h.pool("casual")
	ranked := h.pool("ranked")

	res, err := casual.JoinPool("A", "alice")
	require.NoError(t, err)
	assert.Equal(t, JoinResult{Success: true, Position: 1}, res)

	t.Run("same pool twice is not an error", func(t *testing.T) {
		res, err := casual.JoinPool("A", "alice")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, 1, res.Position)
		assert.Equal(t, 1, casual.Size())
	})

	t.Run("another pool is rejected", func(t *testing.T) {
		_, err := ranked.JoinPool("A", "alice")
		assert.ErrorIs(t, err, ErrAlreadyInAnotherPool)
		assert.Equal(t, 0, ranked.Size())
	})

	t.Run("leaving frees the user", func(t *testing.T) {
		assert.True(t, casual.LeavePool("A"))
		assert.False(t, casual.LeavePool("A"))
		res, err := ranked.JoinPool("A", "alice")
		require.NoError(t, err)
		assert.True(t, res.Success)
	})

	_, err = h.matchmaker.Pool("blitz")
	assert.ErrorIs(t, err, ErrUnknownGameMode)
}

func TestTryAutoPairRestoresPlayersWhenMatchNotPersisted(t *testing.T) {
	h := newHarness(t)
	h.join("casual", "A", "B", "C")
	svc := h.pool("casual")

	h.store.setFailCreates(true)
	res, err := svc.TryAutoPair(h.ctx)
	require.ErrorIs(t, err, errStoreDown)
	assert.False(t, res.Paired)

	assert.Equal(t, 3, svc.Size())
	assert.Equal(t, 1, svc.Position("A"))
	assert.Equal(t, 2, svc.Position("B"))
	assert.Equal(t, 3, svc.Position("C"))
	for _, u := range []string{"A", "B"} {
		mode, ok := h.matchmaker.CurrentPool(u)
		assert.True(t, ok)
		assert.Equal(t, "casual", mode)
	}

	h.store.setFailCreates(false)
	res, err = svc.TryAutoPair(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", res.Player1ID)
	assert.Equal(t, "B", res.Player2ID)
}

func TestRequeueFrontTakesPositionOne(t *testing.T) {
	h := newHarness(t)
	h.join("casual", "A", "B")
	svc := h.pool("casual")

	require.NoError(t, h.matchmaker.RequeueFront("casual", "Z", "zed"))
	assert.Equal(t, 1, svc.Position("Z"))
	assert.Equal(t, 2, svc.Position("A"))
	assert.Equal(t, 3, svc.Size())
}

func TestEvictStaleUsesJoinTime(t *testing.T) {
	h := newHarness(t)
	svc := h.pool("casual")
	h.join("casual", "A")
	h.clock.Advance(5 * time.Minute)
	h.join("casual", "B")

	// A keeps refreshing, which does not protect it.
	_, err := svc.JoinPool("A", "A-name")
	require.NoError(t, err)

	h.clock.Advance(6 * time.Minute)
	evicted := svc.EvictStale(h.clock.Now().Add(-10 * time.Minute))
	require.Len(t, evicted, 1)
	assert.Equal(t, "A", evicted[0].UserID)

	_, ok := h.matchmaker.CurrentPool("A")
	assert.False(t, ok)
	assert.Equal(t, 1, svc.Position("B"))
}

// Every user ends up either waiting in the pool or in exactly one match,
// unless they left before being paired.
func TestPoolConservationUnderConcurrency(t *testing.T) {
	h := newHarness(t)
	svc := h.pool("casual")

	const n = 60
	users := make([]string, n)
	for i := range users {
		users[i] = fmt.Sprintf("u%02d", i)
	}

	var (
		wg     sync.WaitGroup
		leftMu sync.Mutex
		left   = make(map[string]bool)
	)
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, err := svc.JoinPool(u, u)
			assert.NoError(t, err)
		}(u)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := svc.TryAutoPair(h.ctx)
				assert.NoError(t, err)
			}
		}()
	}
	for i := 0; i < n; i += 7 {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			if svc.LeavePool(u) {
				leftMu.Lock()
				left[u] = true
				leftMu.Unlock()
			}
		}(users[i])
	}
	wg.Wait()

	for _, u := range users {
		matches, err := h.store.FindMatchesByPlayer(h.ctx, u)
		require.NoError(t, err)
		inPool := svc.Position(u) > 0

		if left[u] {
			assert.False(t, inPool, u)
			assert.Empty(t, matches, u)
			continue
		}
		assert.LessOrEqual(t, len(matches), 1, "%s paired twice", u)
		assert.True(t, inPool != (len(matches) == 1), "%s in pool=%v matches=%d", u, inPool, len(matches))
	}
}
