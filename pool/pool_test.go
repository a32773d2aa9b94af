package pool

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) (*PlayerPool, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	return NewPlayerPool("casual", clock), clock
}

func TestPlayerPoolFIFO(t *testing.T) {
	p, clock := newTestPool(t)

	require.NoError(t, p.AddToBack("a", "alice"))
	clock.Advance(time.Second)
	require.NoError(t, p.AddToBack("b", "bob"))
	clock.Advance(time.Second)
	require.NoError(t, p.AddToBack("c", "carol"))

	assert.Equal(t, 3, p.Size())
	assert.Equal(t, 1, p.GetPosition("a"))
	assert.Equal(t, 3, p.GetPosition("c"))
	assert.Equal(t, -1, p.GetPosition("zed"))

	oldest := p.GetNOldestPlayers(2)
	require.Len(t, oldest, 2)
	assert.Equal(t, "a", oldest[0].UserID)
	assert.Equal(t, "b", oldest[1].UserID)

	assert.Len(t, p.GetNOldestPlayers(10), 3)
	assert.Empty(t, p.GetNOldestPlayers(0))
}

func TestPlayerPoolDuplicateEntry(t *testing.T) {
	p, _ := newTestPool(t)

	require.NoError(t, p.AddToBack("a", "alice"))
	assert.ErrorIs(t, p.AddToBack("a", "alice"), ErrDuplicateEntry)
	assert.ErrorIs(t, p.AddToFront("a", "alice"), ErrDuplicateEntry)
	assert.Equal(t, 1, p.Size())
}

func TestPlayerPoolAddToFrontTakesPositionOne(t *testing.T) {
	p, _ := newTestPool(t)
	require.NoError(t, p.AddToBack("a", "alice"))
	require.NoError(t, p.AddToBack("b", "bob"))

	require.NoError(t, p.AddToFront("c", "carol"))

	assert.Equal(t, 1, p.GetPosition("c"))
	assert.Equal(t, 2, p.GetPosition("a"))
	assert.Equal(t, "c", p.GetNOldestPlayers(1)[0].UserID)
}

func TestPlayerPoolRemove(t *testing.T) {
	p, _ := newTestPool(t)
	require.NoError(t, p.AddToBack("a", "alice"))
	require.NoError(t, p.AddToBack("b", "bob"))

	assert.True(t, p.Remove("a"))
	assert.False(t, p.Remove("a"))
	assert.False(t, p.Has("a"))
	assert.Equal(t, 1, p.GetPosition("b"))

	_, ok := p.Get("a")
	assert.False(t, ok)
	entry, ok := p.Get("b")
	require.True(t, ok)
	assert.Equal(t, "bob", entry.Username)
}

func TestPlayerPoolRemoveStaleUsesJoinedAt(t *testing.T) {
	p, clock := newTestPool(t)

	require.NoError(t, p.AddToBack("a", "alice"))
	clock.Advance(time.Minute)
	cutoff := clock.Now()
	require.NoError(t, p.AddToBack("b", "bob")) // joinedAt == cutoff
	clock.Advance(time.Minute)
	require.NoError(t, p.AddToBack("c", "carol"))

	// Activity does not save a player from the joinedAt ceiling.
	require.True(t, p.Touch("a"))

	assert.Equal(t, 1, p.RemoveStale(cutoff))
	assert.False(t, p.Has("a"))
	assert.True(t, p.Has("b"))
	assert.True(t, p.Has("c"))
	assert.Equal(t, 0, p.RemoveStale(cutoff))
}

func TestPlayerPoolTouchUpdatesLastActive(t *testing.T) {
	p, clock := newTestPool(t)
	require.NoError(t, p.AddToBack("a", "alice"))
	clock.Advance(30 * time.Second)

	require.True(t, p.Touch("a"))
	entry, _ := p.Get("a")
	assert.Equal(t, clock.Now(), entry.LastActive)
	assert.True(t, entry.JoinedAt.Before(entry.LastActive))
	assert.False(t, p.Touch("nobody"))
}

func TestPlayerPoolRestoreFrontKeepsOrder(t *testing.T) {
	p, _ := newTestPool(t)
	require.NoError(t, p.AddToBack("a", "alice"))
	require.NoError(t, p.AddToBack("b", "bob"))
	require.NoError(t, p.AddToBack("c", "carol"))

	var taken []string
	p.Lock(func(l *Locked) {
		pair := l.Oldest(2)
		for _, e := range pair {
			l.Remove(e.UserID)
			taken = append(taken, e.UserID)
		}
		assert.Equal(t, 1, l.Size())
		l.RestoreFront(pair)
	})

	assert.Equal(t, []string{"a", "b"}, taken)
	assert.Equal(t, 1, p.GetPosition("a"))
	assert.Equal(t, 2, p.GetPosition("b"))
	assert.Equal(t, 3, p.GetPosition("c"))
}

func TestPlayerPoolConcurrentJoins(t *testing.T) {
	p := NewPlayerPool("ranked", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d", i%25)
			_ = p.AddToBack(id, id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, p.Size())
}
