package workers

import (
	"context"
	"testing"
	"time"

	"game-match-system/clients"
	"game-match-system/repositories"
	"game-match-system/services"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMatchmaker(t *testing.T, clock clockwork.Clock, store *repositories.MemoryStore) *services.Matchmaker {
	t.Helper()
	logger := zap.NewNop()
	timers, err := services.NewTimerArena(clock, logger, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = timers.Shutdown() })

	matches := services.NewMatchService(services.MatchServiceConfig{
		Store:      store,
		Timers:     timers,
		Chat:       clients.NopNotifier{},
		Rooms:      clients.LocalRooms{},
		Reporting:  services.NewMatchReporting(store, clients.NopStats{}, nil, logger),
		Clock:      clock,
		Logger:     logger,
		AckTimeout: time.Minute,
	})
	return services.NewMatchmaker([]string{"casual", "ranked"}, matches, clock, nil, logger)
}

func TestRunOnceEvictsThenPairs(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := repositories.NewMemoryStore()
	mm := newMatchmaker(t, clock, store)

	casual, err := mm.Pool("casual")
	require.NoError(t, err)
	ranked, err := mm.Pool("ranked")
	require.NoError(t, err)

	_, err = casual.JoinPool("stale", "stale")
	require.NoError(t, err)
	clock.Advance(15 * time.Minute)
	for _, u := range []string{"a", "b", "c"} {
		_, err := casual.JoinPool(u, u)
		require.NoError(t, err)
	}
	for _, u := range []string{"x", "y", "z", "w"} {
		_, err := ranked.JoinPool(u, u)
		require.NoError(t, err)
	}

	w := NewPoolMaintenance(mm, time.Second, 10*time.Minute, clock, zap.NewNop())
	w.RunOnce(context.Background())

	_, ok := mm.CurrentPool("stale")
	assert.False(t, ok, "stale player evicted")
	assert.Equal(t, 1, casual.Size())
	assert.Equal(t, 1, casual.Position("c"))
	assert.Equal(t, 0, ranked.Size())

	for _, u := range []string{"a", "b", "x", "y", "z", "w"} {
		got, err := store.FindMatchesByPlayer(context.Background(), u)
		require.NoError(t, err)
		assert.Len(t, got, 1, u)
	}
	stale, err := store.FindMatchesByPlayer(context.Background(), "stale")
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestRunOnceSkipsCancelledContext(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := repositories.NewMemoryStore()
	mm := newMatchmaker(t, clock, store)
	casual, err := mm.Pool("casual")
	require.NoError(t, err)
	for _, u := range []string{"a", "b"} {
		_, err := casual.JoinPool(u, u)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewPoolMaintenance(mm, time.Second, time.Minute, clock, zap.NewNop()).RunOnce(ctx)
	assert.Equal(t, 2, casual.Size())
}
