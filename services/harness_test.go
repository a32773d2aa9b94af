package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"game-match-system/clients"
	"game-match-system/models"
	"game-match-system/repositories"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const testAckTimeout = time.Minute

type recordingChat struct {
	mu       sync.Mutex
	acks     [][]string
	channels []string
	err      error
}

func (c *recordingChat) SendMatchAck(_ context.Context, _ string, playerIDs []string, _ string, _ time.Time) clients.Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acks = append(c.acks, playerIDs)
	return clients.Delivery{Target: clients.TargetChat, Err: c.err}
}

func (c *recordingChat) CreateGameSessionChannel(_ context.Context, _ []string, gameSessionID string) clients.Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = append(c.channels, gameSessionID)
	return clients.Delivery{Target: clients.TargetChat, Err: c.err}
}

func (c *recordingChat) ackCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acks)
}

type stubRooms struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (r *stubRooms) CreateRoom(_ context.Context, m *models.Match) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return "room-" + m.ID, nil
}

func (r *stubRooms) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

type recordingStats struct {
	mu      sync.Mutex
	reports []clients.StatsReport
}

func (s *recordingStats) ReportMatchResult(_ context.Context, r clients.StatsReport) clients.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return clients.Delivery{Target: clients.TargetStats}
}

func (s *recordingStats) forMatch(matchID string) []clients.StatsReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []clients.StatsReport
	for _, r := range s.reports {
		if r.MatchID == matchID {
			out = append(out, r)
		}
	}
	return out
}

type recordingArchive struct {
	mu       sync.Mutex
	archived map[string][]models.Standing
}

func (a *recordingArchive) ArchiveStandings(_ context.Context, t *models.Tournament, standings []models.Standing) clients.Delivery {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.archived == nil {
		a.archived = make(map[string][]models.Standing)
	}
	a.archived[t.ID] = standings
	return clients.Delivery{Target: clients.TargetArchive}
}

func (a *recordingArchive) get(tournamentID string) ([]models.Standing, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.archived[tournamentID]
	return s, ok
}

// failingStore fails chosen operations on demand and counts the failures.
type failingStore struct {
	*repositories.MemoryStore
	mu       sync.Mutex
	broken   map[string]bool
	failures map[string]int
}

var errStoreDown = errors.New("store unavailable")

const (
	opCreateMatch     = "CreateMatch"
	opCompleteMatch   = "CompleteTournamentMatch"
	opFindTournaments = "FindTournamentsByStatus"
)

func newFailingStore() *failingStore {
	return &failingStore{
		MemoryStore: repositories.NewMemoryStore(),
		broken:      make(map[string]bool),
		failures:    make(map[string]int),
	}
}

func (s *failingStore) down(op string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken[op] {
		s.failures[op]++
		return true
	}
	return false
}

func (s *failingStore) setFailing(op string, v bool) {
	s.mu.Lock()
	s.broken[op] = v
	s.mu.Unlock()
}

func (s *failingStore) failureCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[op]
}

func (s *failingStore) setFailCreates(v bool) { s.setFailing(opCreateMatch, v) }

func (s *failingStore) CreateMatch(ctx context.Context, m *models.Match) error {
	if s.down(opCreateMatch) {
		return errStoreDown
	}
	return s.MemoryStore.CreateMatch(ctx, m)
}

func (s *failingStore) CompleteTournamentMatch(ctx context.Context, m *models.Match, expected models.MatchStatus, deltas []repositories.RecordDelta) error {
	if s.down(opCompleteMatch) {
		return errStoreDown
	}
	return s.MemoryStore.CompleteTournamentMatch(ctx, m, expected, deltas)
}

func (s *failingStore) FindTournamentsByStatus(ctx context.Context, statuses ...models.TournamentStatus) ([]models.Tournament, error) {
	if s.down(opFindTournaments) {
		return nil, errStoreDown
	}
	return s.MemoryStore.FindTournamentsByStatus(ctx, statuses...)
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	clock *clockwork.FakeClock
	store *failingStore

	chat    *recordingChat
	rooms   *stubRooms
	stats   *recordingStats
	archive *recordingArchive

	timers      *TimerArena
	reporting   *MatchReporting
	matches     *MatchService
	matchmaker  *Matchmaker
	tournaments *TournamentService
	lifecycle   *TournamentLifecycleManager
}

func newHarness(t *testing.T, modes ...string) *harness {
	t.Helper()
	if len(modes) == 0 {
		modes = []string{"casual"}
	}
	logger := zap.NewNop()

	h := &harness{
		t:       t,
		ctx:     context.Background(),
		clock:   clockwork.NewFakeClockAt(testEpoch),
		store:   newFailingStore(),
		chat:    &recordingChat{},
		rooms:   &stubRooms{},
		stats:   &recordingStats{},
		archive: &recordingArchive{},
	}

	timers, err := NewTimerArena(h.clock, logger, nil)
	require.NoError(t, err)
	h.timers = timers

	h.reporting = NewMatchReporting(h.store, h.stats, nil, logger)
	h.matches = NewMatchService(MatchServiceConfig{
		Store:      h.store,
		Timers:     timers,
		Chat:       h.chat,
		Rooms:      h.rooms,
		Reporting:  h.reporting,
		Clock:      h.clock,
		Logger:     logger,
		AckTimeout: testAckTimeout,
	})
	h.matchmaker = NewMatchmaker(modes, h.matches, h.clock, nil, logger)
	h.tournaments = NewTournamentService(h.store, modes, h.clock, nil, logger)
	h.lifecycle = NewTournamentLifecycleManager(LifecycleConfig{
		Store:       h.store,
		Tournaments: h.tournaments,
		Matches:     h.matches,
		Timers:      timers,
		Archive:     h.archive,
		Clock:       h.clock,
		Logger:      logger,
	})
	t.Cleanup(func() { _ = h.lifecycle.Shutdown() })
	return h
}

func (h *harness) pool(mode string) *MatchmakingService {
	h.t.Helper()
	svc, err := h.matchmaker.Pool(mode)
	require.NoError(h.t, err)
	return svc
}

// join adds each user to the pool one second apart.
func (h *harness) join(mode string, users ...string) {
	h.t.Helper()
	svc := h.pool(mode)
	for _, u := range users {
		res, err := svc.JoinPool(u, u+"-name")
		require.NoError(h.t, err)
		require.True(h.t, res.Success)
		h.clock.Advance(time.Second)
	}
}

func (h *harness) match(id string) *models.Match {
	h.t.Helper()
	m, err := h.store.FindMatchByID(h.ctx, id)
	require.NoError(h.t, err)
	return m
}

func (h *harness) tournament(id string) *models.Tournament {
	h.t.Helper()
	tt, err := h.store.FindTournamentByID(h.ctx, id)
	require.NoError(h.t, err)
	return tt
}

// pairCasual joins two players and pairs them.
func (h *harness) pairCasual(a, b string) *models.Match {
	h.t.Helper()
	h.join("casual", a, b)
	res, err := h.pool("casual").TryAutoPair(h.ctx)
	require.NoError(h.t, err)
	require.True(h.t, res.Paired)
	return h.match(res.MatchID)
}

func (h *harness) schedule(m *models.Match) *models.Match {
	h.t.Helper()
	_, err := h.matches.Acknowledge(h.ctx, m.ID, m.Player1ID)
	require.NoError(h.t, err)
	got, err := h.matches.Acknowledge(h.ctx, m.ID, m.Player2ID)
	require.NoError(h.t, err)
	require.Equal(h.t, models.MatchStatusScheduled, got.Status)
	return got
}

type tournamentOpts struct {
	format     models.TournamentFormat
	minPlayers int
	maxPlayers int
	players    []string
}

// startTournament creates a tournament, registers players and closes
// registration through the lifecycle manager.
func (h *harness) startTournament(o tournamentOpts) *models.Tournament {
	h.t.Helper()
	if o.maxPlayers == 0 {
		o.maxPlayers = 16
	}
	if o.minPlayers == 0 {
		o.minPlayers = 2
	}
	tt, err := h.tournaments.CreateTournament(h.ctx, CreateTournamentInput{
		Name:             "Summer Cup",
		GameMode:         "casual",
		Format:           o.format,
		MinPlayers:       o.minPlayers,
		MaxPlayers:       o.maxPlayers,
		MatchDeadlineMin: 30,
		RegistrationEnd:  h.clock.Now().Add(time.Hour),
	})
	require.NoError(h.t, err)

	for _, p := range o.players {
		_, err := h.tournaments.Register(h.ctx, tt.ID, p, p+"-name")
		require.NoError(h.t, err)
		h.clock.Advance(time.Second)
	}

	h.clock.Advance(time.Hour)
	require.NoError(h.t, h.lifecycle.Recover(h.ctx))
	return h.tournament(tt.ID)
}

func (h *harness) openMatches(tournamentID string) []models.Match {
	h.t.Helper()
	all, err := h.store.FindMatchesByTournament(h.ctx, tournamentID)
	require.NoError(h.t, err)
	var open []models.Match
	for _, m := range all {
		if !m.Status.IsTerminal() {
			open = append(open, m)
		}
	}
	return open
}

// playRound schedules and reports every open match of the tournament.
// winner picks the winning user id of each match.
func (h *harness) playRound(tournamentID string, winner func(m *models.Match) string) []models.Match {
	h.t.Helper()
	open := h.openMatches(tournamentID)
	for i := range open {
		m := h.schedule(&open[i])
		w := winner(m)
		p1, p2 := 2, 1
		if w == m.Player2ID {
			p1, p2 = 1, 2
		}
		_, err := h.matches.ReportResult(h.ctx, m.ID, w, p1, p2)
		require.NoError(h.t, err)
	}
	return open
}

// bySeed makes the player registered earlier win.
func bySeed(order []string) func(m *models.Match) string {
	rank := make(map[string]int, len(order))
	for i, id := range order {
		rank[id] = i
	}
	return func(m *models.Match) string {
		if rank[m.Player1ID] < rank[m.Player2ID] {
			return m.Player1ID
		}
		return m.Player2ID
	}
}
