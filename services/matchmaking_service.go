package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"game-match-system/metrics"
	"game-match-system/models"
	"game-match-system/pool"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// JoinResult is false only when the user was already waiting in this pool.
type JoinResult struct {
	Success  bool `json:"success"`
	Position int  `json:"position"`
}

type PairResult struct {
	Paired    bool   `json:"paired"`
	MatchID   string `json:"match_id,omitempty"`
	Player1ID string `json:"player1_id,omitempty"`
	Player2ID string `json:"player2_id,omitempty"`
}

// MatchmakingService runs one game mode's pool. Every pool mutation happens
// under the pool's lock, and registry updates happen inside the same section.
type MatchmakingService struct {
	mode     string
	pool     *pool.PlayerPool
	registry *pool.Registry
	matches  *MatchService
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func newMatchmakingService(mode string, registry *pool.Registry, matches *MatchService, clock clockwork.Clock, m *metrics.Metrics, logger *zap.Logger) *MatchmakingService {
	return &MatchmakingService{
		mode:     mode,
		pool:     pool.NewPlayerPool(mode, clock),
		registry: registry,
		matches:  matches,
		clock:    clock,
		metrics:  m,
		logger:   logger.With(zap.String("game_mode", mode)),
	}
}

func (s *MatchmakingService) Mode() string { return s.mode }

func (s *MatchmakingService) JoinPool(userID, username string) (JoinResult, error) {
	var (
		res JoinResult
		err error
	)
	s.pool.Lock(func(l *pool.Locked) {
		if l.Has(userID) {
			return
		}
		if err = s.registry.TryRegister(userID, s.mode); err != nil {
			return
		}
		if err = l.AddToBack(userID, username); err != nil {
			s.registry.UnregisterFrom(userID, s.mode)
			return
		}
		res = JoinResult{Success: true, Position: l.Size()}
	})
	if err != nil {
		return JoinResult{}, err
	}
	if !res.Success {
		res.Position = s.pool.GetPosition(userID)
		s.pool.Touch(userID)
		return res, nil
	}

	s.publishSize()
	s.logger.Debug("player joined pool", zap.String("user_id", userID), zap.Int("position", res.Position))
	return res, nil
}

func (s *MatchmakingService) LeavePool(userID string) bool {
	var left bool
	s.pool.Lock(func(l *pool.Locked) {
		if left = l.Remove(userID); left {
			s.registry.UnregisterFrom(userID, s.mode)
		}
	})
	if left {
		s.publishSize()
		s.logger.Debug("player left pool", zap.String("user_id", userID))
	}
	return left
}

func (s *MatchmakingService) CanFormPair() bool {
	return s.pool.Size() >= 2
}

// TryAutoPair pairs the two longest-waiting players. Both leave the pool in
// one critical section. If the match cannot be persisted they are restored
// to the head of the pool in their original order.
func (s *MatchmakingService) TryAutoPair(ctx context.Context) (PairResult, error) {
	var pair []models.PlayerPoolEntry
	s.pool.Lock(func(l *pool.Locked) {
		if l.Size() < 2 {
			return
		}
		pair = l.Oldest(2)
		for _, e := range pair {
			l.Remove(e.UserID)
			s.registry.UnregisterFrom(e.UserID, s.mode)
		}
	})
	if pair == nil {
		return PairResult{}, nil
	}

	started := time.Now()
	m, err := s.matches.OpenMatch(ctx, MatchSpec{
		Player1ID:       pair[0].UserID,
		Player1Username: pair[0].Username,
		Player2ID:       pair[1].UserID,
		Player2Username: pair[1].Username,
		GameMode:        s.mode,
	})
	if err != nil {
		s.restore(pair)
		return PairResult{}, fmt.Errorf("pair %s and %s: %w", pair[0].UserID, pair[1].UserID, err)
	}
	s.metrics.ObservePairing(time.Since(started).Seconds())
	s.publishSize()

	return PairResult{
		Paired:    true,
		MatchID:   m.ID,
		Player1ID: m.Player1ID,
		Player2ID: m.Player2ID,
	}, nil
}

func (s *MatchmakingService) restore(pair []models.PlayerPoolEntry) {
	s.pool.Lock(func(l *pool.Locked) {
		back := make([]models.PlayerPoolEntry, 0, len(pair))
		for _, e := range pair {
			if err := s.registry.TryRegister(e.UserID, s.mode); err != nil {
				s.logger.Warn("paired player moved to another pool; not restored", zap.String("user_id", e.UserID))
				continue
			}
			back = append(back, e)
		}
		l.RestoreFront(back)
	})
	s.publishSize()
}

// RequeueFront returns a player to position 1.
func (s *MatchmakingService) RequeueFront(userID, username string) error {
	var err error
	s.pool.Lock(func(l *pool.Locked) {
		if err = s.registry.TryRegister(userID, s.mode); err != nil {
			return
		}
		l.Remove(userID)
		err = l.AddToFront(userID, username)
	})
	if err != nil {
		return err
	}
	s.publishSize()
	s.logger.Info("player requeued at front", zap.String("user_id", userID))
	return nil
}

// EvictStale removes players who joined before cutoff and frees their registry slot.
func (s *MatchmakingService) EvictStale(cutoff time.Time) []models.PlayerPoolEntry {
	var evicted []models.PlayerPoolEntry
	s.pool.Lock(func(l *pool.Locked) {
		evicted = l.RemoveStale(cutoff)
		for _, e := range evicted {
			s.registry.UnregisterFrom(e.UserID, s.mode)
		}
	})
	if len(evicted) > 0 {
		s.metrics.PoolEvictions(s.mode, len(evicted))
		s.publishSize()
		s.logger.Info("evicted stale players", zap.Int("count", len(evicted)))
	}
	return evicted
}

func (s *MatchmakingService) Position(userID string) int { return s.pool.GetPosition(userID) }

func (s *MatchmakingService) Size() int { return s.pool.Size() }

func (s *MatchmakingService) publishSize() {
	s.metrics.SetPoolSize(s.mode, s.pool.Size())
}

// Matchmaker owns one MatchmakingService per configured game mode and the
// registry they share.
type Matchmaker struct {
	pools    map[string]*MatchmakingService
	registry *pool.Registry
	logger   *zap.Logger
}

func NewMatchmaker(modes []string, matches *MatchService, clock clockwork.Clock, m *metrics.Metrics, logger *zap.Logger) *Matchmaker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger = logger.Named("matchmaking")
	mm := &Matchmaker{
		pools:    make(map[string]*MatchmakingService, len(modes)),
		registry: pool.NewRegistry(),
		logger:   logger,
	}
	for _, mode := range modes {
		mm.pools[mode] = newMatchmakingService(mode, mm.registry, matches, clock, m, logger)
	}
	matches.SetRequeuer(mm)
	return mm
}

func (mm *Matchmaker) Pool(mode string) (*MatchmakingService, error) {
	svc, ok := mm.pools[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGameMode, mode)
	}
	return svc, nil
}

// Pools returns every mode's service, ordered by mode name.
func (mm *Matchmaker) Pools() []*MatchmakingService {
	out := make([]*MatchmakingService, 0, len(mm.pools))
	for _, svc := range mm.pools {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].mode < out[j].mode })
	return out
}

func (mm *Matchmaker) Registry() *pool.Registry { return mm.registry }

// CurrentPool reports which pool, if any, the user waits in.
func (mm *Matchmaker) CurrentPool(userID string) (string, bool) {
	return mm.registry.GetCurrentPool(userID)
}

func (mm *Matchmaker) RequeueFront(gameMode, userID, username string) error {
	svc, err := mm.Pool(gameMode)
	if err != nil {
		return err
	}
	return svc.RequeueFront(userID, username)
}
