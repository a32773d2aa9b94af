package workers

import (
	"context"
	"fmt"
	"time"

	"game-match-system/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// maxPairsPerSweep bounds how many matches one pool may form in a single sweep.
const maxPairsPerSweep = 256

// PoolMaintenance evicts players who waited too long and pairs whoever is
// left, for every configured pool.
type PoolMaintenance struct {
	matchmaker *services.Matchmaker
	interval   time.Duration
	staleAfter time.Duration
	clock      clockwork.Clock
	logger     *zap.Logger

	sched gocron.Scheduler
}

func NewPoolMaintenance(mm *services.Matchmaker, interval, staleAfter time.Duration, clock clockwork.Clock, logger *zap.Logger) *PoolMaintenance {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PoolMaintenance{
		matchmaker: mm,
		interval:   interval,
		staleAfter: staleAfter,
		clock:      clock,
		logger:     logger.Named("pool-maintenance"),
	}
}

func (w *PoolMaintenance) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler(gocron.WithClock(w.clock))
	if err != nil {
		return fmt.Errorf("create pool maintenance scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() { w.RunOnce(ctx) }),
		gocron.WithName("pool-maintenance"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule pool maintenance: %w", err)
	}
	sched.Start()
	w.sched = sched

	w.logger.Info("pool maintenance started",
		zap.Duration("interval", w.interval),
		zap.Duration("stale_after", w.staleAfter))
	return nil
}

func (w *PoolMaintenance) Stop() error {
	if w.sched == nil {
		return nil
	}
	err := w.sched.Shutdown()
	w.logger.Info("pool maintenance stopped")
	return err
}

// RunOnce performs a single sweep over every pool.
func (w *PoolMaintenance) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cutoff := w.clock.Now().Add(-w.staleAfter)

	for _, pool := range w.matchmaker.Pools() {
		if w.staleAfter > 0 {
			pool.EvictStale(cutoff)
		}

		formed := 0
		for formed < maxPairsPerSweep && pool.CanFormPair() {
			res, err := pool.TryAutoPair(ctx)
			if err != nil {
				w.logger.Error("auto-pairing failed",
					zap.String("game_mode", pool.Mode()),
					zap.Error(err))
				break
			}
			if !res.Paired {
				break
			}
			formed++
		}
		if formed > 0 {
			w.logger.Debug("pool sweep paired players",
				zap.String("game_mode", pool.Mode()),
				zap.Int("matches", formed))
		}
	}
}
