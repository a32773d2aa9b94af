package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"game-match-system/metrics"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// TimerKind is the entity type a deadline timer belongs to.
type TimerKind string

const (
	TimerTournament TimerKind = "tournament"
	TimerMatch      TimerKind = "match"
)

// immediateWindow is how close to now a deadline may be before it fires at once.
const immediateWindow = 10 * time.Millisecond

// timerFireTimeout bounds the work a single firing may do.
const timerFireTimeout = 30 * time.Second

type timerKey struct {
	kind TimerKind
	id   string
}

type timerEntry struct {
	gen   uint64
	jobID uuid.UUID
	at    time.Time
}

// TimerArena holds one gocron one-time job per (kind, id). Re-arming a key
// replaces its previous timer. Timers are not durable; they are rebuilt from
// persisted deadlines on start.
type TimerArena struct {
	sched   gocron.Scheduler
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	seq    uint64
	jobs   map[timerKey]timerEntry
	closed bool
}

func NewTimerArena(clock clockwork.Clock, logger *zap.Logger, m *metrics.Metrics) (*TimerArena, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create timer scheduler: %w", err)
	}
	sched.Start()

	return &TimerArena{
		sched:   sched,
		clock:   clock,
		logger:  logger.Named("timers"),
		metrics: m,
		jobs:    make(map[timerKey]timerEntry),
	}, nil
}

var errArenaClosed = errors.New("timer arena is shut down")

// Arm schedules fn to run at `at`. A deadline already due fires immediately.
func (a *TimerArena) Arm(kind TimerKind, id string, at time.Time, fn func(ctx context.Context)) error {
	key := timerKey{kind: kind, id: id}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return errArenaClosed
	}
	a.seq++
	gen := a.seq
	previous, hadPrevious := a.jobs[key]
	a.jobs[key] = timerEntry{gen: gen, at: at}
	a.mu.Unlock()

	if hadPrevious {
		a.removeJob(previous.jobID)
	}

	start := gocron.OneTimeJobStartImmediately()
	if at.After(a.clock.Now().Add(immediateWindow)) {
		start = gocron.OneTimeJobStartDateTime(at)
	}

	job, err := a.sched.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(func() { a.fire(key, gen, fn) }),
		gocron.WithName(string(kind)+":"+id),
	)
	if err != nil {
		a.mu.Lock()
		if e, ok := a.jobs[key]; ok && e.gen == gen {
			delete(a.jobs, key)
		}
		a.mu.Unlock()
		a.publishCounts()
		return fmt.Errorf("arm %s timer %s: %w", kind, id, err)
	}

	a.mu.Lock()
	e, ok := a.jobs[key]
	stillCurrent := ok && e.gen == gen
	if stillCurrent {
		e.jobID = job.ID()
		a.jobs[key] = e
	}
	a.mu.Unlock()

	// Superseded or already fired between the two critical sections.
	if !stillCurrent {
		a.removeJob(job.ID())
	}

	a.publishCounts()
	a.logger.Debug("timer armed",
		zap.String("kind", string(kind)),
		zap.String("id", id),
		zap.Time("at", at))
	return nil
}

// Disarm cancels the timer for (kind, id) if one is live.
func (a *TimerArena) Disarm(kind TimerKind, id string) {
	key := timerKey{kind: kind, id: id}

	a.mu.Lock()
	e, ok := a.jobs[key]
	delete(a.jobs, key)
	a.mu.Unlock()

	if ok {
		a.removeJob(e.jobID)
		a.publishCounts()
	}
}

func (a *TimerArena) Has(kind TimerKind, id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.jobs[timerKey{kind: kind, id: id}]
	return ok
}

// Counts returns the number of live tournament and match timers.
func (a *TimerArena) Counts() (tournaments, matches int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range a.jobs {
		switch k.kind {
		case TimerTournament:
			tournaments++
		case TimerMatch:
			matches++
		}
	}
	return tournaments, matches
}

// Shutdown cancels every live timer. Firings already in flight see the
// arena closed and do nothing.
func (a *TimerArena) Shutdown() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.jobs = make(map[timerKey]timerEntry)
	a.mu.Unlock()

	a.publishCounts()
	return a.sched.Shutdown()
}

func (a *TimerArena) fire(key timerKey, gen uint64, fn func(ctx context.Context)) {
	a.mu.Lock()
	e, ok := a.jobs[key]
	if a.closed || !ok || e.gen != gen {
		a.mu.Unlock()
		return
	}
	delete(a.jobs, key)
	a.mu.Unlock()
	a.publishCounts()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("timer callback panicked",
				zap.String("kind", string(key.kind)),
				zap.String("id", key.id),
				zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timerFireTimeout)
	defer cancel()
	fn(ctx)
}

func (a *TimerArena) removeJob(id uuid.UUID) {
	if id == uuid.Nil {
		return
	}
	if err := a.sched.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		a.logger.Warn("failed to remove timer job", zap.String("job_id", id.String()), zap.Error(err))
	}
}

func (a *TimerArena) publishCounts() {
	t, m := a.Counts()
	a.metrics.SetTimers(string(TimerTournament), t)
	a.metrics.SetTimers(string(TimerMatch), m)
}
