package reminder

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const evaluateLockKey = "reminder-evaluate"

// Runner is one evaluation cycle.
type Runner interface {
	Run(ctx context.Context, now time.Time) (Stats, error)
}

// RunLock excludes other processes. Acquire does not wait.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// Scheduler fires the evaluator every poll interval and the retention sweep
// every cleanup interval. At most one evaluation runs at a time; a tick that
// fires while one is running is skipped.
type Scheduler struct {
	evaluator       Runner
	sweeper         *Sweeper
	pollInterval    time.Duration
	cleanupInterval time.Duration
	lock            RunLock
	logger          *zap.Logger
	now             func() time.Time

	evaluating sync.Mutex
	sweeping   sync.Mutex
	wg         sync.WaitGroup
}

// NewScheduler builds a scheduler. lock may be nil for a single instance.
func NewScheduler(evaluator Runner, sweeper *Sweeper, pollInterval, cleanupInterval time.Duration, lock RunLock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		evaluator:       evaluator,
		sweeper:         sweeper,
		pollInterval:    pollInterval,
		cleanupInterval: cleanupInterval,
		lock:            lock,
		logger:          logger.Named("scheduler"),
		now:             time.Now,
	}
}

// Start evaluates once immediately, then on every tick until ctx is done. It
// returns after in-flight runs finish.
func (s *Scheduler) Start(ctx context.Context) {
	poll := time.NewTicker(s.pollInterval)
	cleanup := time.NewTicker(s.cleanupInterval)
	defer poll.Stop()
	defer cleanup.Stop()

	s.logger.Info("scheduler started",
		zap.Duration("poll_interval", s.pollInterval),
		zap.Duration("cleanup_interval", s.cleanupInterval),
	)
	s.spawn(func() { s.Tick(ctx) })

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return
		case <-poll.C:
			s.spawn(func() { s.Tick(ctx) })
		case <-cleanup.C:
			s.spawn(func() { s.Sweep(ctx) })
		}
	}
}

func (s *Scheduler) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Tick runs one evaluation unless one is already running here or, with a run
// lock, on another instance. It reports whether it ran.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.evaluating.TryLock() {
		s.logger.Warn("previous evaluation still running, skipping tick")
		return false
	}
	defer s.evaluating.Unlock()

	if s.lock != nil {
		release, ok, err := s.lock.Acquire(ctx, evaluateLockKey, s.pollInterval)
		if err != nil {
			s.logger.Error("failed to acquire evaluation lock, skipping tick", zap.Error(err))
			return false
		}
		if !ok {
			s.logger.Info("evaluation running on another instance, skipping tick")
			return false
		}
		defer release()
	}

	if _, err := s.evaluator.Run(ctx, s.now()); err != nil {
		s.logger.Error("reminder evaluation incomplete", zap.Error(err))
	}
	return true
}

// Sweep runs the retention cleanup unless one is already running.
func (s *Scheduler) Sweep(ctx context.Context) bool {
	if !s.sweeping.TryLock() {
		return false
	}
	defer s.sweeping.Unlock()

	_, _ = s.sweeper.Run(ctx, s.now())
	return true
}
