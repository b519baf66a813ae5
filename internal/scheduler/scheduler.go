// Package scheduler drives periodic indexer re-checks for resources with
// outstanding pending writes.
//
// Each tracked key is rearmed with exponential backoff (jittered, capped)
// after every unconverged check, until the check reports
// convergence or the attempt/wall-clock caps are hit, at which point the key
// is abandoned: the pending write is left to its own TTL and the cached
// entry surfaces an error sync status.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sethvargo/go-retry"

	"github.com/nexcal/nexcal/internal/common"
	"github.com/nexcal/nexcal/internal/logging"
	"github.com/nexcal/nexcal/internal/models"
)

// CheckFunc runs one sync check for a key. It returns true when no further
// polling is needed (converged, or the resource is gone from the store).
// Failures are the check's business; the scheduler only counts attempts.
type CheckFunc func(ctx context.Context, key models.Key) (done bool)

// AbandonFunc is notified when a key exhausts its attempts or time budget.
type AbandonFunc func(key models.Key)

// Scheduler re-checks tracked keys with backoff. Safe for concurrent use.
type Scheduler struct {
	mu        sync.Mutex
	clock     clock.Clock
	log       logging.Logger
	check     CheckFunc
	onAbandon AbandonFunc
	tasks     map[models.Key]*task
	ctx       context.Context
}

type task struct {
	gen       uint64
	attempts  int
	startedAt time.Time
	backoff   retry.Backoff
	timer     *clock.Timer
}

// New returns a stopped scheduler; call Start before Schedule. onAbandon may
// be nil.
func New(clk clock.Clock, check CheckFunc, onAbandon AbandonFunc, log logging.Logger) *Scheduler {
	return &Scheduler{
		clock:     clk,
		log:       log.With("component", "scheduler"),
		check:     check,
		onAbandon: onAbandon,
		tasks:     make(map[models.Key]*task),
		ctx:       context.Background(),
	}
}

// Start binds the context passed to every check.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
}

// Schedule begins (or restarts) tracking key, with the first check after
// InitialSyncDelay. A fresh local write resets the cadence and the budgets:
// the convergence target moved, so the countdown starts over.
func (s *Scheduler) Schedule(key models.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tasks[key]; ok {
		old.timer.Stop()
	}

	b := retry.NewExponential(common.InitialSyncDelay)
	b = retry.WithCappedDuration(common.MaxSyncDelay, b)
	b = retry.WithJitterPercent(common.SyncJitterPercent, b)

	t := &task{
		gen:       s.nextGen(key),
		startedAt: s.clock.Now(),
		backoff:   b,
	}
	s.tasks[key] = t
	s.arm(key, t)
}

// Cancel stops tracking key without running further checks.
func (s *Scheduler) Cancel(key models.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[key]; ok {
		t.timer.Stop()
		delete(s.tasks, key)
	}
}

// Stop cancels every tracked key.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, key)
	}
}

// Active reports whether key is being tracked.
func (s *Scheduler) Active(key models.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// Len returns the number of tracked keys.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) nextGen(key models.Key) uint64 {
	if old, ok := s.tasks[key]; ok {
		return old.gen + 1
	}
	return 1
}

// arm schedules the next check. Caller holds s.mu.
func (s *Scheduler) arm(key models.Key, t *task) {
	delay, _ := t.backoff.Next()
	gen := t.gen
	t.timer = s.clock.AfterFunc(delay, func() {
		s.tick(key, gen)
	})
}

func (s *Scheduler) tick(key models.Key, gen uint64) {
	s.mu.Lock()
	t, ok := s.tasks[key]
	if !ok || t.gen != gen {
		// Superseded by a newer write or cancelled.
		s.mu.Unlock()
		return
	}
	t.attempts++
	ctx := s.ctx
	s.mu.Unlock()

	done := s.check(ctx, key)

	s.mu.Lock()
	t, ok = s.tasks[key]
	if !ok || t.gen != gen {
		s.mu.Unlock()
		return
	}
	if done {
		delete(s.tasks, key)
		s.mu.Unlock()
		return
	}

	elapsed := s.clock.Now().Sub(t.startedAt)
	if t.attempts >= common.MaxSyncAttempts || elapsed >= common.MaxSyncTime {
		delete(s.tasks, key)
		s.mu.Unlock()
		s.log.Error(ctx, "abandoning sync checks",
			"key", key.String(), "attempts", t.attempts, "elapsed", elapsed)
		if s.onAbandon != nil {
			s.onAbandon(key)
		}
		return
	}

	s.arm(key, t)
	s.mu.Unlock()
}
