package sched

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler owns the time-driven side of call lifecycles: a one-shot ring
// timer per outstanding invite, and a periodic sweep that catches anything
// the timers missed (process restarts leave no timers behind; the sweep is
// the backstop).
//
// Callbacks run on timer goroutines and must be safe for concurrent use.
type Scheduler struct {
	ringTimeout   time.Duration
	sweepInterval time.Duration

	onRingTimeout func(callID string)
	sweep         func()

	log *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func New(ringTimeout, sweepInterval time.Duration, onRingTimeout func(string), sweep func(), log *slog.Logger) *Scheduler {
	return &Scheduler{
		ringTimeout:   ringTimeout,
		sweepInterval: sweepInterval,
		onRingTimeout: onRingTimeout,
		sweep:         sweep,
		log:           log,
		timers:        make(map[string]*time.Timer),
	}
}

// ScheduleRing arms the ring timer for callID. Re-arming an already
// scheduled call resets its deadline.
func (s *Scheduler) ScheduleRing(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[callID]; ok {
		t.Stop()
	}
	s.timers[callID] = time.AfterFunc(s.ringTimeout, func() {
		s.expire(callID)
	})
}

func (s *Scheduler) expire(callID string) {
	s.mu.Lock()
	_, armed := s.timers[callID]
	delete(s.timers, callID)
	s.mu.Unlock()

	// A concurrent Cancel may have raced the firing timer; the callback
	// only runs for timers still on the books.
	if armed {
		s.onRingTimeout(callID)
	}
}

// Cancel disarms the ring timer for callID, if any. Safe to call after the
// timer fired or was never scheduled.
func (s *Scheduler) Cancel(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[callID]; ok {
		t.Stop()
		delete(s.timers, callID)
	}
}

// Pending reports how many ring timers are armed.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Run drives the sweep loop until ctx is cancelled. It blocks; run it on a
// dedicated goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.log.Info("sweep loop started", slog.Duration("interval", s.sweepInterval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweep loop stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}
