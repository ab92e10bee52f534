package sched

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRingTimerFires(t *testing.T) {
	fired := make(chan string, 1)
	s := New(10*time.Millisecond, time.Hour, func(id string) { fired <- id }, func() {}, discard())

	s.ScheduleRing("call-1")

	select {
	case id := <-fired:
		if id != "call-1" {
			t.Fatalf("expected call-1, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("ring timer never fired")
	}
	if s.Pending() != 0 {
		t.Fatalf("expected 0 pending after fire, got %d", s.Pending())
	}
}

func TestCancelDisarmsTimer(t *testing.T) {
	fired := make(chan string, 1)
	s := New(20*time.Millisecond, time.Hour, func(id string) { fired <- id }, func() {}, discard())

	s.ScheduleRing("call-1")
	s.Cancel("call-1")

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(80 * time.Millisecond):
	}
	if s.Pending() != 0 {
		t.Fatalf("expected 0 pending, got %d", s.Pending())
	}
}

func TestCancelUnknownIsNoop(t *testing.T) {
	s := New(time.Hour, time.Hour, func(string) {}, func() {}, discard())
	s.Cancel("never-scheduled")
}

func TestRescheduleResetsDeadline(t *testing.T) {
	var mu sync.Mutex
	count := 0
	s := New(30*time.Millisecond, time.Hour, func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	}, func() {}, discard())

	s.ScheduleRing("call-1")
	s.ScheduleRing("call-1")

	time.Sleep(120 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected a single firing after re-arm, got %d", count)
	}
}

func TestSweepLoopRunsAndStops(t *testing.T) {
	swept := make(chan struct{}, 4)
	s := New(time.Hour, 15*time.Millisecond, func(string) {}, func() {
		select {
		case swept <- struct{}{}:
		default:
		}
	}, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("sweep never ran")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}
