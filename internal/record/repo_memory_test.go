package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"callbridge/internal/call"
)

func TestMemory_CreateFindUpdate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	r := CallRecord{CallID: "c1", CallerID: "alice", CalleeID: "bob", Type: call.TypeVoice, State: call.StateRinging, CreatedAt: time.Now()}
	if err := m.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}

	r.State = call.StateEnded
	r.CostCoins = 10
	if err := m.Update(ctx, r); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := m.Find(ctx, "c1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.State != call.StateEnded || got.CostCoins != 10 {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := m.Find(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_ListAndSummary(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	answered := base.Add(time.Second)

	m.Create(ctx, CallRecord{CallID: "c1", CallerID: "alice", CalleeID: "bob", State: call.StateEnded, CreatedAt: base, AnsweredAt: &answered, DurationSeconds: 90, CostCoins: 10, EarningsCoins: 5})
	m.Create(ctx, CallRecord{CallID: "c2", CallerID: "alice", CalleeID: "carol", State: call.StateTimedOut, CreatedAt: base.Add(time.Minute)})
	m.Create(ctx, CallRecord{CallID: "c3", CallerID: "dave", CalleeID: "alice", State: call.StateEnded, CreatedAt: base.Add(2 * time.Minute), AnsweredAt: &answered, DurationSeconds: 60, CostCoins: 5, EarningsCoins: 2})

	list, err := m.ListByIdentity(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list))
	}
	if list[0].CallID != "c3" {
		t.Fatalf("expected newest first, got %s", list[0].CallID)
	}

	s, err := m.Summary(ctx, "alice")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.TotalCalls != 3 || s.TotalSeconds != 150 {
		t.Fatalf("unexpected totals: %+v", s)
	}
	if s.SpentCoins != 10 { // caller only on c1, c2
		t.Fatalf("expected spent 10, got %d", s.SpentCoins)
	}
	if s.EarnedCoins != 2 { // callee only on c3
		t.Fatalf("expected earned 2, got %d", s.EarnedCoins)
	}
	if s.MissedOrFreed != 1 {
		t.Fatalf("expected 1 unanswered, got %d", s.MissedOrFreed)
	}
}
