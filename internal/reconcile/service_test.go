package reconcile

import (
	"context"
	"testing"
	"time"

	"callbridge/internal/settle"
)

func TestAppendStampsIDAndTime(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return fixed }

	err := svc.Append(context.Background(), Entry{
		CallID:       "call-1",
		FailedLeg:    "debit",
		PayerID:      "alice",
		PayeeID:      "bob",
		ChargedCoins: 10,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := svc.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].ID == "" {
		t.Fatal("expected generated id")
	}
	if !got[0].CreatedAt.Equal(fixed) {
		t.Fatalf("expected created_at %v, got %v", fixed, got[0].CreatedAt)
	}
}

func TestAppendRejectsIncompleteEntry(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Entry{FailedLeg: "debit"}); err != ErrInvalidEntry {
		t.Fatalf("expected ErrInvalidEntry for missing call id, got %v", err)
	}
	if err := svc.Append(context.Background(), Entry{CallID: "call-1"}); err != ErrInvalidEntry {
		t.Fatalf("expected ErrInvalidEntry for missing leg, got %v", err)
	}
}

func TestRecordFailureMapsSettlementFields(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	err := svc.RecordFailure(context.Background(), settle.Failure{
		CallID:    "call-9",
		PayerID:   "alice",
		PayeeID:   "bob",
		FailedLeg: "credit",
		Charged:   25,
		Earnings:  12,
		Detail:    "credit leg: connection refused",
	})
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	got, _ := svc.List(context.Background(), 1)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.CallID != "call-9" || e.FailedLeg != "credit" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.ChargedCoins != 25 || e.EarningsCoins != 12 {
		t.Fatalf("amounts not carried over: %+v", e)
	}
	if e.PayerID != "alice" || e.PayeeID != "bob" {
		t.Fatalf("parties not carried over: %+v", e)
	}
}

func TestListClampsLimit(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	for i := 0; i < 5; i++ {
		if err := svc.Append(context.Background(), Entry{CallID: "c", FailedLeg: "debit"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := svc.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected defaulted limit to return all 5, got %d", len(got))
	}

	got, err = svc.List(context.Background(), 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
}
