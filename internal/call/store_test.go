package call

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCreate_EnforcesSingleActiveSessionPerIdentity(t *testing.T) {
	st := NewStore(nil)

	if _, err := st.Create("c1", "alice", "bob", TypeVoice); err != nil {
		t.Fatalf("create: %v", err)
	}

	// alice as caller again
	if _, err := st.Create("c2", "alice", "carol", TypeVoice); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	// bob as callee again
	if _, err := st.Create("c3", "dave", "bob", TypeVideo); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	// callee of first call as caller of a new one
	if _, err := st.Create("c4", "bob", "carol", TypeVoice); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}

	// Terminal session frees both participants.
	if _, _, err := st.Transition("c1", EventCancel, "alice"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := st.Create("c5", "alice", "bob", TypeVoice); err != nil {
		t.Fatalf("create after terminal: %v", err)
	}
}

func TestCreate_GeneratesCallID(t *testing.T) {
	st := NewStore(nil)
	s, err := st.Create("", "alice", "bob", TypeVoice)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.CallID == "" {
		t.Fatalf("expected generated call id")
	}
	if s.State != StateRinging {
		t.Fatalf("expected ringing, got %s", s.State)
	}
}

func TestTransition_Table(t *testing.T) {
	cases := []struct {
		name  string
		ev    Event
		actor string
		want  State
	}{
		{"callee answers", EventAnswer, "bob", StateAnswered},
		{"callee rejects", EventReject, "bob", StateRejected},
		{"caller cancels", EventCancel, "alice", StateCancelled},
		{"ring timeout", EventRingTimeout, "", StateTimedOut},
		{"caller disconnects while ringing", EventPeerDisconnect, "alice", StateMissed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := NewStore(nil)
			if _, err := st.Create("c1", "alice", "bob", TypeVoice); err != nil {
				t.Fatalf("create: %v", err)
			}
			s, applied, err := st.Transition("c1", tc.ev, tc.actor)
			if err != nil || !applied {
				t.Fatalf("transition: applied=%v err=%v", applied, err)
			}
			if s.State != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, s.State)
			}
			if !s.State.Terminal() && tc.want.Terminal() {
				t.Fatalf("expected terminal")
			}
		})
	}
}

func TestTransition_RoleGuards(t *testing.T) {
	st := NewStore(nil)
	st.Create("c1", "alice", "bob", TypeVoice)

	// Caller may not answer own call.
	if _, _, err := st.Transition("c1", EventAnswer, "alice"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	// Callee may not cancel.
	if _, _, err := st.Transition("c1", EventCancel, "bob"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	// Third party may not end.
	st.Transition("c1", EventAnswer, "bob")
	if _, _, err := st.Transition("c1", EventEnd, "mallory"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTransition_TerminalIsIdempotentForTerminatingEvents(t *testing.T) {
	st := NewStore(nil)
	st.Create("c1", "alice", "bob", TypeVoice)
	st.Transition("c1", EventAnswer, "bob")

	s, applied, err := st.Transition("c1", EventEnd, "alice")
	if err != nil || !applied || s.State != StateEnded {
		t.Fatalf("end: applied=%v err=%v state=%s", applied, err, s.State)
	}

	// Race loser: concurrent disconnect observes already-terminal, no error.
	s2, applied2, err := st.Transition("c1", EventPeerDisconnect, "bob")
	if err != nil {
		t.Fatalf("expected idempotent no-op, got %v", err)
	}
	if applied2 {
		t.Fatalf("terminal session must not transition again")
	}
	if s2.State != StateEnded || s2.EndReason != ReasonHangup {
		t.Fatalf("terminal outcome mutated: %+v", s2)
	}

	// Answer on a terminal session is a real error.
	if _, _, err := st.Transition("c1", EventAnswer, "bob"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransition_RejectsEndWhileRinging(t *testing.T) {
	st := NewStore(nil)
	st.Create("c1", "alice", "bob", TypeVoice)

	var invalid *InvalidTransitionError
	_, _, err := st.Transition("c1", EventEnd, "alice")
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.From != StateRinging || invalid.Event != EventEnd {
		t.Fatalf("error should carry state and event: %+v", invalid)
	}
}

func TestTransition_Timestamps(t *testing.T) {
	base := time.Unix(1700000000, 0).UTC()
	now := base
	st := NewStore(func() time.Time { return now })

	s, _ := st.Create("c1", "alice", "bob", TypeVoice)
	if !s.CreatedAt.Equal(base) {
		t.Fatalf("created_at: %v", s.CreatedAt)
	}

	now = base.Add(5 * time.Second)
	s, _, _ = st.Transition("c1", EventAnswer, "bob")
	if s.AnsweredAt == nil || !s.AnsweredAt.Equal(base.Add(5*time.Second)) {
		t.Fatalf("answered_at: %v", s.AnsweredAt)
	}

	now = base.Add(95 * time.Second)
	s, _, _ = st.Transition("c1", EventEnd, "bob")
	if s.EndedAt == nil || s.DurationSeconds() != 90 {
		t.Fatalf("expected 90s duration, got %d", s.DurationSeconds())
	}
}

func TestClaimSettlement_ExactlyOnce(t *testing.T) {
	st := NewStore(nil)
	st.Create("c1", "alice", "bob", TypeVoice)
	st.Transition("c1", EventRingTimeout, "")

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, won, err := st.ClaimSettlement("c1")
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	total := 0
	for w := range wins {
		if w {
			total++
		}
	}
	if total != 1 {
		t.Fatalf("expected exactly one settlement claim winner, got %d", total)
	}
}

// Property check: under random interleavings of create/answer/end across a
// small identity pool, no identity is ever in two active sessions.
func TestInvariant_SingleActiveSessionUnderRandomInterleaving(t *testing.T) {
	st := NewStore(nil)
	rng := rand.New(rand.NewSource(42))
	ids := []string{"u1", "u2", "u3", "u4", "u5"}

	var open []string
	activeOf := func(id string) int {
		n := 0
		for _, callID := range open {
			if s, err := st.Get(callID); err == nil && s.State.Active() && s.Participant(id) {
				n++
			}
		}
		return n
	}
	for i := 0; i < 2000; i++ {
		switch rng.Intn(3) {
		case 0:
			a := ids[rng.Intn(len(ids))]
			b := ids[rng.Intn(len(ids))]
			if a == b {
				continue
			}
			if s, err := st.Create("", a, b, TypeVoice); err == nil {
				open = append(open, s.CallID)
			}
		case 1:
			if len(open) == 0 {
				continue
			}
			callID := open[rng.Intn(len(open))]
			if s, err := st.Get(callID); err == nil {
				st.Transition(callID, EventAnswer, s.CalleeID)
			}
		case 2:
			if len(open) == 0 {
				continue
			}
			k := rng.Intn(len(open))
			callID := open[k]
			if s, err := st.Get(callID); err == nil {
				if s.State == StateRinging {
					st.Transition(callID, EventCancel, s.CallerID)
				} else {
					st.Transition(callID, EventEnd, s.CallerID)
				}
			}
			open = append(open[:k], open[k+1:]...)
		}

		for _, id := range ids {
			if activeOf(id) > 1 {
				t.Fatalf("identity %s in more than one active session at step %d", id, i)
			}
		}
	}
}

func TestStaleActiveAndPurge(t *testing.T) {
	base := time.Unix(1700000000, 0).UTC()
	now := base
	st := NewStore(func() time.Time { return now })

	st.Create("old", "alice", "bob", TypeVoice)
	now = base.Add(10 * time.Minute)
	st.Create("fresh", "carol", "dave", TypeVoice)

	stale := st.StaleActive(base.Add(5 * time.Minute))
	if len(stale) != 1 || stale[0] != "old" {
		t.Fatalf("expected only the old session stale, got %v", stale)
	}

	st.Transition("old", EventStale, "")
	if s, _ := st.Get("old"); s.State != StateTimedOut || s.EndReason != ReasonStale {
		t.Fatalf("expected stale ringing session timed out, got %+v", s)
	}

	// Still within grace: not purged.
	if n := st.PurgeTerminal(base.Add(5 * time.Minute)); n != 0 {
		t.Fatalf("expected nothing purged, got %d", n)
	}
	if n := st.PurgeTerminal(now.Add(time.Hour)); n != 1 {
		t.Fatalf("expected one purge, got %d", n)
	}
	if _, err := st.Get("old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after purge, got %v", err)
	}
}
