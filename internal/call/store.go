package call

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	mu sync.Mutex
	s  Session
}

// Store is the authoritative in-memory table of call sessions. All mutations
// to a session are serialized per call ID through the entry mutex; operations
// on different call IDs proceed in parallel. The identity index enforces the
// one-active-session-per-identity invariant at creation time.
//
// The durable record store is layered on top by the coordinator; this table
// is the real-time truth.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	active   map[string]string // identity -> active call ID

	clock func() time.Time
}

// NewStore creates a session store. clock may be nil (wall clock); tests
// inject a deterministic one.
func NewStore(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		sessions: make(map[string]*entry),
		active:   make(map[string]string),
		clock:    clock,
	}
}

// Create registers a new ringing session. callID may be empty, in which case
// one is generated. Returns ErrAlreadyActive if either participant is already
// in an active session.
func (st *Store) Create(callID, callerID, calleeID string, t Type) (Session, error) {
	if callID == "" {
		callID = uuid.NewString()
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.sessions[callID]; exists {
		return Session{}, ErrAlreadyActive
	}
	if _, busy := st.active[callerID]; busy {
		return Session{}, ErrAlreadyActive
	}
	if _, busy := st.active[calleeID]; busy {
		return Session{}, ErrAlreadyActive
	}

	s := Session{
		CallID:    callID,
		CallerID:  callerID,
		CalleeID:  calleeID,
		Type:      t,
		State:     StateRinging,
		CreatedAt: st.clock().UTC(),
	}
	st.sessions[callID] = &entry{s: s}
	st.active[callerID] = callID
	st.active[calleeID] = callID
	return s, nil
}

func (st *Store) lookup(callID string) (*entry, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.sessions[callID]
	return e, ok
}

// Get returns a snapshot of the session.
func (st *Store) Get(callID string) (Session, error) {
	e, ok := st.lookup(callID)
	if !ok {
		return Session{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s, nil
}

// ActiveFor returns the active session the identity participates in, if any.
func (st *Store) ActiveFor(identity string) (Session, bool) {
	st.mu.RLock()
	callID, ok := st.active[identity]
	st.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	s, err := st.Get(callID)
	if err != nil {
		return Session{}, false
	}
	return s, true
}

// Transition applies ev to the session with a per-call atomic check-and-set.
// It returns the resulting snapshot and whether the event was applied.
//
// A terminating event against an already-terminal session returns
// (snapshot, false, nil): the race loser treats it as success. Any other
// rejected combination returns an InvalidTransitionError, and a participant
// event from the wrong participant returns ErrUnauthorized.
func (st *Store) Transition(callID string, ev Event, actor string) (Session, bool, error) {
	e, ok := st.lookup(callID)
	if !ok {
		return Session{}, false, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.s
	if s.State.Terminal() {
		if terminating(ev) {
			return s, false, nil
		}
		return s, false, &InvalidTransitionError{From: s.State, Event: ev}
	}

	to, legal := next(s.State, ev)
	if !legal {
		return s, false, &InvalidTransitionError{From: s.State, Event: ev}
	}
	if !allowedActor(s, ev, actor) {
		return s, false, ErrUnauthorized
	}

	now := st.clock().UTC()
	e.s.State = to
	switch {
	case to == StateAnswered:
		e.s.AnsweredAt = &now
	case to.Terminal():
		e.s.EndedAt = &now
		e.s.EndReason = reasons[ev]
	}

	if to.Terminal() {
		st.releaseActive(e.s)
	}
	return e.s, true, nil
}

// releaseActive frees both participants from the identity index once their
// session is terminal. Called with the entry lock held; takes the store lock
// only briefly (no path holds store then entry the other way around while
// writing).
func (st *Store) releaseActive(s Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.active[s.CallerID] == s.CallID {
		delete(st.active, s.CallerID)
	}
	if st.active[s.CalleeID] == s.CallID {
		delete(st.active, s.CalleeID)
	}
}

// ClaimSettlement flips the settled flag exactly once per call ID. The caller
// that wins the claim performs the balance mutations; losers observe
// won=false and must not touch balances.
func (st *Store) ClaimSettlement(callID string) (Session, bool, error) {
	e, ok := st.lookup(callID)
	if !ok {
		return Session{}, false, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.Settled {
		return e.s, false, nil
	}
	e.s.Settled = true
	return e.s, true, nil
}

// RecordSettlement stores the settlement outcome on the session. Amounts are
// written once, by the claim winner.
func (st *Store) RecordSettlement(callID string, cost, earnings int64, failed bool) (Session, error) {
	e, ok := st.lookup(callID)
	if !ok {
		return Session{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.s.CostCoins = cost
	e.s.EarningsCoins = earnings
	e.s.SettlementFailed = failed
	return e.s, nil
}

// StaleActive returns the IDs of active sessions created before cutoff.
// The sweep drives these through the normal guarded transition.
//
// Lock ordering everywhere is entry then store (see releaseActive), so the
// snapshot of candidates is taken first and entries are inspected with no
// store lock held.
func (st *Store) StaleActive(cutoff time.Time) []string {
	st.mu.RLock()
	candidates := make([]*entry, 0, len(st.active))
	seen := make(map[string]bool, len(st.active))
	for _, callID := range st.active {
		if seen[callID] {
			continue
		}
		seen[callID] = true
		if e := st.sessions[callID]; e != nil {
			candidates = append(candidates, e)
		}
	}
	st.mu.RUnlock()

	var out []string
	for _, e := range candidates {
		e.mu.Lock()
		if e.s.State.Active() && e.s.CreatedAt.Before(cutoff) {
			out = append(out, e.s.CallID)
		}
		e.mu.Unlock()
	}
	return out
}

// PurgeTerminal drops terminal sessions whose end time is older than cutoff.
// Terminal sessions are kept for a grace period so late signaling frames
// resolve to a known session and get dropped by state, not by NotFound.
func (st *Store) PurgeTerminal(cutoff time.Time) int {
	st.mu.RLock()
	candidates := make([]*entry, 0, len(st.sessions))
	for _, e := range st.sessions {
		candidates = append(candidates, e)
	}
	st.mu.RUnlock()

	var purge []string
	for _, e := range candidates {
		e.mu.Lock()
		if e.s.State.Terminal() && e.s.EndedAt != nil && e.s.EndedAt.Before(cutoff) {
			purge = append(purge, e.s.CallID)
		}
		e.mu.Unlock()
	}
	if len(purge) == 0 {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for _, callID := range purge {
		if _, ok := st.sessions[callID]; ok {
			delete(st.sessions, callID)
			n++
		}
	}
	return n
}
