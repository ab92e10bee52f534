package call

import "time"

// Type fixes pricing for the session.
type Type string

const (
	TypeVoice Type = "voice"
	TypeVideo Type = "video"
)

func ValidType(t Type) bool {
	return t == TypeVoice || t == TypeVideo
}

// State is the lifecycle state of a call session. Terminal states never
// transition again.
type State string

const (
	StateRinging   State = "ringing"
	StateAnswered  State = "answered"
	StateEnded     State = "ended"
	StateRejected  State = "rejected"
	StateCancelled State = "cancelled"
	StateMissed    State = "missed"
	StateTimedOut  State = "timed_out"
)

// Active reports whether the session still accepts participant events and
// signaling.
func (s State) Active() bool {
	return s == StateRinging || s == StateAnswered
}

// Terminal reports whether the session has reached its final outcome.
func (s State) Terminal() bool {
	switch s {
	case StateEnded, StateRejected, StateCancelled, StateMissed, StateTimedOut:
		return true
	default:
		return false
	}
}

// EndReason records what drove a session into a terminal state. It is
// informational; billing depends only on state and timestamps.
type EndReason string

const (
	ReasonHangup         EndReason = "hangup"
	ReasonRejected       EndReason = "rejected"
	ReasonCancelled      EndReason = "cancelled"
	ReasonRingTimeout    EndReason = "ring_timeout"
	ReasonPeerDisconnect EndReason = "peer_disconnect"
	ReasonStale          EndReason = "stale"
)

// Session is the central entity: one call attempt from initiation to a
// terminal outcome.
//
// Invariants:
// - At most one active (ringing/answered) session per identity, caller or callee.
// - State moves monotonically into a terminal state.
// - Settled flips false->true exactly once; cost/earnings immutable after.
// - AnsweredAt >= CreatedAt; EndedAt >= AnsweredAt (or >= CreatedAt if never answered).
type Session struct {
	CallID   string `json:"call_id"`
	CallerID string `json:"caller_id"`
	CalleeID string `json:"callee_id"`

	Type  Type  `json:"call_type"`
	State State `json:"state"`

	EndReason EndReason `json:"end_reason,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`

	Settled          bool  `json:"settled"`
	SettlementFailed bool  `json:"settlement_failed,omitempty"`
	CostCoins        int64 `json:"cost_coins"`
	EarningsCoins    int64 `json:"earnings_coins"`
}

// Peer returns the other participant of the session, or "" if identity is not
// a participant.
func (s Session) Peer(identity string) string {
	switch identity {
	case s.CallerID:
		return s.CalleeID
	case s.CalleeID:
		return s.CallerID
	default:
		return ""
	}
}

// Participant reports call membership.
func (s Session) Participant(identity string) bool {
	return identity == s.CallerID || identity == s.CalleeID
}

// DurationSeconds is the billable duration: answer to end, zero if never
// answered.
func (s Session) DurationSeconds() int64 {
	if s.AnsweredAt == nil || s.EndedAt == nil {
		return 0
	}
	d := s.EndedAt.Sub(*s.AnsweredAt)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}
