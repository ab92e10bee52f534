package notify

import (
	"log/slog"

	"callbridge/internal/call"
	"callbridge/internal/presence"
)

// Event names pushed to participant connections.
const (
	EventIncomingCall  = "incoming_call"
	EventCallAnswered  = "call_answered"
	EventCallRejected  = "call_rejected"
	EventCallCancelled = "call_cancelled"
	EventCallEnded     = "call_ended"
	EventCallMissed    = "call_missed"
	EventCallTimedOut  = "call_timed_out"
)

// Frame is the lifecycle notification delivered to a participant. Unlike
// signaling frames it is produced by the server, never relayed.
type Frame struct {
	Type     string         `json:"type"`
	CallID   string         `json:"call_id"`
	CallType call.Type      `json:"call_type"`
	CallerID string         `json:"caller_id"`
	CalleeID string         `json:"callee_id"`
	State    call.State     `json:"state"`
	Reason   call.EndReason `json:"end_reason,omitempty"`
}

// Presence pushes lifecycle events to whoever is connected. Delivery is
// best-effort: offline or backed-up recipients miss the push and learn the
// outcome from the session state instead.
type Presence struct {
	registry *presence.Registry
	log      *slog.Logger
}

func NewPresence(registry *presence.Registry, log *slog.Logger) *Presence {
	return &Presence{registry: registry, log: log}
}

func (p *Presence) Push(identity, event string, s call.Session) {
	h, ok := p.registry.Resolve(identity)
	if !ok {
		return
	}
	frame := Frame{
		Type:     event,
		CallID:   s.CallID,
		CallType: s.Type,
		CallerID: s.CallerID,
		CalleeID: s.CalleeID,
		State:    s.State,
		Reason:   s.EndReason,
	}
	if err := h.TrySend(frame); err != nil {
		p.log.Warn("lifecycle push dropped",
			slog.String("event", event),
			slog.String("call_id", s.CallID),
			slog.String("to", identity))
	}
}

// EventFor maps a terminal session onto the push event its participants
// should receive.
func EventFor(s call.Session) string {
	switch s.State {
	case call.StateEnded:
		return EventCallEnded
	case call.StateRejected:
		return EventCallRejected
	case call.StateCancelled:
		return EventCallCancelled
	case call.StateMissed:
		return EventCallMissed
	case call.StateTimedOut:
		return EventCallTimedOut
	default:
		return EventCallAnswered
	}
}
