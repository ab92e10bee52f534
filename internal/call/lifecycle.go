package call

import (
	"errors"
	"fmt"
)

// Event is a lifecycle trigger. Participant events are role-guarded; system
// events are fired by the scheduler or disconnect handling, never by a
// participant directly.
type Event string

const (
	EventAnswer Event = "answer"
	EventReject Event = "reject"
	EventCancel Event = "cancel"
	EventEnd    Event = "end"

	// System events.
	EventRingTimeout    Event = "ring_timeout"
	EventPeerDisconnect Event = "peer_disconnect"
	EventStale          Event = "stale"
)

var (
	ErrNotFound          = errors.New("call: session not found")
	ErrAlreadyActive     = errors.New("call: participant already in an active session")
	ErrUnauthorized      = errors.New("call: participant may not apply this event")
	ErrInvalidTransition = errors.New("call: invalid transition")
)

// InvalidTransitionError carries the current state and the attempted event.
// It matches ErrInvalidTransition under errors.Is.
type InvalidTransitionError struct {
	From  State
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("call: invalid transition: %s not applicable in state %s", e.Event, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// transitions is the full table: from -> event -> to. Everything else is
// rejected.
var transitions = map[State]map[Event]State{
	StateRinging: {
		EventAnswer:         StateAnswered,
		EventReject:         StateRejected,
		EventCancel:         StateCancelled,
		EventRingTimeout:    StateTimedOut,
		EventPeerDisconnect: StateMissed,
		EventStale:          StateTimedOut,
	},
	StateAnswered: {
		EventEnd:            StateEnded,
		EventPeerDisconnect: StateEnded,
		EventStale:          StateEnded,
	},
}

var reasons = map[Event]EndReason{
	EventReject:         ReasonRejected,
	EventCancel:         ReasonCancelled,
	EventEnd:            ReasonHangup,
	EventRingTimeout:    ReasonRingTimeout,
	EventPeerDisconnect: ReasonPeerDisconnect,
	EventStale:          ReasonStale,
}

// next resolves the transition table.
func next(from State, ev Event) (State, bool) {
	m, ok := transitions[from]
	if !ok {
		return "", false
	}
	to, ok := m[ev]
	return to, ok
}

// terminating reports whether ev intends to terminate the session. A
// terminating event applied to an already-terminal session is an idempotent
// no-op, never an error: two concurrent triggers (REST end and socket
// disconnect) may race, and the loser must observe success.
func terminating(ev Event) bool {
	switch ev {
	case EventReject, EventCancel, EventEnd, EventRingTimeout, EventPeerDisconnect, EventStale:
		return true
	default:
		return false
	}
}

// allowedActor enforces role restrictions: only the callee answers or
// rejects, only the caller cancels, either participant ends. System events
// skip the check.
func allowedActor(s Session, ev Event, actor string) bool {
	switch ev {
	case EventAnswer, EventReject:
		return actor == s.CalleeID
	case EventCancel:
		return actor == s.CallerID
	case EventEnd:
		return s.Participant(actor)
	case EventPeerDisconnect:
		return s.Participant(actor)
	case EventRingTimeout, EventStale:
		return true
	default:
		return false
	}
}
