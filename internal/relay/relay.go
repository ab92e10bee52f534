package relay

import (
	"encoding/json"
	"log/slog"

	"callbridge/internal/call"
	"callbridge/internal/presence"
)

// SignalFrame is the envelope delivered to the peer's connection. Payload is
// opaque: SDP offers, answers and ICE candidates pass through untouched.
type SignalFrame struct {
	Type    string          `json:"type"`
	CallID  string          `json:"call_id"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// Relay forwards signaling payloads between the two participants of an
// active session. It never inspects payloads and never persists them.
//
// Delivery is best-effort: frames addressed to closed sessions, sent by
// non-participants, or aimed at offline/slow peers are dropped without an
// error to the sender. The lifecycle, not the relay, tells participants the
// session is over.
type Relay struct {
	sessions *call.Store
	registry *presence.Registry
	log      *slog.Logger
}

func New(sessions *call.Store, registry *presence.Registry, log *slog.Logger) *Relay {
	return &Relay{sessions: sessions, registry: registry, log: log}
}

// Forward delivers payload to the peer of from within session callID.
// It reports whether the frame was handed to the peer's connection.
func (r *Relay) Forward(callID, from string, payload json.RawMessage) bool {
	s, err := r.sessions.Get(callID)
	if err != nil {
		return false
	}
	if !s.State.Active() {
		return false
	}
	if !s.Participant(from) {
		r.log.Warn("signal from non-participant dropped",
			slog.String("call_id", callID),
			slog.String("from", from))
		return false
	}

	peer := s.Peer(from)
	h, ok := r.registry.Resolve(peer)
	if !ok {
		return false
	}

	frame := SignalFrame{
		Type:    "signal",
		CallID:  callID,
		From:    from,
		Payload: payload,
	}
	if err := h.TrySend(frame); err != nil {
		r.log.Warn("signal dropped, peer send buffer full",
			slog.String("call_id", callID),
			slog.String("to", peer))
		return false
	}
	return true
}
