package record

import (
	"time"

	"callbridge/internal/call"
)

// CallRecord is the durable row archived for every call session. It is the
// source of truth for history and billing audit; the in-memory session table
// is a working set layered on top.
type CallRecord struct {
	CallID   string `json:"call_id" db:"call_id"`
	CallerID string `json:"caller_id" db:"caller_id"`
	CalleeID string `json:"callee_id" db:"callee_id"`

	Type  call.Type  `json:"call_type" db:"call_type"`
	State call.State `json:"state" db:"state"`

	EndReason call.EndReason `json:"end_reason,omitempty" db:"end_reason"`

	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	DurationSeconds int64 `json:"duration_seconds" db:"duration_seconds"`

	Settled          bool  `json:"settled" db:"settled"`
	SettlementFailed bool  `json:"settlement_failed" db:"settlement_failed"`
	CostCoins        int64 `json:"cost_coins" db:"cost_coins"`
	EarningsCoins    int64 `json:"earnings_coins" db:"earnings_coins"`
}

// FromSession maps a session snapshot onto its durable record shape.
func FromSession(s call.Session) CallRecord {
	return CallRecord{
		CallID:           s.CallID,
		CallerID:         s.CallerID,
		CalleeID:         s.CalleeID,
		Type:             s.Type,
		State:            s.State,
		EndReason:        s.EndReason,
		CreatedAt:        s.CreatedAt,
		AnsweredAt:       s.AnsweredAt,
		EndedAt:          s.EndedAt,
		DurationSeconds:  s.DurationSeconds(),
		Settled:          s.Settled,
		SettlementFailed: s.SettlementFailed,
		CostCoins:        s.CostCoins,
		EarningsCoins:    s.EarningsCoins,
	}
}

// UsageSummary aggregates an identity's call history for reporting.
type UsageSummary struct {
	Identity      string `json:"identity"`
	TotalCalls    int64  `json:"total_calls"`
	TotalSeconds  int64  `json:"total_seconds"`
	SpentCoins    int64  `json:"spent_coins"`
	EarnedCoins   int64  `json:"earned_coins"`
	MissedOrFreed int64  `json:"missed_or_freed"` // terminal without answer
}
