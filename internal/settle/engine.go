// Package settle computes and applies duration-based cost and earnings for
// terminated call sessions, exactly once per session.
package settle

import (
	"context"
	"errors"
	"log/slog"

	"callbridge/internal/call"
)

// Rates are per-minute billing rates. Caller cost is whole coins per started
// minute; callee earnings are hundredths of a coin per minute so fractional
// rates stay integer arithmetic.
type Rates struct {
	VoiceCostPerMin int64
	VideoCostPerMin int64

	VoiceEarnPerMinCenti int64
	VideoEarnPerMinCenti int64
}

// CostPerMinute is the coin price of one billed minute for t. The
// coordinator uses it as the minimum balance to start a call.
func (r Rates) CostPerMinute(t call.Type) int64 {
	if t == call.TypeVideo {
		return r.VideoCostPerMin
	}
	return r.VoiceCostPerMin
}

func (r Rates) earnPerMinCenti(t call.Type) int64 {
	if t == call.TypeVideo {
		return r.VideoEarnPerMinCenti
	}
	return r.VoiceEarnPerMinCenti
}

// Accounts is the balance side of settlement. DebitUpTo clamps the charge to
// the payer's available balance and returns what was actually charged; the
// payer is never taken negative.
type Accounts interface {
	DebitUpTo(ctx context.Context, accountID string, amount int64, ref string) (int64, error)
	Credit(ctx context.Context, accountID string, amount int64, ref string) error
}

// FailureRecorder receives settlement failures for manual reconciliation.
// Best-effort: recorder errors are logged, never propagated.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, f Failure) error
}

// Failure describes a settlement where a balance leg did not apply. There is
// no automatic compensation once one leg has applied; the external store is
// the system of record and the entry is resolved manually.
type Failure struct {
	CallID    string
	PayerID   string
	PayeeID   string
	FailedLeg string // "debit" or "credit"
	Charged   int64
	Earnings  int64
	Detail    string
}

// Result is the settlement outcome for a session.
type Result struct {
	Session call.Session
	Applied bool // false when another trigger already settled the session
}

var ErrNotTerminal = errors.New("settle: session not terminal")

type Engine struct {
	sessions *call.Store
	accounts Accounts
	failures FailureRecorder
	rates    Rates
	log      *slog.Logger
}

func NewEngine(sessions *call.Store, accounts Accounts, failures FailureRecorder, rates Rates, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		sessions: sessions,
		accounts: accounts,
		failures: failures,
		rates:    rates,
		log:      log,
	}
}

// BilledMinutes converts a duration in seconds to billed minutes: round up,
// with a floor of one minute for any answered call.
func BilledMinutes(seconds int64) int64 {
	if seconds <= 0 {
		return 1
	}
	m := seconds / 60
	if seconds%60 != 0 {
		m++
	}
	if m < 1 {
		m = 1
	}
	return m
}

// Settle applies billing for a terminal session. Safe to invoke from any
// number of concurrent triggers (explicit end, disconnect, timeout, sweep):
// the settled flag is claimed with a per-session check-and-set, and only the
// claim winner touches balances.
func (e *Engine) Settle(ctx context.Context, callID string) (Result, error) {
	snap, err := e.sessions.Get(callID)
	if err != nil {
		return Result{}, err
	}
	if !snap.State.Terminal() {
		return Result{}, ErrNotTerminal
	}

	s, won, err := e.sessions.ClaimSettlement(callID)
	if err != nil {
		return Result{}, err
	}
	if !won {
		return Result{Session: s, Applied: false}, nil
	}

	// Never answered: zero cost, zero earnings, nothing to move.
	if s.AnsweredAt == nil {
		s, err = e.sessions.RecordSettlement(callID, 0, 0, false)
		if err != nil {
			return Result{}, err
		}
		return Result{Session: s, Applied: true}, nil
	}

	minutes := BilledMinutes(s.DurationSeconds())
	cost := minutes * e.rates.CostPerMinute(s.Type)
	earnings := minutes * e.rates.earnPerMinCenti(s.Type) / 100

	charged, err := e.accounts.DebitUpTo(ctx, s.CallerID, cost, s.CallID)
	if err != nil {
		e.log.Error("settlement debit failed", "call_id", s.CallID, "payer", s.CallerID, "err", err)
		e.recordFailure(ctx, s, "debit", 0, 0, err)
		s, _ = e.sessions.RecordSettlement(callID, 0, 0, true)
		return Result{Session: s, Applied: true}, nil
	}

	// Payer could not cover the full cost: clamp the charge and scale the
	// callee's share so it never exceeds a consistent fraction of what was
	// actually charged.
	if charged < cost && cost > 0 {
		earnings = earnings * charged / cost
	}
	if earnings < 0 {
		earnings = 0
	}

	if earnings > 0 {
		if err := e.accounts.Credit(ctx, s.CalleeID, earnings, s.CallID); err != nil {
			e.log.Error("settlement credit failed", "call_id", s.CallID, "payee", s.CalleeID, "err", err)
			e.recordFailure(ctx, s, "credit", charged, earnings, err)
			s, _ = e.sessions.RecordSettlement(callID, charged, 0, true)
			return Result{Session: s, Applied: true}, nil
		}
	}

	s, err = e.sessions.RecordSettlement(callID, charged, earnings, false)
	if err != nil {
		return Result{}, err
	}
	e.log.Info("session settled",
		"call_id", s.CallID,
		"billed_minutes", minutes,
		"cost_coins", charged,
		"earnings_coins", earnings,
	)
	return Result{Session: s, Applied: true}, nil
}

func (e *Engine) recordFailure(ctx context.Context, s call.Session, leg string, charged, earnings int64, cause error) {
	if e.failures == nil {
		return
	}
	f := Failure{
		CallID:    s.CallID,
		PayerID:   s.CallerID,
		PayeeID:   s.CalleeID,
		FailedLeg: leg,
		Charged:   charged,
		Earnings:  earnings,
		Detail:    cause.Error(),
	}
	if err := e.failures.RecordFailure(ctx, f); err != nil {
		e.log.Error("reconciliation record failed", "call_id", s.CallID, "err", err)
	}
}
