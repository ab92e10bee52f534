package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"callbridge/internal/call"
	"callbridge/internal/notify"
	"callbridge/internal/presence"
	"callbridge/internal/record"
	"callbridge/internal/settle"
)

var (
	ErrSelfCall            = errors.New("coordinator: cannot call yourself")
	ErrInvalidCallType     = errors.New("coordinator: invalid call type")
	ErrCalleeOffline       = errors.New("coordinator: callee is not connected")
	ErrCalleeUnavailable   = errors.New("coordinator: callee is not accepting calls")
	ErrInsufficientBalance = errors.New("coordinator: balance below one minute of call time")
)

// Accounts is the slice of the account service the coordinator needs for
// pre-checks. Balance movement happens inside the settlement engine, not here.
type Accounts interface {
	GetBalance(ctx context.Context, accountID string) (int64, error)
	IsAvailable(ctx context.Context, accountID string) (bool, error)
}

// Settler settles a terminal session exactly once.
type Settler interface {
	Settle(ctx context.Context, callID string) (settle.Result, error)
}

// Timers is the ring-timer side of the scheduler.
type Timers interface {
	ScheduleRing(callID string)
	Cancel(callID string)
}

// Notifier pushes lifecycle events to connected participants, best-effort.
type Notifier interface {
	Push(identity, event string, s call.Session)
}

// Coordinator is the façade every entry point (HTTP, websocket, scheduler)
// drives call lifecycles through. It owns the ordering rule: the in-memory
// transition commits first, then settlement, archival and notification
// follow. External failures are logged and reconciled, never rolled back
// into session state.
type Coordinator struct {
	sessions *call.Store
	registry *presence.Registry
	accounts Accounts
	records  record.Store
	settler  Settler
	timers   Timers
	notifier Notifier

	rates settle.Rates

	staleAfter    time.Duration
	terminalGrace time.Duration

	clock func() time.Time
	log   *slog.Logger
}

type Config struct {
	Sessions *call.Store
	Registry *presence.Registry
	Accounts Accounts
	Records  record.Store
	Settler  Settler
	Timers   Timers
	Notifier Notifier

	Rates settle.Rates

	StaleAfter    time.Duration
	TerminalGrace time.Duration

	Log *slog.Logger
}

func New(cfg Config) *Coordinator {
	return &Coordinator{
		sessions:      cfg.Sessions,
		registry:      cfg.Registry,
		accounts:      cfg.Accounts,
		records:       cfg.Records,
		settler:       cfg.Settler,
		timers:        cfg.Timers,
		notifier:      cfg.Notifier,
		rates:         cfg.Rates,
		staleAfter:    cfg.StaleAfter,
		terminalGrace: cfg.TerminalGrace,
		clock:         time.Now,
		log:           cfg.Log,
	}
}

// SetTimers wires the ring-timer implementation after construction. The
// scheduler's callbacks point back at the coordinator, so one of the two has
// to be attached late; this is that seam. Must be called before any traffic.
func (c *Coordinator) SetTimers(t Timers) {
	c.timers = t
}

// Initiate starts a call from caller to callee. The callee must be connected
// and accepting calls, and the caller must afford at least one billed minute
// at the type's rate. On success the session is ringing, the ring timer is
// armed, and the callee has been offered the call.
func (c *Coordinator) Initiate(ctx context.Context, callerID, calleeID string, t call.Type) (call.Session, error) {
	if !call.ValidType(t) {
		return call.Session{}, ErrInvalidCallType
	}
	if calleeID == "" || calleeID == callerID {
		return call.Session{}, ErrSelfCall
	}

	if !c.registry.Online(calleeID) {
		return call.Session{}, ErrCalleeOffline
	}
	available, err := c.accounts.IsAvailable(ctx, calleeID)
	if err != nil {
		return call.Session{}, err
	}
	if !available {
		return call.Session{}, ErrCalleeUnavailable
	}

	balance, err := c.accounts.GetBalance(ctx, callerID)
	if err != nil {
		return call.Session{}, err
	}
	if balance < c.rates.CostPerMinute(t) {
		return call.Session{}, ErrInsufficientBalance
	}

	s, err := c.sessions.Create("", callerID, calleeID, t)
	if err != nil {
		return call.Session{}, err
	}

	if err := c.records.Create(ctx, record.FromSession(s)); err != nil {
		c.log.Error("record create failed", slog.String("call_id", s.CallID), slog.Any("error", err))
	}

	c.timers.ScheduleRing(s.CallID)
	c.notifier.Push(calleeID, notify.EventIncomingCall, s)

	c.log.Info("call initiated",
		slog.String("call_id", s.CallID),
		slog.String("caller", callerID),
		slog.String("callee", calleeID),
		slog.String("type", string(t)))
	return s, nil
}

// Answer connects a ringing call. Only the callee may answer.
func (c *Coordinator) Answer(ctx context.Context, callID, actor string) (call.Session, error) {
	s, changed, err := c.sessions.Transition(callID, call.EventAnswer, actor)
	if err != nil {
		return s, err
	}
	if !changed {
		return s, nil
	}

	c.timers.Cancel(callID)
	c.archive(ctx, s)
	c.notifier.Push(s.CallerID, notify.EventCallAnswered, s)

	c.log.Info("call answered", slog.String("call_id", callID))
	return s, nil
}

// Reject declines a ringing call. Only the callee may reject; rejected calls
// never bill.
func (c *Coordinator) Reject(ctx context.Context, callID, actor string) (call.Session, error) {
	return c.terminate(ctx, callID, call.EventReject, actor)
}

// Cancel withdraws a ringing call. Only the caller may cancel.
func (c *Coordinator) Cancel(ctx context.Context, callID, actor string) (call.Session, error) {
	return c.terminate(ctx, callID, call.EventCancel, actor)
}

// End hangs up an answered call. Either participant may end; the session is
// then settled, archived and both sides notified. Ending an already-terminal
// session returns its final state without error.
func (c *Coordinator) End(ctx context.Context, callID, actor string) (call.Session, error) {
	return c.terminate(ctx, callID, call.EventEnd, actor)
}

// OnDisconnect reacts to identity's connection going away. A ringing call
// involving them is recorded as missed; an answered call ends and bills up
// to the disconnect. No active call means nothing to do.
func (c *Coordinator) OnDisconnect(ctx context.Context, identity string) {
	s, ok := c.sessions.ActiveFor(identity)
	if !ok {
		return
	}
	if _, err := c.terminate(ctx, s.CallID, call.EventPeerDisconnect, identity); err != nil {
		c.log.Error("disconnect handling failed",
			slog.String("call_id", s.CallID),
			slog.String("identity", identity),
			slog.Any("error", err))
	}
}

// OnRingTimeout is wired as the scheduler's ring-timer callback.
func (c *Coordinator) OnRingTimeout(callID string) {
	ctx := context.Background()
	if _, err := c.terminate(ctx, callID, call.EventRingTimeout, ""); err != nil && !errors.Is(err, call.ErrNotFound) {
		c.log.Error("ring timeout handling failed", slog.String("call_id", callID), slog.Any("error", err))
	}
}

// Sweep closes sessions that have been active past the staleness horizon and
// purges terminal sessions past the grace window. Wired as the scheduler's
// sweep callback.
func (c *Coordinator) Sweep() {
	ctx := context.Background()
	now := c.clock()

	for _, callID := range c.sessions.StaleActive(now.Add(-c.staleAfter)) {
		if _, err := c.terminate(ctx, callID, call.EventStale, ""); err != nil {
			c.log.Error("sweep close failed", slog.String("call_id", callID), slog.Any("error", err))
			continue
		}
		c.log.Warn("stale session closed by sweep", slog.String("call_id", callID))
	}

	if n := c.sessions.PurgeTerminal(now.Add(-c.terminalGrace)); n > 0 {
		c.log.Info("terminal sessions purged", slog.Int("count", n))
	}
}

// terminate applies a terminating event and, if this call won the transition,
// runs the terminal pipeline. Losers of a terminal race get the settled
// session back with no side effects.
func (c *Coordinator) terminate(ctx context.Context, callID string, ev call.Event, actor string) (call.Session, error) {
	s, changed, err := c.sessions.Transition(callID, ev, actor)
	if err != nil {
		return s, err
	}
	if !changed {
		return s, nil
	}
	return c.finalize(ctx, s), nil
}

// finalize runs once per session, on whichever goroutine won the terminal
// transition: disarm the ring timer, settle, archive, notify both sides.
func (c *Coordinator) finalize(ctx context.Context, s call.Session) call.Session {
	c.timers.Cancel(s.CallID)

	final := s
	result, err := c.settler.Settle(ctx, s.CallID)
	switch {
	case err != nil:
		c.log.Error("settlement failed", slog.String("call_id", s.CallID), slog.Any("error", err))
	case result.Applied:
		final = result.Session
	default:
		// Another goroutine claimed settlement between our transition and
		// here; its finalize owns the pipeline.
		return result.Session
	}

	c.archive(ctx, final)

	event := notify.EventFor(final)
	c.notifier.Push(final.CallerID, event, final)
	c.notifier.Push(final.CalleeID, event, final)

	c.log.Info("call finished",
		slog.String("call_id", final.CallID),
		slog.String("state", string(final.State)),
		slog.String("reason", string(final.EndReason)),
		slog.Int64("cost", final.CostCoins),
		slog.Int64("earnings", final.EarningsCoins))
	return final
}

func (c *Coordinator) archive(ctx context.Context, s call.Session) {
	if err := c.records.Update(ctx, record.FromSession(s)); err != nil {
		c.log.Error("record update failed", slog.String("call_id", s.CallID), slog.Any("error", err))
	}
}
