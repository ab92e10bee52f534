package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"callbridge/internal/account"
	"callbridge/internal/call"
	"callbridge/internal/coordinator"
	"callbridge/internal/notify"
	"callbridge/internal/presence"
	"callbridge/internal/reconcile"
	"callbridge/internal/record"
	"callbridge/internal/relay"
	"callbridge/internal/settle"
)

type nopTimers struct{}

func (nopTimers) ScheduleRing(string) {}
func (nopTimers) Cancel(string)       {}

type wsFixture struct {
	ctl      *Controller
	registry *presence.Registry
	store    *call.Store
	accounts *account.Memory
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := presence.NewRegistry()
	store := call.NewStore(time.Now)
	accounts := account.NewMemory()
	records := record.NewMemory()
	failures := reconcile.NewService(reconcile.NewMemoryRepo())
	rates := settle.Rates{VoiceCostPerMin: 5, VideoCostPerMin: 10, VoiceEarnPerMinCenti: 250, VideoEarnPerMinCenti: 500}
	engine := settle.NewEngine(store, accounts, failures, rates, log)

	coord := coordinator.New(coordinator.Config{
		Sessions:      store,
		Registry:      registry,
		Accounts:      accounts,
		Records:       records,
		Settler:       engine,
		Timers:        nopTimers{},
		Notifier:      notify.NewPresence(registry, log),
		Rates:         rates,
		StaleAfter:    5 * time.Minute,
		TerminalGrace: 2 * time.Minute,
		Log:           log,
	})

	return &wsFixture{
		ctl: &Controller{
			Registry:    registry,
			Relay:       relay.New(store, registry, log),
			Coordinator: coord,
			SendBuffer:  8,
			Log:         log,
		},
		registry: registry,
		store:    store,
		accounts: accounts,
	}
}

func (fx *wsFixture) connect(identity string) *Conn {
	c := newConn(identity, newFakeSocket(), 8)
	if superseded, _ := fx.registry.Register(identity, c); superseded != nil {
		superseded.Close()
	}
	return c
}

func frame(t *testing.T, typ, callID string, payload any) []byte {
	t.Helper()
	f := clientFrame{Type: typ, CallID: callID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		f.Payload = raw
	}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return data
}

func TestDispatchAnswerAndEnd(t *testing.T) {
	fx := newWSFixture(t)
	ctx := context.Background()
	fx.accounts.Seed("alice", 100)
	fx.accounts.SetAvailable(ctx, "bob", true)
	alice := fx.connect("alice")
	bob := fx.connect("bob")
	_ = alice

	s, err := fx.ctl.Coordinator.Initiate(ctx, "alice", "bob", call.TypeVoice)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	fx.ctl.dispatch(bob, frame(t, "answer", s.CallID, nil))
	got, _ := fx.store.Get(s.CallID)
	if got.State != call.StateAnswered {
		t.Fatalf("expected answered, got %s", got.State)
	}

	fx.ctl.dispatch(bob, frame(t, "end", s.CallID, nil))
	got, _ = fx.store.Get(s.CallID)
	if got.State != call.StateEnded || !got.Settled {
		t.Fatalf("expected settled ended session, got %+v", got)
	}
}

func TestDispatchSignalReachesPeer(t *testing.T) {
	fx := newWSFixture(t)
	ctx := context.Background()
	fx.accounts.Seed("alice", 100)
	fx.accounts.SetAvailable(ctx, "bob", true)
	alice := fx.connect("alice")
	bob := fx.connect("bob")

	s, err := fx.ctl.Coordinator.Initiate(ctx, "alice", "bob", call.TypeVoice)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	// Drain bob's incoming_call push so only the signal remains.
	for len(bob.send) > 0 {
		<-bob.send
	}

	fx.ctl.dispatch(alice, frame(t, "signal", s.CallID, map[string]string{"sdp": "offer"}))

	select {
	case v := <-bob.send:
		sig, ok := v.(relay.SignalFrame)
		if !ok {
			t.Fatalf("expected signal frame, got %T", v)
		}
		if sig.From != "alice" || sig.CallID != s.CallID {
			t.Fatalf("unexpected frame %+v", sig)
		}
	default:
		t.Fatal("signal never reached peer connection")
	}
}

func TestDispatchUnauthorizedEventReturnsError(t *testing.T) {
	fx := newWSFixture(t)
	ctx := context.Background()
	fx.accounts.Seed("alice", 100)
	fx.accounts.SetAvailable(ctx, "bob", true)
	alice := fx.connect("alice")
	fx.connect("bob")

	s, err := fx.ctl.Coordinator.Initiate(ctx, "alice", "bob", call.TypeVoice)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	// Caller may not answer their own call.
	fx.ctl.dispatch(alice, frame(t, "answer", s.CallID, nil))

	found := false
	for len(alice.send) > 0 {
		if ef, ok := (<-alice.send).(errorFrame); ok && ef.CallID == s.CallID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected error frame for unauthorized answer")
	}
	got, _ := fx.store.Get(s.CallID)
	if got.State != call.StateRinging {
		t.Fatalf("session must stay ringing, got %s", got.State)
	}
}

func TestDispatchMalformedFrame(t *testing.T) {
	fx := newWSFixture(t)
	alice := fx.connect("alice")

	fx.ctl.dispatch(alice, []byte("not json"))
	fx.ctl.dispatch(alice, frame(t, "answer", "", nil))
	fx.ctl.dispatch(alice, frame(t, "teleport", "some-call", nil))

	errs := 0
	for len(alice.send) > 0 {
		if _, ok := (<-alice.send).(errorFrame); ok {
			errs++
		}
	}
	if errs != 3 {
		t.Fatalf("expected 3 error frames, got %d", errs)
	}
}
