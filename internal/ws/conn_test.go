package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeSocket struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool

	reads chan []byte
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{reads: make(chan []byte, 8)}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	data, ok := <-f.reads
	if !ok {
		return 0, nil, errors.New("use of closed connection")
	}
	return websocket.TextMessage, data, nil
}

func (f *fakeSocket) WriteMessage(mt int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("use of closed connection")
	}
	if mt == websocket.TextMessage {
		f.written = append(f.written, data)
	}
	return nil
}

func (f *fakeSocket) SetWriteDeadline(t time.Time) error { return nil }
func (f *fakeSocket) SetReadDeadline(t time.Time) error  { return nil }
func (f *fakeSocket) SetReadLimit(limit int64)           {}
func (f *fakeSocket) SetPongHandler(h func(string) error) {}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) texts() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

func TestTrySendBackpressure(t *testing.T) {
	c := newConn("alice", newFakeSocket(), 2)

	if err := c.TrySend("one"); err != nil {
		t.Fatalf("TrySend: %v", err)
	}
	if err := c.TrySend("two"); err != nil {
		t.Fatalf("TrySend: %v", err)
	}
	if err := c.TrySend("three"); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("expected ErrBackpressure on full buffer, got %v", err)
	}
}

func TestTrySendAfterClose(t *testing.T) {
	c := newConn("alice", newFakeSocket(), 2)
	c.Close()
	c.Close() // idempotent

	if err := c.TrySend("frame"); err == nil {
		t.Fatal("expected error sending on closed connection")
	}
}

func TestWritePumpDeliversJSON(t *testing.T) {
	sock := newFakeSocket()
	c := newConn("alice", sock, 8)

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()

	if err := c.TrySend(map[string]string{"type": "hello"}); err != nil {
		t.Fatalf("TrySend: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		if texts := sock.texts(); len(texts) > 0 {
			var got map[string]string
			if err := json.Unmarshal(texts[0], &got); err != nil {
				t.Fatalf("unmarshal written frame: %v", err)
			}
			if got["type"] != "hello" {
				t.Fatalf("unexpected frame %v", got)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("frame never written")
		case <-time.After(5 * time.Millisecond):
		}
	}

	c.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writePump did not exit on close")
	}
}
