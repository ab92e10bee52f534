// Package presence tracks which identities currently have a live connection
// and through which handle. It has no knowledge of calls.
package presence

import (
	"hash/fnv"
	"sync"
	"time"
)

// Handle is the delivery side of a live connection. Implementations must be
// safe for concurrent use and non-blocking: a slow consumer gets an error,
// never a stall.
type Handle interface {
	// TrySend enqueues a frame for delivery. It returns an error if the
	// connection is closed or its buffer is full.
	TrySend(v any) error

	// Close tears the connection down. Idempotent.
	Close()
}

// Entry is one live registration.
type Entry struct {
	Identity     string
	Handle       Handle
	RegisteredAt time.Time
}

const shardCount = 16

type shard struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// Registry is a sharded identity -> connection map. Sharding keeps presence
// churn (devices reconnecting) from contending with unrelated identities,
// and presence never takes any call's lock.
type Registry struct {
	shards [shardCount]*shard
	clock  func() time.Time
}

func NewRegistry() *Registry {
	r := &Registry{clock: time.Now}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]Entry)}
	}
	return r
}

func (r *Registry) shardFor(identity string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return r.shards[h.Sum32()%shardCount]
}

// Register binds identity to handle, superseding any existing registration.
// The superseded handle (if any) is returned so the caller can notify the old
// connection that it has been replaced.
func (r *Registry) Register(identity string, h Handle) (superseded Handle, ok bool) {
	if identity == "" || h == nil {
		return nil, false
	}
	s := r.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	old, existed := s.entries[identity]
	s.entries[identity] = Entry{Identity: identity, Handle: h, RegisteredAt: r.clock().UTC()}
	if existed {
		return old.Handle, true
	}
	return nil, false
}

// Deregister removes the entry only if the current handle matches h. A stale
// disconnect arriving after a fresh reconnect must not evict the newer
// registration.
func (r *Registry) Deregister(identity string, h Handle) bool {
	s := r.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[identity]
	if !ok || cur.Handle != h {
		return false
	}
	delete(s.entries, identity)
	return true
}

// Resolve returns the live handle for identity, if any.
func (r *Registry) Resolve(identity string) (Handle, bool) {
	s := r.shardFor(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[identity]
	if !ok {
		return nil, false
	}
	return e.Handle, true
}

// Online reports whether identity currently has a live connection.
func (r *Registry) Online(identity string) bool {
	_, ok := r.Resolve(identity)
	return ok
}
