package record

import (
	"context"
	"sort"
	"sync"
)

// Memory is a simple in-memory Store useful for tests and early development.
type Memory struct {
	mu      sync.Mutex
	records map[string]CallRecord
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]CallRecord)}
}

func (m *Memory) Create(ctx context.Context, r CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.CallID] = r
	return nil
}

func (m *Memory) Update(ctx context.Context, r CallRecord) error {
	return m.Create(ctx, r)
}

func (m *Memory) Find(ctx context.Context, callID string) (CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListByIdentity(ctx context.Context, identity string, limit int) ([]CallRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []CallRecord
	for _, r := range m.records {
		if r.CallerID == identity || r.CalleeID == identity {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Summary(ctx context.Context, identity string) (UsageSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := UsageSummary{Identity: identity}
	for _, r := range m.records {
		if r.CallerID != identity && r.CalleeID != identity {
			continue
		}
		s.TotalCalls++
		s.TotalSeconds += r.DurationSeconds
		if r.CallerID == identity {
			s.SpentCoins += r.CostCoins
		}
		if r.CalleeID == identity {
			s.EarnedCoins += r.EarningsCoins
		}
		if r.AnsweredAt == nil {
			s.MissedOrFreed++
		}
	}
	return s, nil
}
