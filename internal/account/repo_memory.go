package account

import (
	"context"
	"sync"
)

// Memory is an in-memory Store useful for tests and early development.
// It is not intended for production; the ledger discipline lives in Service.
type Memory struct {
	mu        sync.Mutex
	balances  map[string]int64
	available map[string]bool
	applied   map[string]int64 // idempotency key -> signed amount
}

func NewMemory() *Memory {
	return &Memory{
		balances:  make(map[string]int64),
		available: make(map[string]bool),
		applied:   make(map[string]int64),
	}
}

// Seed sets an account balance directly (test setup only).
func (m *Memory) Seed(accountID string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[accountID] = balance
}

func (m *Memory) GetBalance(ctx context.Context, accountID string) (int64, error) {
	if accountID == "" {
		return 0, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[accountID], nil
}

func (m *Memory) Credit(ctx context.Context, accountID string, amount int64, ref string) error {
	if accountID == "" || amount <= 0 || ref == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := accountID + "|" + ref + ":credit"
	if _, done := m.applied[key]; done {
		return nil
	}
	m.applied[key] = amount
	m.balances[accountID] += amount
	return nil
}

func (m *Memory) DebitUpTo(ctx context.Context, accountID string, amount int64, ref string) (int64, error) {
	if accountID == "" || amount <= 0 || ref == "" {
		return 0, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := accountID + "|" + ref + ":debit"
	if prev, done := m.applied[key]; done {
		return -prev, nil
	}

	charged := amount
	if bal := m.balances[accountID]; charged > bal {
		charged = bal
	}
	if charged <= 0 {
		return 0, nil
	}
	m.applied[key] = -charged
	m.balances[accountID] -= charged
	return charged, nil
}

func (m *Memory) IsAvailable(ctx context.Context, accountID string) (bool, error) {
	if accountID == "" {
		return false, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available[accountID], nil
}

func (m *Memory) SetAvailable(ctx context.Context, accountID string, available bool) error {
	if accountID == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if available {
		m.available[accountID] = true
	} else {
		delete(m.available, accountID)
	}
	return nil
}
