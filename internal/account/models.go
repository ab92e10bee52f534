package account

import "time"

// LedgerEntry is an immutable append-only record of a balance change.
//
// Money invariant: any balance change MUST have a corresponding ledger entry;
// the balance projection is derived, never authoritative on its own.
type LedgerEntry struct {
	ID        string `json:"id" db:"id"`
	AccountID string `json:"account_id" db:"account_id"`

	Type EntryType `json:"type" db:"type"`

	// AmountCoins is signed: credits positive, debits negative.
	AmountCoins int64 `json:"amount_coins" db:"amount_coins"`

	// Ref links the entry to its cause, typically a call ID.
	Ref string `json:"ref,omitempty" db:"ref"`

	// IdempotencyKey makes money-posting operations safe to retry.
	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntryType string

const (
	EntryTypeCredit EntryType = "credit" // earnings, top-up
	EntryTypeDebit  EntryType = "debit"  // call charge
)

// Balance is the projection row for an account.
type Balance struct {
	AccountID    string    `json:"account_id" db:"account_id"`
	BalanceCoins int64     `json:"balance_coins" db:"balance_coins"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
