package reconcile

import "time"

// Entry is an immutable record of a settlement that needs manual attention:
// one balance leg applied and the other did not. There is no compensating
// transaction — the external store is the system of record once a leg has
// landed — so entries stay open until an operator resolves them.
//
// Invariants:
// - Entries are never updated or deleted (resolution is a separate append).
// - The flagged session is already terminal and marked settled; it never
//   re-enters active accounting.
type Entry struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	PayerID string `json:"payer_id" db:"payer_id"`
	PayeeID string `json:"payee_id" db:"payee_id"`

	// FailedLeg is "debit" or "credit".
	FailedLeg string `json:"failed_leg" db:"failed_leg"`

	// ChargedCoins/EarningsCoins are the amounts that were supposed to move.
	ChargedCoins  int64 `json:"charged_coins" db:"charged_coins"`
	EarningsCoins int64 `json:"earnings_coins" db:"earnings_coins"`

	Detail string `json:"detail,omitempty" db:"detail"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
