package account

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following tables exist:
// - account_ledger (immutable append-only)
// - account_balances (projection)
//
// It also assumes an idempotency constraint:
// UNIQUE (account_id, idempotency_key)

func getBalance(ctx context.Context, db *sql.DB, accountID string) (Balance, error) {
	const q = `
SELECT account_id, balance_coins, updated_at
FROM account_balances
WHERE account_id = $1
`
	var b Balance
	if err := db.QueryRowContext(ctx, q, accountID).Scan(
		&b.AccountID,
		&b.BalanceCoins,
		&b.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func getBalanceForUpdate(ctx context.Context, tx *sql.Tx, accountID string) (Balance, error) {
	// Lock the projection row to serialize concurrent money operations per
	// account.
	const q = `
SELECT account_id, balance_coins, updated_at
FROM account_balances
WHERE account_id = $1
FOR UPDATE
`
	var b Balance
	if err := tx.QueryRowContext(ctx, q, accountID).Scan(
		&b.AccountID,
		&b.BalanceCoins,
		&b.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func findEntryByIdempotency(ctx context.Context, tx *sql.Tx, accountID, key string) (LedgerEntry, bool, error) {
	const q = `
SELECT id, account_id, type, amount_coins, ref, idempotency_key, created_at
FROM account_ledger
WHERE account_id = $1 AND idempotency_key = $2
LIMIT 1
`
	var e LedgerEntry
	err := tx.QueryRowContext(ctx, q, accountID, key).Scan(
		&e.ID,
		&e.AccountID,
		&e.Type,
		&e.AmountCoins,
		&e.Ref,
		&e.IdempotencyKey,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LedgerEntry{}, false, nil
		}
		return LedgerEntry{}, false, err
	}
	return e, true, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e LedgerEntry) error {
	const q = `
INSERT INTO account_ledger (
  id, account_id, type, amount_coins, ref, idempotency_key, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7
)
`
	_, err := tx.ExecContext(ctx, q,
		e.ID,
		e.AccountID,
		e.Type,
		e.AmountCoins,
		e.Ref,
		e.IdempotencyKey,
		e.CreatedAt,
	)
	return err
}

func applyBalanceDelta(ctx context.Context, tx *sql.Tx, accountID string, delta int64, now time.Time) (Balance, error) {
	const q = `
INSERT INTO account_balances (account_id, balance_coins, updated_at)
VALUES ($1,$2,$3)
ON CONFLICT (account_id)
DO UPDATE SET balance_coins = account_balances.balance_coins + EXCLUDED.balance_coins,
              updated_at = EXCLUDED.updated_at
RETURNING account_id, balance_coins, updated_at
`
	var b Balance
	if err := tx.QueryRowContext(ctx, q, accountID, delta, now).Scan(
		&b.AccountID,
		&b.BalanceCoins,
		&b.UpdatedAt,
	); err != nil {
		return Balance{}, err
	}
	return b, nil
}
