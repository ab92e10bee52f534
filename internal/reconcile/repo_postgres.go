package reconcile

import (
	"context"
	"database/sql"
)

// PostgresRepo persists reconciliation entries.
//
// Assumed table:
// reconcile_entries (
//   id TEXT PRIMARY KEY, call_id TEXT, payer_id TEXT, payee_id TEXT,
//   failed_leg TEXT, charged_coins BIGINT, earnings_coins BIGINT,
//   detail TEXT, created_at TIMESTAMPTZ
// )
// with an INSERT-only policy.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO reconcile_entries (
  id, call_id, payer_id, payee_id, failed_leg,
  charged_coins, earnings_coins, detail, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.CallID,
		e.PayerID,
		e.PayeeID,
		e.FailedLeg,
		e.ChargedCoins,
		e.EarningsCoins,
		e.Detail,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Entry, error) {
	const q = `
SELECT id, call_id, payer_id, payee_id, failed_leg,
       charged_coins, earnings_coins, detail, created_at
FROM reconcile_entries
ORDER BY created_at DESC
LIMIT $1
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID,
			&e.CallID,
			&e.PayerID,
			&e.PayeeID,
			&e.FailedLeg,
			&e.ChargedCoins,
			&e.EarningsCoins,
			&e.Detail,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
