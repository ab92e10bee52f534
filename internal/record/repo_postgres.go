package record

import (
	"context"
	"database/sql"
	"errors"

	"callbridge/internal/call"
)

// Postgres is the production Store.
//
// Assumed table:
// call_records (
//   call_id TEXT PRIMARY KEY, caller_id TEXT, callee_id TEXT,
//   call_type TEXT, state TEXT, end_reason TEXT,
//   created_at TIMESTAMPTZ, answered_at TIMESTAMPTZ NULL, ended_at TIMESTAMPTZ NULL,
//   duration_seconds BIGINT, settled BOOL, settlement_failed BOOL,
//   cost_coins BIGINT, earnings_coins BIGINT
// )
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const upsertQuery = `
INSERT INTO call_records (
  call_id, caller_id, callee_id, call_type, state, end_reason,
  created_at, answered_at, ended_at, duration_seconds,
  settled, settlement_failed, cost_coins, earnings_coins
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (call_id)
DO UPDATE SET state = EXCLUDED.state,
              end_reason = EXCLUDED.end_reason,
              answered_at = EXCLUDED.answered_at,
              ended_at = EXCLUDED.ended_at,
              duration_seconds = EXCLUDED.duration_seconds,
              settled = EXCLUDED.settled,
              settlement_failed = EXCLUDED.settlement_failed,
              cost_coins = EXCLUDED.cost_coins,
              earnings_coins = EXCLUDED.earnings_coins
`

func (p *Postgres) upsert(ctx context.Context, r CallRecord) error {
	_, err := p.db.ExecContext(ctx, upsertQuery,
		r.CallID,
		r.CallerID,
		r.CalleeID,
		r.Type,
		r.State,
		r.EndReason,
		r.CreatedAt,
		r.AnsweredAt,
		r.EndedAt,
		r.DurationSeconds,
		r.Settled,
		r.SettlementFailed,
		r.CostCoins,
		r.EarningsCoins,
	)
	return err
}

func (p *Postgres) Create(ctx context.Context, r CallRecord) error {
	return p.upsert(ctx, r)
}

func (p *Postgres) Update(ctx context.Context, r CallRecord) error {
	return p.upsert(ctx, r)
}

const selectColumns = `
call_id, caller_id, callee_id, call_type, state, end_reason,
created_at, answered_at, ended_at, duration_seconds,
settled, settlement_failed, cost_coins, earnings_coins
`

func scanRecord(row interface{ Scan(...any) error }) (CallRecord, error) {
	var r CallRecord
	var endReason sql.NullString
	err := row.Scan(
		&r.CallID,
		&r.CallerID,
		&r.CalleeID,
		&r.Type,
		&r.State,
		&endReason,
		&r.CreatedAt,
		&r.AnsweredAt,
		&r.EndedAt,
		&r.DurationSeconds,
		&r.Settled,
		&r.SettlementFailed,
		&r.CostCoins,
		&r.EarningsCoins,
	)
	if err != nil {
		return CallRecord{}, err
	}
	if endReason.Valid {
		r.EndReason = call.EndReason(endReason.String)
	}
	return r, nil
}

func (p *Postgres) Find(ctx context.Context, callID string) (CallRecord, error) {
	q := `SELECT ` + selectColumns + ` FROM call_records WHERE call_id = $1`
	r, err := scanRecord(p.db.QueryRowContext(ctx, q, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	return r, nil
}

func (p *Postgres) ListByIdentity(ctx context.Context, identity string, limit int) ([]CallRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT ` + selectColumns + `
FROM call_records
WHERE caller_id = $1 OR callee_id = $1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := p.db.QueryContext(ctx, q, identity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Summary(ctx context.Context, identity string) (UsageSummary, error) {
	const q = `
SELECT
  COUNT(*),
  COALESCE(SUM(duration_seconds), 0),
  COALESCE(SUM(CASE WHEN caller_id = $1 THEN cost_coins ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN callee_id = $1 THEN earnings_coins ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN answered_at IS NULL THEN 1 ELSE 0 END), 0)
FROM call_records
WHERE caller_id = $1 OR callee_id = $1
`
	s := UsageSummary{Identity: identity}
	if err := p.db.QueryRowContext(ctx, q, identity).Scan(
		&s.TotalCalls,
		&s.TotalSeconds,
		&s.SpentCoins,
		&s.EarnedCoins,
		&s.MissedOrFreed,
	); err != nil {
		return UsageSummary{}, err
	}
	return s, nil
}
