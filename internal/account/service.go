package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"callbridge/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store is the account contract consumed by the coordinator and the
// settlement engine.
type Store interface {
	GetBalance(ctx context.Context, accountID string) (int64, error)

	// Credit adds coins to an account. Idempotent per (account, ref).
	Credit(ctx context.Context, accountID string, amount int64, ref string) error

	// DebitUpTo charges at most amount, clamped to the available balance,
	// and returns what was actually charged. The account never goes
	// negative. Idempotent per (account, ref).
	DebitUpTo(ctx context.Context, accountID string, amount int64, ref string) (int64, error)

	// IsAvailable reports whether the identity is currently accepting calls.
	IsAvailable(ctx context.Context, accountID string) (bool, error)

	// SetAvailable flips the availability flag. The flag expires after the
	// configured TTL unless refreshed.
	SetAvailable(ctx context.Context, accountID string, available bool) error
}

var (
	ErrNotFound        = errors.New("account: not found")
	ErrInvalidArgument = errors.New("account: invalid argument")
)

// Service is the production Store: Postgres ledger + balance projection,
// Redis availability flags.
//
// Money invariants:
// - No balance update without a ledger entry.
// - Ledger is append-only.
// - All money operations run in a DB transaction with the balance row locked,
//   so concurrent settlements of different sessions for the same identity
//   serialize on the row, never read-modify-write blind.
type Service struct {
	db  *sql.DB
	rdb *redis.Client

	availabilityTTL time.Duration
	clock           func() time.Time
}

func NewService(db *sql.DB, rdb *redis.Client, availabilityTTL time.Duration) *Service {
	return &Service{
		db:              db,
		rdb:             rdb,
		availabilityTTL: availabilityTTL,
		clock:           time.Now,
	}
}

func (s *Service) GetBalance(ctx context.Context, accountID string) (int64, error) {
	if accountID == "" {
		return 0, ErrInvalidArgument
	}
	b, err := getBalance(ctx, s.db, accountID)
	if errors.Is(err, ErrNotFound) {
		// No ledger activity yet reads as a zero balance, not an error.
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return b.BalanceCoins, nil
}

func (s *Service) Credit(ctx context.Context, accountID string, amount int64, ref string) error {
	if accountID == "" || amount <= 0 || ref == "" {
		return ErrInvalidArgument
	}

	now := s.clock().UTC()
	entry := LedgerEntry{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Type:           EntryTypeCredit,
		AmountCoins:    amount,
		Ref:            ref,
		IdempotencyKey: ref + ":credit",
		CreatedAt:      now,
	}

	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if _, ok, err := findEntryByIdempotency(ctx, tx, accountID, entry.IdempotencyKey); err != nil {
			return err
		} else if ok {
			return nil
		}
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
		_, err := applyBalanceDelta(ctx, tx, accountID, amount, now)
		return err
	})
}

func (s *Service) DebitUpTo(ctx context.Context, accountID string, amount int64, ref string) (int64, error) {
	if accountID == "" || amount <= 0 || ref == "" {
		return 0, ErrInvalidArgument
	}

	now := s.clock().UTC()
	key := ref + ":debit"
	var charged int64

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if existing, ok, err := findEntryByIdempotency(ctx, tx, accountID, key); err != nil {
			return err
		} else if ok {
			charged = -existing.AmountCoins
			return nil
		}

		b, err := getBalanceForUpdate(ctx, tx, accountID)
		if errors.Is(err, ErrNotFound) {
			// No balance row means nothing to charge; settlement clamps to zero.
			charged = 0
			return nil
		}
		if err != nil {
			return err
		}

		charged = amount
		if charged > b.BalanceCoins {
			charged = b.BalanceCoins
		}
		if charged <= 0 {
			charged = 0
			return nil
		}

		entry := LedgerEntry{
			ID:             uuid.NewString(),
			AccountID:      accountID,
			Type:           EntryTypeDebit,
			AmountCoins:    -charged,
			Ref:            ref,
			IdempotencyKey: key,
			CreatedAt:      now,
		}
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
		_, err = applyBalanceDelta(ctx, tx, accountID, -charged, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	return charged, nil
}

const availabilityKeyPrefix = "availability:"

func (s *Service) IsAvailable(ctx context.Context, accountID string) (bool, error) {
	if accountID == "" {
		return false, ErrInvalidArgument
	}
	_, err := s.rdb.Get(ctx, availabilityKeyPrefix+accountID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("availability lookup: %w", err)
	}
	return true, nil
}

func (s *Service) SetAvailable(ctx context.Context, accountID string, available bool) error {
	if accountID == "" {
		return ErrInvalidArgument
	}
	key := availabilityKeyPrefix + accountID
	if !available {
		return s.rdb.Del(ctx, key).Err()
	}
	return s.rdb.Set(ctx, key, "1", s.availabilityTTL).Err()
}
