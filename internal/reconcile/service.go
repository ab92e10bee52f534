package reconcile

import (
	"context"
	"errors"
	"time"

	"callbridge/internal/settle"

	"github.com/google/uuid"
)

// Repository is the persistence contract for reconciliation entries.
//
// It MUST be append-only. No Update/Delete methods are provided.
//
// Storage recommendation (Postgres): table reconcile_entries with an
// INSERT-only policy; partition by time for retention if volume warrants.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
}

// Service records settlement failures for manual reconciliation.
//
// Callers treat recording as best-effort: a failure to record is logged by
// the settlement engine, never surfaced to participants.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEntry = errors.New("reconcile: invalid entry")

func (s *Service) Append(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("reconcile: repository not configured")
	}
	if e.CallID == "" || e.FailedLeg == "" {
		return ErrInvalidEntry
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) List(ctx context.Context, limit int) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("reconcile: repository not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.List(ctx, limit)
}

// RecordFailure adapts the settlement engine's failure shape onto the
// append-only log, satisfying settle.FailureRecorder.
func (s *Service) RecordFailure(ctx context.Context, f settle.Failure) error {
	return s.Append(ctx, Entry{
		CallID:        f.CallID,
		PayerID:       f.PayerID,
		PayeeID:       f.PayeeID,
		FailedLeg:     f.FailedLeg,
		ChargedCoins:  f.Charged,
		EarningsCoins: f.Earnings,
		Detail:        f.Detail,
	})
}
