package record

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("record: not found")

// Store persists call records. Writes are tolerant of lag: the coordinator
// applies in-memory transitions first and archives after, so Update must be
// an upsert-by-callID patch, never a precondition check.
type Store interface {
	Create(ctx context.Context, r CallRecord) error
	Update(ctx context.Context, r CallRecord) error
	Find(ctx context.Context, callID string) (CallRecord, error)
	ListByIdentity(ctx context.Context, identity string, limit int) ([]CallRecord, error)
	Summary(ctx context.Context, identity string) (UsageSummary, error)
}
