package shared

import (
	"context"
	"errors"
	"time"
)

// IdempotencyStore persists processed keys in idempotency_keys.
type IdempotencyStore struct {
	db  auditExecer
	now func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(db auditExecer) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: time.Now}
}

// CheckAndInsert claims key for module. A live claim yields
// ErrIdempotencyConflict; a claim older than staleAfter belongs to a worker
// that died mid-task and is taken over. Zero staleAfter never expires claims.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string, staleAfter time.Duration) error {
	if s == nil || s.db == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	now := s.now()
	if staleAfter <= 0 {
		tag, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO NOTHING`, key, module, now)
		return claimResult(tag.RowsAffected(), err)
	}
	tag, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET module = EXCLUDED.module, created_at = EXCLUDED.created_at
WHERE idempotency_keys.created_at < $4`, key, module, now, now.Add(-staleAfter))
	return claimResult(tag.RowsAffected(), err)
}

func claimResult(rows int64, err error) error {
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Delete releases a key so failed processing can be retried.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-olderThan))
	return err
}
