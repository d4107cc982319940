package repository

import (
	"context"
	"time"
)

// RunState persists the small cross-run coordination state: the run lease
// that keeps triggered runs from overlapping, and the forward-sync cursor.
type RunState interface {
	// AcquireLease takes the named lease for owner if it is free, with a
	// staleness TTL. Returns false when another owner holds it.
	AcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// ReleaseLease frees the lease only if owner still holds it.
	ReleaseLease(ctx context.Context, key, owner string) error
	GetCursor(ctx context.Context, key string) (string, error)
	SetCursor(ctx context.Context, key, value string) error
}
