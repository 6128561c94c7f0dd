package cache

import (
	"context"
	"time"
)

// Store holds raw RPC response bytes keyed by canonical request key.
// Get reports ok=false for both missing and expired records.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Record is a cached value with its expiry instant.
type Record struct {
	Value     []byte
	ExpiresAt time.Time
}

// Expired reports whether the record is no longer servable at now.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
