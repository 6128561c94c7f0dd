package cache

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Memory is an in-process Store. Concurrent writers to the same key are
// last-writer-wins.
type Memory struct {
	records *xsync.Map[string, Record]
	now     func() time.Time
}

// NewMemory constructs an empty in-process store.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock constructs a store that reads time from now.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		records: xsync.NewMap[string, Record](),
		now:     now,
	}
}

// Get returns a copy of the unexpired record value for key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	rec, ok := m.records.Load(key)
	if !ok {
		return nil, false, nil
	}
	if now := m.now(); rec.Expired(now) {
		m.deleteExpired(key, now)
		return nil, false, nil
	}
	return clone(rec.Value), true, nil
}

// Set stores value until now+ttl.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.records.Store(key, Record{Value: clone(value), ExpiresAt: m.now().Add(ttl)})
	return nil
}

// Sweep drops expired records and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()
	removed := 0
	m.records.Range(func(key string, rec Record) bool {
		if rec.Expired(now) && m.deleteExpired(key, now) {
			removed++
		}
		return true
	})
	return removed
}

// deleteExpired removes key only if the record held right now is still expired,
// so a concurrent Set is never lost.
func (m *Memory) deleteExpired(key string, now time.Time) bool {
	deleted := false
	m.records.Compute(key, func(rec Record, loaded bool) (Record, xsync.ComputeOp) {
		if !loaded || !rec.Expired(now) {
			return rec, xsync.CancelOp
		}
		deleted = true
		return rec, xsync.DeleteOp
	})
	return deleted
}

// Len reports the number of records held, expired or not.
func (m *Memory) Len() int {
	return m.records.Size()
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ Store = (*Memory)(nil)
