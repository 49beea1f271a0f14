package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationStore is the token-id blacklist. Entries carry the token's
// own expiry so the set self-prunes and never grows unbounded. It is
// injected rather than global so tests can drive it with a fake clock.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevocations is the in-process implementation: a time-indexed set
// with lazy pruning. Insert and lookup are O(1); pruning amortizes over
// calls instead of needing a background goroutine.
type MemoryRevocations struct {
	mu        sync.Mutex
	now       func() time.Time
	entries   map[string]time.Time
	lastPrune time.Time
}

const pruneInterval = time.Minute

// NewMemoryRevocations builds an empty set. A nil clock means time.Now.
func NewMemoryRevocations(now func() time.Time) *MemoryRevocations {
	if now == nil {
		now = time.Now
	}
	return &MemoryRevocations{
		now:     now,
		entries: make(map[string]time.Time),
	}
}

func (m *MemoryRevocations) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.pruneLocked(now)
	if !expiresAt.After(now) {
		// Already expired; verification rejects it regardless.
		return nil
	}
	m.entries[tokenID] = expiresAt
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.pruneLocked(now)
	exp, ok := m.entries[tokenID]
	if !ok {
		return false, nil
	}
	if now.After(exp) {
		delete(m.entries, tokenID)
		return false, nil
	}
	return true, nil
}

// Len reports the current entry count (pruning first).
func (m *MemoryRevocations) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(m.now())
	return len(m.entries)
}

func (m *MemoryRevocations) pruneLocked(now time.Time) {
	if !m.lastPrune.IsZero() && now.Sub(m.lastPrune) < pruneInterval {
		return
	}
	for id, exp := range m.entries {
		if now.After(exp) {
			delete(m.entries, id)
		}
	}
	m.lastPrune = now
}
