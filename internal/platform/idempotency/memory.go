package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. Expired entries are dropped by CleanupExpired,
// which the server calls from its sweep loop.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	id := hashKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[id]; ok && existing.live(now) {
		return existing.claimExisting(fingerprint)
	}
	e := pendingEntry(fingerprint, now, ttlOrDefault(ttl))
	s.entries[id] = e
	return Claim{Outcome: Proceed, Entry: e}, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, entry Entry, _ time.Duration) error {
	id := hashKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[id]; ok && existing.Fingerprint != entry.Fingerprint {
		return ErrFingerprintMismatch
	}
	s.entries[id] = entry
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, hashKey(key))
	s.mu.Unlock()
	return nil
}

// CleanupExpired drops expired entries and returns how many were removed.
func (s *MemoryStore) CleanupExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if !e.live(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
