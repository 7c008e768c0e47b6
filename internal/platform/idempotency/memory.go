package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process. Used by the memory backend and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Reserve(_ context.Context, claim Claim) (Outcome, Entry, error) {
	claim = claim.normalised()
	id := claim.Key.ID()

	s.mu.Lock()
	defer s.mu.Unlock()

	var current *Entry
	if entry, ok := s.entries[id]; ok {
		current = &entry
	}
	outcome, entry, err := decide(current, claim)
	if err != nil {
		return 0, Entry{}, err
	}
	if outcome == OutcomeAcquired {
		s.entries[id] = entry
	}
	return outcome, entry, nil
}

func (s *MemoryStore) Complete(_ context.Context, claim Claim, resp Response) error {
	claim = claim.normalised()
	id := claim.Key.ID()

	s.mu.Lock()
	defer s.mu.Unlock()

	var current *Entry
	if entry, ok := s.entries[id]; ok {
		current = &entry
	}
	entry, err := completed(current, claim, resp)
	if err != nil {
		return err
	}
	s.entries[id] = entry
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key Key) error {
	s.mu.Lock()
	delete(s.entries, key.ID())
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if limit > 0 && removed >= limit {
			break
		}
		if entry.expired(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}
