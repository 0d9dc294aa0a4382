package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and single-node setups.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data      Data
	expiresAt time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source; test hook.
func (s *MemoryStore) SetClock(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

func (s *MemoryStore) Put(_ context.Context, accessToken string, data Data, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	s.entries[accessToken] = memoryEntry{data: data, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, accessToken string) (Data, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[accessToken]
	s.mu.RUnlock()
	if !ok {
		return Data{}, false, nil
	}
	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, accessToken)
		s.mu.Unlock()
		return Data{}, false, nil
	}
	return entry.data, true, nil
}

func (s *MemoryStore) Remove(_ context.Context, accessToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[accessToken]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.entries, accessToken)
		return false, nil
	}
	if entry.data.RefreshToken != "" {
		delete(s.entries, entry.data.RefreshToken)
	}
	delete(s.entries, accessToken)
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
