// memory.go -- In-process session store used when REDIS_URL is unset.
// Sessions do not survive a restart and are not shared between instances.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemorySessionStore keeps JSON-encoded sessions in a map with lazy expiry.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

// NewMemorySessionStore returns an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

// SetSession stores a copy of sess under key, expiring after ttl.
func (s *MemorySessionStore) SetSession(_ context.Context, key string, sess Session, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("caching session: non-positive ttl %v", ttl)
	}
	// Encode so callers can't mutate stored state through shared maps/slices.
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = memoryEntry{raw: raw, expiresAt: s.now().Add(ttl)}
	return nil
}

// GetSession returns ErrCacheMiss for missing or expired keys.
func (s *MemorySessionStore) GetSession(_ context.Context, key string) (*Session, error) {
	s.mu.Lock()
	e, ok := s.sessions[key]
	if ok && !s.now().Before(e.expiresAt) {
		delete(s.sessions, key)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, ErrCacheMiss
	}

	var sess Session
	if err := json.Unmarshal(e.raw, &sess); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	return &sess, nil
}

// DeleteSession removes key if present.
func (s *MemorySessionStore) DeleteSession(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
	return nil
}
