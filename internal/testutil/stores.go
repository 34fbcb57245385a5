// stores.go
//
// Shared mock implementations of the session and user stores.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MGallo-Code/malauth/internal/store"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// MockSessionStore implements auth.SessionStore for tests.
// Always stateful...Sessions is a map, like Redis.
// Use *Err fields to inject errors for specific operations.
type MockSessionStore struct {
	// Error injection...zero value means no error
	GetSessionErr    error
	SetSessionErr    error
	DeleteSessionErr error

	Sessions map[string]*store.Session // keyed by base64 token hash
	Deleted  []string                  // keys passed to DeleteSession, in order

	mu sync.Mutex
}

// NewMockSessionStore returns an empty MockSessionStore ready for use.
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{Sessions: make(map[string]*store.Session)}
}

func (m *MockSessionStore) GetSession(_ context.Context, key string) (*store.Session, error) {
	if m.GetSessionErr != nil {
		return nil, m.GetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[key]
	if !ok {
		return nil, store.ErrCacheMiss
	}
	cp := cloneSession(*s)
	return &cp, nil
}

func (m *MockSessionStore) SetSession(_ context.Context, key string, sess store.Session, _ time.Duration) error {
	if m.SetSessionErr != nil {
		return m.SetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Sessions == nil {
		m.Sessions = make(map[string]*store.Session)
	}
	cp := cloneSession(sess)
	m.Sessions[key] = &cp
	return nil
}

func (m *MockSessionStore) DeleteSession(_ context.Context, key string) error {
	if m.DeleteSessionErr != nil {
		return m.DeleteSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Sessions, key)
	m.Deleted = append(m.Deleted, key)
	return nil
}

// Len returns the number of stored sessions.
func (m *MockSessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sessions)
}

// Only returns the single stored session and its key; ok is false unless exactly one exists.
func (m *MockSessionStore) Only() (string, *store.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sessions) != 1 {
		return "", nil, false
	}
	for k, s := range m.Sessions {
		return k, s, true
	}
	return "", nil, false
}

// cloneSession deep-copies the map and raw user so tests can't alias stored state.
func cloneSession(s store.Session) store.Session {
	if s.User != nil {
		s.User = append(json.RawMessage(nil), s.User...)
	}
	if s.OAuth != nil {
		oauth := make(map[string]store.OAuthState, len(s.OAuth))
		for k, v := range s.OAuth {
			oauth[k] = v
		}
		s.OAuth = oauth
	}
	return s
}

// MockUserStore is an in-memory stand-in for *store.PostgresStore's user queries.
type MockUserStore struct {
	UpsertErr error
	GetErr    error

	Users map[uuid.UUID]*store.User

	mu sync.Mutex
}

// NewMockUserStore returns an empty MockUserStore.
func NewMockUserStore() *MockUserStore {
	return &MockUserStore{Users: make(map[uuid.UUID]*store.User)}
}

func (m *MockUserStore) UpsertOAuthUser(_ context.Context, id uuid.UUID, provider, providerID, displayName string, avatarURL *string) (*store.User, error) {
	if m.UpsertErr != nil {
		return nil, m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Provider == provider && u.ProviderID == providerID {
			u.DisplayName = displayName
			u.AvatarURL = avatarURL
			u.UpdatedAt = time.Now()
			cp := *u
			return &cp, nil
		}
	}
	now := time.Now()
	u := &store.User{
		ID:          id,
		Provider:    provider,
		ProviderID:  providerID,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.Users[id] = u
	cp := *u
	return &cp, nil
}

// Len returns the number of stored users.
func (m *MockUserStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Users)
}

// Clear removes every user, simulating deleted accounts.
func (m *MockUserStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.Users)
}

func (m *MockUserStore) GetUserByID(_ context.Context, id uuid.UUID) (*store.User, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return nil, fmt.Errorf("fetching user: %w", pgx.ErrNoRows)
	}
	cp := *u
	return &cp, nil
}
