// models.go -- Shared domain types for the store package.
// Sessions live in Redis (or memory); local user records live in Postgres.
package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrCacheMiss is returned by GetSession when the key is not stored.
// Callers use errors.Is to distinguish a true miss from an infrastructure failure.
var ErrCacheMiss = errors.New("cache miss")

// Session is the JSON shape stored per session key.
// User holds whatever the authenticator's serializer produced; nil means logged out.
type Session struct {
	ID        uuid.UUID             `json:"id"`
	User      json.RawMessage       `json:"user,omitempty"`
	OAuth     map[string]OAuthState `json:"oauth,omitempty"` // keyed by strategy name
	ExpiresAt time.Time             `json:"expires_at"`
}

// OAuthState is the per-strategy data round-tripped between the authorization
// redirect and the callback. Consumed on the first callback.
type OAuthState struct {
	State    string `json:"state,omitempty"`
	Verifier string `json:"verifier,omitempty"`
}

// User represents a row in the oauth_users table.
// Keyed by (provider, provider_id); AvatarURL is nil when the provider sent none.
type User struct {
	ID          uuid.UUID `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
