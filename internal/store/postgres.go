// Package store handles session persistence and local user records.
//
// postgres.go -- pgxpool connection setup and user queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements.
package store

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore holds local user records keyed by (provider, provider_id).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and pings it.
// Call once at startup; the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

const userColumns = "id, provider, provider_id, display_name, avatar_url, created_at, updated_at"

// UpsertOAuthUser inserts a user for (provider, providerID) or refreshes the
// display name and avatar of the existing one. id is only used on insert.
// Returns the stored row.
func (s *PostgresStore) UpsertOAuthUser(ctx context.Context, id uuid.UUID, provider, providerID, displayName string, avatarURL *string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		INSERT INTO oauth_users (id, provider, provider_id, display_name, avatar_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, provider_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    avatar_url   = EXCLUDED.avatar_url,
		    updated_at   = now()
		RETURNING `+userColumns,
		id, provider, providerID, displayName, avatarURL,
	).Scan(&u.ID, &u.Provider, &u.ProviderID, &u.DisplayName, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting oauth user: %w", err)
	}
	return &u, nil
}

// GetUserByID fetches a user by primary key.
// Returns an error wrapping pgx.ErrNoRows if no row matches.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM oauth_users WHERE id = $1", id,
	).Scan(&u.ID, &u.Provider, &u.ProviderID, &u.DisplayName, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return &u, nil
}
