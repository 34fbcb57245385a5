// users.go -- How a MyAnimeList login becomes a session user.
//
// Without a database the normalized profile is the user and is stored whole in
// the session. With one, logins upsert an oauth_users row and the session keeps
// only its id.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MGallo-Code/malauth/internal/auth"
	"github.com/MGallo-Code/malauth/internal/myanimelist"
	"github.com/MGallo-Code/malauth/internal/store"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// userStore defines the user record operations needed at login.
// Satisfied by *store.PostgresStore.
type userStore interface {
	UpsertOAuthUser(ctx context.Context, id uuid.UUID, provider, providerID, displayName string, avatarURL *string) (*store.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*store.User, error)
}

// wireProfileSessions stores the whole profile in the session and restores it as *myanimelist.Profile.
func wireProfileSessions(a *auth.Authenticator) myanimelist.VerifyFunc {
	a.Serialize = func(_ context.Context, user any) ([]byte, error) {
		return json.Marshal(user)
	}
	a.Deserialize = func(_ context.Context, data []byte) (any, error) {
		var p myanimelist.Profile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decoding session profile: %w", err)
		}
		return &p, nil
	}
	return func(_ context.Context, _, _ string, profile *myanimelist.Profile) (any, error) {
		return profile, nil
	}
}

// wireUserRecords upserts the profile into users and keeps only the local user id in the session.
func wireUserRecords(a *auth.Authenticator, users userStore) myanimelist.VerifyFunc {
	a.Serialize = func(_ context.Context, user any) ([]byte, error) {
		u, ok := user.(*store.User)
		if !ok {
			return nil, fmt.Errorf("serializing session user: unexpected type %T", user)
		}
		return json.Marshal(u.ID)
	}
	a.Deserialize = func(ctx context.Context, data []byte) (any, error) {
		var id uuid.UUID
		if err := json.Unmarshal(data, &id); err != nil {
			return nil, fmt.Errorf("decoding session user id: %w", err)
		}
		u, err := users.GetUserByID(ctx, id)
		if err != nil {
			// Deleted user: drop the login instead of failing the request.
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, err
		}
		return u, nil
	}
	return func(ctx context.Context, _, _ string, profile *myanimelist.Profile) (any, error) {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generating user id: %w", err)
		}
		var avatar *string
		if profile.Picture != "" {
			avatar = &profile.Picture
		}
		u, err := users.UpsertOAuthUser(ctx, id, profile.Provider, profile.ID, profile.DisplayName, avatar)
		if err != nil {
			return nil, fmt.Errorf("upserting myanimelist user: %w", err)
		}
		return u, nil
	}
}
