package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
)

// --- SetSession + GetSession ---

func TestRedisSetAndGetSession(t *testing.T) {
	requireRedis(t)
	ctx := context.Background()

	t.Run("round-trip stores and retrieves session", func(t *testing.T) {
		key := "test_redis_set_get"
		id, _ := uuid.NewV7()
		sess := Session{
			ID:        id,
			User:      json.RawMessage(`{"id":"42"}`),
			OAuth:     map[string]OAuthState{"myanimelist": {State: "s1", Verifier: "v1"}},
			ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second),
		}
		t.Cleanup(func() { testRedis.DeleteSession(ctx, key) })

		if err := testRedis.SetSession(ctx, key, sess, time.Hour); err != nil {
			t.Fatalf("SetSession failed: %v", err)
		}

		got, err := testRedis.GetSession(ctx, key)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.ID != id {
			t.Errorf("ID: expected %v, got %v", id, got.ID)
		}
		if string(got.User) != `{"id":"42"}` {
			t.Errorf("User: got %s", got.User)
		}
		if got.OAuth["myanimelist"].Verifier != "v1" {
			t.Errorf("OAuth verifier: got %+v", got.OAuth)
		}
		if !got.ExpiresAt.Equal(sess.ExpiresAt) {
			t.Errorf("ExpiresAt: expected %v, got %v", sess.ExpiresAt, got.ExpiresAt)
		}
	})

	t.Run("rejects non-positive ttl", func(t *testing.T) {
		if err := testRedis.SetSession(ctx, "test_redis_zero_ttl", Session{}, 0); err == nil {
			t.Fatal("expected error for zero ttl, got nil")
		}
	})
}

// --- GetSession (miss) + DeleteSession ---

func TestRedisGetSessionMiss(t *testing.T) {
	requireRedis(t)

	_, err := testRedis.GetSession(context.Background(), "test_redis_nonexistent")
	if !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestRedisDeleteSession(t *testing.T) {
	requireRedis(t)
	ctx := context.Background()
	key := "test_redis_delete"

	if err := testRedis.SetSession(ctx, key, Session{ExpiresAt: time.Now().Add(time.Minute)}, time.Minute); err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}
	if err := testRedis.DeleteSession(ctx, key); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := testRedis.GetSession(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss after delete, got %v", err)
	}

	// Deleting again is not an error.
	if err := testRedis.DeleteSession(ctx, key); err != nil {
		t.Errorf("second DeleteSession: %v", err)
	}
}
