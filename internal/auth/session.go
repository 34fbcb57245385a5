// session.go

// Session token generation, cookie management, and session load/save.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MGallo-Code/malauth/internal/store"
	"github.com/gofrs/uuid/v5"
)

// Cookie names. __Host- requires Secure, so plain-HTTP setups use the bare name.
const (
	secureSessionCookie   = "__Host-session"
	insecureSessionCookie = "session"
)

// DefaultSessionTTL applies when Authenticator.SessionTTL is zero.
const DefaultSessionTTL = 24 * time.Hour

// GenerateToken returns 256-bit random session token and its SHA-256 hash.
// Token goes in the cookie; hash is the storage key.
func GenerateToken() (*[32]byte, *[32]byte, error) {
	var token [32]byte
	if _, err := rand.Read(token[:]); err != nil {
		return nil, nil, fmt.Errorf("generating token with rand: %w", err)
	}
	hash := sha256.Sum256(token[:])
	return &token, &hash, nil
}

// sessionKey maps a raw cookie token to its storage key.
func sessionKey(token []byte) string {
	hash := sha256.Sum256(token)
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

func (a *Authenticator) cookieName() string {
	if a.InsecureCookies {
		return insecureSessionCookie
	}
	return secureSessionCookie
}

func (a *Authenticator) sessionTTL() time.Duration {
	if a.SessionTTL <= 0 {
		return DefaultSessionTTL
	}
	return a.SessionTTL
}

// setSessionCookie writes the session cookie with HttpOnly, SameSite=Lax.
func (a *Authenticator) setSessionCookie(w http.ResponseWriter, rawToken [32]byte, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName(),
		Value:    base64.RawURLEncoding.EncodeToString(rawToken[:]),
		Path:     "/",
		HttpOnly: true,
		Secure:   !a.InsecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
	})
}

// clearSessionCookie overwrites the session cookie with MaxAge=-1 to trigger browser deletion.
func (a *Authenticator) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   !a.InsecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// cookieKey returns the storage key for the request's session cookie, "" if absent or malformed.
func (a *Authenticator) cookieKey(r *http.Request) string {
	c, err := r.Cookie(a.cookieName())
	if err != nil || c.Value == "" {
		return ""
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		logDebug(r, "ignoring malformed session cookie")
		return ""
	}
	return sessionKey(raw)
}

// readSession loads the request's session. Returns (nil, "", nil) when the
// request carries no live session; store failures are returned as errors.
func (a *Authenticator) readSession(r *http.Request) (*store.Session, string, error) {
	key := a.cookieKey(r)
	if key == "" {
		return nil, "", nil
	}
	sess, err := a.Sessions.GetSession(r.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrCacheMiss) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("loading session: %w", err)
	}
	if !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
		return nil, "", nil
	}
	return sess, key, nil
}

// startSession issues a fresh session token, stores sess under it and sets the cookie.
// sess.ID and sess.ExpiresAt are assigned here.
func (a *Authenticator) startSession(ctx context.Context, w http.ResponseWriter, sess store.Session) (string, error) {
	token, hash, err := GenerateToken()
	if err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}

	ttl := a.sessionTTL()
	sess.ID = id
	sess.ExpiresAt = time.Now().Add(ttl)
	key := base64.RawURLEncoding.EncodeToString(hash[:])

	if err := a.Sessions.SetSession(ctx, key, sess, ttl); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}
	a.setSessionCookie(w, *token, sess.ExpiresAt)
	return key, nil
}

// saveSession writes sess back under key, keeping its original expiry.
func (a *Authenticator) saveSession(ctx context.Context, key string, sess *store.Session) error {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return errors.New("saving session: session expired")
	}
	if err := a.Sessions.SetSession(ctx, key, *sess, ttl); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// randomString returns n random bytes, base64url encoded.
func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
