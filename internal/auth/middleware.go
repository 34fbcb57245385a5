// middleware.go

// Session user middleware.
package auth

import (
	"context"
	"net/http"
)

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const userKey contextKey = "user"

// UserFromContext retrieves the logged-in user placed by LoadUser.
// Returns nil and false when the request is anonymous.
func UserFromContext(ctx context.Context) (any, bool) {
	u := ctx.Value(userKey)
	return u, u != nil
}

// LoadUser restores the session user into the request context when one exists.
// Anonymous requests pass through untouched.
func (a *Authenticator) LoadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}

		sess, key, err := a.readSession(r)
		if err != nil {
			InternalServerError(w, r, err)
			return
		}
		if sess == nil || len(sess.User) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.deserialize(r.Context(), sess.User)
		if err != nil {
			InternalServerError(w, r, err)
			return
		}
		if user == nil {
			// Stored user no longer resolves; drop the stale session.
			logWarn(r, "load user: session user not found, clearing session")
			if err := a.Sessions.DeleteSession(r.Context(), key); err != nil {
				logWarn(r, "load user: failed to delete stale session", "error", err)
			}
			a.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth runs LoadUser, then rejects anonymous requests: redirect to
// LoginURL when set, otherwise 401.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return a.LoadUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			logDebug(r, "require auth failed", "reason", "no_session_user")
			if a.LoginURL != "" {
				http.Redirect(w, r, a.LoginURL, http.StatusFound)
				return
			}
			Unauthorized(w, r, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	}))
}
