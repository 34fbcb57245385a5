// authenticator.go -- Session-based OAuth2 login middleware.
//
// Strategies register by name with Use. Authenticate(name) serves both legs of
// the authorization-code flow from one route: without a code it redirects to the
// provider, with one it verifies state, exchanges the code and logs the user in.
// State and PKCE verifiers round-trip through the session store.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MGallo-Code/malauth/internal/oauth"
	"github.com/MGallo-Code/malauth/internal/store"
	"golang.org/x/oauth2"
)

// ErrUnknownStrategy is returned when Authenticate names an unregistered strategy.
var ErrUnknownStrategy = errors.New("auth: unknown strategy")

// ErrStateMismatch marks a callback whose state doesn't match the session.
var ErrStateMismatch = errors.New("auth: unable to verify authorization request state")

// AuthorizationError carries an error the provider returned on the callback URL.
type AuthorizationError struct {
	Code        string
	Description string
	URI         string
}

func (e *AuthorizationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("auth: authorization failed: %s: %s", e.Code, e.Description)
	}
	return "auth: authorization failed: " + e.Code
}

// TokenError wraps a failed authorization-code exchange.
type TokenError struct {
	Err error
}

func (e *TokenError) Error() string { return "auth: failed to obtain access token: " + e.Err.Error() }

func (e *TokenError) Unwrap() error { return e.Err }

// SessionStore defines session persistence needed by the authenticator.
// Satisfied by *store.RedisSessionStore and *store.MemorySessionStore.
type SessionStore interface {
	// GetSession returns store.ErrCacheMiss when key is absent or expired.
	GetSession(ctx context.Context, key string) (*store.Session, error)

	// SetSession stores sess under key, expiring after ttl.
	SetSession(ctx context.Context, key string, sess store.Session, ttl time.Duration) error

	// DeleteSession removes key; missing keys are not an error.
	DeleteSession(ctx context.Context, key string) error
}

// Strategy is an OAuth2 login strategy. Satisfied by *myanimelist.Strategy.
type Strategy interface {
	// Name identifies the strategy in routes and session state.
	Name() string

	// UsesState reports whether a state value must be round-tripped.
	UsesState() bool

	// PKCEMethod returns the PKCE transform, "" when PKCE is off.
	PKCEMethod() string

	// AuthCodeURL builds the provider consent URL.
	AuthCodeURL(state, verifier string) string

	// Exchange trades the callback code for a token.
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)

	// Verify resolves a token to an application user. (nil, nil) rejects the login.
	Verify(ctx context.Context, token *oauth2.Token) (any, error)
}

// SerializeFunc turns a verified user into the bytes kept in the session.
type SerializeFunc func(ctx context.Context, user any) ([]byte, error)

// DeserializeFunc restores a user from session bytes. (nil, nil) drops the login.
type DeserializeFunc func(ctx context.Context, data []byte) (any, error)

// Options controls where Authenticate sends the browser once the flow completes.
// Empty redirects fall back to JSON responses.
type Options struct {
	SuccessRedirect string
	FailureRedirect string
}

// Authenticator holds registered strategies and the session plumbing.
// Configure fields and call Use before serving; it is read-only afterwards.
type Authenticator struct {
	Sessions   SessionStore
	SessionTTL time.Duration // 0 means DefaultSessionTTL

	// InsecureCookies drops the Secure flag (and the __Host- prefix) for plain-HTTP development.
	InsecureCookies bool

	// LoginURL is where RequireAuth redirects anonymous requests; empty means 401.
	LoginURL string

	// Serialize and Deserialize default to JSON encoding of the user value.
	Serialize   SerializeFunc
	Deserialize DeserializeFunc

	strategies map[string]Strategy
}

// Use registers s under s.Name(), replacing any strategy with the same name.
func (a *Authenticator) Use(s Strategy) {
	if a.strategies == nil {
		a.strategies = make(map[string]Strategy)
	}
	a.strategies[s.Name()] = s
}

// Strategy returns the strategy registered under name.
func (a *Authenticator) Strategy(name string) (Strategy, bool) {
	s, ok := a.strategies[name]
	return s, ok
}

// Authenticate returns a handler running the named strategy's login flow.
func (a *Authenticator) Authenticate(name string, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := a.Strategy(name)
		if !ok {
			InternalServerError(w, r, fmt.Errorf("%w: %s", ErrUnknownStrategy, name))
			return
		}

		q := r.URL.Query()
		if code := q.Get("error"); code != "" {
			if code == "access_denied" {
				logInfo(r, "oauth callback: user denied access", "strategy", name)
				a.fail(w, r, opts)
				return
			}
			err := &AuthorizationError{Code: code, Description: q.Get("error_description"), URI: q.Get("error_uri")}
			logWarn(r, "oauth callback: provider returned error", "strategy", name, "error", err)
			InternalServerError(w, r, err)
			return
		}

		if code := q.Get("code"); code != "" {
			a.callback(w, r, s, code, opts)
			return
		}
		a.redirect(w, r, s)
	}
}

// redirect stores fresh state/verifier in the session and sends the browser to the provider.
func (a *Authenticator) redirect(w http.ResponseWriter, r *http.Request, s Strategy) {
	var st store.OAuthState
	if s.UsesState() {
		state, err := randomString(32)
		if err != nil {
			InternalServerError(w, r, err)
			return
		}
		st.State = state
	}
	if s.PKCEMethod() != "" {
		st.Verifier = oauth.GenerateVerifier()
	}

	if st != (store.OAuthState{}) {
		if err := a.storeOAuthState(w, r, s.Name(), st); err != nil {
			InternalServerError(w, r, err)
			return
		}
	}

	logDebug(r, "redirecting to provider", "strategy", s.Name())
	http.Redirect(w, r, s.AuthCodeURL(st.State, st.Verifier), http.StatusFound)
}

// storeOAuthState saves st on the current session, starting one if needed.
func (a *Authenticator) storeOAuthState(w http.ResponseWriter, r *http.Request, name string, st store.OAuthState) error {
	sess, key, err := a.readSession(r)
	if err != nil {
		return err
	}
	if sess == nil {
		_, err := a.startSession(r.Context(), w, store.Session{OAuth: map[string]store.OAuthState{name: st}})
		return err
	}
	if sess.OAuth == nil {
		sess.OAuth = make(map[string]store.OAuthState)
	}
	sess.OAuth[name] = st
	return a.saveSession(r.Context(), key, sess)
}

// callback completes the flow: state check, code exchange, verify, login.
func (a *Authenticator) callback(w http.ResponseWriter, r *http.Request, s Strategy, code string, opts Options) {
	name := s.Name()

	sess, key, err := a.readSession(r)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	var st store.OAuthState
	if sess != nil {
		st = sess.OAuth[name]
		// State is single use; consume it before anything else can fail.
		if _, ok := sess.OAuth[name]; ok {
			delete(sess.OAuth, name)
			if err := a.saveSession(r.Context(), key, sess); err != nil {
				logWarn(r, "oauth callback: failed to clear oauth state", "error", err)
			}
		}
	}

	if s.UsesState() {
		got := r.URL.Query().Get("state")
		if st.State == "" || subtle.ConstantTimeCompare([]byte(st.State), []byte(got)) != 1 {
			logWarn(r, "oauth callback: state mismatch", "strategy", name, "error", ErrStateMismatch)
			a.fail(w, r, opts)
			return
		}
	}

	token, err := s.Exchange(r.Context(), code, st.Verifier)
	if err != nil {
		InternalServerError(w, r, &TokenError{Err: err})
		return
	}

	user, err := s.Verify(r.Context(), token)
	if err != nil {
		InternalServerError(w, r, fmt.Errorf("verifying %s login: %w", name, err))
		return
	}
	if user == nil {
		logInfo(r, "oauth callback: verify rejected user", "strategy", name)
		a.fail(w, r, opts)
		return
	}

	if err := a.login(w, r, key, user); err != nil {
		InternalServerError(w, r, err)
		return
	}
	logInfo(r, "user logged in", "strategy", name)

	if opts.SuccessRedirect != "" {
		http.Redirect(w, r, opts.SuccessRedirect, http.StatusFound)
		return
	}
	OK(w, "authenticated")
}

// login serializes user into a brand-new session and drops oldKey, so a
// pre-login session id never becomes authenticated.
func (a *Authenticator) login(w http.ResponseWriter, r *http.Request, oldKey string, user any) error {
	data, err := a.serialize(r.Context(), user)
	if err != nil {
		return fmt.Errorf("serializing user: %w", err)
	}

	if oldKey != "" {
		if err := a.Sessions.DeleteSession(r.Context(), oldKey); err != nil {
			logWarn(r, "login: failed to delete pre-login session", "error", err)
		}
	}
	if _, err := a.startSession(r.Context(), w, store.Session{User: data}); err != nil {
		return err
	}
	return nil
}

// fail answers a rejected login.
func (a *Authenticator) fail(w http.ResponseWriter, r *http.Request, opts Options) {
	if opts.FailureRedirect != "" {
		http.Redirect(w, r, opts.FailureRedirect, http.StatusFound)
		return
	}
	Unauthorized(w, r, "authentication failed")
}

// Logout destroys the current session and clears the cookie.
// Redirects to redirectTo when set, otherwise replies with JSON.
func (a *Authenticator) Logout(redirectTo string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key := a.cookieKey(r); key != "" {
			if err := a.Sessions.DeleteSession(r.Context(), key); err != nil {
				logError(r, "logout: failed to delete session", "error", err)
				InternalServerError(w, r, err)
				return
			}
		}
		a.clearSessionCookie(w)
		logInfo(r, "user logged out")

		if redirectTo != "" {
			http.Redirect(w, r, redirectTo, http.StatusFound)
			return
		}
		OK(w, "logged out")
	}
}

func (a *Authenticator) serialize(ctx context.Context, user any) ([]byte, error) {
	if a.Serialize != nil {
		return a.Serialize(ctx, user)
	}
	return json.Marshal(user)
}

func (a *Authenticator) deserialize(ctx context.Context, data []byte) (any, error) {
	if a.Deserialize != nil {
		return a.Deserialize(ctx, data)
	}
	return json.RawMessage(data), nil
}
