// Package myanimelist authenticates users against MyAnimeList using OAuth 2.0.
//
// The Strategy composes a generic *oauth.Client for the protocol and adds the
// MyAnimeList specifics: fixed endpoints, PKCE "plain", mandatory state, and
// normalization of the /v2/users/@me payload into a Profile.
//
//	s, err := myanimelist.New(myanimelist.Config{
//		ClientID:     os.Getenv("MAL_CLIENT_ID"),
//		ClientSecret: os.Getenv("MAL_CLIENT_SECRET"),
//		CallbackURL:  "https://example.net/auth/myanimelist/callback",
//	}, func(ctx context.Context, accessToken, refreshToken string, p *myanimelist.Profile) (any, error) {
//		return users.FindOrCreate(ctx, p.Provider, p.ID)
//	})
//	authenticator.Use(s)
package myanimelist

import (
	"context"
	"errors"
	"net/http"

	"github.com/MGallo-Code/malauth/internal/oauth"
	"golang.org/x/oauth2"
)

// Name is the identifier the strategy registers under.
const Name = "myanimelist"

// MyAnimeList endpoints.
const (
	AuthorizationURL = "https://myanimelist.net/v1/oauth2/authorize"
	TokenURL         = "https://myanimelist.net/v1/oauth2/token"
	ProfileURL       = "https://api.myanimelist.net/v2/users/@me"
)

// ErrUnsupportedPKCEMethod is returned by New for any PKCE method other than "plain".
// MyAnimeList only implements the plain transform.
var ErrUnsupportedPKCEMethod = errors.New("myanimelist: only the plain pkce method is supported")

// Config holds caller-supplied strategy options. ClientID, ClientSecret and
// CallbackURL are required; everything else has a MyAnimeList default.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string

	PKCEMethod       string // default "plain"
	UseState         bool   // forced true, the PKCE verifier is stored alongside state
	TokenURL         string
	AuthorizationURL string
	ProfileURL       string

	// HTTPClient overrides the transport used for token exchange and profile fetch.
	HTTPClient *http.Client
}

// Resolve returns a copy of c with defaults applied to zero-valued fields.
func (c Config) Resolve() Config {
	if c.PKCEMethod == "" {
		c.PKCEMethod = oauth.PKCEPlain
	}
	if !c.UseState {
		c.UseState = true
	}
	if c.TokenURL == "" {
		c.TokenURL = TokenURL
	}
	if c.AuthorizationURL == "" {
		c.AuthorizationURL = AuthorizationURL
	}
	if c.ProfileURL == "" {
		c.ProfileURL = ProfileURL
	}
	return c
}

// VerifyFunc maps MyAnimeList credentials to an application user.
// Return (nil, nil) to reject the login without raising an error.
type VerifyFunc func(ctx context.Context, accessToken, refreshToken string, profile *Profile) (any, error)

// Strategy is the MyAnimeList login strategy. Immutable after New; safe for concurrent use.
type Strategy struct {
	cfg    Config
	client *oauth.Client
	verify VerifyFunc
}

// New resolves cfg and builds the strategy.
// Missing required fields surface as *oauth.ConfigError.
func New(cfg Config, verify VerifyFunc) (*Strategy, error) {
	cfg = cfg.Resolve()
	if verify == nil {
		return nil, &oauth.ConfigError{Field: "verify"}
	}
	if cfg.PKCEMethod != oauth.PKCEPlain {
		return nil, ErrUnsupportedPKCEMethod
	}

	client, err := oauth.NewClient(oauth.Options{
		ClientID:         cfg.ClientID,
		ClientSecret:     cfg.ClientSecret,
		CallbackURL:      cfg.CallbackURL,
		AuthorizationURL: cfg.AuthorizationURL,
		TokenURL:         cfg.TokenURL,
		PKCEMethod:       cfg.PKCEMethod,
		UseState:         cfg.UseState,
		HTTPClient:       cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	// Profile requests carry the token as a bearer header.
	client.UseAuthorizationHeaderForGET(true)

	return &Strategy{cfg: cfg, client: client, verify: verify}, nil
}

// Name returns "myanimelist".
func (s *Strategy) Name() string { return Name }

// Config returns the resolved configuration.
func (s *Strategy) Config() Config { return s.cfg }

// UsesState reports whether a state value must be round-tripped. Always true.
func (s *Strategy) UsesState() bool { return s.client.UsesState() }

// PKCEMethod returns "plain".
func (s *Strategy) PKCEMethod() string { return s.client.PKCEMethod() }

// AuthCodeURL returns the MyAnimeList consent page URL.
func (s *Strategy) AuthCodeURL(state, verifier string) string {
	return s.client.AuthCodeURL(state, verifier)
}

// Exchange trades the callback code for an access token.
func (s *Strategy) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	return s.client.Exchange(ctx, code, verifier)
}

// Verify fetches the profile for token and hands it to the verify callback.
// Profile errors are returned as-is and the callback is not invoked.
func (s *Strategy) Verify(ctx context.Context, token *oauth2.Token) (any, error) {
	profile, err := s.UserProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, token.AccessToken, token.RefreshToken, profile)
}
