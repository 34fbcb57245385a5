// client.go -- Generic OAuth2 authorization-code client.
//
// Wraps golang.org/x/oauth2 with the pieces a login strategy needs on top of it:
// optional state, PKCE (plain or S256), and an authenticated GET for provider APIs.
// Provider-specific strategies compose a *Client; they never re-implement the protocol.
package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// PKCE transform methods (RFC 7636).
const (
	PKCEPlain = "plain"
	PKCES256  = "S256"
)

// defaultHTTPTimeout bounds every outbound call when the caller doesn't supply a client.
const defaultHTTPTimeout = 10 * time.Second

// Options configures a Client. ClientID, ClientSecret, CallbackURL, AuthorizationURL
// and TokenURL are required; NewClient returns *ConfigError if any is empty.
type Options struct {
	ClientID         string
	ClientSecret     string
	CallbackURL      string
	AuthorizationURL string
	TokenURL         string
	Scopes           []string

	// PKCEMethod enables PKCE when non-empty. Must be PKCEPlain or PKCES256.
	PKCEMethod string

	// UseState makes the authenticator round-trip a random state value through the session.
	UseState bool

	// HTTPClient is used for token exchange and GET requests. Nil means a client with a 10s timeout.
	HTTPClient *http.Client
}

// Client runs the authorization-code flow against a single provider.
// Safe for concurrent use once configured.
type Client struct {
	config     *oauth2.Config
	pkce       string
	useState   bool
	httpClient *http.Client

	// authHeaderForGET sends the access token as a bearer header instead of a query param.
	authHeaderForGET bool
}

// NewClient validates opts and returns a ready-to-use Client.
func NewClient(opts Options) (*Client, error) {
	required := []struct{ field, value string }{
		{"clientID", opts.ClientID},
		{"clientSecret", opts.ClientSecret},
		{"callbackURL", opts.CallbackURL},
		{"authorizationURL", opts.AuthorizationURL},
		{"tokenURL", opts.TokenURL},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, &ConfigError{Field: r.field}
		}
	}

	switch opts.PKCEMethod {
	case "", PKCEPlain, PKCES256:
	default:
		return nil, fmt.Errorf("oauth: unsupported pkce method %q", opts.PKCEMethod)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &Client{
		config: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.CallbackURL,
			Scopes:       opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthorizationURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		pkce:       opts.PKCEMethod,
		useState:   opts.UseState,
		httpClient: hc,
	}, nil
}

// UseAuthorizationHeaderForGET switches Get between bearer-header and query-param
// token transport. Call during construction, before the client is shared.
func (c *Client) UseAuthorizationHeaderForGET(on bool) {
	c.authHeaderForGET = on
}

// UsesState reports whether the caller must round-trip a state value.
func (c *Client) UsesState() bool { return c.useState }

// PKCEMethod returns the configured PKCE transform, "" when PKCE is off.
func (c *Client) PKCEMethod() string { return c.pkce }

// AuthCodeURL builds the provider consent URL.
// state is omitted when empty; verifier is ignored when PKCE is off.
func (c *Client) AuthCodeURL(state, verifier string) string {
	var opts []oauth2.AuthCodeOption
	switch c.pkce {
	case PKCEPlain:
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", verifier),
			oauth2.SetAuthURLParam("code_challenge_method", PKCEPlain),
		)
	case PKCES256:
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return c.config.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for a token.
// verifier must be the one used to build the AuthCodeURL when PKCE is on.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	var opts []oauth2.AuthCodeOption
	if c.pkce != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	token, err := c.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	return token, nil
}

// Get issues an authenticated GET and returns the response body.
// Returns *HTTPError for non-2xx responses; the body is still read and attached.
func (c *Client) Get(ctx context.Context, rawURL, accessToken string) ([]byte, error) {
	if !c.authHeaderForGET {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parsing url: %w", err)
		}
		q := u.Query()
		q.Set("access_token", accessToken)
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if c.authHeaderForGET {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// GenerateVerifier returns a fresh PKCE code verifier (32 random bytes, base64url).
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}
