package myanimelist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MGallo-Code/malauth/internal/oauth"
)

// --- Shared helpers ---

// roundTripFunc adapts a function to http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// failingClient returns an http.Client whose every request fails with err.
func failingClient(err error) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, err
	})}
}

// profileServer serves body as the /v2/users/@me response.
func profileServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newTestStrategy builds a Strategy whose profile endpoint is srv.
func newTestStrategy(t *testing.T, srv *httptest.Server, verify VerifyFunc) *Strategy {
	t.Helper()
	cfg := baseConfig()
	cfg.ProfileURL = srv.URL + "/v2/users/@me"
	cfg.HTTPClient = srv.Client()
	s, err := New(cfg, verify)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// --- UserProfile ---

func TestUserProfile_RequiredFields(t *testing.T) {
	body := `{"id": 42, "name": "alice", "joined_at": "2020-01-01"}`
	s := newTestStrategy(t, profileServer(t, body), noopVerify)

	p, err := s.UserProfile(context.Background(), "tok")
	if err != nil {
		t.Fatalf("UserProfile: %v", err)
	}
	if p.Provider != "myanimelist" {
		t.Errorf("Provider: expected myanimelist, got %q", p.Provider)
	}
	if p.ID != "42" {
		t.Errorf("ID: expected 42, got %q", p.ID)
	}
	if p.DisplayName != "alice" {
		t.Errorf("DisplayName: expected alice, got %q", p.DisplayName)
	}
	if p.JoinedAt != "2020-01-01" {
		t.Errorf("JoinedAt: expected 2020-01-01, got %q", p.JoinedAt)
	}
	if p.Picture != "" || p.Location != "" {
		t.Errorf("optional fields: expected empty, got picture=%q location=%q", p.Picture, p.Location)
	}
	if p.RawBody != body {
		t.Errorf("RawBody: expected original body, got %q", p.RawBody)
	}
	if p.RawJSON["name"] != "alice" {
		t.Errorf("RawJSON: expected parsed payload, got %v", p.RawJSON)
	}

	// Absent optional fields must not appear when the profile is serialized.
	encoded, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	json.Unmarshal(encoded, &fields)
	if _, ok := fields["picture"]; ok {
		t.Error("serialized profile: picture should be omitted")
	}
	if _, ok := fields["location"]; ok {
		t.Error("serialized profile: location should be omitted")
	}
	if fields["displayName"] != "alice" {
		t.Errorf("serialized profile: displayName got %v", fields["displayName"])
	}
}

func TestUserProfile_OptionalFields(t *testing.T) {
	t.Run("picture present", func(t *testing.T) {
		body := `{"id":42,"name":"alice","joined_at":"2020-01-01","picture":"http://x/p.png"}`
		s := newTestStrategy(t, profileServer(t, body), noopVerify)

		p, err := s.UserProfile(context.Background(), "tok")
		if err != nil {
			t.Fatalf("UserProfile: %v", err)
		}
		if p.Picture != "http://x/p.png" {
			t.Errorf("Picture: expected http://x/p.png, got %q", p.Picture)
		}
		if p.Location != "" {
			t.Errorf("Location: expected empty, got %q", p.Location)
		}
	})

	t.Run("location present", func(t *testing.T) {
		body := `{"id":42,"name":"alice","joined_at":"2020-01-01","location":"Tokyo"}`
		s := newTestStrategy(t, profileServer(t, body), noopVerify)

		p, err := s.UserProfile(context.Background(), "tok")
		if err != nil {
			t.Fatalf("UserProfile: %v", err)
		}
		if p.Location != "Tokyo" {
			t.Errorf("Location: expected Tokyo, got %q", p.Location)
		}
	})

	t.Run("empty and null values are omitted", func(t *testing.T) {
		body := `{"id":42,"name":"alice","joined_at":"2020-01-01","picture":"","location":null}`
		s := newTestStrategy(t, profileServer(t, body), noopVerify)

		p, err := s.UserProfile(context.Background(), "tok")
		if err != nil {
			t.Fatalf("UserProfile: %v", err)
		}
		if p.Picture != "" || p.Location != "" {
			t.Errorf("optional fields: expected empty, got picture=%q location=%q", p.Picture, p.Location)
		}
	})
}

func TestUserProfile_SendsBearerHeader(t *testing.T) {
	var gotAuth, gotPath, gotQueryToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQueryToken = r.URL.Query().Get("access_token")
		w.Write([]byte(`{"id":1,"name":"a","joined_at":"2020-01-01"}`))
	}))
	defer srv.Close()

	s := newTestStrategy(t, srv, noopVerify)
	if _, err := s.UserProfile(context.Background(), "secret-token"); err != nil {
		t.Fatalf("UserProfile: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization: expected Bearer secret-token, got %q", gotAuth)
	}
	if gotPath != "/v2/users/@me" {
		t.Errorf("path: expected /v2/users/@me, got %q", gotPath)
	}
	if gotQueryToken != "" {
		t.Errorf("access_token query: expected empty, got %q", gotQueryToken)
	}
}

func TestUserProfile_FetchError(t *testing.T) {
	t.Run("network error", func(t *testing.T) {
		netErr := errors.New("dial tcp: connection refused")
		cfg := baseConfig()
		cfg.HTTPClient = failingClient(netErr)
		s, err := New(cfg, noopVerify)
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		_, err = s.UserProfile(context.Background(), "tok")
		var fetchErr *ProfileFetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("expected *ProfileFetchError, got %v", err)
		}
		if fetchErr.Message != "Failed to fetch user profile." {
			t.Errorf("Message: got %q", fetchErr.Message)
		}
		if !errors.Is(err, netErr) {
			t.Error("expected fetch error to wrap the network error")
		}
		var parseErr *ProfileParseError
		if errors.As(err, &parseErr) {
			t.Error("fetch failure must not be a *ProfileParseError")
		}
	})

	t.Run("non-2xx status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_token"}`))
		}))
		defer srv.Close()
		s := newTestStrategy(t, srv, noopVerify)

		_, err := s.UserProfile(context.Background(), "expired")
		var fetchErr *ProfileFetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("expected *ProfileFetchError, got %v", err)
		}
		var httpErr *oauth.HTTPError
		if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected wrapped *oauth.HTTPError with 401, got %v", err)
		}
	})
}

func TestUserProfile_ParseError(t *testing.T) {
	bodies := map[string]string{
		"not json":      `not json`,
		"null":          `null`,
		"array":         `[1,2,3]`,
		"trailing data": `{"id":1} {"id":2}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			s := newTestStrategy(t, profileServer(t, body), noopVerify)

			_, err := s.UserProfile(context.Background(), "tok")
			var parseErr *ProfileParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ProfileParseError, got %v", err)
			}
			var fetchErr *ProfileFetchError
			if errors.As(err, &fetchErr) {
				t.Error("parse failure must not be a *ProfileFetchError")
			}
		})
	}
}

func TestUserProfile_StringID(t *testing.T) {
	s := newTestStrategy(t, profileServer(t, `{"id":"abc","name":"n","joined_at":"2020-01-01T00:00:00+00:00"}`), noopVerify)

	p, err := s.UserProfile(context.Background(), "tok")
	if err != nil {
		t.Fatalf("UserProfile: %v", err)
	}
	if p.ID != "abc" {
		t.Errorf("ID: expected abc, got %q", p.ID)
	}
	if p.JoinedAt != "2020-01-01T00:00:00+00:00" {
		t.Errorf("JoinedAt: expected verbatim value, got %q", p.JoinedAt)
	}
}

func TestUserProfile_Concurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		w.Write([]byte(`{"id":"` + tok + `","name":"n","joined_at":"2020-01-01"}`))
	}))
	defer srv.Close()
	s := newTestStrategy(t, srv, noopVerify)

	tokens := []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8"}
	var wg sync.WaitGroup
	errs := make(chan string, len(tokens))
	for _, tok := range tokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			p, err := s.UserProfile(context.Background(), tok)
			if err != nil {
				errs <- err.Error()
				return
			}
			if p.ID != tok {
				errs <- "id " + p.ID + " for token " + tok
			}
		}(tok)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}
