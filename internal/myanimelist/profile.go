// profile.go -- Fetching and normalizing the MyAnimeList user profile.
package myanimelist

import (
	"bytes"
	"context"
	"encoding/json"
)

// Profile is the normalized MyAnimeList user. JSON field names follow the
// common OAuth profile shape so serialized sessions stay provider-agnostic.
type Profile struct {
	Provider    string `json:"provider"`
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Picture     string `json:"picture,omitempty"`
	Location    string `json:"location,omitempty"`
	JoinedAt    string `json:"joinedAt"`

	RawBody string         `json:"_raw"`
	RawJSON map[string]any `json:"_json"`
}

// UserProfile fetches /v2/users/@me with accessToken and normalizes it.
// Returns *ProfileFetchError on transport failure, *ProfileParseError on malformed JSON.
func (s *Strategy) UserProfile(ctx context.Context, accessToken string) (*Profile, error) {
	body, err := s.client.Get(ctx, s.cfg.ProfileURL, accessToken)
	if err != nil {
		return nil, &ProfileFetchError{Message: profileFetchMessage, Err: err}
	}
	return parseProfile(body)
}

// parseProfile maps a /v2/users/@me payload to a Profile.
// picture and location are only set when present and non-empty.
func parseProfile(body []byte) (*Profile, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, &ProfileParseError{Err: err}
	}
	if raw == nil {
		return nil, &ProfileParseError{Err: errNotObject}
	}
	if dec.More() {
		return nil, &ProfileParseError{Err: errTrailingData}
	}

	p := &Profile{
		Provider:    Name,
		ID:          stringField(raw, "id"),
		DisplayName: stringField(raw, "name"),
		JoinedAt:    stringField(raw, "joined_at"),
		RawBody:     string(body),
		RawJSON:     raw,
	}
	if v := stringField(raw, "picture"); v != "" {
		p.Picture = v
	}
	if v := stringField(raw, "location"); v != "" {
		p.Location = v
	}
	return p, nil
}

// stringField returns raw[key] as a string. Numbers keep their literal form;
// missing keys, null and other types give "".
func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
