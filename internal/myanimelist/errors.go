// errors.go -- Profile retrieval errors.
package myanimelist

import (
	"errors"
	"fmt"
)

const profileFetchMessage = "Failed to fetch user profile."

var (
	errNotObject    = errors.New("profile payload is not a json object")
	errTrailingData = errors.New("unexpected data after profile json")
)

// ProfileFetchError wraps a transport failure (network error, non-2xx status)
// while retrieving the profile. Message is always "Failed to fetch user profile.".
type ProfileFetchError struct {
	Message string
	Err     error
}

func (e *ProfileFetchError) Error() string {
	return fmt.Sprintf("myanimelist: %s (%v)", e.Message, e.Err)
}

func (e *ProfileFetchError) Unwrap() error { return e.Err }

// ProfileParseError wraps a failure to decode the profile response body.
type ProfileParseError struct {
	Err error
}

func (e *ProfileParseError) Error() string {
	return fmt.Sprintf("myanimelist: parsing user profile: %v", e.Err)
}

func (e *ProfileParseError) Unwrap() error { return e.Err }
