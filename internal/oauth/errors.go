// errors.go -- Error types raised by the generic OAuth2 client.
package oauth

import "fmt"

// ConfigError reports a required option missing at construction.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("oauth: %s is required", e.Field)
}

// HTTPError is returned by Client.Get when the provider answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("oauth: unexpected status %d", e.StatusCode)
}
