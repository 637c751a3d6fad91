package openaire

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAuthentication is returned when no access token could be obtained.
var ErrAuthentication = errors.New("authentication failed")

// APIError describes a failed request against a resource endpoint.
type APIError struct {
	Method     string
	URL        string
	StatusCode int    // zero when no response was received
	Body       string // truncated response body
	Err        error  // transport error, if any
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsServerError reports whether the remote side failed (5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode <= 599
}

// Retryable reports whether the request may succeed when repeated: server
// errors, timeouts and transport failures are, client errors are not.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 0 || e.IsServerError()
}

// StatusCode extracts the HTTP status of an APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
