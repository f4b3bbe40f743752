package transport

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means the request needed credentials the client does
	// not have, or the server rejected them. *HTTPError with status 401
	// matches it via errors.Is.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSessionExpired means the refresh token was rejected and the local
	// session has been cleared. The user must log in again.
	ErrSessionExpired = errors.New("session expired")
)

// HTTPError is a non-2xx response that was not recovered by retry or refresh.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets errors.Is(err, ErrUnauthorized) match a 401 response.
func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// StatusCode extracts the HTTP status from err, or 0 if err is not an *HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
