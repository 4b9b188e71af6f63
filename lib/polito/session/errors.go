package session

import "fmt"

// AuthError is terminal: the portal rejected the credentials or the
// login chain could not be resolved. It is never retried.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed: %s", e.Message)
}

var ErrNotSignedIn = &AuthError{Message: "You must login first."}

// StatusError reports a non-2xx response that no hook absorbed.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s answered with status %d", e.URL, e.StatusCode)
}
