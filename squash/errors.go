package squash

import (
	"errors"
	"fmt"
)

var (
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	ErrNoSessionCookie     = errors.New("sign in did not issue a session cookie")
	ErrNilSession          = errors.New("authenticator returned nil session")
)

// AuthError is returned when the upstream rejects the credential exchange.
type AuthError struct {
	Username   string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("authentication failed for user %q", e.Username)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: upstream returned %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// UpstreamError carries a non-2xx upstream response verbatim.
type UpstreamError struct {
	StatusCode int
	Reason     string
	Content    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d %s", e.StatusCode, e.Reason)
}

// UpstreamAuthError is returned when the upstream rejects a freshly authenticated session.
type UpstreamAuthError struct {
	*UpstreamError
}

func (e *UpstreamAuthError) Error() string {
	return "upstream rejected session after reauthentication: " + e.UpstreamError.Error()
}

func (e *UpstreamAuthError) Unwrap() error {
	return e.UpstreamError
}
