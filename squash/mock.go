package squash

import (
	"context"
	"net/http"
	"net/url"
)

// Mocker mocks the upstream interfaces for unit testing
type Mocker struct {
	AuthenticateFunc func(ctx context.Context, creds Credentials) (Session, error)
	GetFunc          func(ctx context.Context, u string, params url.Values) (*Response, error)
	RoundTripFunc    func(*http.Request) (*http.Response, error)
}

var (
	_ Authenticator     = &Mocker{}
	_ Session           = &Mocker{}
	_ http.RoundTripper = &Mocker{}
)

func (m *Mocker) Authenticate(ctx context.Context, creds Credentials) (Session, error) {
	return m.AuthenticateFunc(ctx, creds)
}

func (m *Mocker) Get(ctx context.Context, u string, params url.Values) (*Response, error) {
	return m.GetFunc(ctx, u, params)
}

func (m *Mocker) RoundTrip(r *http.Request) (*http.Response, error) {
	return m.RoundTripFunc(r)
}
