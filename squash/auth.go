package squash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/publicsuffix"
)

const (
	DefaultSignInPath      = "/oauth2/sign_in"
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultAuthRetries     = 2
)

// Authenticator exchanges credentials for an upstream session.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (Session, error)
}

type AuthConfig struct {
	// SignInURL is the OAuth2 proxy endpoint accepting username/password sign in
	SignInURL string
	// Timeout bounds each upstream request made by the session, zero means no timeout
	Timeout time.Duration
	// MaxRetries is how many times a sign in failing at the transport level is retried
	MaxRetries int
	Transport  http.RoundTripper
}

// OAuth2Proxy signs in to the OAuth2 proxy fronting the dashboard and keeps the issued
// session cookie in a jar shared by every request of the resulting session.
type OAuth2Proxy struct {
	signInURL  string
	timeout    time.Duration
	retries    uint64
	transport  http.RoundTripper
	newBackOff func() backoff.BackOff
}

var _ Authenticator = &OAuth2Proxy{}

// NewTransport returns the transport shared by sign in and session requests.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
}

func NewOAuth2Proxy(cfg AuthConfig) *OAuth2Proxy {
	transport := cfg.Transport
	if transport == nil {
		transport = NewTransport()
	}

	return &OAuth2Proxy{
		signInURL: cfg.SignInURL,
		timeout:   cfg.Timeout,
		retries:   uint64(max(0, cfg.MaxRetries)),
		transport: transport,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

func (a *OAuth2Proxy) Authenticate(ctx context.Context, creds Credentials) (Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	signInClient := &http.Client{
		Timeout:   a.timeout,
		Transport: a.transport,
		Jar:       jar,
		// the proxy answers a successful sign in with a redirect we do not need to follow
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	b := backoff.WithContext(backoff.WithMaxRetries(a.newBackOff(), a.retries), ctx)
	err = backoff.Retry(func() error {
		return a.signIn(ctx, signInClient, creds)
	}, b)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, authErr
		}
		return nil, &AuthError{Username: creds.Username, Err: err}
	}

	return &cookieSession{
		client: &http.Client{
			Timeout:   a.timeout,
			Transport: a.transport,
			Jar:       jar,
		},
	}, nil
}

// signIn posts the credentials to the sign in endpoint. Transport failures and 5xx answers
// are retryable, any other rejection is permanent.
func (a *OAuth2Proxy) signIn(ctx context.Context, client *http.Client, creds Credentials) error {
	form := url.Values{
		"username": {creds.Username},
		"password": {creds.Password},
		"rd":       {"/"},
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, a.signInURL, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // ignore body close
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return &AuthError{Username: creds.Username, StatusCode: resp.StatusCode}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return backoff.Permanent(&AuthError{Username: creds.Username, StatusCode: resp.StatusCode})
	}

	if len(client.Jar.Cookies(req.URL)) == 0 {
		return backoff.Permanent(&AuthError{
			Username:   creds.Username,
			StatusCode: resp.StatusCode,
			Err:        ErrNoSessionCookie,
		})
	}

	return nil
}
