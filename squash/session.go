// Package squash maintains the authenticated session against the SQuaSH dashboard API.
package squash

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Credentials identify the user a session is authenticated as.
type Credentials struct {
	Username string
	Password string
}

// String omits the password so credentials can be logged.
func (c Credentials) String() string {
	return c.Username
}

// Session is an authenticated handle on the upstream dashboard.
type Session interface {
	Get(ctx context.Context, u string, params url.Values) (*Response, error)
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Reason     string
	Body       []byte
}

// OK reports whether the upstream answered with a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// AuthFailed reports whether the upstream no longer accepts the session.
func (r *Response) AuthFailed() bool {
	return r.StatusCode == http.StatusForbidden || r.StatusCode == http.StatusUnauthorized
}

func (r *Response) upstreamError() *UpstreamError {
	return &UpstreamError{
		StatusCode: r.StatusCode,
		Reason:     r.Reason,
		Content:    string(r.Body),
	}
}

// reasonPhrase returns the reason phrase of the status line, falling back to the standard text.
func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		return http.StatusText(resp.StatusCode)
	}
	return reason
}

// cookieSession replays the session cookie issued by the OAuth2 proxy on every request.
type cookieSession struct {
	client *http.Client
}

var _ Session = &cookieSession{}

func (s *cookieSession) Get(ctx context.Context, u string, params url.Values) (*Response, error) {
	target, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("parse upstream URL: %w", err)
	}

	if len(params) > 0 {
		q := target.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // ignore body close

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamUnreachable, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
		Body:       body,
	}, nil
}
