package squash

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

const (
	authCountMetric = "squash_authentications_total"

	authResultSuccess = "success"
	authResultFailure = "failure"
)

// SessionManager owns the single upstream session shared by every inbound request.
// The session is bound to the credentials it was authenticated with; a request carrying
// different credentials replaces it.
type SessionManager struct {
	mu      sync.Mutex
	session Session
	creds   Credentials

	auth        Authenticator
	authCounter *prometheus.CounterVec
	log         *logrus.Entry
}

// NewSessionManager builds an empty manager. reg may be nil to skip metric registration.
func NewSessionManager(auth Authenticator, reg prometheus.Registerer, log *logrus.Entry) *SessionManager {
	return &SessionManager{
		auth: auth,
		authCounter: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: authCountMetric,
				Help: "Upstream sign in attempts by result.",
			},
			[]string{"result"},
		),
		log: log.WithField("component", "session"),
	}
}

// Ensure returns the cached session when it is bound to creds, otherwise it authenticates
// creds and replaces the cache. A failed authentication leaves the cache empty.
func (m *SessionManager) Ensure(ctx context.Context, creds Credentials) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.creds == creds {
		return m.session, nil
	}

	m.session = nil
	m.creds = Credentials{}

	session, err := m.auth.Authenticate(ctx, creds)
	if err == nil && session == nil {
		err = ErrNilSession
	}
	if err != nil {
		m.authCounter.WithLabelValues(authResultFailure).Inc()
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			err = &AuthError{Username: creds.Username, Err: err}
		}
		m.log.WithError(err).WithField("username", creds.Username).Warn("authentication failed")
		return nil, err
	}

	m.authCounter.WithLabelValues(authResultSuccess).Inc()
	m.session = session
	m.creds = creds
	m.log = m.log.WithField("username", creds.Username)
	m.log.Info("reauthenticated")
	return session, nil
}

// Invalidate drops the cached session so the next Ensure authenticates again.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = nil
	m.creds = Credentials{}
}

// Get fetches u through the session bound to creds. When the upstream rejects the session it
// is invalidated, re-authenticated and the fetch retried exactly once; a second rejection is an
// *UpstreamAuthError. Any other non-2xx response is an *UpstreamError.
func (m *SessionManager) Get(
	ctx context.Context, creds Credentials, u string, params url.Values,
) (*Response, error) {
	session, err := m.Ensure(ctx, creds)
	if err != nil {
		return nil, err
	}

	resp, err := session.Get(ctx, u, params)
	if err != nil {
		return nil, err
	}

	if resp.AuthFailed() {
		m.logger().WithField("url", u).Info("upstream rejected session, retrying")
		m.Invalidate()

		session, err = m.Ensure(ctx, creds)
		if err != nil {
			return nil, err
		}

		resp, err = session.Get(ctx, u, params)
		if err != nil {
			return nil, err
		}

		if resp.AuthFailed() {
			return nil, &UpstreamAuthError{resp.upstreamError()}
		}
	}

	if !resp.OK() {
		return nil, resp.upstreamError()
	}

	return resp, nil
}

func (m *SessionManager) logger() *logrus.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.log
}
