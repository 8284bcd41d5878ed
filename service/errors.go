package service

import (
	"errors"
	"net/http"

	"github.com/kevindweb/metricdeviation-proxy/deviation"
	"github.com/kevindweb/metricdeviation-proxy/squash"
)

var (
	ErrUnauthorized    = errors.New("no authorization provided")
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	KindUnauthorized    = "unauthorized"
	KindInvalidArgument = "invalid_argument"
	KindAuthentication  = "authentication"
	KindUpstreamAuth    = "upstream_auth"
	KindUpstream        = "upstream"
	KindUpstreamData    = "upstream_data"
	KindUnreachable     = "unreachable"
	KindInternal        = "internal"
)

// ErrorKind classifies err for metrics and logging.
func ErrorKind(err error) string {
	var (
		authErr         *squash.AuthError
		upstreamAuthErr *squash.UpstreamAuthError
		upstreamErr     *squash.UpstreamError
		decodeErr       *deviation.DecodeError
	)

	switch {
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, squash.ErrUpstreamUnreachable):
		return KindUnreachable
	case errors.As(err, &authErr) && authErr.StatusCode >= http.StatusInternalServerError:
		return KindUnreachable
	case errors.As(err, &authErr):
		return KindAuthentication
	case errors.As(err, &upstreamAuthErr):
		return KindUpstreamAuth
	case errors.As(err, &upstreamErr):
		return KindUpstream
	case errors.As(err, &decodeErr):
		return KindUpstreamData
	default:
		return KindInternal
	}
}
