package proxyhttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/kevindweb/metricdeviation-proxy/deviation"
	"github.com/kevindweb/metricdeviation-proxy/service"
	"github.com/kevindweb/metricdeviation-proxy/squash"
)

const (
	ReasonUnauthorized  = "Unauthorized"
	ReasonDecodeFailure = "Could not decode JSON result"

	noAuthorization = "No authorization provided."
)

// APIErrorResponse is the body of every failed request
type APIErrorResponse struct {
	Reason     string `json:"reason"`
	StatusCode int    `json:"status_code"`
	Content    string `json:"content"`
}

// NewAPIErrorResponse maps a service error onto the response sent to the caller. Upstream
// rejections are relayed verbatim.
func NewAPIErrorResponse(err error) APIErrorResponse {
	var (
		authErr     *squash.AuthError
		upstreamErr *squash.UpstreamError
		decodeErr   *deviation.DecodeError
	)

	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return APIErrorResponse{
			Reason:     ReasonUnauthorized,
			StatusCode: http.StatusForbidden,
			Content:    noAuthorization,
		}
	case errors.Is(err, service.ErrInvalidArgument):
		return newResponse(http.StatusBadRequest, err.Error())
	case errors.Is(err, squash.ErrUpstreamUnreachable):
		return newResponse(http.StatusBadGateway, err.Error())
	case errors.As(err, &authErr) && authErr.StatusCode >= http.StatusInternalServerError:
		return newResponse(http.StatusBadGateway, err.Error())
	case errors.As(err, &authErr):
		return newResponse(http.StatusForbidden, err.Error())
	case errors.As(err, &upstreamErr):
		return relay(upstreamErr)
	case errors.As(err, &decodeErr):
		return APIErrorResponse{
			Reason:     ReasonDecodeFailure,
			StatusCode: http.StatusInternalServerError,
			Content:    decodeErr.Err.Error() + ":\n" + decodeErr.Body,
		}
	default:
		return newResponse(http.StatusInternalServerError, err.Error())
	}
}

func newResponse(code int, content string) APIErrorResponse {
	return APIErrorResponse{
		Reason:     http.StatusText(code),
		StatusCode: code,
		Content:    content,
	}
}

// relay passes an upstream failure through. Codes a server cannot answer with become 502.
func relay(e *squash.UpstreamError) APIErrorResponse {
	if e.StatusCode < http.StatusOK || e.StatusCode > 599 {
		return newResponse(http.StatusBadGateway, e.Content)
	}

	reason := e.Reason
	if reason == "" {
		reason = http.StatusText(e.StatusCode)
	}

	return APIErrorResponse{
		Reason:     reason,
		StatusCode: e.StatusCode,
		Content:    e.Content,
	}
}

// writeAPIError writes a standardized error response
func writeAPIError(w http.ResponseWriter, resp APIErrorResponse, log *logrus.Entry) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(resp.StatusCode)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Error("failed to encode error response")
	}
}
