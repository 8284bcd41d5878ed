// Package proxyhttp provides the HTTP mux serving metric deviation and metric description
// requests
package proxyhttp

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/efficientgo/core/merrors"
	"github.com/metalmatze/signal/server/signalhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/kevindweb/metricdeviation-proxy/proxyutil"
	"github.com/kevindweb/metricdeviation-proxy/service"
	"github.com/kevindweb/metricdeviation-proxy/squash"
)

const (
	// Prefix is an alias under which every route is also served
	Prefix = "/metricdeviation"

	ContentTypeJSON = "application/json; charset=utf-8"
	ContentTypeText = "text/plain; charset=utf-8"

	metricParam    = "metric"
	thresholdParam = "threshold"
)

// route is one entry of the route table. name labels the instrumentation so every alias of a
// route shares its metrics.
type route struct {
	name    string
	pattern string
	handler http.HandlerFunc
}

// routes holds the services and the mux serving them
type routes struct {
	deviation *service.MetricDeviation
	describe  *service.DescribeMetrics
	log       *logrus.Entry

	mux http.Handler
}

// mux abstracts away the behavior we expect from the http.ServeMux type in this package.
type mux interface {
	http.Handler
	Handle(string, http.Handler)
}

// instrumentedMux wraps a mux and instruments every handler with its route name.
type instrumentedMux struct {
	mux
	i    signalhttp.HandlerInstrumenter
	seen map[string]struct{}
}

func newInstrumentedMux(m mux, reg prometheus.Registerer) *instrumentedMux {
	return &instrumentedMux{
		mux:  m,
		i:    signalhttp.NewHandlerInstrumenter(reg, []string{"handler"}),
		seen: map[string]struct{}{},
	}
}

// register is like HTTP mux handle but it reports duplicate patterns instead of panicking.
func (i *instrumentedMux) register(r route) error {
	if _, ok := i.seen[r.pattern]; ok {
		return fmt.Errorf("pattern %q was already registered", r.pattern)
	}

	i.mux.Handle(r.pattern, i.i.NewHandler(prometheus.Labels{"handler": r.name}, r.handler))
	i.seen[r.pattern] = struct{}{}
	return nil
}

// NewRoutes wires the upstream session, the services and the route table from cfg
func NewRoutes(cfg proxyutil.Config, reg prometheus.Registerer, log *logrus.Entry) (http.Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	upstream, err := squash.ParseUpstream(cfg.Upstream)
	if err != nil {
		return nil, err
	}

	endpoints := squash.NewEndpoints(upstream, cfg.Dataset)
	auth := squash.NewOAuth2Proxy(squash.AuthConfig{
		SignInURL:  endpoints.SignIn(cfg.SignInPath),
		Timeout:    cfg.UpstreamTimeout,
		MaxRetries: cfg.AuthRetries,
	})
	sessions := squash.NewSessionManager(auth, reg, log)
	observer := service.NewObserver(reg)

	r := &routes{
		deviation: service.NewMetricDeviation(sessions, endpoints, observer, log),
		describe:  service.NewDescribeMetrics(sessions, endpoints, observer, log),
		log:       log.WithField("component", "http"),
	}

	mux := newInstrumentedMux(http.NewServeMux(), reg)
	errs := merrors.New()
	for _, rt := range r.table() {
		errs.Add(mux.register(rt))
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}

	r.mux = mux
	if len(cfg.AllowedOrigins) > 0 {
		r.mux = cors.New(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodHead},
			AllowedHeaders:   []string{"Authorization"},
			AllowCredentials: true,
		}).Handler(mux)
	}

	log.WithFields(logrus.Fields{
		"upstream": upstream.Redacted(),
		"dataset":  endpoints.Dataset(),
	}).Info("routes registered")

	return r, nil
}

// table lists every served route, each reachable both at the root and under Prefix.
// Literal segments take precedence over the metric wildcard.
func (r *routes) table() []route {
	return []route{
		{name: "health", pattern: "GET /{$}", handler: handleHealthCheck},
		{name: "health", pattern: "GET " + Prefix, handler: handleHealthCheck},
		{name: "health", pattern: "GET " + Prefix + "/{$}", handler: handleHealthCheck},

		{name: "describemetrics", pattern: "GET /describemetrics", handler: r.describeMetrics},
		{name: "describemetrics", pattern: "GET " + Prefix + "/describemetrics", handler: r.describeMetrics},

		{name: "metricdeviation", pattern: "GET /{metric}", handler: r.metricDeviation},
		{name: "metricdeviation", pattern: "GET /{metric}/{threshold}", handler: r.metricDeviation},
		{name: "metricdeviation", pattern: "GET " + Prefix + "/{metric}", handler: r.metricDeviation},
		{
			name:    "metricdeviation",
			pattern: "GET " + Prefix + "/{metric}/{threshold}",
			handler: r.metricDeviation,
		},
	}
}

// ServeHTTP implements the http.Handler interface
func (r *routes) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// handleHealthCheck responds to health check requests
func handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", ContentTypeText)
	_, _ = w.Write([]byte("OK"))
}

func (r *routes) metricDeviation(w http.ResponseWriter, req *http.Request) {
	report, err := r.deviation.Evaluate(
		req.Context(), credentials(req), req.PathValue(metricParam), req.PathValue(thresholdParam),
	)
	if err != nil {
		r.writeError(w, req, err)
		return
	}

	r.writeJSON(w, report)
}

func (r *routes) describeMetrics(w http.ResponseWriter, req *http.Request) {
	metrics, err := r.describe.Describe(req.Context(), credentials(req))
	if err != nil {
		r.writeError(w, req, err)
		return
	}

	r.writeJSON(w, metrics)
}

// credentials returns the Basic-Auth credentials of req, nil when none were sent
func credentials(req *http.Request) *squash.Credentials {
	username, password, ok := req.BasicAuth()
	if !ok {
		return nil
	}
	return &squash.Credentials{Username: username, Password: password}
}

func (r *routes) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		r.log.WithError(err).Error("failed to encode response")
	}
}

func (r *routes) writeError(w http.ResponseWriter, req *http.Request, err error) {
	resp := NewAPIErrorResponse(err)

	entry := r.log.WithError(err).WithFields(logrus.Fields{
		"path":        req.URL.Path,
		"reason":      resp.Reason,
		"status_code": resp.StatusCode,
		"kind":        service.ErrorKind(err),
	})
	if resp.StatusCode >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request failed")
	}

	writeAPIError(w, resp, r.log)
}
