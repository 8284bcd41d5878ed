// Package service answers metric deviation and metric description requests on behalf of
// Basic-Auth callers, using a shared authenticated session against the dashboard.
package service

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/kevindweb/metricdeviation-proxy/deviation"
	"github.com/kevindweb/metricdeviation-proxy/squash"
)

// Upstream fetches dashboard resources with the caller's credentials, re-authenticating the
// shared session at most once per fetch.
type Upstream interface {
	Get(ctx context.Context, creds squash.Credentials, u string, params url.Values) (*squash.Response, error)
}

var _ Upstream = &squash.SessionManager{}

// MetricDeviation reports whether a metric's latest measurement deviates from the previous one.
type MetricDeviation struct {
	upstream  Upstream
	endpoints squash.Endpoints
	observer  *Observer
	log       *logrus.Entry
}

func NewMetricDeviation(
	upstream Upstream, endpoints squash.Endpoints, observer *Observer, log *logrus.Entry,
) *MetricDeviation {
	return &MetricDeviation{
		upstream:  upstream,
		endpoints: endpoints,
		observer:  observer,
		log:       log.WithField("component", "metricdeviation"),
	}
}

// Evaluate compares the two most recent measurements of metric against threshold, a
// percentage defaulting to 0 when empty. A nil creds is rejected with ErrUnauthorized.
func (s *MetricDeviation) Evaluate(
	ctx context.Context, creds *squash.Credentials, metric, threshold string,
) (report deviation.Report, err error) {
	start := s.observer.start()
	defer func() {
		s.observer.observe(OperationEvaluate, start, err)
	}()

	if creds == nil {
		return report, ErrUnauthorized
	}

	if metric == "" {
		return report, fmt.Errorf("%w: metric is required", ErrInvalidArgument)
	}

	t, err := deviation.ParseThreshold(threshold)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	u, params := s.endpoints.Measurements(metric)
	log := s.log.WithFields(logrus.Fields{"metric": metric, "username": creds.Username})
	log.WithField("url", u).Info("retrieving metric")

	resp, err := s.upstream.Get(ctx, *creds, u, params)
	if err != nil {
		return report, fmt.Errorf("retrieve metric %s: %w", metric, err)
	}

	series, err := deviation.DecodeSeries(resp.Body)
	if err != nil {
		return report, err
	}
	log.WithField("measurements", len(series)).Debug("retrieved measurements")

	report.Verdict = deviation.Evaluate(series, t)
	if report.Changed {
		s.observer.changed()
	}

	report.Graph = s.graph(ctx, *creds, metric, log)
	return report, nil
}

// graph looks up the metric's monitor URL. The lookup only enriches the report, so any
// failure is logged and yields no graph.
func (s *MetricDeviation) graph(
	ctx context.Context, creds squash.Credentials, metric string, log *logrus.Entry,
) *string {
	u := s.endpoints.Metric(metric)
	log = log.WithField("url", u)
	log.Info("retrieving monitor URL")

	resp, err := s.upstream.Get(ctx, creds, u, nil)
	if err != nil {
		log.WithError(err).Warn("monitor URL unavailable")
		return nil
	}

	monitorURL, ok, err := deviation.MonitorURL(resp.Body)
	if err != nil {
		log.WithError(err).Warn("monitor URL unavailable")
		return nil
	}

	if !ok {
		return nil
	}
	return &monitorURL
}

// DescribeMetrics maps every metric known to the dashboard to its description.
type DescribeMetrics struct {
	upstream  Upstream
	endpoints squash.Endpoints
	observer  *Observer
	log       *logrus.Entry
}

func NewDescribeMetrics(
	upstream Upstream, endpoints squash.Endpoints, observer *Observer, log *logrus.Entry,
) *DescribeMetrics {
	return &DescribeMetrics{
		upstream:  upstream,
		endpoints: endpoints,
		observer:  observer,
		log:       log.WithField("component", "describemetrics"),
	}
}

func (s *DescribeMetrics) Describe(
	ctx context.Context, creds *squash.Credentials,
) (metrics map[string]string, err error) {
	start := s.observer.start()
	defer func() {
		s.observer.observe(OperationDescribe, start, err)
	}()

	if creds == nil {
		return nil, ErrUnauthorized
	}

	u := s.endpoints.Metrics()
	s.log.WithFields(logrus.Fields{"url": u, "username": creds.Username}).Info("retrieving metrics")

	resp, err := s.upstream.Get(ctx, *creds, u, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve metrics: %w", err)
	}

	return deviation.DescribeMetrics(resp.Body)
}
