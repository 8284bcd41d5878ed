package squash

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	MeasurementsPath = "/dashboard/api/measurements/"
	MetricsPath      = "/dashboard/api/metrics"

	datasetParam = "job__ci_dataset"
	metricParam  = "metric"
	pageParam    = "page"
	lastPage     = "last"
)

// Endpoints builds dashboard API URLs scoped to one dataset.
type Endpoints struct {
	upstream *url.URL
	dataset  string
}

// ParseUpstream validates and parses the upstream URL.
func ParseUpstream(upstream string) (*url.URL, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("failed to parse upstream URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf(
			"invalid scheme for upstream URL %q, only 'http' and 'https' are supported",
			upstream,
		)
	}

	return u, nil
}

func NewEndpoints(upstream *url.URL, dataset string) Endpoints {
	return Endpoints{
		upstream: upstream,
		dataset:  dataset,
	}
}

func (e Endpoints) Dataset() string {
	return e.dataset
}

// Measurements returns the URL and query of the last page of a metric's measurements.
func (e Endpoints) Measurements(metric string) (string, url.Values) {
	params := url.Values{}
	params.Set(datasetParam, e.dataset)
	params.Set(metricParam, metric)
	params.Set(pageParam, lastPage)
	return e.resolve(MeasurementsPath, ""), params
}

// Metric returns the URL of a single metric's detail.
func (e Endpoints) Metric(metric string) string {
	return e.resolve(MetricsPath+"/", metric)
}

// Metrics returns the URL of the metrics list.
func (e Endpoints) Metrics() string {
	return e.resolve(MetricsPath, "")
}

// SignIn returns the URL of the OAuth2 proxy sign in endpoint.
func (e Endpoints) SignIn(path string) string {
	return e.resolve(path, "")
}

func (e Endpoints) resolve(path, segment string) string {
	u := *e.upstream
	base := strings.TrimSuffix(u.Path, "/")
	u.Path = base + path + segment
	u.RawPath = base + path + url.PathEscape(segment)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
