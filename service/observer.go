package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OperationEvaluate = "evaluate"
	OperationDescribe = "describe"

	reqCountMetric     = "metricdeviation_request_count"
	errCountMetric     = "metricdeviation_error_count"
	changedCountMetric = "metricdeviation_changed_count"
	latencyMetric      = "metricdeviation_request_latency_ms"
)

// Observer emits request, error and latency metrics for service operations.
// Errors are tagged with their kind so upstream failures can be told apart from bad requests.
type Observer struct {
	now   func() time.Time
	since func(time.Time) time.Duration

	reqCounter     *prometheus.CounterVec
	errCounter     *prometheus.CounterVec
	changedCounter prometheus.Counter
	latencyCounter *prometheus.CounterVec
}

// NewObserver registers the service metrics with reg. A nil reg skips registration.
func NewObserver(reg prometheus.Registerer) *Observer {
	factory := promauto.With(reg)
	return &Observer{
		now:   time.Now,
		since: time.Since,

		reqCounter: factory.NewCounterVec(
			prometheus.CounterOpts{Name: reqCountMetric}, []string{"operation"},
		),
		errCounter: factory.NewCounterVec(
			prometheus.CounterOpts{Name: errCountMetric}, []string{"operation", "kind"},
		),
		changedCounter: factory.NewCounter(prometheus.CounterOpts{Name: changedCountMetric}),
		latencyCounter: factory.NewCounterVec(
			prometheus.CounterOpts{Name: latencyMetric}, []string{"operation"},
		),
	}
}

func (o *Observer) start() time.Time {
	return o.now()
}

func (o *Observer) observe(operation string, start time.Time, err error) {
	if err != nil {
		o.errCounter.WithLabelValues(operation, ErrorKind(err)).Inc()
	}

	o.reqCounter.WithLabelValues(operation).Inc()
	o.latencyCounter.WithLabelValues(operation).Add(float64(o.since(start).Milliseconds()))
}

func (o *Observer) changed() {
	o.changedCounter.Inc()
}
