// Package metrics exports milestone store activity in Prometheus format.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallnest/milestonedb/store"
)

const namespace = "milestonedb"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Prometheus implements store.Recorder.
type Prometheus struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	indexRequests *prometheus.CounterVec
}

var _ store.Recorder = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them with reg. A nil
// reg registers nothing, which is useful when the caller gathers the
// collectors itself via Collectors.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Milestone operations by outcome.",
		}, []string{"operation", "collection", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of milestone operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		indexRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_requests_total",
			Help:      "Successful milestone index requests per physical collection.",
		}, []string{"collection"}),
	}

	if reg != nil {
		var err error
		if p.operations, err = register(reg, p.operations); err != nil {
			return nil, err
		}
		if p.duration, err = register(reg, p.duration); err != nil {
			return nil, err
		}
		if p.indexRequests, err = register(reg, p.indexRequests); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// register adds c to reg, or returns the collector already registered under
// the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Collectors returns the underlying collectors.
func (p *Prometheus) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.operations, p.duration, p.indexRequests}
}

// ObserveOperation counts the operation and records its latency.
func (p *Prometheus) ObserveOperation(operation, collection string, elapsed time.Duration, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	p.operations.WithLabelValues(operation, collection, result).Inc()
	p.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// IndexCreated counts a successful index request.
func (p *Prometheus) IndexCreated(collection string) {
	p.indexRequests.WithLabelValues(collection).Inc()
}
