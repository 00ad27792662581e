// Package metrics exports chat relay counters to Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "chat"

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Collector records model attempts, cache decisions and chat requests.
// It satisfies usecase.AttemptObserver.
type Collector struct {
	registry *prometheus.Registry
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
	cache    *prometheus.CounterVec
	requests *prometheus.CounterVec
}

// New creates a Collector with its own registry, including Go and process collectors.
func New() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_attempts_total",
			Help:      "Provider calls by model and outcome.",
		}, []string{"model", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_attempt_duration_seconds",
			Help:      "Latency of provider calls by model.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"model"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "working_model_cache_total",
			Help:      "Working model cache decisions by event.",
		}, []string{"event"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Chat requests by transport and result code.",
		}, []string{"transport", "code"}),
	}

	var errs []error
	for _, col := range []prometheus.Collector{
		c.attempts,
		c.duration,
		c.cache,
		c.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		errs = append(errs, c.registry.Register(col))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Registry is the gatherer served on /metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveAttempt(model string, elapsed time.Duration, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	c.attempts.WithLabelValues(model, outcome).Inc()
	c.duration.WithLabelValues(model).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveCache(event string) {
	c.cache.WithLabelValues(event).Inc()
}

// ObserveRequest counts one chat request. code is empty on success.
func (c *Collector) ObserveRequest(transport, code string) {
	if code == "" {
		code = "OK"
	}
	c.requests.WithLabelValues(transport, code).Inc()
}
