package rpc

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for endpoints and limiters.
// A nil *Metrics records nothing.
type Metrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	limiterWait prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "w3link",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC requests sent to endpoints.",
		}, []string{"chain", "endpoint", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "w3link",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "JSON-RPC request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"chain", "endpoint", "method"}),
		limiterWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "w3link",
			Subsystem: "rpc",
			Name:      "limiter_wait_seconds",
			Help:      "Time spent waiting for a rate limiter token.",
			Buckets:   []float64{0, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.latency, m.limiterWait} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeRequest(chainID uint64, endpoint, method string, took time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	id := strconv.FormatUint(chainID, 10)
	m.requests.WithLabelValues(id, endpoint, method, status).Inc()
	m.latency.WithLabelValues(id, endpoint, method).Observe(took.Seconds())
}

func (m *Metrics) observeWait(d time.Duration) {
	if m == nil {
		return
	}
	m.limiterWait.Observe(d.Seconds())
}
