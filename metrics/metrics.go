package metrics

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "witnessgen"

// Metrics tracks witness-generation runs.
type Metrics struct {
	registry *prometheus.Registry

	RunsStarted   prometheus.Counter
	RunsSucceeded prometheus.Counter
	RunsFailed    prometheus.Counter

	RunDuration prometheus.Histogram

	PreimageCount prometheus.Histogram
	HintCount     prometheus.Histogram
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_started_total",
			Help:      "Count of witness generation runs started",
		}),
		RunsSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_succeeded_total",
			Help:      "Count of witness generation runs that produced a witness",
		}),
		RunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_failed_total",
			Help:      "Count of witness generation runs that failed",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a witness generation run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		PreimageCount: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_preimages",
			Help:      "Number of preimages recorded per run",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}),
		HintCount: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_hints",
			Help:      "Number of hints recorded per run",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}),
	}
}

// RecordRun observes the outcome of one run.
func (m *Metrics) RecordRun(duration time.Duration, err error) {
	m.RunDuration.Observe(duration.Seconds())
	if err != nil {
		m.RunsFailed.Inc()
	} else {
		m.RunsSucceeded.Inc()
	}
}

// Serve exposes the metrics over HTTP until the listener fails.
func (m *Metrics) Serve(hostname string, port int) error {
	addr := net.JoinHostPort(hostname, fmt.Sprintf("%d", port))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}
