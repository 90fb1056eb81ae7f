package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "paid_deploy"

// Metrics groups the pipeline's counters and gauges.
type Metrics struct {
	registry *prometheus.Registry

	Enqueued          prometheus.Counter
	Completed         prometheus.Counter
	Failed            prometheus.Counter
	Retried           prometheus.Counter
	Expired           prometheus.Counter
	PaymentsConfirmed prometheus.Counter
	QueueDepth        prometheus.Gauge
	InFlight          prometheus.Gauge
	SlaActive         prometheus.Gauge
	JobDuration       prometheus.Histogram
}

// NewMetrics creates and registers the pipeline metrics on a fresh
// registry. An empty namespace selects DefaultNamespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	m := &Metrics{
		registry:          prometheus.NewRegistry(),
		Enqueued:          counter("jobs_enqueued_total", "Jobs accepted by the queue"),
		Completed:         counter("jobs_completed_total", "Jobs completed successfully"),
		Failed:            counter("jobs_failed_total", "Jobs that failed permanently"),
		Retried:           counter("jobs_retried_total", "Retry attempts scheduled"),
		Expired:           counter("jobs_expired_total", "Jobs abandoned by the SLA sweep"),
		PaymentsConfirmed: counter("payments_confirmed_total", "On-chain payments confirmed"),
		QueueDepth:        gauge("queue_depth", "Jobs waiting in the queue"),
		InFlight:          gauge("jobs_inflight", "Jobs currently executing (0 or 1)"),
		SlaActive:         gauge("sla_active_jobs", "Jobs tracked by the SLA tracker"),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of successful job attempts",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
	m.registry.MustRegister(
		m.Enqueued,
		m.Completed,
		m.Failed,
		m.Retried,
		m.Expired,
		m.PaymentsConfirmed,
		m.QueueDepth,
		m.InFlight,
		m.SlaActive,
		m.JobDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding every metric.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
