package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the prometheus instruments for the orchestrator. Each
// Collector owns its registry so tests can build independent instances.
type Collector struct {
	registry *prometheus.Registry

	jobsDispatched prometheus.Counter
	jobsCompleted  prometheus.Counter
	jobsFailed     prometheus.Counter
	jobsRetried    prometheus.Counter
	reportsSent    prometheus.Counter

	jobsPending      prometheus.Gauge
	jobsRunning      prometheus.Gauge
	workersAvailable prometheus.Gauge

	dispatchDuration prometheus.Histogram
}

// NewCollector builds and registers the orchestrator instruments.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fibreflow",
			Name:      "jobs_dispatched_total",
			Help:      "Jobs leased and handed to a worker",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fibreflow",
			Name:      "jobs_completed_total",
			Help:      "Jobs that reached the completed state",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fibreflow",
			Name:      "jobs_failed_total",
			Help:      "Jobs that reached failed or error",
		}),
		jobsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fibreflow",
			Name:      "jobs_retried_total",
			Help:      "Jobs rescheduled after a transient failure",
		}),
		reportsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fibreflow",
			Name:      "reports_sent_total",
			Help:      "External status reports attempted",
		}),
		jobsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fibreflow",
			Name:      "jobs_pending",
			Help:      "Jobs currently pending or awaiting retry",
		}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fibreflow",
			Name:      "jobs_running",
			Help:      "Jobs currently dispatching or running",
		}),
		workersAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fibreflow",
			Name:      "workers_available",
			Help:      "Worker endpoints answering health checks",
		}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fibreflow",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time of one dispatch task from lease to release",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	c.registry.MustRegister(
		c.jobsDispatched, c.jobsCompleted, c.jobsFailed, c.jobsRetried,
		c.reportsSent, c.jobsPending, c.jobsRunning, c.workersAvailable,
		c.dispatchDuration,
	)
	return c
}

// Handler exposes the registry in prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordDispatch()  { c.jobsDispatched.Inc() }
func (c *Collector) RecordCompleted() { c.jobsCompleted.Inc() }
func (c *Collector) RecordFailed()    { c.jobsFailed.Inc() }
func (c *Collector) RecordRetry()     { c.jobsRetried.Inc() }
func (c *Collector) RecordReport()    { c.reportsSent.Inc() }

func (c *Collector) ObserveDispatchSeconds(s float64) { c.dispatchDuration.Observe(s) }

// SetQueueDepth updates the pending/running gauges from a status count.
func (c *Collector) SetQueueDepth(pending, running int) {
	c.jobsPending.Set(float64(pending))
	c.jobsRunning.Set(float64(running))
}

// SetWorkersAvailable records how many workers answered health checks.
func (c *Collector) SetWorkersAvailable(n int) {
	c.workersAvailable.Set(float64(n))
}
