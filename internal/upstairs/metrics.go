package upstairs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for one Upstairs: gauges that
// Observe refreshes from a Coordinator, and counters updated through
// RecordRetired and RecordFault. The collectors carry no per-instance
// label; NewMetrics registers them as they are.
type Metrics struct {
	ActiveJobs            prometheus.Gauge
	WriteBytesOutstanding prometheus.Gauge
	JobsRetiredTotal      prometheus.Counter
	ClientFaultsTotal     *prometheus.CounterVec
	AckLatencySeconds     *prometheus.HistogramVec
}

// NewMetrics builds and registers a Metrics set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "upstairs",
			Name:      "active_jobs",
			Help:      "Number of jobs currently outstanding in ActiveJobs.",
		}),
		WriteBytesOutstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "upstairs",
			Name:      "write_bytes_outstanding",
			Help:      "Sum of write payload bytes for non-retired Write/WriteUnwritten jobs (I4).",
		}),
		JobsRetiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "upstairs",
			Name:      "jobs_retired_total",
			Help:      "Total jobs retired by retire_check.",
		}),
		ClientFaultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "upstairs",
			Name:      "client_faults_total",
			Help:      "Total times a client was forced into Faulted.",
		}, []string{"client"}),
		AckLatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "upstairs",
			Name:      "ack_latency_seconds",
			Help:      "Time from submission to ack, by IOop kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	reg.MustRegister(m.ActiveJobs, m.WriteBytesOutstanding, m.JobsRetiredTotal, m.ClientFaultsTotal, m.AckLatencySeconds)
	return m
}

// Observe updates the gauges from a coordinator's current state at the
// moment it is called; upstairsd calls it once, at startup.
func (m *Metrics) Observe(co *Coordinator) {
	m.ActiveJobs.Set(float64(co.active.Len()))
	m.WriteBytesOutstanding.Set(float64(co.WriteBytesOutstanding()))
}

// RecordRetired increments the retirement counter by count.
func (m *Metrics) RecordRetired(count int) {
	m.JobsRetiredTotal.Add(float64(count))
}

// RecordFault increments the per-client fault counter.
func (m *Metrics) RecordFault(clientLabel string) {
	m.ClientFaultsTotal.WithLabelValues(clientLabel).Inc()
}
