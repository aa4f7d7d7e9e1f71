// Package metrics provides Prometheus collectors for extraction and curation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds all collectors. A nil *Metrics records nothing.
type Metrics struct {
	ExtractionsTotal   *prometheus.CounterVec
	ExtractionDuration *prometheus.HistogramVec
	ExtractionsRunning prometheus.Gauge
	WordsExtracted     *prometheus.CounterVec
	LeasesReclaimed    *prometheus.CounterVec
	JobsQueued         prometheus.Gauge

	CurationTotal *prometheus.CounterVec

	GRPCRequests *prometheus.CounterVec
	GRPCDuration *prometheus.HistogramVec

	startTime time.Time
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	m := &Metrics{startTime: time.Now()}

	m.ExtractionsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libriscan_extractions_total",
			Help: "Total number of finished page extractions",
		},
		[]string{"service", "outcome"},
	)
	m.ExtractionDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "libriscan_extraction_duration_seconds",
			Help:    "Duration of page extractions in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service"},
	)
	m.ExtractionsRunning = f.NewGauge(prometheus.GaugeOpts{
		Name: "libriscan_extractions_running",
		Help: "Number of extractions currently calling a backend",
	})
	m.WordsExtracted = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libriscan_words_extracted_total",
			Help: "Total number of text blocks created by extraction",
		},
		[]string{"service"},
	)
	m.LeasesReclaimed = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libriscan_leases_reclaimed_total",
			Help: "Total number of timed-out extraction leases cleared",
		},
		[]string{"source"},
	)
	m.JobsQueued = f.NewGauge(prometheus.GaugeOpts{
		Name: "libriscan_jobs_queued",
		Help: "Extraction jobs waiting for a worker",
	})
	m.CurationTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libriscan_curation_operations_total",
			Help: "Total number of curation operations",
		},
		[]string{"operation", "outcome"},
	)
	m.GRPCRequests = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libriscan_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "code"},
	)
	m.GRPCDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "libriscan_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "libriscan_uptime_seconds",
		Help: "Process uptime in seconds",
	}, func() float64 { return time.Since(m.startTime).Seconds() })

	return m
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// ExtractionStarted marks a backend call in progress and returns a func that records its end.
func (m *Metrics) ExtractionStarted(service string) func(words int, err error) {
	if m == nil {
		return func(int, error) {}
	}
	start := time.Now()
	m.ExtractionsRunning.Inc()
	return func(words int, err error) {
		m.ExtractionsRunning.Dec()
		m.ExtractionsTotal.WithLabelValues(service, outcome(err)).Inc()
		m.ExtractionDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
		if err == nil {
			m.WordsExtracted.WithLabelValues(service).Add(float64(words))
		}
	}
}

func (m *Metrics) LeaseReclaimed(source string) {
	if m == nil {
		return
	}
	m.LeasesReclaimed.WithLabelValues(source).Inc()
}

func (m *Metrics) JobQueued(delta float64) {
	if m == nil {
		return
	}
	m.JobsQueued.Add(delta)
}

func (m *Metrics) RecordCuration(op string, err error) {
	if m == nil {
		return
	}
	m.CurationTotal.WithLabelValues(op, outcome(err)).Inc()
}

func (m *Metrics) RecordGRPC(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.GRPCRequests.WithLabelValues(method, code).Inc()
	m.GRPCDuration.WithLabelValues(method).Observe(d.Seconds())
}
