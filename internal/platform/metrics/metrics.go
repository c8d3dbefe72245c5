package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-wide Prometheus metrics for the case lifecycle API.
type Metrics struct {
	CasesCreated      prometheus.Counter
	CaseTransitions   *prometheus.CounterVec
	ValidationsQueued prometheus.Counter
	RequestDuration   *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		CasesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kyc_cases_created_total",
			Help: "Total number of KYC cases initiated",
		}),
		CaseTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_case_transitions_total",
			Help: "Case status transitions applied by the lifecycle service",
		}, []string{"from", "to"}),
		ValidationsQueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kyc_validations_enqueued_total",
			Help: "Validation runs handed to the scheduler",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyc_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) IncrementCasesCreated() {
	if m != nil {
		m.CasesCreated.Inc()
	}
}

func (m *Metrics) IncrementTransition(from, to string) {
	if m != nil {
		m.CaseTransitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) IncrementQueued() {
	if m != nil {
		m.ValidationsQueued.Inc()
	}
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, status string, d time.Duration) {
	if m != nil {
		m.RequestDuration.WithLabelValues(route, status).Observe(d.Seconds())
	}
}
