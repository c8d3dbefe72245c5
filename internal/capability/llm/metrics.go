package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kyc_llm_request_duration_seconds",
		Help:    "Latency of generative model calls by provider, capability and status",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"provider", "capability", "status"})

	reasonerRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kyc_reasoner_retries_total",
		Help: "Retries of the reasoner structured-generation call",
	})

	schemaViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kyc_llm_schema_violations_total",
		Help: "Model responses rejected by the output JSON schema",
	}, []string{"capability"})
)

func observeRequest(provider, capName, status string, d time.Duration) {
	requestDuration.WithLabelValues(provider, capName, status).Observe(d.Seconds())
}
