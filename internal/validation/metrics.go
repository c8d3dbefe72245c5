package validation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"kycgate/internal/capability"
)

var tracer = otel.Tracer("kycgate/validation")

var (
	runOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kyc_validation_runs_total",
		Help: "Validation runs by outcome",
	}, []string{"outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kyc_validation_stage_duration_seconds",
		Help:    "Duration of each validation saga stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kyc_validation_call_duration_seconds",
		Help:    "Latency of external calls made during a run, by target and error category",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"target", "result"})

	lockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kyc_validation_lock_wait_seconds",
		Help:    "Time spent waiting for the per-case lock",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30},
	})

	discrepanciesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kyc_discrepancies_recorded_total",
		Help: "Discrepancies persisted by validation runs, by severity",
	}, []string{"severity"})
)

func observeCall(target string, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = string(capability.GetCategory(err))
	}
	callDuration.WithLabelValues(target, result).Observe(d.Seconds())
}
