// Package observability holds the Prometheus collectors shared by the enrollment service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ledgerOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enrollment_service",
		Subsystem: "ledger",
		Name:      "operations_total",
		Help:      "Enroll and cancel operations grouped by outcome.",
	}, []string{"operation", "outcome"})

	ledgerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "enrollment_service",
		Subsystem: "ledger",
		Name:      "unit_duration_seconds",
		Help:      "Wall time of one enroll or cancel call, retries included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	ledgerRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enrollment_service",
		Subsystem: "ledger",
		Name:      "transient_retries_total",
		Help:      "Atomic units re-run after a transient storage failure.",
	}, []string{"operation"})

	seatCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enrollment_service",
		Subsystem: "seat_cache",
		Name:      "lookups_total",
		Help:      "Seat availability lookups grouped by cache result (hit, miss, error).",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(ledgerOutcomes, ledgerDuration, ledgerRetries, seatCacheLookups)
}

// RecordLedgerOutcome counts one finished enroll/cancel call and its duration.
func RecordLedgerOutcome(operation, outcome string, elapsed time.Duration) {
	ledgerOutcomes.WithLabelValues(operation, outcome).Inc()
	ledgerDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func RecordLedgerRetry(operation string) {
	ledgerRetries.WithLabelValues(operation).Inc()
}

func RecordSeatCacheLookup(result string) {
	seatCacheLookups.WithLabelValues(result).Inc()
}
