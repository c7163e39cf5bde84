package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "counsel"

var (
	// Operations counts coordinator operations by name and outcome
	// (ok, conflict, precondition, not_found, too_early, invalid, error).
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Appointment coordinator operations by outcome.",
	}, []string{"op", "outcome"})

	// TxRetries counts units of work re-run after a row version conflict.
	TxRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tx_retries_total",
		Help:      "Optimistic transaction retries after a version conflict.",
	}, []string{"op"})

	LedgerDrift = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_drift_corrected_total",
		Help:      "Ledger slots whose booked flag was corrected by reconciliation.",
	})

	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notify_failures_total",
		Help:      "Notifications or change events that could not be delivered.",
	})

	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
