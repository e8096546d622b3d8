// Package metrics holds the Prometheus collectors shared by the services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "splitledger"

var (
	SettlementsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_created_total",
		Help:      "Settlements created.",
	})

	SettlementsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_completed_total",
		Help:      "Settlements that reached completed, by how.",
	}, []string{"via"})

	PaymentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_transitions_total",
		Help:      "Payment status changes, by target status.",
	}, []string{"status"})

	ConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_conflict_retries_total",
		Help:      "Optimistic concurrency retries caused by a stale settlement version.",
	})

	BalanceCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "balance_cache_requests_total",
		Help:      "Balance snapshot cache lookups, by result.",
	}, []string{"result"})

	BalanceComputeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "balance_compute_seconds",
		Help:      "Time spent computing a group's balances and suggestions.",
		Buckets:   prometheus.DefBuckets,
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification events handed to the sink, by result.",
	}, []string{"type", "result"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
