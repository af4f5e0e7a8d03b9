// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "salonledger"

// ReceiptsCreated counts committed receipt creations.
var ReceiptsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "receipts_created_total",
	Help:      "Total receipts committed through create.",
})

// Reconciliations counts reconcile calls by outcome (ok, conflict, error).
var Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "reconciliations_total",
	Help:      "Total reconcile calls by outcome.",
}, []string{"outcome"})

// NotificationsSent counts notifier deliveries by result (sent, failed, skipped).
var NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "notify",
	Name:      "notifications_total",
	Help:      "Total receipt notifications by result.",
}, []string{"result"})

// ReportCacheLookups counts report cache lookups by result (hit, miss, error).
var ReportCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "report",
	Name:      "cache_lookups_total",
	Help:      "Report cache lookups by result.",
}, []string{"result"})

// AggregationLatency tracks report computation time in milliseconds.
var AggregationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "report",
	Name:      "aggregation_latency_ms",
	Help:      "Report aggregation latency in milliseconds.",
	Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
}, []string{"kind"})
