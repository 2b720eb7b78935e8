package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconciliation metrics, served by the watch daemon's /metrics endpoint.
var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgeledger_sync_attempts_total",
		Help: "Remote sync attempts by outcome (success, failure, error)",
	}, []string{"outcome"})

	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgeledger_sync_passes_total",
		Help: "Reconciliation passes by result (completed, offline, empty, interrupted)",
	}, []string{"result"})

	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edgeledger_sync_pass_duration_seconds",
		Help:    "Wall time of reconciliation passes that attempted at least one record",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
	})

	exhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edgeledger_sync_exhausted_total",
		Help: "Transactions that reached the retry ceiling",
	})

	pendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edgeledger_transactions_pending",
		Help: "Transactions awaiting reconciliation after the last pass",
	})

	connectivityGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edgeledger_connectivity_online",
		Help: "1 when the device is online, 0 when offline",
	})
)
