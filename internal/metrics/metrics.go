// Package metrics exposes prometheus collectors for the settlement core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_transactions_processed_total",
		Help: "Transactions processed by the service, by type and outcome",
	}, []string{"type", "outcome"})

	SettlementBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_batches_total",
		Help: "Settlement batches drained by the worker",
	})

	SettlementsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_items_settled_total",
		Help: "Transactions settled successfully",
	})

	SettlementsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_items_failed_total",
		Help: "Transactions abandoned after exhausting settlement attempts",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_queue_depth",
		Help: "Transactions currently waiting in the settlement queue",
	})
)
