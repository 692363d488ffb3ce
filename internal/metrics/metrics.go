// Package metrics exposes Prometheus collectors for the trading core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OrdersPlaced counts orders accepted by the settlement path
var OrdersPlaced = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "core",
		Name:      "orders_placed_total",
		Help:      "Total number of orders accepted for settlement",
	},
	[]string{"pair", "side", "kind"},
)

// TradesMatched counts trades produced by the matching engine
var TradesMatched = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "core",
		Name:      "trades_matched_total",
		Help:      "Total number of matches executed",
	},
	[]string{"pair"},
)

// MatchDuration observes the duration of one matching pass
var MatchDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "exchange",
		Subsystem: "core",
		Name:      "match_duration_ms",
		Help:      "Duration of one matching pass in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
	},
)

// SagaCompensations counts settlement cycles that ran compensation
var SagaCompensations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "core",
		Name:      "saga_compensations_total",
		Help:      "Total number of settlement cycles that were compensated",
	},
	[]string{"step"},
)

// PoolReserve tracks current pool reserves per asset
var PoolReserve = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "exchange",
		Subsystem: "amm",
		Name:      "pool_reserve",
		Help:      "Current pool reserve per pool and asset",
	},
	[]string{"pool", "asset"},
)

// PoolOperations counts pool deposits and withdrawals by outcome
var PoolOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "amm",
		Name:      "pool_operations_total",
		Help:      "Total pool deposits and withdrawals by outcome",
	},
	[]string{"operation", "outcome"},
)

// QuoteCycles counts market-making control loop cycles by outcome
var QuoteCycles = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "marketmaker",
		Name:      "quote_cycles_total",
		Help:      "Total market-making cycles by outcome",
	},
	[]string{"pool", "outcome"},
)
