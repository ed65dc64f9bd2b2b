// Package metrics exposes the Prometheus counters/histograms spec.md §4.9
// requires. Registration shape (CounterVec/GaugeVec built as package
// vars, MustRegister'd from init()) is lifted directly from the teacher's
// metrics.go.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	IndexerBlocksProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "copytrader_indexer_blocks_total",
		Help: "Blocks processed by the indexer.",
	})

	IndexerFillsPerMin = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "copytrader_indexer_fills_total",
		Help: "Normalized fills persisted by the indexer.",
	})

	IndexerLagBlocks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "copytrader_indexer_lag_blocks",
		Help: "latest_block - last_seen_block.",
	})

	IndexerReorgsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "copytrader_indexer_reorgs_total",
		Help: "Reorgs detected and reconciled.",
	})

	IndexerQuarantineTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "copytrader_indexer_quarantine_total",
		Help: "Logs that failed to decode and were quarantined.",
	})

	IntentsByStatus = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "copytrader_intents_total",
		Help: "CopyIntents reaching a terminal state, by status and reason.",
	}, []string{"status", "reason"})

	TxAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "copytrader_tx_attempts_total",
		Help: "Transaction broadcast attempts, including replacements.",
	}, []string{"result"})

	TxConfirmLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "copytrader_tx_confirm_latency_seconds",
		Help:    "Time from broadcast to confirmed receipt.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	PriceStalenessSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "copytrader_price_staleness_seconds",
		Help: "Age of the last observed price, per source.",
	}, []string{"source"})

	FanoutQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "copytrader_fanout_queue_depth",
		Help: "Current depth of the bounded fanout queue.",
	})

	FanoutDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "copytrader_fanout_dropped_total",
		Help: "Signals dropped by fanout, by reason.",
	}, []string{"reason"})

	LeaderboardRefreshTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "copytrader_leaderboard_refresh_total",
		Help: "Leaderboard snapshot recomputations.",
	})
)

func init() {
	prometheus.MustRegister(
		IndexerBlocksProcessed,
		IndexerFillsPerMin,
		IndexerLagBlocks,
		IndexerReorgsTotal,
		IndexerQuarantineTotal,
		IntentsByStatus,
		TxAttemptsTotal,
		TxConfirmLatency,
		PriceStalenessSeconds,
		FanoutQueueDepth,
		FanoutDroppedTotal,
		LeaderboardRefreshTotal,
	)
}
