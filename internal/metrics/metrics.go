// Package metrics exposes Prometheus counters for the ingestion
// pipeline, served on the status endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TradesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trades_written_total",
			Help: "Live trade points written to the store",
		},
		[]string{"pair"},
	)

	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_frames_dropped_total",
			Help: "Feed frames dropped due to parse or write failures",
		},
	)

	FeedReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_reconnects_total",
			Help: "Streaming feed reconnect attempts",
		},
	)

	CandlesUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candles_upserted_total",
			Help: "Historical candles upserted by backfill reconciliation",
		},
		[]string{"pair"},
	)

	ReconcileFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_failures_total",
			Help: "Backfill reconciliation failures per instrument",
		},
		[]string{"pair"},
	)

	TickersWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickers_written_total",
			Help: "Ticker snapshot points written to the store",
		},
		[]string{"pair"},
	)
)
