// Package ingest contains the ingestion pipeline: the trade event
// processor fed by the streaming connector, the backfill reconciler
// and ticker refresher driven by the periodic pass, and the scheduler
// that runs them side by side for the lifetime of the process.
//
// The pipeline's only shared resource is the store; every write
// carries its own identity, so the activities need no coordination
// beyond the context they run under.
package ingest

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/model"
)

// Store is the persistence surface the pipeline writes to and derives
// its reconciliation cursor from.
type Store interface {
	WriteTrade(ctx context.Context, ev model.TradeEvent) error
	WriteCandle(ctx context.Context, c model.Candle) error
	WriteTicker(ctx context.Context, t model.TickerSnapshot) error
	LatestCandleStart(ctx context.Context, pair string) (time.Time, bool, error)
}

// ExchangeAPI is the synchronous REST surface of the exchange.
type ExchangeAPI interface {
	FetchOHLC(ctx context.Context, pair string, step, limit int, start, end time.Time) ([]model.Candle, error)
	FetchTicker(ctx context.Context, pair string) (model.TickerSnapshot, error)
	FetchCurrencies(ctx context.Context) ([]model.CurrencyMetadata, error)
}

// PriceCache mirrors the latest trade price per instrument.
// Implementations must be safe to call even when disabled.
type PriceCache interface {
	SetLatest(ctx context.Context, pair string, price decimal.Decimal) error
}
