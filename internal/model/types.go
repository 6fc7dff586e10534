// Package model defines core data types for the market data ingestor.
//
// All monetary values use decimal.Decimal for precise financial
// calculations; conversion to floating point happens only at the
// time-series store boundary.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CandleStep is the fixed candle width used for historical backfill,
// in seconds (one hour).
const CandleStep = 3600

// TradeEvent represents one live trade received from the exchange's
// streaming feed.
//
// TradeEvent is ephemeral: it exists only in memory between feed
// receipt and the store write. A failed write is logged and dropped,
// never retried.
type TradeEvent struct {
	Pair      string          // Instrument identifier (e.g. "btcusd")
	Price     decimal.Decimal // Trade execution price
	Timestamp time.Time       // Exchange-supplied trade time, second precision
}

// Candle represents one aggregated OHLC bucket fetched from the
// exchange's history endpoint.
//
// Identity is (Pair, Start); writing a candle with an existing
// identity overwrites it, which makes backfill idempotent. Start is
// always an exact multiple of CandleStep.
type Candle struct {
	Pair   string
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
	Start  time.Time // Bucket start, second precision, CandleStep-aligned
}

// TickerSnapshot represents a point-in-time summary quote for an
// instrument, stamped with the local time of the fetch.
//
// Unlike candles, snapshots are append-only: every refresh produces a
// new point keyed by ObservedAt, nothing is overwritten.
type TickerSnapshot struct {
	Pair       string
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Last       decimal.Decimal
	Volume     decimal.Decimal
	ObservedAt time.Time
	LogoURL    string // Optional; empty when no currency metadata matched
}

// CurrencyMetadata describes one entry from the exchange's static
// currency listing, joined against tracked instruments by base symbol.
type CurrencyMetadata struct {
	Symbol string // Uppercase currency code (e.g. "BTC")
	Name   string // Display name (e.g. "Bitcoin")
	Logo   string // Logo image reference
	Type   string // Listing category (e.g. "crypto")
}
