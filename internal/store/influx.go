// Package store persists market data into InfluxDB.
//
// Three logical series live in three buckets: live trade prices,
// historical candles, and ticker snapshots. Every point carries its
// own explicit identity (instrument tag plus timestamp), so concurrent
// writers from different activities never conflict: writes to
// different identities are independent and writes to the same identity
// resolve last-write-wins inside InfluxDB, which is what makes candle
// backfill idempotent.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"

	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/model"
)

const (
	// Measurement names, one per logical series.
	measurementTrades  = "crypto_data"
	measurementCandles = "crypto_history"
	measurementTickers = "crypto_ticker"

	// tagPair is the instrument tag on every point.
	tagPair = "currency_pair"

	// cursorLookback bounds the reconciliation cursor query. Gaps
	// older than one year are out of scope.
	cursorLookback = -365 * 24 * time.Hour
)

// Config describes the InfluxDB connection and bucket layout.
type Config struct {
	URL          string
	Token        string
	Org          string
	TradeBucket  string
	CandleBucket string
	TickerBucket string
}

// InfluxStore is the InfluxDB-backed market data store.
type InfluxStore struct {
	client       influxdb2.Client
	queryAPI     api.QueryAPI
	tradeWriter  api.WriteAPIBlocking
	candleWriter api.WriteAPIBlocking
	tickerWriter api.WriteAPIBlocking
	candleBucket string
}

// NewInfluxStore creates a store with one blocking write API per
// bucket. Writes are synchronous so every write attempt resolves
// inside its own failure boundary.
func NewInfluxStore(cfg Config) (*InfluxStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("influxdb url is required")
	}
	if cfg.TradeBucket == "" || cfg.CandleBucket == "" || cfg.TickerBucket == "" {
		return nil, errors.New("all three bucket names are required")
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	return &InfluxStore{
		client:       client,
		queryAPI:     client.QueryAPI(cfg.Org),
		tradeWriter:  client.WriteAPIBlocking(cfg.Org, cfg.TradeBucket),
		candleWriter: client.WriteAPIBlocking(cfg.Org, cfg.CandleBucket),
		tickerWriter: client.WriteAPIBlocking(cfg.Org, cfg.TickerBucket),
		candleBucket: cfg.CandleBucket,
	}, nil
}

// Close releases the underlying HTTP client.
func (s *InfluxStore) Close() {
	s.client.Close()
}

// WriteTrade persists one live trade price point. The exchange's
// second-precision timestamp becomes the point time; InfluxDB stores
// it at nanosecond resolution (exact integer scaling).
func (s *InfluxStore) WriteTrade(ctx context.Context, ev model.TradeEvent) error {
	point := write.NewPoint(
		measurementTrades,
		map[string]string{tagPair: ev.Pair},
		map[string]any{"price": ev.Price.InexactFloat64()},
		ev.Timestamp,
	)

	if err := s.tradeWriter.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("write trade point for %s: %w", ev.Pair, err)
	}

	log.Debug().
		Str("pair", ev.Pair).
		Str("price", ev.Price.String()).
		Time("ts", ev.Timestamp).
		Msg("trade point written")
	return nil
}

// WriteCandle upserts one historical candle. Identity is the pair tag
// plus the bucket start time; rewriting the same identity overwrites
// the previous values.
func (s *InfluxStore) WriteCandle(ctx context.Context, c model.Candle) error {
	point := write.NewPoint(
		measurementCandles,
		map[string]string{tagPair: c.Pair},
		map[string]any{
			"open":   c.Open.InexactFloat64(),
			"high":   c.High.InexactFloat64(),
			"low":    c.Low.InexactFloat64(),
			"close":  c.Close.InexactFloat64(),
			"volume": c.Volume.InexactFloat64(),
		},
		c.Start,
	)

	if err := s.candleWriter.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("write candle for %s at %d: %w", c.Pair, c.Start.Unix(), err)
	}

	return nil
}

// WriteTicker appends one ticker snapshot point. Snapshots are keyed
// by observation time, so every refresh creates a new point.
func (s *InfluxStore) WriteTicker(ctx context.Context, t model.TickerSnapshot) error {
	tags := map[string]string{tagPair: t.Pair}
	if t.LogoURL != "" {
		tags["logo_url"] = t.LogoURL
	}

	point := write.NewPoint(
		measurementTickers,
		tags,
		map[string]any{
			"open":   t.Open.InexactFloat64(),
			"high":   t.High.InexactFloat64(),
			"low":    t.Low.InexactFloat64(),
			"last":   t.Last.InexactFloat64(),
			"volume": t.Volume.InexactFloat64(),
		},
		t.ObservedAt,
	)

	if err := s.tickerWriter.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("write ticker for %s: %w", t.Pair, err)
	}

	return nil
}

// LatestCandleStart queries the most recent persisted candle bucket
// start for an instrument within the lookback window. The boolean is
// false when no candle exists, meaning "no prior data, backfill from
// the exchange's default lookback".
func (s *InfluxStore) LatestCandleStart(ctx context.Context, pair string) (time.Time, bool, error) {
	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: %ds)
  |> filter(fn: (r) => r._measurement == %q and r.%s == %q and r._field == "close")
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: 1)`,
		s.candleBucket, int64(cursorLookback/time.Second), measurementCandles, tagPair, pair)

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query latest candle for %s: %w", pair, err)
	}
	defer result.Close()

	var latest time.Time
	found := false
	for result.Next() {
		ts := result.Record().Time()
		if ts.After(latest) {
			latest = ts
			found = true
		}
	}
	if result.Err() != nil {
		return time.Time{}, false, fmt.Errorf("read latest candle for %s: %w", pair, result.Err())
	}

	return latest.UTC(), found, nil
}
