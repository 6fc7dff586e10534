package ingest

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/exchange"
	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/metrics"
)

// TradeProcessor turns raw feed frames into persisted trade points.
// It is stateless per message: each frame is parsed, written, and
// forgotten. A failed write is logged and dropped, never retried.
type TradeProcessor struct {
	codec *exchange.FeedCodec
	store Store
	cache PriceCache // optional, may be nil
}

// NewTradeProcessor creates a processor writing to the given store.
// cache may be nil when no latest-price mirror is configured.
func NewTradeProcessor(store Store, cache PriceCache) *TradeProcessor {
	return &TradeProcessor{
		codec: exchange.NewFeedCodec(),
		store: store,
		cache: cache,
	}
}

// Process handles one raw feed frame. Non-trade events (subscription
// confirmations, heartbeats) are a successful no-op. A returned error
// means the frame was dropped; the caller logs it with the raw
// payload and keeps receiving.
func (p *TradeProcessor) Process(ctx context.Context, raw []byte) error {
	ev, ok, err := p.codec.ParseTrade(raw)
	if err != nil {
		metrics.FramesDropped.Inc()
		return err
	}
	if !ok {
		return nil
	}

	if err := p.store.WriteTrade(ctx, ev); err != nil {
		metrics.FramesDropped.Inc()
		return err
	}
	metrics.TradesWritten.WithLabelValues(ev.Pair).Inc()

	log.Info().
		Str("pair", ev.Pair).
		Str("price", ev.Price.String()).
		Time("ts", ev.Timestamp).
		Msg("spot price")

	// The mirror is best-effort; a cache failure never fails the frame.
	if p.cache != nil {
		if err := p.cache.SetLatest(ctx, ev.Pair, ev.Price); err != nil {
			log.Warn().Err(err).Str("pair", ev.Pair).Msg("latest-price cache update failed")
		}
	}

	return nil
}
