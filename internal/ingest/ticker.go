package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/metrics"
	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/model"
)

// TickerRefresher snapshots the current ticker for every tracked
// instrument and enriches it with static currency metadata.
type TickerRefresher struct {
	store    Store
	exchange ExchangeAPI
	now      func() time.Time
}

// NewTickerRefresher creates a refresher over the given store and
// exchange client.
func NewTickerRefresher(store Store, ex ExchangeAPI) *TickerRefresher {
	return &TickerRefresher{
		store:    store,
		exchange: ex,
		now:      time.Now,
	}
}

// RefreshAll fetches currency metadata once, then writes one ticker
// snapshot per instrument. Every failure is absorbed at its own
// granularity: a metadata fetch failure means snapshots go out
// without logos, and one instrument's ticker failure never blocks the
// rest. Snapshots are append-only, stamped with the fetch time.
func (t *TickerRefresher) RefreshAll(ctx context.Context, pairs []string) {
	meta := t.fetchMetadata(ctx, pairs)

	for _, pair := range pairs {
		if ctx.Err() != nil {
			return
		}

		snap, err := t.exchange.FetchTicker(ctx, pair)
		if err != nil {
			log.Error().Err(err).Str("pair", pair).Msg("ticker fetch failed, skipping instrument")
			continue
		}

		snap.ObservedAt = t.now().UTC()
		if m, ok := meta[model.BaseSymbol(pair)]; ok {
			snap.LogoURL = m.Logo
		}

		if err := t.store.WriteTicker(ctx, snap); err != nil {
			log.Error().Err(err).Str("pair", pair).Msg("ticker write failed, skipping instrument")
			continue
		}

		metrics.TickersWritten.WithLabelValues(pair).Inc()
		log.Info().
			Str("pair", pair).
			Str("last", snap.Last.String()).
			Str("logo", snap.LogoURL).
			Msg("ticker snapshot written")
	}
}

// fetchMetadata loads the currency listing and indexes it by base
// symbol. A total fetch failure returns an empty map so snapshots
// still go out without logos. Tracked instruments lacking a metadata
// match are informational, not errors.
func (t *TickerRefresher) fetchMetadata(ctx context.Context, pairs []string) map[string]model.CurrencyMetadata {
	meta := make(map[string]model.CurrencyMetadata)

	currencies, err := t.exchange.FetchCurrencies(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("currency metadata fetch failed, writing tickers without metadata")
		return meta
	}

	for _, c := range currencies {
		meta[c.Symbol] = c
	}

	var unmatched []string
	for _, pair := range pairs {
		if _, ok := meta[model.BaseSymbol(pair)]; !ok {
			unmatched = append(unmatched, pair)
		}
	}
	if len(unmatched) > 0 {
		log.Info().Strs("pairs", unmatched).Msg("no currency metadata for some tracked instruments")
	}

	return meta
}
