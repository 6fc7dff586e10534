// Package cache mirrors the latest observed trade price per
// instrument into Redis for cheap lookups by other tools.
//
// The cache is strictly best-effort and optional: an empty address
// disables it entirely, and a failed cache write never affects
// ingestion.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	// keyPrefix namespaces the latest-price keys.
	keyPrefix = "price:latest:"

	// entryTTL expires stale prices for instruments whose feed went
	// quiet.
	entryTTL = 24 * time.Hour
)

// PriceCache stores the latest trade price per instrument. A nil
// client makes every method a no-op.
type PriceCache struct {
	client *redis.Client
}

// New connects to Redis at addr. An empty addr returns a disabled
// cache; a failed ping is logged and also degrades to disabled rather
// than failing startup.
func New(ctx context.Context, addr, password string, db int) *PriceCache {
	if addr == "" {
		log.Info().Msg("latest-price cache disabled")
		return &PriceCache{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("redis unreachable, latest-price cache disabled")
		return &PriceCache{}
	}

	log.Info().Str("addr", addr).Msg("latest-price cache enabled")
	return &PriceCache{client: client}
}

// Enabled reports whether the cache is backed by a live connection.
func (pc *PriceCache) Enabled() bool {
	return pc.client != nil
}

// SetLatest records the most recent price for an instrument.
func (pc *PriceCache) SetLatest(ctx context.Context, pair string, price decimal.Decimal) error {
	if pc.client == nil {
		return nil
	}

	if err := pc.client.Set(ctx, keyPrefix+pair, price.String(), entryTTL).Err(); err != nil {
		return fmt.Errorf("cache latest price for %s: %w", pair, err)
	}
	return nil
}

// Latest returns the cached price for an instrument. The boolean is
// false when the cache is disabled or holds no entry.
func (pc *PriceCache) Latest(ctx context.Context, pair string) (decimal.Decimal, bool, error) {
	if pc.client == nil {
		return decimal.Decimal{}, false, nil
	}

	val, err := pc.client.Get(ctx, keyPrefix+pair).Result()
	if err == redis.Nil {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("read latest price for %s: %w", pair, err)
	}

	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("corrupt cached price for %s: %w", pair, err)
	}
	return price, true, nil
}

// Close releases the Redis connection.
func (pc *PriceCache) Close() error {
	if pc.client == nil {
		return nil
	}
	return pc.client.Close()
}
