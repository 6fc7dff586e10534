package exchange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/model"
)

const (
	// tradeChannelPrefix is prepended to the instrument identifier to
	// form the per-instrument live trade channel name.
	tradeChannelPrefix = "live_trades_"

	// eventTrade is the event value of a trade notification frame.
	// Other event values (subscription confirmations, heartbeats,
	// reconnect requests) carry no trade data and are skipped.
	eventTrade = "trade"
)

// ErrNotTradeChannel indicates a trade frame whose channel name does
// not follow the live_trades_<pair> convention.
var ErrNotTradeChannel = errors.New("channel is not a live trades channel")

// feedEnvelope is the outer wrapper of every feed frame:
//
//	{"event": "...", "channel": "...", "data": {...}}
type feedEnvelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// feedTrade is the payload of a trade notification. Numerics are
// string-encoded; the timestamp is unix seconds.
type feedTrade struct {
	Price     string `json:"price" validate:"required,numeric"`
	Timestamp string `json:"timestamp" validate:"required,numeric"`
}

// FeedCodec encodes subscription frames and decodes trade frames for
// the streaming feed.
type FeedCodec struct {
	validate *validator.Validate
}

// NewFeedCodec returns a codec for the live trades feed.
func NewFeedCodec() *FeedCodec {
	return &FeedCodec{validate: validator.New()}
}

// SubscribeFrames builds one subscription frame per instrument:
//
//	{"event":"bts:subscribe","data":{"channel":"live_trades_<pair>"}}
func (fc *FeedCodec) SubscribeFrames(pairs []string) ([][]byte, error) {
	frames := make([][]byte, 0, len(pairs))
	for _, pair := range pairs {
		frame, err := json.Marshal(map[string]any{
			"event": "bts:subscribe",
			"data":  map[string]string{"channel": tradeChannelPrefix + pair},
		})
		if err != nil {
			return nil, fmt.Errorf("marshal subscribe frame for %s: %w", pair, err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// ParseTrade decodes a raw feed frame. The boolean reports whether the
// frame was a trade notification: non-trade events return (zero,
// false, nil) and are not errors. Malformed trade frames (missing
// price, non-numeric fields, unexpected channel name) return an error
// for the caller to log and drop.
func (fc *FeedCodec) ParseTrade(raw []byte) (model.TradeEvent, bool, error) {
	var env feedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.TradeEvent{}, false, fmt.Errorf("decode feed frame: %w", err)
	}

	if env.Event != eventTrade {
		return model.TradeEvent{}, false, nil
	}

	pair := strings.TrimPrefix(env.Channel, tradeChannelPrefix)
	if pair == env.Channel || pair == "" {
		return model.TradeEvent{}, false, fmt.Errorf("%w: %q", ErrNotTradeChannel, env.Channel)
	}

	var t feedTrade
	if err := json.Unmarshal(env.Data, &t); err != nil {
		return model.TradeEvent{}, false, fmt.Errorf("decode trade payload: %w", err)
	}

	if err := fc.validate.Struct(&t); err != nil {
		return model.TradeEvent{}, false, fmt.Errorf("trade validation failed: %w", err)
	}

	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return model.TradeEvent{}, false, fmt.Errorf("invalid trade price: %w", err)
	}

	sec, err := strconv.ParseInt(t.Timestamp, 10, 64)
	if err != nil {
		return model.TradeEvent{}, false, fmt.Errorf("invalid trade timestamp: %w", err)
	}

	return model.TradeEvent{
		Pair:      pair,
		Price:     price,
		Timestamp: time.Unix(sec, 0).UTC(),
	}, true, nil
}
