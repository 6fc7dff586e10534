// Package exchange provides the Bitstamp client surfaces used by the
// ingestor: a synchronous REST client for candle history, ticker
// snapshots, and currency metadata, and the wire codec for the
// streaming feed.
//
// All numeric payload fields arrive as string-encoded numerics and are
// parsed into decimal.Decimal to preserve precision. Each call may
// fail transiently (HTTP error) or return a malformed payload; callers
// handle both at instrument granularity.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/model"
)

const (
	// MaxOHLCLimit is the largest candle page the exchange serves per
	// request.
	MaxOHLCLimit = 1000

	// defaultHTTPTimeout bounds every REST call.
	defaultHTTPTimeout = 15 * time.Second
)

var (
	// ErrInvalidConfig indicates that the provided Config contains
	// invalid values.
	ErrInvalidConfig = errors.New("invalid configuration")

	// defaultConfig provides sensible defaults for the public API.
	defaultConfig = Config{
		BaseURL: "https://www.bitstamp.net/api/v2",
		Timeout: defaultHTTPTimeout,
	}
)

// Config provides configuration parameters for the REST client.
type Config struct {
	// BaseURL is the REST API root, without a trailing slash.
	BaseURL string

	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// Client is a synchronous Bitstamp REST client.
type Client struct {
	config     Config
	httpClient *http.Client
	validate   *validator.Validate
}

// NewClient creates a REST client. A nil config uses defaults.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &defaultConfig
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultConfig.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultConfig.Timeout
	}

	return &Client{
		config:     *cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		validate:   validator.New(),
	}, nil
}

// ohlcEntry is one candle as returned by the history endpoint. All
// numerics are string-encoded.
type ohlcEntry struct {
	Open      string `json:"open" validate:"required,numeric"`
	High      string `json:"high" validate:"required,numeric"`
	Low       string `json:"low" validate:"required,numeric"`
	Close     string `json:"close" validate:"required,numeric"`
	Volume    string `json:"volume" validate:"required,numeric"`
	Timestamp string `json:"timestamp" validate:"required,numeric"`
}

// ohlcResponse is the envelope of the history endpoint:
//
//	{"data": {"pair": "BTC/USD", "ohlc": [ ... ]}}
type ohlcResponse struct {
	Data struct {
		Pair string      `json:"pair"`
		OHLC []ohlcEntry `json:"ohlc"`
	} `json:"data"`
}

// tickerResponse is the payload of the ticker endpoint. Extra fields
// the endpoint returns (bid, ask, vwap, ...) are ignored.
type tickerResponse struct {
	Open   string `json:"open" validate:"required,numeric"`
	High   string `json:"high" validate:"required,numeric"`
	Low    string `json:"low" validate:"required,numeric"`
	Last   string `json:"last" validate:"required,numeric"`
	Volume string `json:"volume" validate:"required,numeric"`
}

// currencyEntry is one entry of the static currency listing.
type currencyEntry struct {
	Currency string `json:"currency" validate:"required"`
	Name     string `json:"name"`
	Logo     string `json:"logo"`
	Type     string `json:"type"`
}

// FetchOHLC requests one page of hourly candles for an instrument.
//
// step is the candle width in seconds, limit the page size (capped at
// MaxOHLCLimit by the exchange). Zero start/end omit the respective
// bound; with no start the exchange returns its default lookback of
// the latest limit candles.
func (c *Client) FetchOHLC(ctx context.Context, pair string, step, limit int, start, end time.Time) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("step", strconv.Itoa(step))
	params.Set("limit", strconv.Itoa(limit))
	if !start.IsZero() {
		params.Set("start", strconv.FormatInt(start.Unix(), 10))
	}
	if !end.IsZero() {
		params.Set("end", strconv.FormatInt(end.Unix(), 10))
	}

	endpoint := fmt.Sprintf("%s/ohlc/%s/?%s", c.config.BaseURL, url.PathEscape(pair), params.Encode())

	var resp ohlcResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("fetch ohlc for %s: %w", pair, err)
	}

	candles := make([]model.Candle, 0, len(resp.Data.OHLC))
	for _, entry := range resp.Data.OHLC {
		candle, err := c.toCandle(pair, entry)
		if err != nil {
			// One bad entry should not discard the page.
			log.Warn().Err(err).Str("pair", pair).Interface("entry", entry).Msg("skipping malformed candle")
			continue
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// FetchTicker requests the current ticker snapshot for an instrument.
// The returned snapshot carries exchange data only; the caller stamps
// ObservedAt and attaches metadata.
func (c *Client) FetchTicker(ctx context.Context, pair string) (model.TickerSnapshot, error) {
	endpoint := fmt.Sprintf("%s/ticker/%s/", c.config.BaseURL, url.PathEscape(pair))

	var resp tickerResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return model.TickerSnapshot{}, fmt.Errorf("fetch ticker for %s: %w", pair, err)
	}

	if err := c.validate.Struct(&resp); err != nil {
		return model.TickerSnapshot{}, fmt.Errorf("ticker validation failed for %s: %w", pair, err)
	}

	open, err := decimal.NewFromString(resp.Open)
	if err != nil {
		return model.TickerSnapshot{}, fmt.Errorf("invalid ticker open for %s: %w", pair, err)
	}
	high, err := decimal.NewFromString(resp.High)
	if err != nil {
		return model.TickerSnapshot{}, fmt.Errorf("invalid ticker high for %s: %w", pair, err)
	}
	low, err := decimal.NewFromString(resp.Low)
	if err != nil {
		return model.TickerSnapshot{}, fmt.Errorf("invalid ticker low for %s: %w", pair, err)
	}
	last, err := decimal.NewFromString(resp.Last)
	if err != nil {
		return model.TickerSnapshot{}, fmt.Errorf("invalid ticker last for %s: %w", pair, err)
	}
	volume, err := decimal.NewFromString(resp.Volume)
	if err != nil {
		return model.TickerSnapshot{}, fmt.Errorf("invalid ticker volume for %s: %w", pair, err)
	}

	return model.TickerSnapshot{
		Pair:   pair,
		Open:   open,
		High:   high,
		Low:    low,
		Last:   last,
		Volume: volume,
	}, nil
}

// FetchCurrencies requests the exchange's static currency listing.
func (c *Client) FetchCurrencies(ctx context.Context) ([]model.CurrencyMetadata, error) {
	endpoint := fmt.Sprintf("%s/currencies/", c.config.BaseURL)

	var entries []currencyEntry
	if err := c.getJSON(ctx, endpoint, &entries); err != nil {
		return nil, fmt.Errorf("fetch currencies: %w", err)
	}

	currencies := make([]model.CurrencyMetadata, 0, len(entries))
	for _, entry := range entries {
		if err := c.validate.Struct(&entry); err != nil {
			log.Warn().Err(err).Interface("entry", entry).Msg("skipping malformed currency entry")
			continue
		}
		currencies = append(currencies, model.CurrencyMetadata{
			Symbol: entry.Currency,
			Name:   entry.Name,
			Logo:   entry.Logo,
			Type:   entry.Type,
		})
	}

	return currencies, nil
}

// toCandle validates and converts one wire entry to a domain candle.
func (c *Client) toCandle(pair string, entry ohlcEntry) (model.Candle, error) {
	if err := c.validate.Struct(&entry); err != nil {
		return model.Candle{}, fmt.Errorf("candle validation failed: %w", err)
	}

	open, err := decimal.NewFromString(entry.Open)
	if err != nil {
		return model.Candle{}, fmt.Errorf("invalid open: %w", err)
	}
	high, err := decimal.NewFromString(entry.High)
	if err != nil {
		return model.Candle{}, fmt.Errorf("invalid high: %w", err)
	}
	low, err := decimal.NewFromString(entry.Low)
	if err != nil {
		return model.Candle{}, fmt.Errorf("invalid low: %w", err)
	}
	closePrice, err := decimal.NewFromString(entry.Close)
	if err != nil {
		return model.Candle{}, fmt.Errorf("invalid close: %w", err)
	}
	volume, err := decimal.NewFromString(entry.Volume)
	if err != nil {
		return model.Candle{}, fmt.Errorf("invalid volume: %w", err)
	}
	sec, err := strconv.ParseInt(entry.Timestamp, 10, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	return model.Candle{
		Pair:   pair,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
		Start:  time.Unix(sec, 0).UTC(),
	}, nil
}

// getJSON performs a GET request and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
