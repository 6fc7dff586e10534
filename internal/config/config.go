// Package config loads process configuration from a .env file,
// environment variables, and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/model"
)

// Config holds all configuration for the ingestor process.
type Config struct {
	Influx    InfluxConfig    `mapstructure:"influxdb"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Status    StatusConfig    `mapstructure:"status"`
}

// InfluxConfig describes the time-series store connection and the
// three logical buckets written by the ingestor.
type InfluxConfig struct {
	URL          string `mapstructure:"url"`
	Token        string `mapstructure:"token"`
	Org          string `mapstructure:"org"`
	TradeBucket  string `mapstructure:"trade_bucket"`
	CandleBucket string `mapstructure:"candle_bucket"`
	TickerBucket string `mapstructure:"ticker_bucket"`
}

// ExchangeConfig describes the exchange endpoints and the fixed set of
// tracked instruments.
type ExchangeConfig struct {
	WSURL       string   `mapstructure:"ws_url"`
	HTTPBaseURL string   `mapstructure:"http_base_url"`
	Pairs       []string `mapstructure:"pairs"`
}

// RedisConfig describes the optional latest-price cache. An empty
// Addr disables the cache entirely.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SchedulerConfig holds the timing knobs for the long-running
// activities.
type SchedulerConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
}

// StatusConfig describes the local HTTP surface serving health and
// metrics.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration from a .env file (if present), environment
// variables, and defaults, in that order of precedence.
func Load() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment so the variables below
	// are visible to viper's AutomaticEnv.
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, relying on environment variables")
	}

	v.SetDefault("influxdb.url", "http://localhost:8086")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", "")
	v.SetDefault("influxdb.trade_bucket", "crypto_portfolio")
	v.SetDefault("influxdb.candle_bucket", "crypto_history")
	v.SetDefault("influxdb.ticker_bucket", "crypto_ticker")

	v.SetDefault("exchange.ws_url", "wss://ws.bitstamp.net")
	v.SetDefault("exchange.http_base_url", "https://www.bitstamp.net/api/v2")
	v.SetDefault("exchange.pairs", []string{
		"btcusd", "xrpusd", "xlmusd", "hbarusd", "vetusd", "csprusd", "xdcusd",
	})

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("scheduler.reconcile_interval", 12*time.Hour)
	v.SetDefault("scheduler.reconnect_delay", 5*time.Second)

	v.SetDefault("status.addr", ":8088")

	// Map dot-notation keys to underscore env vars, e.g.
	// "influxdb.url" -> INFLUXDB_URL.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v,
		"influxdb.url", "influxdb.token", "influxdb.org",
		"influxdb.trade_bucket", "influxdb.candle_bucket", "influxdb.ticker_bucket",
		"exchange.ws_url", "exchange.http_base_url", "exchange.pairs",
		"redis.addr", "redis.password", "redis.db",
		"scheduler.reconcile_interval", "scheduler.reconnect_delay",
		"status.addr",
	)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// EXCHANGE_PAIRS arrives as a comma-separated value when set
	// through the environment. Split and trim so that stray spaces
	// around the commas do not fail instrument validation.
	pairs := make([]string, 0, len(cfg.Exchange.Pairs))
	for _, entry := range cfg.Exchange.Pairs {
		for _, p := range strings.Split(entry, ",") {
			if p = strings.TrimSpace(p); p != "" {
				pairs = append(pairs, p)
			}
		}
	}
	cfg.Exchange.Pairs = pairs

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Influx.URL == "" {
		return fmt.Errorf("influxdb url cannot be empty")
	}
	if c.Exchange.WSURL == "" {
		return fmt.Errorf("exchange websocket url cannot be empty")
	}
	if c.Exchange.HTTPBaseURL == "" {
		return fmt.Errorf("exchange http base url cannot be empty")
	}
	if c.Scheduler.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile interval must be positive")
	}
	if c.Scheduler.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive")
	}
	return model.ValidateInstruments(c.Exchange.Pairs, 100)
}

// bindEnv binds multiple keys at once.
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("could not bind env var")
		}
	}
}
