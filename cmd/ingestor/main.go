/*
Package main implements the market data ingestor.

The ingestor maintains a persistent WebSocket subscription to the
exchange's live trades feed and writes every trade price into InfluxDB,
while a periodic pass refreshes ticker snapshots and backfills hourly
candle history from the last persisted bucket. It runs until
terminated, surviving feed disconnects indefinitely.

Usage:

	ingestor -mode run        # continuous ingestion (default)
	ingestor -mode backfill   # one reconciliation pass, then exit
	ingestor -mode ticker     # one ticker refresh, then exit

Configuration comes from the environment (or a .env file): InfluxDB
URL/token/org and bucket names, exchange endpoints, the tracked
instrument list, and optional Redis and status-server addresses.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/cache"
	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/config"
	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/exchange"
	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/ingest"
	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/metrics"
	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/store"
	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/stream"
)

// mode selects between continuous ingestion and the one-shot passes.
var mode = flag.String("mode", "run", "run | backfill | ticker")

func main() {
	flag.Parse()
	initLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Collaborator handles are constructed once here and passed down
	// into each activity; they live for the whole process.
	db, err := store.NewInfluxStore(store.Config{
		URL:          cfg.Influx.URL,
		Token:        cfg.Influx.Token,
		Org:          cfg.Influx.Org,
		TradeBucket:  cfg.Influx.TradeBucket,
		CandleBucket: cfg.Influx.CandleBucket,
		TickerBucket: cfg.Influx.TickerBucket,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create store client")
	}
	defer db.Close()

	rest, err := exchange.NewClient(&exchange.Config{BaseURL: cfg.Exchange.HTTPBaseURL})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create exchange client")
	}

	reconciler := ingest.NewReconciler(db, rest)
	refresher := ingest.NewTickerRefresher(db, rest)

	// Graceful shutdown on interrupt.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("initiating graceful shutdown")
		cancel()
	}()

	switch *mode {
	case "backfill":
		reconciler.ReconcileAll(ctx, cfg.Exchange.Pairs)
		return
	case "ticker":
		refresher.RefreshAll(ctx, cfg.Exchange.Pairs)
		return
	case "run":
		// Continuous mode, set up below.
	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode")
	}

	prices := cache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer prices.Close()

	listener, err := newListener(cfg, ingest.NewTradeProcessor(db, prices))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create stream client")
	}

	statusServer := startStatusServer(cfg.Status.Addr)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("status server shutdown failed")
		}
	}()

	scheduler := ingest.NewScheduler(listener, reconciler, refresher,
		cfg.Exchange.Pairs, cfg.Scheduler.ReconcileInterval)

	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("scheduler failed")
	}
	log.Info().Msg("shutdown complete")
}

// newListener builds the streaming feed client with one subscription
// frame per tracked instrument.
func newListener(cfg *config.Config, processor *ingest.TradeProcessor) (*stream.Client, error) {
	frames, err := exchange.NewFeedCodec().SubscribeFrames(cfg.Exchange.Pairs)
	if err != nil {
		return nil, fmt.Errorf("build subscribe frames: %w", err)
	}

	return stream.NewClient(stream.Config{
		Endpoint:             cfg.Exchange.WSURL,
		Handler:              processor.Process,
		SubscriptionMessages: frames,
		ReconnectDelay:       cfg.Scheduler.ReconnectDelay,
		OnReconnect:          metrics.FeedReconnects.Inc,
	})
}

// newStatusRouter builds the local status surface: liveness and
// Prometheus metrics.
func newStatusRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// startStatusServer serves the status surface on the configured local
// address.
func startStatusServer(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: newStatusRouter()}
	go func() {
		log.Info().Str("addr", addr).Msg("status server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("status server failed")
		}
	}()
	return srv
}

// initLogger configures the global zerolog logger. LOG_LEVEL selects
// verbosity; output is human-readable console format.
func initLogger() {
	zerolog.TimeFieldFormat = time.RFC3339

	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
