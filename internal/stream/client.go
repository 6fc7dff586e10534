// Package stream provides a resilient WebSocket client for the
// exchange's push feed.
//
// The client owns the full connection lifecycle: dialing, the
// post-connect subscription handshake, a synchronous read loop, and
// reconnection after transport failures. It is designed for multi-day
// runtimes against a feed that will disconnect: every session that
// ends for any reason is followed by a fixed delay and a fresh dial,
// indefinitely, until the context is cancelled.
//
// Back-pressure is by construction: the handler is invoked
// synchronously for each frame before the next read, so the client
// never reads ahead of its consumer.
package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// defaultReconnectDelay is the fixed wait between a session ending
	// and the next dial attempt. Deliberately constant rather than an
	// escalating backoff: the policy is simple and testable, and the
	// feed tolerates it.
	defaultReconnectDelay = 5 * time.Second

	// defaultPingPeriod defines the interval for WebSocket ping
	// messages. A stalled-but-open connection is only detected through
	// the transport, so pings keep idle detection honest.
	defaultPingPeriod = 15 * time.Second

	// defaultSendTimeout bounds WebSocket write operations.
	defaultSendTimeout = 5 * time.Second

	// defaultReadLimit caps incoming frame size.
	defaultReadLimit = 1 << 20 // 1MB

	// defaultHandshakeTimeout bounds the WebSocket handshake.
	defaultHandshakeTimeout = 10 * time.Second
)

// Config defines settings for the streaming client.
type Config struct {
	// Endpoint is the WebSocket URL to connect to. Required.
	Endpoint string

	// Handler is called synchronously for each incoming frame.
	// Required. A non-nil error return is logged and absorbed; it
	// never ends the session.
	Handler func(ctx context.Context, raw []byte) error

	// SubscriptionMessages are sent in order after every successful
	// dial, including reconnects. A failed send is logged and the
	// remaining messages are still attempted.
	SubscriptionMessages [][]byte

	// ReconnectDelay overrides the fixed reconnect wait. Zero means
	// the default.
	ReconnectDelay time.Duration

	// PingPeriod overrides the keepalive ping interval. Zero means
	// the default.
	PingPeriod time.Duration

	// OnReconnect, when set, is called once before each redial
	// attempt after the first. Used for reconnect accounting.
	OnReconnect func()

	// TLSInsecureSkip disables TLS certificate verification.
	TLSInsecureSkip bool
}

// Client maintains one persistent connection to the feed endpoint and
// restarts it forever on failure.
type Client struct {
	cfg Config
}

// NewClient validates the configuration and returns a streaming
// client. The client does nothing until Listen is called.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint URL is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("message handler is required")
	}

	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.PingPeriod == 0 {
		cfg.PingPeriod = defaultPingPeriod
	}

	return &Client{cfg: cfg}, nil
}

// Listen runs connection sessions until ctx is cancelled. It never
// returns under normal operation: a session ending for any reason
// (dial failure, subscription failure, read error, or a connection
// that closes immediately after opening) leads to the same fixed
// delay and a fresh dial.
//
// The only return value is ctx.Err() once the context is done.
func (c *Client) Listen(ctx context.Context) error {
	logger := log.With().
		Str("endpoint", c.cfg.Endpoint).
		Str("component", "stream").
		Logger()

	for {
		if err := c.runSession(ctx, logger); err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("stream client stopped")
				return ctx.Err()
			}
			logger.Warn().Err(err).
				Dur("reconnect_in", c.cfg.ReconnectDelay).
				Msg("feed session ended, reconnecting")
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("stream client stopped")
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectDelay):
		}

		if c.cfg.OnReconnect != nil {
			c.cfg.OnReconnect()
		}
	}
}

// runSession performs one dial/subscribe/read cycle and returns the
// error that ended it.
func (c *Client) runSession(ctx context.Context, logger zerolog.Logger) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetReadLimit(defaultReadLimit)
	conn.SetPongHandler(func(string) error {
		deadline := time.Now().Add(c.cfg.PingPeriod * 2)
		if err := conn.SetReadDeadline(deadline); err != nil {
			logger.Warn().Err(err).Msg("failed to set read deadline in pong handler")
		}
		return nil
	})

	c.subscribe(conn, logger)

	// Per-session context so the ping loop dies with the session.
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.pingLoop(sessCtx, conn, logger)

	// A blocked read only notices cancellation through the transport,
	// so close the connection when the caller shuts down.
	go func() {
		<-sessCtx.Done()
		if ctx.Err() != nil {
			conn.Close()
		}
	}()

	return c.readLoop(ctx, conn, logger)
}

// subscribe sends all configured subscription frames. Sends are
// fire-and-forget: an individual failure is logged and must not
// prevent subscribing the remaining channels.
func (c *Client) subscribe(conn *websocket.Conn, logger zerolog.Logger) {
	for _, msg := range c.cfg.SubscriptionMessages {
		if err := conn.SetWriteDeadline(time.Now().Add(defaultSendTimeout)); err != nil {
			logger.Warn().Err(err).Msg("failed to set write deadline for subscribe")
		}
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Error().Err(err).Bytes("frame", msg).Msg("subscription send failed")
			continue
		}
		logger.Info().Bytes("frame", msg).Msg("subscribed")
	}
}

// readLoop blocks on the connection and feeds frames to the handler.
// Handler failures (malformed payloads, parse errors) are logged and
// absorbed; only transport errors end the loop.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, logger zerolog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info().Err(err).Msg("websocket closed normally")
			} else if websocket.IsUnexpectedCloseError(err) {
				logger.Warn().Err(err).Msg("unexpected websocket closure")
			} else {
				logger.Error().Err(err).Msg("read error")
			}
			return err
		}

		c.handle(ctx, data, logger)
	}
}

// handle invokes the handler inside a recovery boundary so a panic in
// message processing cannot take the session down.
func (c *Client) handle(ctx context.Context, data []byte, logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Any("recover", r).Bytes("frame", data).Msg("panic in message handler")
		}
	}()

	if err := c.cfg.Handler(ctx, data); err != nil {
		logger.Error().Err(err).Bytes("frame", data).Msg("dropped feed message")
	}
}

// pingLoop sends periodic pings until the session context ends.
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, logger zerolog.Logger) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(defaultSendTimeout)); err != nil {
				logger.Warn().Err(err).Msg("failed to set write deadline for ping")
				continue
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn().Err(err).Msg("ping error")
			}
		}
	}
}

// dial establishes a WebSocket connection to the configured endpoint.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	logger := log.With().
		Str("endpoint", c.cfg.Endpoint).
		Str("component", "stream").
		Logger()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: c.cfg.TLSInsecureSkip},
		HandshakeTimeout: defaultHandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.Endpoint, make(http.Header))
	if err != nil {
		if resp != nil {
			logger.Error().Err(err).Int("statusCode", resp.StatusCode).Msg("connection failed")
		} else {
			logger.Error().Err(err).Msg("connection failed")
		}
		return nil, err
	}

	logger.Info().Msg("websocket connection established")
	return conn, nil
}
