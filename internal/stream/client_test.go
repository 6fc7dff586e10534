package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testReconnectDelay keeps the reconnect path fast in tests.
const testReconnectDelay = 25 * time.Millisecond

// feedServer is a scripted WebSocket server. For each accepted
// connection it records the subscription frames it receives, sends the
// configured outbound frames, and then either drops the connection or
// holds it open.
type feedServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu            sync.Mutex
	subscriptions [][]byte
	connCount     atomic.Int64

	// script returns the frames to send on the nth connection
	// (0-based) and whether to drop the connection afterwards.
	script func(n int64) (frames []string, drop bool)
}

func newFeedServer(script func(n int64) ([]string, bool)) *feedServer {
	fs := &feedServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		script: script,
	}
	fs.server = httptest.NewServer(http.HandlerFunc(fs.handle))
	return fs
}

func (fs *feedServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	n := fs.connCount.Add(1) - 1
	frames, drop := fs.script(n)

	// Consume subscription frames before speaking. The client sends
	// one frame per instrument right after the dial.
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			fs.mu.Lock()
			fs.subscriptions = append(fs.subscriptions, data)
			fs.mu.Unlock()
		}
	}()

	// Give the subscriptions a moment to arrive so ordering in the
	// recorded log stays deterministic.
	time.Sleep(20 * time.Millisecond)

	for _, frame := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return
		}
	}

	if drop {
		conn.Close()
	}
}

func (fs *feedServer) URL() string {
	return "ws" + strings.TrimPrefix(fs.server.URL, "http")
}

func (fs *feedServer) Subscriptions() [][]byte {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([][]byte, len(fs.subscriptions))
	copy(out, fs.subscriptions)
	return out
}

func (fs *feedServer) Close() {
	fs.server.Close()
}

// collector gathers frames delivered to the handler.
type collector struct {
	mu     sync.Mutex
	frames []string
	fail   func(frame string) error
}

func (c *collector) handle(_ context.Context, raw []byte) error {
	c.mu.Lock()
	c.frames = append(c.frames, string(raw))
	c.mu.Unlock()
	if c.fail != nil {
		return c.fail(string(raw))
	}
	return nil
}

func (c *collector) Frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	copy(out, c.frames)
	return out
}

func Test_NewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{Handler: func(context.Context, []byte) error { return nil }})
	assert.Error(t, err, "missing endpoint must be rejected")

	_, err = NewClient(Config{Endpoint: "wss://example.com"})
	assert.Error(t, err, "missing handler must be rejected")
}

func Test_Listen_SubscribesAndDeliversFrames(t *testing.T) {
	fs := newFeedServer(func(n int64) ([]string, bool) {
		return []string{`{"event":"trade","channel":"live_trades_btcusd","data":{}}`}, false
	})
	defer fs.Close()

	col := &collector{}
	client, err := NewClient(Config{
		Endpoint: fs.URL(),
		Handler:  col.handle,
		SubscriptionMessages: [][]byte{
			[]byte(`{"event":"bts:subscribe","data":{"channel":"live_trades_btcusd"}}`),
			[]byte(`{"event":"bts:subscribe","data":{"channel":"live_trades_xrpusd"}}`),
		},
		ReconnectDelay: testReconnectDelay,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Listen(ctx) }()

	assert.Eventually(t, func() bool {
		return len(col.Frames()) >= 1
	}, 2*time.Second, 10*time.Millisecond, "frame should reach the handler")

	subs := fs.Subscriptions()
	require.GreaterOrEqual(t, len(subs), 2)
	assert.Contains(t, string(subs[0]), "live_trades_btcusd")
	assert.Contains(t, string(subs[1]), "live_trades_xrpusd")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancellation")
	}
}

func Test_Listen_ReconnectsAndResubscribes(t *testing.T) {
	// First connection drops immediately after one frame; the second
	// stays open.
	fs := newFeedServer(func(n int64) ([]string, bool) {
		if n == 0 {
			return []string{`{"event":"trade","channel":"live_trades_btcusd","data":{"n":"1"}}`}, true
		}
		return []string{`{"event":"trade","channel":"live_trades_btcusd","data":{"n":"2"}}`}, false
	})
	defer fs.Close()

	var reconnects atomic.Int64
	col := &collector{}
	client, err := NewClient(Config{
		Endpoint: fs.URL(),
		Handler:  col.handle,
		SubscriptionMessages: [][]byte{
			[]byte(`{"event":"bts:subscribe","data":{"channel":"live_trades_btcusd"}}`),
			[]byte(`{"event":"bts:subscribe","data":{"channel":"live_trades_xrpusd"}}`),
		},
		ReconnectDelay: testReconnectDelay,
		OnReconnect:    func() { reconnects.Add(1) },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Listen(ctx)

	assert.Eventually(t, func() bool {
		return len(col.Frames()) >= 2
	}, 3*time.Second, 10*time.Millisecond, "frames from both sessions should arrive")

	// Both sessions subscribed every instrument.
	assert.Eventually(t, func() bool {
		return len(fs.Subscriptions()) == 4
	}, 2*time.Second, 10*time.Millisecond, "every session re-sends all subscriptions")

	assert.GreaterOrEqual(t, reconnects.Load(), int64(1))
	assert.GreaterOrEqual(t, fs.connCount.Load(), int64(2))
}

func Test_Listen_ImmediateCloseTriggersRetry(t *testing.T) {
	// Connections that close before sending anything must still feed
	// the retry path, not crash.
	fs := newFeedServer(func(n int64) ([]string, bool) {
		if n < 2 {
			return nil, true
		}
		return []string{`{"event":"trade","channel":"live_trades_btcusd","data":{}}`}, false
	})
	defer fs.Close()

	col := &collector{}
	client, err := NewClient(Config{
		Endpoint:       fs.URL(),
		Handler:        col.handle,
		ReconnectDelay: testReconnectDelay,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Listen(ctx)

	assert.Eventually(t, func() bool {
		return len(col.Frames()) >= 1
	}, 3*time.Second, 10*time.Millisecond, "client should survive early closes and keep dialing")
	assert.GreaterOrEqual(t, fs.connCount.Load(), int64(3))
}

func Test_Listen_HandlerErrorDoesNotEndSession(t *testing.T) {
	fs := newFeedServer(func(n int64) ([]string, bool) {
		return []string{
			`{"event":"trade","channel":"live_trades_btcusd","data":{"broken`,
			`{"event":"trade","channel":"live_trades_btcusd","data":{"ok":"yes"}}`,
		}, false
	})
	defer fs.Close()

	col := &collector{
		fail: func(frame string) error {
			if strings.Contains(frame, "broken") {
				return assert.AnError
			}
			return nil
		},
	}
	client, err := NewClient(Config{
		Endpoint:       fs.URL(),
		Handler:        col.handle,
		ReconnectDelay: testReconnectDelay,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Listen(ctx)

	// The malformed frame errors, the next frame still arrives on the
	// same connection.
	assert.Eventually(t, func() bool {
		frames := col.Frames()
		return len(frames) == 2 && strings.Contains(frames[1], "ok")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), fs.connCount.Load(), "no reconnect should have happened")
}

func Test_Listen_HandlerPanicIsContained(t *testing.T) {
	fs := newFeedServer(func(n int64) ([]string, bool) {
		return []string{
			`{"event":"trade","channel":"live_trades_btcusd","data":{"panic":"yes"}}`,
			`{"event":"trade","channel":"live_trades_btcusd","data":{"ok":"yes"}}`,
		}, false
	})
	defer fs.Close()

	col := &collector{
		fail: func(frame string) error {
			if strings.Contains(frame, "panic") {
				panic("boom")
			}
			return nil
		},
	}
	client, err := NewClient(Config{
		Endpoint:       fs.URL(),
		Handler:        col.handle,
		ReconnectDelay: testReconnectDelay,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Listen(ctx)

	assert.Eventually(t, func() bool {
		frames := col.Frames()
		return len(frames) == 2 && strings.Contains(frames[1], "ok")
	}, 2*time.Second, 10*time.Millisecond, "receive loop should survive a handler panic")
}
