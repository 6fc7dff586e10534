package ingest

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/firesoflife/Crypto-Portfolio-Grafana/internal/model"
)

// mockStore is a testify mock of the Store interface.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) WriteTrade(ctx context.Context, ev model.TradeEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *mockStore) WriteCandle(ctx context.Context, c model.Candle) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *mockStore) WriteTicker(ctx context.Context, t model.TickerSnapshot) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockStore) LatestCandleStart(ctx context.Context, pair string) (time.Time, bool, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}

// mockExchange is a testify mock of the ExchangeAPI interface.
type mockExchange struct {
	mock.Mock
}

func (m *mockExchange) FetchOHLC(ctx context.Context, pair string, step, limit int, start, end time.Time) ([]model.Candle, error) {
	args := m.Called(ctx, pair, step, limit, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Candle), args.Error(1)
}

func (m *mockExchange) FetchTicker(ctx context.Context, pair string) (model.TickerSnapshot, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(model.TickerSnapshot), args.Error(1)
}

func (m *mockExchange) FetchCurrencies(ctx context.Context) ([]model.CurrencyMetadata, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CurrencyMetadata), args.Error(1)
}

// mockCache is a testify mock of the PriceCache interface.
type mockCache struct {
	mock.Mock
}

func (m *mockCache) SetLatest(ctx context.Context, pair string, price decimal.Decimal) error {
	args := m.Called(ctx, pair, price)
	return args.Error(0)
}
