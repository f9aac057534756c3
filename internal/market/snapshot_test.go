package market

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) Ticker(ctx context.Context, symbol string) (Ticker, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(Ticker), args.Error(1)
}

func (m *MockSource) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	args := m.Called(ctx, symbol, interval, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Candle), args.Error(1)
}

func (m *MockSource) Close() error { return nil }

func quote(sym string, bid, ask int64) Ticker {
	return Ticker{Symbol: sym, Bid: decimal.NewFromInt(bid), Ask: decimal.NewFromInt(ask)}
}

func TestCollectKeepsOrderAndIsolatesFailures(t *testing.T) {
	src := new(MockSource)
	src.On("Ticker", mock.Anything, "BTC").Return(quote("BTC", 100, 101), nil)
	src.On("Ticker", mock.Anything, "ETH").Return(Ticker{}, errors.New("timeout"))
	src.On("Ticker", mock.Anything, "SOL").Return(quote("SOL", 10, 11), nil)
	src.On("FetchHistory", mock.Anything, "BTC", "15m", 100).Return([]Candle{{Close: 1}}, nil)
	src.On("FetchHistory", mock.Anything, "SOL", "15m", 100).Return(nil, errors.New("rate limited"))

	c := NewCollector(src, CollectorOptions{Symbols: []string{"BTC", "ETH", "SOL"}, CandleInterval: "15m"})
	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Symbols, 3)
	assert.Equal(t, "BTC", snap.Symbols[0].Symbol)
	assert.Len(t, snap.Symbols[0].Candles, 1)
	assert.Error(t, snap.Symbols[1].Err)
	assert.True(t, snap.Symbols[2].OK(), "candle failure alone keeps the quote usable")
	assert.Empty(t, snap.Symbols[2].Candles)
	assert.Len(t, snap.Available(), 2)
	assert.Len(t, snap.Failed(), 1)
	src.AssertExpectations(t)
}

func TestCollectAllFailed(t *testing.T) {
	src := new(MockSource)
	src.On("Ticker", mock.Anything, mock.Anything).Return(Ticker{}, errors.New("down"))

	c := NewCollector(src, CollectorOptions{Symbols: []string{"BTC", "ETH"}})
	_, err := c.Collect(context.Background())
	assert.ErrorIs(t, err, ErrNoMarketData)
}

func TestTickerMid(t *testing.T) {
	tk := quote("BTC", 100, 102)
	assert.True(t, tk.Valid())
	assert.True(t, tk.Mid().Equal(decimal.NewFromInt(101)))
	assert.False(t, Ticker{}.Valid())
}
