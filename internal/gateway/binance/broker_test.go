package binance

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"cryptoprinter/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	accountJSON = `{"canTrade":true,"balances":[
		{"asset":"USDT","free":"900.5","locked":"100"},
		{"asset":"BTC","free":"0.01","locked":"0"},
		{"asset":"ETH","free":"0","locked":"0"}]}`
	openOrdersJSON = `[
		{"symbol":"SOLUSDT","orderId":7,"price":"20","origQty":"5","executedQty":"0","status":"NEW","type":"LIMIT","side":"BUY","time":1700000000000},
		{"symbol":"ADAUSDT","orderId":8,"price":"0.5","origQty":"100","executedQty":"0","status":"NEW","type":"LIMIT","side":"SELL","time":1700000000000}]`
)

type exchangeCall struct {
	method string
	path   string
	params url.Values
}

type fakeExchange struct {
	mu    sync.Mutex
	calls []exchangeCall
}

func (f *fakeExchange) recorded(method, path string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []url.Values
	for _, c := range f.calls {
		if c.method == method && c.path == path {
			out = append(out, c.params)
		}
	}
	return out
}

func (f *fakeExchange) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	params, _ := url.ParseQuery(string(body))
	for k, v := range r.URL.Query() {
		params[k] = v
	}
	f.mu.Lock()
	f.calls = append(f.calls, exchangeCall{method: r.Method, path: r.URL.Path, params: params})
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v3/account":
		_, _ = w.Write([]byte(accountJSON))
	case r.Method == http.MethodGet && r.URL.Path == "/api/v3/openOrders":
		_, _ = w.Write([]byte(openOrdersJSON))
	case r.Method == http.MethodPost && r.URL.Path == "/api/v3/order":
		if params.Get("type") == "MARKET" {
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":11,"executedQty":"0.002","cummulativeQuoteQty":"100","status":"FILLED"}`))
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","orderId":21,"transactTime":1700000000000,"executedQty":"0","status":"NEW"}`))
	case r.Method == http.MethodDelete && r.URL.Path == "/api/v3/order":
		if params.Get("orderId") == "8" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-2011,"msg":"Unknown order sent."}`))
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"SOLUSDT","orderId":7,"status":"CANCELED"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestBroker(t *testing.T) (*Broker, *fakeExchange) {
	t.Helper()
	fx := &fakeExchange{}
	srv := httptest.NewServer(fx)
	t.Cleanup(srv.Close)
	b, err := NewBroker(Config{RESTBaseURL: srv.URL, APIKey: "key", APISecret: "secret"}, 0)
	require.NoError(t, err)
	b.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return b, fx
}

func TestNewBrokerRequiresCredentials(t *testing.T) {
	_, err := NewBroker(Config{APIKey: "key"}, 0)
	assert.Error(t, err)
}

func TestBrokerSyncMapsAccount(t *testing.T) {
	b, _ := newTestBroker(t)
	require.NoError(t, b.Sync(context.Background()))

	assert.True(t, b.Available().Equal(decimal.RequireFromString("900.5")))
	snap := b.Snapshot()
	assert.True(t, snap.Balance.Equal(decimal.RequireFromString("1000.5")))
	assert.True(t, snap.Reserved.Equal(decimal.NewFromInt(100)))

	positions := b.Positions()
	require.Len(t, positions, 1, "empty balances are not positions")
	assert.Equal(t, "BTC", positions[0].Symbol)
	assert.True(t, positions[0].Quantity.Equal(decimal.RequireFromString("0.01")))

	orders := b.OpenOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, int64(7), orders[0].ID)
	assert.Equal(t, "SOL", orders[0].Symbol)
	assert.Equal(t, ledger.SideBuy, orders[0].Side)
	assert.Equal(t, ledger.KindLimit, orders[0].Kind)
	assert.True(t, orders[0].Amount.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, orders[0].LimitPrice)
	assert.True(t, orders[0].LimitPrice.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, ledger.SideSell, orders[1].Side)
}

func TestBrokerMarketBuySpendsQuoteAmount(t *testing.T) {
	b, fx := newTestBroker(t)
	fill, err := b.BuyMarket(context.Background(), "btc", decimal.NewFromInt(100), decimal.NewFromInt(49000), "breakout")
	require.NoError(t, err)

	sent := fx.recorded(http.MethodPost, "/api/v3/order")
	require.Len(t, sent, 1)
	assert.Equal(t, "BTCUSDT", sent[0].Get("symbol"))
	assert.Equal(t, "BUY", sent[0].Get("side"))
	assert.Equal(t, "MARKET", sent[0].Get("type"))
	assert.Equal(t, "100", sent[0].Get("quoteOrderQty"))

	assert.True(t, fill.Quantity.Equal(decimal.RequireFromString("0.002")))
	assert.True(t, fill.Price.Equal(decimal.NewFromInt(50000)), "price comes from the execution, not the quote")
	assert.True(t, fill.Balance.Equal(decimal.RequireFromString("900.5")))
	require.NotNil(t, fill.OrderID)
	assert.Equal(t, int64(11), *fill.OrderID)

	trades := b.RecentTrades(5)
	require.Len(t, trades, 1)
	assert.Equal(t, ledger.CommandBuyMarket, trades[0].Command)
	assert.Equal(t, "breakout", trades[0].Reasoning)
	pos := b.Positions()
	require.Len(t, pos, 1)
	assert.True(t, pos[0].AveragePrice.Equal(decimal.NewFromInt(50000)))
}

func TestBrokerPlacesGTCLimitOrder(t *testing.T) {
	b, fx := newTestBroker(t)
	order, err := b.PlaceLimitBuy(context.Background(), "ETH", decimal.NewFromInt(500), decimal.NewFromInt(2000), "dip")
	require.NoError(t, err)

	sent := fx.recorded(http.MethodPost, "/api/v3/order")
	require.Len(t, sent, 1)
	assert.Equal(t, "ETHUSDT", sent[0].Get("symbol"))
	assert.Equal(t, "LIMIT", sent[0].Get("type"))
	assert.Equal(t, "GTC", sent[0].Get("timeInForce"))
	assert.Equal(t, "0.25", sent[0].Get("quantity"))
	assert.Equal(t, "2000", sent[0].Get("price"))

	assert.Equal(t, int64(21), order.ID)
	assert.Equal(t, ledger.StatusOpen, order.Status)
	assert.Equal(t, "dip", order.Summary)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), order.CreatedAt)
}

func TestBrokerCancel(t *testing.T) {
	ctx := context.Background()
	b, fx := newTestBroker(t)
	require.NoError(t, b.Sync(ctx))

	ok, err := b.CancelOrder(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	sent := fx.recorded(http.MethodDelete, "/api/v3/order")
	require.Len(t, sent, 1)
	assert.Equal(t, "SOLUSDT", sent[0].Get("symbol"))
	assert.Equal(t, "7", sent[0].Get("orderId"))

	ok, err = b.CancelOrder(ctx, 8)
	require.NoError(t, err)
	assert.False(t, ok, "unknown-order rejection is a silent false")

	ok, err = b.CancelOrder(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, fx.recorded(http.MethodDelete, "/api/v3/order"), 2, "ids the account does not hold are never sent")
}

func TestBrokerNeverFillsLocally(t *testing.T) {
	b, _ := newTestBroker(t)
	_, err := b.FillOrder(context.Background(), 7, decimal.NewFromInt(20))
	assert.ErrorIs(t, err, ErrExchangeSettled)
}
