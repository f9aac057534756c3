package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cryptoprinter/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "data", "portfolio.json"))
	require.NoError(t, err)
	_, found, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLedgerRoundTripThroughFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "portfolio.json")
	s, err := New(path)
	require.NoError(t, err)

	l, err := ledger.Open(ctx, s, ledger.Options{InitialBalance: decimal.NewFromInt(10000)})
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err, "fresh ledger must be persisted at once")

	_, err = l.BuyMarket(ctx, "BTC", decimal.NewFromInt(3000), decimal.NewFromInt(30000), "momentum, strong")
	require.NoError(t, err)
	order, err := l.PlaceLimitBuy(ctx, "ETH", decimal.NewFromInt(500), decimal.NewFromInt(1800), "dip")
	require.NoError(t, err)
	_, err = l.PlaceLimitSell(ctx, "BTC", decimal.NewFromInt(1000), decimal.NewFromInt(40000), "tp")
	require.NoError(t, err)
	ok, err := l.CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, ok)
	want := l.Snapshot()

	again, err := ledger.Open(ctx, s, ledger.Options{})
	require.NoError(t, err)
	got := again.Snapshot()

	assert.True(t, want.Balance.Equal(got.Balance))
	assert.True(t, want.Reserved.Equal(got.Reserved))
	require.Len(t, got.Positions, 1)
	assert.True(t, want.Positions["BTC"].Quantity.Equal(got.Positions["BTC"].Quantity))
	assert.True(t, want.Positions["BTC"].AveragePrice.Equal(got.Positions["BTC"].AveragePrice))
	require.Len(t, got.OpenOrders, 2)
	for i := range want.OpenOrders {
		assert.Equal(t, want.OpenOrders[i].ID, got.OpenOrders[i].ID)
		assert.Equal(t, want.OpenOrders[i].Status, got.OpenOrders[i].Status)
		assert.True(t, want.OpenOrders[i].LimitPrice.Equal(*got.OpenOrders[i].LimitPrice))
		assert.True(t, want.OpenOrders[i].CreatedAt.Equal(got.OpenOrders[i].CreatedAt))
	}
	require.Len(t, got.TradeHistory, 1)
	assert.Equal(t, "momentum, strong", got.TradeHistory[0].Reasoning)
	assert.Equal(t, want.NextOrderID, got.NextOrderID)
}

func TestLoadLegacyDocumentWithoutHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mock_portfolio_data.json")
	legacy := `{
  "balance": 8500.5,
  "positions": {"BTC": {"quantity": 0.05, "average_price": 30000}},
  "open_orders": [
    {"id": 0, "symbol": "ETH", "type": "limit", "side": "buy", "amount": 500, "price": 1800, "status": "open", "created_at": "2024-05-01T12:00:00Z"}
  ],
  "last_updated": "2024-05-01T12:00:00Z"
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))
	s, err := New(path)
	require.NoError(t, err)

	l, err := ledger.Open(context.Background(), s, ledger.Options{Now: func() time.Time { return time.Unix(0, 0) }})
	require.NoError(t, err)
	assert.True(t, l.Balance().Equal(decimal.RequireFromString("8500.5")))
	assert.True(t, l.Available().Equal(decimal.RequireFromString("8000.5")))
	assert.Empty(t, l.TradeHistory())
	assert.Equal(t, int64(1), l.Snapshot().NextOrderID)
}

func TestLoadNaiveTimestampsAsUTC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.json")
	legacy := `{
  "balance": 1000,
  "positions": {},
  "open_orders": [
    {"id": 3, "symbol": "SOL", "type": "limit", "side": "buy", "amount": 100, "price": 20, "status": "open", "created_at": "2024-05-01T12:00:00.123456"}
  ],
  "trade_history": [
    {"timestamp": "2024-04-30 08:15:00", "symbol": "BTC", "amount": 50, "quantity": 0.001, "price": 50000}
  ],
  "last_updated": "2024-05-01T12:30:00+02:00"
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))
	s, err := New(path)
	require.NoError(t, err)

	snap, found, err := s.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, snap.OpenOrders, 1)
	assert.True(t, snap.OpenOrders[0].CreatedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)))
	require.Len(t, snap.TradeHistory, 1)
	assert.True(t, snap.TradeHistory[0].Timestamp.Equal(time.Date(2024, 4, 30, 8, 15, 0, 0, time.UTC)))
	assert.True(t, snap.TradeHistory[0].Quantity.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, snap.LastUpdated.Equal(time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)), "zoned timestamps keep their offset")
}

func TestCorruptDocumentFailsLoudly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"positions": {}, "open_orders": []}`), 0o644))
	s, err := New(path)
	require.NoError(t, err)

	_, _, err = s.Load(context.Background())
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"balance": 1, "positions`), 0o644))
	_, _, err = s.Load(context.Background())
	require.Error(t, err)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "portfolio.json"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(context.Background(), ledger.Snapshot{
			Balance:   decimal.NewFromInt(int64(i)),
			Positions: map[string]ledger.Position{},
		}))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "portfolio.json", entries[0].Name())

	require.NoError(t, s.Remove())
	require.NoError(t, s.Remove())
	_, found, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}
