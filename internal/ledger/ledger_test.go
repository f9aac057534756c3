package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestLedger(t *testing.T, balance string) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l, err := Open(context.Background(), store, Options{
		InitialBalance: d(balance),
		Now:            func() time.Time { return clock },
	})
	require.NoError(t, err)
	return l, store
}

func TestOpenFreshLedgerSavesImmediately(t *testing.T) {
	l, store := newTestLedger(t, "10000")
	assert.True(t, l.Balance().Equal(d("10000")))
	assert.Empty(t, l.Positions())
	assert.Empty(t, l.OpenOrders())
	assert.Equal(t, 1, store.Saves())
}

func TestBuyThenSellScenario(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "10000")

	fill, err := l.BuyMarket(ctx, "btc", d("3000"), d("30000"), "test")
	require.NoError(t, err)
	assert.True(t, fill.Quantity.Equal(d("0.1")))
	assert.True(t, l.Balance().Equal(d("7000")))

	pos, ok := l.Position("BTC")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(d("0.1")))
	assert.True(t, pos.AveragePrice.Equal(d("30000")))

	_, err = l.SellMarket(ctx, "BTC", d("3000"), d("30000"), "test")
	require.NoError(t, err)
	assert.True(t, l.Balance().Equal(d("10000")))
	_, ok = l.Position("BTC")
	assert.False(t, ok, "zero quantity position must be removed")
	assert.Empty(t, l.Positions())
	assert.Len(t, l.TradeHistory(), 2)
}

func TestSellInPiecesClosesRoundedPosition(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "10000")

	fill, err := l.BuyMarket(ctx, "BTC", d("100"), d("3"), "test")
	require.NoError(t, err)
	assert.True(t, fill.Quantity.Equal(d("33.3333333333333333")))

	_, err = l.SellMarket(ctx, "BTC", d("50"), d("3"), "half")
	require.NoError(t, err)
	last, err := l.SellMarket(ctx, "BTC", d("50"), d("3"), "rest")
	require.NoError(t, err)
	assert.True(t, last.Quantity.Equal(d("16.6666666666666666")))

	_, ok := l.Position("BTC")
	assert.False(t, ok)
	assert.True(t, l.Balance().Equal(d("10000")))
}

func TestSellBeyondDustStillRejected(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "10000")
	_, err := l.BuyMarket(ctx, "BTC", d("100"), d("3"), "test")
	require.NoError(t, err)

	_, err = l.SellMarket(ctx, "BTC", d("100.01"), d("3"), "too much")
	assert.True(t, errors.Is(err, ErrInsufficientQuantity))
	pos, ok := l.Position("BTC")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(d("33.3333333333333333")))
}

func TestBuyInsufficientFundsLeavesBalance(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t, "7000")
	saves := store.Saves()

	_, err := l.BuyMarket(ctx, "ETH", d("20000"), d("2000"), "over-leverage")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.True(t, l.Balance().Equal(d("7000")))
	assert.Empty(t, l.TradeHistory())
	assert.Equal(t, saves, store.Saves())
}

func TestAveragePriceIsVolumeWeighted(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "10000")
	_, err := l.BuyMarket(ctx, "ETH", d("1000"), d("1000"), "")
	require.NoError(t, err)
	_, err = l.BuyMarket(ctx, "ETH", d("2000"), d("2000"), "")
	require.NoError(t, err)

	pos, ok := l.Position("ETH")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(d("2")))
	assert.True(t, pos.AveragePrice.Equal(d("1500")))

	_, err = l.SellMarket(ctx, "ETH", d("500"), d("2500"), "")
	require.NoError(t, err)
	pos, _ = l.Position("ETH")
	assert.True(t, pos.AveragePrice.Equal(d("1500")), "sell must not touch average price")
}

func TestSellErrors(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "1000")

	_, err := l.SellMarket(ctx, "SOL", d("10"), d("100"), "")
	assert.ErrorIs(t, err, ErrNoPosition)

	_, err = l.BuyMarket(ctx, "SOL", d("100"), d("100"), "")
	require.NoError(t, err)
	_, err = l.SellMarket(ctx, "SOL", d("300"), d("100"), "")
	assert.ErrorIs(t, err, ErrInsufficientQuantity)
	assert.True(t, l.Balance().Equal(d("900")))
}

func TestInvalidArguments(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "1000")

	_, err := l.BuyMarket(ctx, " ", d("10"), d("1"), "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = l.BuyMarket(ctx, "BTC", d("0"), d("1"), "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = l.SellMarket(ctx, "BTC", d("10"), d("-1"), "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = l.PlaceLimitBuy(ctx, "BTC", d("10"), decimal.Zero, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBalanceNeverNegative(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "1000")
	amounts := []string{"400", "400", "400", "250", "1", "0.5"}
	for _, a := range amounts {
		_, _ = l.BuyMarket(ctx, "DOGE", d(a), d("0.1"), "")
		assert.False(t, l.Balance().IsNegative())
	}
	for _, a := range amounts {
		_, _ = l.SellMarket(ctx, "DOGE", d(a), d("0.2"), "")
		assert.False(t, l.Balance().IsNegative())
		for _, p := range l.Positions() {
			assert.True(t, p.Quantity.IsPositive())
		}
	}
}

func TestLimitBuyReservesCash(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "1000")

	order, err := l.PlaceLimitBuy(ctx, "BTC", d("600"), d("25000"), "dip")
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.ID)
	assert.Equal(t, StatusOpen, order.Status)
	assert.True(t, l.Balance().Equal(d("1000")), "cash is not deducted until fill")
	assert.True(t, l.Available().Equal(d("400")))

	_, err = l.PlaceLimitBuy(ctx, "ETH", d("600"), d("1000"), "second")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = l.BuyMarket(ctx, "ETH", d("500"), d("1000"), "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestCancelIsIdempotentAndReleasesReservation(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t, "1000")
	order, err := l.PlaceLimitBuy(ctx, "BTC", d("600"), d("25000"), "")
	require.NoError(t, err)

	ok, err := l.CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, l.Available().Equal(d("1000")))
	before := l.Snapshot()
	saves := store.Saves()

	ok, err = l.CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, l.Snapshot())
	assert.Equal(t, saves, store.Saves())

	ok, err = l.CancelOrder(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, l.OpenOrders())
}

func TestFillLimitBuyConsumesReservation(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "1000")
	order, err := l.PlaceLimitBuy(ctx, "BTC", d("500"), d("25000"), "dip buy")
	require.NoError(t, err)

	fill, err := l.FillOrder(ctx, order.ID, d("25000"))
	require.NoError(t, err)
	require.NotNil(t, fill.OrderID)
	assert.Equal(t, order.ID, *fill.OrderID)
	assert.True(t, fill.Quantity.Equal(d("0.02")))
	assert.True(t, l.Balance().Equal(d("500")))
	assert.True(t, l.Reserved().IsZero())
	assert.Empty(t, l.OpenOrders())

	hist := l.TradeHistory()
	require.Len(t, hist, 1)
	assert.Equal(t, CommandLimitBuy, hist[0].Command)
	assert.Equal(t, KindLimit, hist[0].Kind)
	assert.Equal(t, "dip buy", hist[0].Reasoning)

	_, err = l.FillOrder(ctx, order.ID, d("25000"))
	assert.ErrorIs(t, err, ErrOrderNotFound, "filled is terminal")
	ok, err := l.CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLimitSellNeedsPositionAndCancelsWhenUncovered(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "1000")

	_, err := l.PlaceLimitSell(ctx, "BTC", d("100"), d("40000"), "")
	assert.ErrorIs(t, err, ErrNoPosition)

	_, err = l.BuyMarket(ctx, "BTC", d("300"), d("30000"), "")
	require.NoError(t, err)
	order, err := l.PlaceLimitSell(ctx, "BTC", d("400"), d("40000"), "take profit")
	require.NoError(t, err)

	_, err = l.SellMarket(ctx, "BTC", d("200"), d("40000"), "")
	require.NoError(t, err)

	_, err = l.FillOrder(ctx, order.ID, d("40000"))
	assert.ErrorIs(t, err, ErrInsufficientQuantity)
	assert.Empty(t, l.OpenOrders())
	snap := l.Snapshot()
	require.Len(t, snap.OpenOrders, 1)
	assert.Equal(t, StatusCancelled, snap.OpenOrders[0].Status)
}

func TestPersistFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t, "1000")
	var seen error
	l.opts.OnPersistError = func(err error) { seen = err }
	store.SaveErr = errors.New("disk full")

	_, err := l.BuyMarket(ctx, "BTC", d("100"), d("10000"), "")
	require.NoError(t, err)
	assert.True(t, l.Balance().Equal(d("900")))
	assert.ErrorIs(t, seen, ErrPersistence)
}

func TestReopenRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t, "10000")
	_, err := l.BuyMarket(ctx, "BTC", d("3000"), d("30000"), "a")
	require.NoError(t, err)
	_, err = l.PlaceLimitBuy(ctx, "ETH", d("1000"), d("1800"), "b")
	require.NoError(t, err)
	want := l.Snapshot()

	again, err := Open(ctx, store, Options{InitialBalance: d("1")})
	require.NoError(t, err)
	got := again.Snapshot()
	assert.True(t, want.Balance.Equal(got.Balance))
	assert.True(t, want.Reserved.Equal(got.Reserved))
	assert.Equal(t, want.Positions, got.Positions)
	assert.Equal(t, want.OpenOrders, got.OpenOrders)
	assert.Equal(t, want.TradeHistory, got.TradeHistory)
	assert.Equal(t, want.NextOrderID, got.NextOrderID)
}

func TestNormalizeOlderSnapshot(t *testing.T) {
	lp := d("20")
	snap := Snapshot{
		Balance: d("500"),
		Positions: map[string]Position{
			"xrp": {Quantity: d("10"), AveragePrice: d("0.5")},
			"ada": {Quantity: decimal.Zero, AveragePrice: d("1")},
		},
		OpenOrders: []OpenOrder{
			{ID: 0, Symbol: "sol", Side: SideBuy, Amount: d("50"), LimitPrice: &lp, Status: StatusOpen},
			{ID: 3, Symbol: "sol", Side: SideBuy, Amount: d("70"), LimitPrice: &lp, Status: StatusCancelled},
		},
	}
	out := normalizeSnapshot(snap)
	assert.NotNil(t, out.TradeHistory)
	assert.Contains(t, out.Positions, "XRP")
	assert.NotContains(t, out.Positions, "ADA")
	assert.Equal(t, int64(4), out.NextOrderID)
	assert.True(t, out.Reserved.Equal(d("50")))
	assert.Equal(t, KindLimit, out.OpenOrders[0].Kind)
	assert.Equal(t, "SOL", out.OpenOrders[0].Symbol)
}

func TestHistoryCapDropsOldest(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, NewMemoryStore(), Options{InitialBalance: d("1000"), MaxHistory: 2})
	require.NoError(t, err)
	for _, r := range []string{"one", "two", "three"} {
		_, err := l.BuyMarket(ctx, "BTC", d("10"), d("100"), r)
		require.NoError(t, err)
	}
	hist := l.TradeHistory()
	require.Len(t, hist, 2)
	assert.Equal(t, "two", hist[0].Reasoning)
	assert.Equal(t, "three", hist[1].Reasoning)
	assert.Len(t, l.RecentTrades(1), 1)
}
