package executor

import (
	"context"
	"errors"
	"testing"

	"cryptoprinter/internal/agent/interfaces"
	"cryptoprinter/internal/decision"
	"cryptoprinter/internal/ledger"
	"cryptoprinter/internal/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockQuotes struct {
	mock.Mock
}

func (m *MockQuotes) Ticker(ctx context.Context, symbol string) (market.Ticker, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(market.Ticker), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendText(text string) error {
	return m.Called(text).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, payload any) error {
	return m.Called(ctx, key, payload).Error(0)
}

type syncingLedger struct {
	*ledger.Ledger
	syncs int
	err   error
}

func (s *syncingLedger) Sync(context.Context) error {
	s.syncs++
	return s.err
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quote(bid, ask string) market.Ticker {
	return market.Ticker{Bid: d(bid), Ask: d(ask)}
}

func newLedger(t *testing.T, balance string) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(context.Background(), ledger.NewMemoryStore(), ledger.Options{InitialBalance: d(balance)})
	require.NoError(t, err)
	return l
}

func parse(t *testing.T, text string) []decision.Command {
	t.Helper()
	res := decision.NewParser([]string{"BTC", "ETH", "SOL"}).Parse(text)
	require.Empty(t, res.Issues)
	return res.Commands
}

func TestDispatchMarketBuyUsesAsk(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "10000")
	q := new(MockQuotes)
	q.On("Ticker", mock.Anything, "BTC").Return(quote("29990", "30000"), nil)

	rep := New(l, q).Dispatch(ctx, parse(t, `buy_crypto_price("BTC", 3000, "breakout")`))
	assert.Equal(t, 1, rep.Attempted)
	assert.Equal(t, 1, rep.Succeeded)
	require.NotNil(t, rep.Outcomes[0].Fill)
	assert.True(t, rep.Outcomes[0].Fill.Price.Equal(d("30000")))
	assert.True(t, l.Balance().Equal(d("7000")))

	hist := l.TradeHistory()
	require.Len(t, hist, 1)
	assert.Equal(t, "breakout", hist[0].Reasoning)
}

func TestDispatchMarketSellUsesBid(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "10000")
	_, err := l.BuyMarket(ctx, "ETH", d("2000"), d("2000"), "seed")
	require.NoError(t, err)

	q := new(MockQuotes)
	q.On("Ticker", mock.Anything, "ETH").Return(quote("2500", "2510"), nil)
	rep := New(l, q).Dispatch(ctx, parse(t, `sell_crypto_price("ETH", 1250, "take profit")`))
	require.Equal(t, 1, rep.Succeeded)
	pos, ok := l.Position("ETH")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(d("0.5")))
	assert.True(t, l.Balance().Equal(d("9250")))
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "7000")
	q := new(MockQuotes)
	q.On("Ticker", mock.Anything, "ETH").Return(quote("1999", "2000"), nil)
	q.On("Ticker", mock.Anything, "SOL").Return(market.Ticker{}, errors.New("timeout"))
	q.On("Ticker", mock.Anything, "BTC").Return(quote("100", "100"), nil)

	rep := New(l, q).Dispatch(ctx, parse(t, `
buy_crypto_price("ETH", 20000, "too big")
sell_crypto_price("SOL", 10, "no quote")
do_nothing()
cancel_order(99)
buy_crypto_price("BTC", 100, "small")
`))
	assert.Equal(t, 3, rep.Attempted)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, 2, rep.Failed)
	require.Len(t, rep.Outcomes, 5)

	assert.ErrorIs(t, rep.Outcomes[0].Err(), ledger.ErrInsufficientFunds)
	assert.True(t, IsCollaboratorError(rep.Outcomes[1].Err()))
	assert.ErrorIs(t, rep.Outcomes[1].Err(), interfaces.ErrCollaboratorUnavailable)
	assert.Equal(t, StatusNoop, rep.Outcomes[2].Status)
	assert.Equal(t, StatusNoop, rep.Outcomes[3].Status)
	assert.NoError(t, rep.Outcomes[3].Err())
	assert.Equal(t, StatusOK, rep.Outcomes[4].Status)
	assert.True(t, l.Balance().Equal(d("6900")))
}

func TestCancelUnknownOrderIsNoop(t *testing.T) {
	l := newLedger(t, "10000")
	rep := New(l, new(MockQuotes)).Dispatch(context.Background(), parse(t, `cancel_order(42)`))

	assert.Equal(t, 0, rep.Attempted)
	assert.Equal(t, 0, rep.Failed)
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, StatusNoop, rep.Outcomes[0].Status)
	assert.Empty(t, rep.Outcomes[0].Error)
	assert.Contains(t, rep.Outcomes[0].Detail, "#42")
}

func TestDispatchLimitAndCancel(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "10000")
	disp := New(l, new(MockQuotes))

	rep := disp.Dispatch(ctx, parse(t, `buy_crypto_limit("SOL", 1000, "dip", 20)`))
	require.Equal(t, 1, rep.Succeeded)
	require.NotNil(t, rep.Outcomes[0].OrderID)
	id := *rep.Outcomes[0].OrderID
	assert.True(t, l.Available().Equal(d("9000")))

	rep = disp.Dispatch(ctx, []decision.Command{{Kind: decision.KindCancel, Cancel: decision.CancelArgs{OrderID: id}}})
	assert.Equal(t, 1, rep.Succeeded)
	assert.True(t, l.Available().Equal(d("10000")))
	assert.Empty(t, l.OpenOrders())
}

func TestDispatchLimitSellRequiresPosition(t *testing.T) {
	l := newLedger(t, "10000")
	rep := New(l, new(MockQuotes)).Dispatch(context.Background(), parse(t, `sell_crypto_limit("BTC", 500, "exit", 70000)`))
	assert.Equal(t, 1, rep.Failed)
	assert.ErrorIs(t, rep.Outcomes[0].Err(), ledger.ErrNoPosition)
}

func TestResolveOpenOrders(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "10000")
	_, err := l.BuyMarket(ctx, "ETH", d("1000"), d("1000"), "seed")
	require.NoError(t, err)
	buy, err := l.PlaceLimitBuy(ctx, "SOL", d("1000"), d("20"), "dip")
	require.NoError(t, err)
	sell, err := l.PlaceLimitSell(ctx, "ETH", d("600"), d("1200"), "target")
	require.NoError(t, err)
	far, err := l.PlaceLimitBuy(ctx, "BTC", d("500"), d("10000"), "far")
	require.NoError(t, err)

	q := new(MockQuotes)
	q.On("Ticker", mock.Anything, "SOL").Return(quote("19.9", "19.95"), nil).Once()
	q.On("Ticker", mock.Anything, "ETH").Return(quote("1200", "1201"), nil).Once()
	q.On("Ticker", mock.Anything, "BTC").Return(quote("60000", "60010"), nil).Once()
	n := new(MockNotifier)
	n.On("SendText", mock.Anything).Return(errors.New("offline"))

	rep := New(l, q, WithNotifier(n)).ResolveOpenOrders(ctx)
	assert.Equal(t, 3, rep.Checked)
	assert.Equal(t, 2, rep.Filled)
	require.Len(t, rep.Fills, 2)
	assert.Equal(t, buy.ID, *rep.Fills[0].OrderID)
	assert.True(t, rep.Fills[0].Price.Equal(d("19.95")), "buy fills at the ask")
	assert.Equal(t, sell.ID, *rep.Fills[1].OrderID)
	assert.True(t, rep.Fills[1].Price.Equal(d("1200")), "sell fills at the bid")

	open := l.OpenOrders()
	require.Len(t, open, 1)
	assert.Equal(t, far.ID, open[0].ID)
	// 10000 - 1000 seed - 1000 SOL fill + 600 ETH sale = 8600, 500 still reserved
	assert.True(t, l.Balance().Equal(d("8600")))
	assert.True(t, l.Reserved().Equal(d("500")))
	n.AssertNumberOfCalls(t, "SendText", 2)
	q.AssertExpectations(t)
}

func TestResolveSkipsOnQuoteFailure(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "10000")
	_, err := l.PlaceLimitBuy(ctx, "SOL", d("100"), d("20"), "a")
	require.NoError(t, err)
	_, err = l.PlaceLimitBuy(ctx, "SOL", d("100"), d("21"), "b")
	require.NoError(t, err)

	q := new(MockQuotes)
	q.On("Ticker", mock.Anything, "SOL").Return(market.Ticker{}, errors.New("down")).Once()
	rep := New(l, q).ResolveOpenOrders(ctx)
	assert.Equal(t, 2, rep.Checked)
	assert.Equal(t, 2, rep.Skipped)
	assert.Len(t, rep.Errors, 2)
	assert.Len(t, l.OpenOrders(), 2)
	q.AssertExpectations(t)
}

func TestResolveCancelsUncoveredSell(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "10000")
	_, err := l.BuyMarket(ctx, "ETH", d("1000"), d("1000"), "seed")
	require.NoError(t, err)
	_, err = l.PlaceLimitSell(ctx, "ETH", d("1000"), d("1100"), "target")
	require.NoError(t, err)
	_, err = l.SellMarket(ctx, "ETH", d("800"), d("1000"), "partial")
	require.NoError(t, err)

	q := new(MockQuotes)
	q.On("Ticker", mock.Anything, "ETH").Return(quote("1100", "1101"), nil)
	rep := New(l, q).ResolveOpenOrders(ctx)
	assert.Equal(t, 1, rep.Cancelled)
	assert.Empty(t, l.OpenOrders())
}

func TestFillsArePublishedAndFailuresIgnored(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "10000")
	q := new(MockQuotes)
	q.On("Ticker", mock.Anything, "SOL").Return(quote("99", "100"), nil)
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, "SOL", mock.MatchedBy(func(ev FillEvent) bool {
		return ev.Side == ledger.SideBuy && ev.Kind == ledger.KindMarket && ev.Price.Equal(d("100")) && ev.Summary == "momentum"
	})).Return(errors.New("broker down")).Once()

	rep := New(l, q, WithPublisher(pub)).Dispatch(ctx, parse(t, `buy_crypto_price("SOL", 500, "momentum")`))
	assert.Equal(t, 1, rep.Succeeded)
	pub.AssertExpectations(t)
}

func TestResolveSyncsExchangeSettledLedger(t *testing.T) {
	ctx := context.Background()
	sl := &syncingLedger{Ledger: newLedger(t, "10000")}
	_, err := sl.PlaceLimitBuy(ctx, "SOL", d("100"), d("20"), "dip")
	require.NoError(t, err)
	q := new(MockQuotes)

	rep := New(sl, q).ResolveOpenOrders(ctx)
	assert.Equal(t, 1, sl.syncs)
	assert.Equal(t, 1, rep.Checked)
	assert.Zero(t, rep.Filled)
	assert.Empty(t, rep.Errors)
	q.AssertNotCalled(t, "Ticker", mock.Anything, mock.Anything)

	sl.err = errors.New("account unavailable")
	rep = New(sl, q).ResolveOpenOrders(ctx)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], "account unavailable")
}
