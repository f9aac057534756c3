package binance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cryptoprinter/internal/ledger"
	"cryptoprinter/internal/logger"
	symbolpkg "cryptoprinter/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
)

// ErrExchangeSettled is returned by FillOrder: resting orders on a live
// account fill on the exchange, never locally.
var ErrExchangeSettled = errors.New("binance: resting orders settle on the exchange")

// codeUnknownOrder is Binance's "Unknown order sent." rejection.
const codeUnknownOrder = -2011

// Broker trades a real spot account with the same surface as the paper
// ledger. Amounts are in the quote asset. State read by Snapshot and friends
// is the last Sync; every order call syncs again afterwards.
type Broker struct {
	client     *binance.Client
	conv       symbolpkg.BinanceConverter
	maxHistory int
	now        func() time.Time

	mu        sync.RWMutex
	free      decimal.Decimal
	locked    decimal.Decimal
	positions map[string]ledger.Position
	orders    []ledger.OpenOrder
	history   []ledger.TradeRecord
	summaries map[int64]string
	synced    time.Time
}

func NewBroker(cfg Config, maxHistory int) (*Broker, error) {
	final := cfg.withDefaults()
	if strings.TrimSpace(final.APIKey) == "" || strings.TrimSpace(final.APISecret) == "" {
		return nil, fmt.Errorf("binance: live trading needs an API key and secret")
	}
	client, err := newClient(final)
	if err != nil {
		return nil, err
	}
	return &Broker{
		client:     client,
		conv:       symbolpkg.NewBinanceConverter(final.QuoteAsset),
		maxHistory: maxHistory,
		now:        time.Now,
		positions:  make(map[string]ledger.Position),
		summaries:  make(map[int64]string),
	}, nil
}

// Sync pulls balances and open orders from the account.
func (b *Broker) Sync(ctx context.Context) error {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: account: %w", err)
	}
	open, err := b.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: open orders: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyAccountLocked(acct)
	b.orders = b.orders[:0]
	for _, o := range open {
		if o == nil {
			continue
		}
		b.orders = append(b.orders, b.openOrder(o))
	}
	b.synced = b.now().UTC()
	return nil
}

func (b *Broker) applyAccountLocked(acct *binance.Account) {
	next := make(map[string]ledger.Position)
	for _, bal := range acct.Balances {
		asset := strings.ToUpper(bal.Asset)
		free, locked := parseDecimal(bal.Free), parseDecimal(bal.Locked)
		if asset == b.conv.Quote {
			b.free, b.locked = free, locked
			continue
		}
		qty := free.Add(locked)
		if !qty.IsPositive() {
			continue
		}
		pos := ledger.Position{Symbol: asset, Quantity: qty}
		if prev, ok := b.positions[asset]; ok {
			pos.AveragePrice = prev.AveragePrice
		}
		next[asset] = pos
	}
	b.positions = next
}

func (b *Broker) openOrder(o *binance.Order) ledger.OpenOrder {
	price := parseDecimal(o.Price)
	qty := parseDecimal(o.OrigQuantity).Sub(parseDecimal(o.ExecutedQuantity))
	out := ledger.OpenOrder{
		ID:        o.OrderID,
		Symbol:    b.conv.FromExchange(o.Symbol),
		Side:      ledger.Side(strings.ToLower(string(o.Side))),
		Kind:      ledger.OrderKind(strings.ToLower(string(o.Type))),
		Amount:    qty.Mul(price),
		Status:    ledger.StatusOpen,
		Summary:   b.summaries[o.OrderID],
		CreatedAt: time.UnixMilli(o.Time).UTC(),
	}
	if price.IsPositive() {
		out.LimitPrice = &price
	}
	return out
}

func (b *Broker) BuyMarket(ctx context.Context, symbol string, amount, _ decimal.Decimal, reasoning string) (ledger.Fill, error) {
	return b.marketOrder(ctx, symbol, ledger.SideBuy, amount, reasoning)
}

func (b *Broker) SellMarket(ctx context.Context, symbol string, amount, _ decimal.Decimal, reasoning string) (ledger.Fill, error) {
	return b.marketOrder(ctx, symbol, ledger.SideSell, amount, reasoning)
}

// marketOrder spends (or raises) amount of the quote asset; the exchange
// picks the price, so the caller's quote is only advisory.
func (b *Broker) marketOrder(ctx context.Context, symbol string, side ledger.Side, amount decimal.Decimal, reasoning string) (ledger.Fill, error) {
	base := symbolpkg.Base(symbol)
	if base == "" || !amount.IsPositive() {
		return ledger.Fill{}, fmt.Errorf("%w: symbol and positive amount required", ledger.ErrInvalidArgument)
	}
	res, err := b.client.NewCreateOrderService().
		Symbol(b.conv.ToExchange(base)).
		Side(sideType(side)).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(amount.String()).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return ledger.Fill{}, fmt.Errorf("binance: market %s %s: %w", side, base, err)
	}
	qty := parseDecimal(res.ExecutedQuantity)
	cost := parseDecimal(res.CummulativeQuoteQuantity)
	if !qty.IsPositive() {
		return ledger.Fill{}, fmt.Errorf("binance: market %s %s order %d not filled (status %s)", side, base, res.OrderID, res.Status)
	}
	price := cost.Div(qty)
	command := ledger.CommandBuyMarket
	if side == ledger.SideSell {
		command = ledger.CommandSellMarket
	}
	b.recordTrade(ledger.TradeRecord{
		Command:   command,
		Kind:      ledger.KindMarket,
		Side:      side,
		Symbol:    base,
		Amount:    cost,
		Quantity:  qty,
		Price:     price,
		Reasoning: reasoning,
	})
	b.syncAfter(ctx, "market order")
	id := res.OrderID
	return ledger.Fill{
		Symbol:   base,
		Side:     side,
		Amount:   cost,
		Quantity: qty,
		Price:    price,
		Balance:  b.Available(),
		OrderID:  &id,
	}, nil
}

func (b *Broker) PlaceLimitBuy(ctx context.Context, symbol string, amount, limit decimal.Decimal, summary string) (ledger.OpenOrder, error) {
	return b.limitOrder(ctx, symbol, ledger.SideBuy, amount, limit, summary)
}

func (b *Broker) PlaceLimitSell(ctx context.Context, symbol string, amount, limit decimal.Decimal, summary string) (ledger.OpenOrder, error) {
	return b.limitOrder(ctx, symbol, ledger.SideSell, amount, limit, summary)
}

func (b *Broker) limitOrder(ctx context.Context, symbol string, side ledger.Side, amount, limit decimal.Decimal, summary string) (ledger.OpenOrder, error) {
	base := symbolpkg.Base(symbol)
	if base == "" || !amount.IsPositive() || !limit.IsPositive() {
		return ledger.OpenOrder{}, fmt.Errorf("%w: symbol, positive amount and limit required", ledger.ErrInvalidArgument)
	}
	qty := amount.Div(limit).Truncate(8)
	if !qty.IsPositive() {
		return ledger.OpenOrder{}, fmt.Errorf("%w: amount %s buys nothing at %s", ledger.ErrInvalidArgument, amount, limit)
	}
	res, err := b.client.NewCreateOrderService().
		Symbol(b.conv.ToExchange(base)).
		Side(sideType(side)).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(qty.String()).
		Price(limit.String()).
		Do(ctx)
	if err != nil {
		return ledger.OpenOrder{}, fmt.Errorf("binance: limit %s %s: %w", side, base, err)
	}
	created := b.now().UTC()
	if res.TransactTime > 0 {
		created = time.UnixMilli(res.TransactTime).UTC()
	}
	order := ledger.OpenOrder{
		ID:         res.OrderID,
		Symbol:     base,
		Side:       side,
		Kind:       ledger.KindLimit,
		Amount:     amount,
		LimitPrice: &limit,
		Status:     ledger.StatusOpen,
		Summary:    summary,
		CreatedAt:  created,
	}
	b.mu.Lock()
	b.summaries[res.OrderID] = summary
	b.orders = append(b.orders, order)
	b.mu.Unlock()
	logger.Infof("binance: limit %s %s qty=%s @ %s placed as #%d (%s)", side, base, qty, limit, res.OrderID, res.Status)
	b.syncAfter(ctx, "limit order")
	return order, nil
}

// CancelOrder reports false for ids the account does not hold open.
func (b *Broker) CancelOrder(ctx context.Context, id int64) (bool, error) {
	sym, ok := b.orderSymbol(id)
	if !ok {
		if err := b.Sync(ctx); err != nil {
			return false, err
		}
		if sym, ok = b.orderSymbol(id); !ok {
			return false, nil
		}
	}
	_, err := b.client.NewCancelOrderService().Symbol(b.conv.ToExchange(sym)).OrderID(id).Do(ctx)
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeUnknownOrder {
		b.forget(id)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("binance: cancel #%d: %w", id, err)
	}
	b.forget(id)
	b.syncAfter(ctx, "cancel")
	return true, nil
}

func (b *Broker) FillOrder(_ context.Context, id int64, _ decimal.Decimal) (ledger.Fill, error) {
	return ledger.Fill{}, fmt.Errorf("order #%d: %w", id, ErrExchangeSettled)
}

func (b *Broker) orderSymbol(id int64) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, o := range b.orders {
		if o.ID == id {
			return o.Symbol, true
		}
	}
	return "", false
}

func (b *Broker) forget(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.summaries, id)
	kept := b.orders[:0]
	for _, o := range b.orders {
		if o.ID != id {
			kept = append(kept, o)
		}
	}
	b.orders = kept
}

func (b *Broker) recordTrade(rec ledger.TradeRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec.Timestamp = b.now().UTC()
	rec.Success = true
	if rec.Side == ledger.SideBuy {
		pos := b.positions[rec.Symbol]
		total := pos.Quantity.Add(rec.Quantity)
		if total.IsPositive() {
			pos.AveragePrice = pos.CostBasis().Add(rec.Amount).Div(total)
		}
		pos.Symbol, pos.Quantity = rec.Symbol, total
		b.positions[rec.Symbol] = pos
	}
	b.history = append(b.history, rec)
	if b.maxHistory > 0 && len(b.history) > b.maxHistory {
		b.history = append([]ledger.TradeRecord(nil), b.history[len(b.history)-b.maxHistory:]...)
	}
}

// syncAfter refreshes state after a successful order; a failure only leaves
// the cached view stale until the next cycle.
func (b *Broker) syncAfter(ctx context.Context, what string) {
	if err := b.Sync(ctx); err != nil {
		logger.Warnf("binance: sync after %s failed: %v", what, err)
	}
}

func (b *Broker) Available() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.free
}

func (b *Broker) Positions() []ledger.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ledger.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (b *Broker) OpenOrders() []ledger.OpenOrder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]ledger.OpenOrder(nil), b.orders...)
}

func (b *Broker) RecentTrades(n int) []ledger.TradeRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hist := b.history
	if n > 0 && len(hist) > n {
		hist = hist[len(hist)-n:]
	}
	return append([]ledger.TradeRecord(nil), hist...)
}

// Snapshot reports the account in ledger terms: Balance is free plus locked
// quote, Reserved the locked part.
func (b *Broker) Snapshot() ledger.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	positions := make(map[string]ledger.Position, len(b.positions))
	for k, p := range b.positions {
		positions[k] = p
	}
	return ledger.Snapshot{
		Balance:      b.free.Add(b.locked),
		Reserved:     b.locked,
		Positions:    positions,
		OpenOrders:   append([]ledger.OpenOrder(nil), b.orders...),
		TradeHistory: append([]ledger.TradeRecord(nil), b.history...),
		LastUpdated:  b.synced,
	}
}

func sideType(side ledger.Side) binance.SideType {
	if side == ledger.SideSell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}
