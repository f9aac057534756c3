package ledger

import (
	"context"
	"fmt"

	"cryptoprinter/internal/logger"

	"github.com/shopspring/decimal"
)

// BuyMarket spends amount dollars on symbol at price.
func (l *Ledger) BuyMarket(ctx context.Context, symbol string, amount, price decimal.Decimal, reasoning string) (Fill, error) {
	symbol, err := validateTrade(symbol, amount, price)
	if err != nil {
		return Fill{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fill, err := l.buyLocked(symbol, amount, price, reasoning, KindMarket, nil)
	if err != nil {
		return Fill{}, err
	}
	l.persistLocked(ctx)
	return fill, nil
}

// SellMarket sells amount dollars worth of symbol at price.
func (l *Ledger) SellMarket(ctx context.Context, symbol string, amount, price decimal.Decimal, reasoning string) (Fill, error) {
	symbol, err := validateTrade(symbol, amount, price)
	if err != nil {
		return Fill{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fill, err := l.sellLocked(symbol, amount, price, reasoning, KindMarket, nil)
	if err != nil {
		return Fill{}, err
	}
	l.persistLocked(ctx)
	return fill, nil
}

// PlaceLimitBuy rests a buy order and reserves its amount until it fills or
// is cancelled.
func (l *Ledger) PlaceLimitBuy(ctx context.Context, symbol string, amount, limit decimal.Decimal, summary string) (OpenOrder, error) {
	symbol, err := validateTrade(symbol, amount, limit)
	if err != nil {
		return OpenOrder{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if avail := l.availableLocked(); amount.GreaterThan(avail) {
		return OpenOrder{}, fmt.Errorf("%w: available %s, need %s", ErrInsufficientFunds, avail.StringFixed(2), amount.StringFixed(2))
	}
	order := l.newOrderLocked(symbol, SideBuy, amount, limit, summary)
	l.state.Reserved = l.state.Reserved.Add(amount)
	l.persistLocked(ctx)
	return cloneOrder(order), nil
}

// PlaceLimitSell rests a sell order. Held quantity is checked only when it fills.
func (l *Ledger) PlaceLimitSell(ctx context.Context, symbol string, amount, limit decimal.Decimal, summary string) (OpenOrder, error) {
	symbol, err := validateTrade(symbol, amount, limit)
	if err != nil {
		return OpenOrder{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos, ok := l.state.Positions[symbol]; !ok || !pos.Quantity.IsPositive() {
		return OpenOrder{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	order := l.newOrderLocked(symbol, SideSell, amount, limit, summary)
	l.persistLocked(ctx)
	return cloneOrder(order), nil
}

// CancelOrder moves an open order to cancelled. It reports false when no
// open order has that id.
func (l *Ledger) CancelOrder(ctx context.Context, id int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.findOpenLocked(id)
	if idx < 0 {
		return false, nil
	}
	l.cancelLocked(idx)
	l.persistLocked(ctx)
	return true, nil
}

// FillOrder executes open limit order id as a market fill at price. A sell
// that can no longer be covered by the position is cancelled.
func (l *Ledger) FillOrder(ctx context.Context, id int64, price decimal.Decimal) (Fill, error) {
	if !price.IsPositive() {
		return Fill{}, fmt.Errorf("%w: price must be positive", ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.findOpenLocked(id)
	if idx < 0 {
		return Fill{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	order := l.state.OpenOrders[idx]
	orderID := order.ID

	var (
		fill Fill
		err  error
	)
	switch order.Side {
	case SideBuy:
		l.state.Reserved = nonNegative(l.state.Reserved.Sub(order.Amount))
		fill, err = l.buyLocked(order.Symbol, order.Amount, price, order.Summary, KindLimit, &orderID)
		if err != nil {
			l.state.Reserved = l.state.Reserved.Add(order.Amount)
			return Fill{}, err
		}
	case SideSell:
		fill, err = l.sellLocked(order.Symbol, order.Amount, price, order.Summary, KindLimit, &orderID)
		if err != nil {
			l.cancelLocked(idx)
			logger.Warnf("ledger: limit sell #%d cancelled, position no longer covers it: %v", id, err)
			l.persistLocked(ctx)
			return Fill{}, err
		}
	default:
		return Fill{}, fmt.Errorf("%w: order %d has side %q", ErrInvalidArgument, id, order.Side)
	}
	now := l.opts.Now().UTC()
	p := price
	order.Status = StatusFilled
	order.FilledAt = &now
	order.FillPrice = &p
	l.state.OpenOrders[idx] = order
	l.persistLocked(ctx)
	return fill, nil
}

func (l *Ledger) buyLocked(symbol string, amount, price decimal.Decimal, reasoning string, kind OrderKind, orderID *int64) (Fill, error) {
	if avail := l.availableLocked(); amount.GreaterThan(avail) {
		return Fill{}, fmt.Errorf("%w: available %s, need %s", ErrInsufficientFunds, avail.StringFixed(2), amount.StringFixed(2))
	}
	qty := amount.Div(price)
	pos := l.state.Positions[symbol]
	pos.Symbol = symbol
	total := pos.Quantity.Add(qty)
	pos.AveragePrice = pos.Quantity.Mul(pos.AveragePrice).Add(amount).Div(total)
	pos.Quantity = total
	l.state.Positions[symbol] = pos
	l.state.Balance = l.state.Balance.Sub(amount)

	cmd := CommandBuyMarket
	if kind == KindLimit {
		cmd = CommandLimitBuy
	}
	l.appendTradeLocked(l.tradeRecord(cmd, kind, SideBuy, symbol, amount, qty, price, reasoning, orderID))
	return Fill{Symbol: symbol, Side: SideBuy, Amount: amount, Quantity: qty, Price: price, Balance: l.state.Balance, OrderID: orderID}, nil
}

func (l *Ledger) sellLocked(symbol string, amount, price decimal.Decimal, reasoning string, kind OrderKind, orderID *int64) (Fill, error) {
	pos, ok := l.state.Positions[symbol]
	if !ok || !pos.Quantity.IsPositive() {
		return Fill{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	qty := amount.Div(price)
	if qty.GreaterThan(pos.Quantity) {
		if qty.Sub(pos.Quantity).GreaterThan(quantityDust) {
			return Fill{}, fmt.Errorf("%w: have %s %s, need %s", ErrInsufficientQuantity, pos.Quantity.String(), symbol, qty.String())
		}
		// division rounding; closing the position in pieces must still close it
		qty = pos.Quantity
	}
	pos.Quantity = pos.Quantity.Sub(qty)
	if !pos.Quantity.GreaterThan(quantityDust) {
		delete(l.state.Positions, symbol)
	} else {
		l.state.Positions[symbol] = pos
	}
	l.state.Balance = l.state.Balance.Add(amount)

	cmd := CommandSellMarket
	if kind == KindLimit {
		cmd = CommandLimitSell
	}
	l.appendTradeLocked(l.tradeRecord(cmd, kind, SideSell, symbol, amount, qty, price, reasoning, orderID))
	return Fill{Symbol: symbol, Side: SideSell, Amount: amount, Quantity: qty, Price: price, Balance: l.state.Balance, OrderID: orderID}, nil
}

func (l *Ledger) tradeRecord(cmd string, kind OrderKind, side Side, symbol string, amount, qty, price decimal.Decimal, reasoning string, orderID *int64) TradeRecord {
	rec := TradeRecord{
		Timestamp: l.opts.Now().UTC(),
		Command:   cmd,
		Success:   true,
		Kind:      kind,
		Side:      side,
		Symbol:    symbol,
		Amount:    amount,
		Quantity:  qty,
		Price:     price,
		Reasoning: reasoning,
	}
	if orderID != nil {
		id := *orderID
		rec.OrderID = &id
	}
	return rec
}

func (l *Ledger) newOrderLocked(symbol string, side Side, amount, limit decimal.Decimal, summary string) OpenOrder {
	lp := limit
	order := OpenOrder{
		ID:         l.state.NextOrderID,
		Symbol:     symbol,
		Side:       side,
		Kind:       KindLimit,
		Amount:     amount,
		LimitPrice: &lp,
		Status:     StatusOpen,
		Summary:    summary,
		CreatedAt:  l.opts.Now().UTC(),
	}
	l.state.NextOrderID++
	l.state.OpenOrders = append(l.state.OpenOrders, order)
	return order
}

func (l *Ledger) findOpenLocked(id int64) int {
	for i, o := range l.state.OpenOrders {
		if o.ID == id && o.IsOpen() {
			return i
		}
	}
	return -1
}

func (l *Ledger) cancelLocked(idx int) {
	order := l.state.OpenOrders[idx]
	if order.Side == SideBuy {
		l.state.Reserved = nonNegative(l.state.Reserved.Sub(order.Amount))
	}
	order.Status = StatusCancelled
	l.state.OpenOrders[idx] = order
}

func validateTrade(symbol string, amount, price decimal.Decimal) (string, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return "", fmt.Errorf("%w: symbol is empty", ErrInvalidArgument)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidArgument, amount.String())
	}
	if !price.IsPositive() {
		return "", fmt.Errorf("%w: price must be positive, got %s", ErrInvalidArgument, price.String())
	}
	return symbol, nil
}

// quantityDust is the largest quantity treated as zero. Div rounds at
// decimal.DivisionPrecision digits, so split sells can overshoot by this much.
var quantityDust = decimal.New(1, -12)

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
