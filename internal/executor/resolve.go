package executor

import (
	"context"
	"errors"
	"fmt"

	"cryptoprinter/internal/ledger"
	"cryptoprinter/internal/logger"
	"cryptoprinter/internal/market"

	"github.com/shopspring/decimal"
)

// Syncer is implemented by ledgers whose resting orders fill on an exchange.
// ResolveOpenOrders refreshes them instead of matching quotes locally.
type Syncer interface {
	Sync(ctx context.Context) error
}

// ResolveOpenOrders checks every open limit order against the current quote:
// a buy fills at the ask once ask <= limit, a sell at the bid once
// bid >= limit. A quote failure skips that order until the next cycle.
func (d *Dispatcher) ResolveOpenOrders(ctx context.Context) ResolveReport {
	var rep ResolveReport
	if s, ok := d.ledger.(Syncer); ok {
		if err := s.Sync(ctx); err != nil {
			rep.Errors = append(rep.Errors, err.Error())
			logger.Warnf("executor: sync open orders failed: %v", err)
		}
		rep.Checked = len(d.ledger.OpenOrders())
		return rep
	}
	orders := d.ledger.OpenOrders()
	if len(orders) == 0 {
		return rep
	}
	quotes := make(map[string]market.Ticker)
	failed := make(map[string]error)
	for _, o := range orders {
		if !o.IsOpen() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		rep.Checked++
		if o.LimitPrice == nil || !o.LimitPrice.IsPositive() {
			rep.Skipped++
			logger.Warnf("executor: order #%d has no limit price, skipped", o.ID)
			continue
		}
		t, err := d.cachedTicker(ctx, o.Symbol, quotes, failed)
		if err != nil {
			rep.Skipped++
			rep.Errors = append(rep.Errors, fmt.Sprintf("order #%d: %v", o.ID, err))
			logger.Warnf("executor: order #%d %s quote failed: %v", o.ID, o.Symbol, err)
			continue
		}
		price, hit := triggerPrice(o, t)
		if !hit {
			logger.Debugf("executor: order #%d %s %s limit=%s not reached (bid=%s ask=%s)",
				o.ID, o.Side, o.Symbol, o.LimitPrice.String(), t.Bid.String(), t.Ask.String())
			continue
		}
		fill, err := d.ledger.FillOrder(ctx, o.ID, price)
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("order #%d: %v", o.ID, err))
			if o.Side == ledger.SideSell && !errors.Is(err, ledger.ErrOrderNotFound) {
				rep.Cancelled++
			} else {
				rep.Skipped++
			}
			logger.Warnf("executor: fill order #%d failed: %v", o.ID, err)
			continue
		}
		rep.Filled++
		rep.Fills = append(rep.Fills, fill)
		logger.Infof("executor: limit %s #%d %s filled qty=%s @ %s", o.Side, o.ID, o.Symbol, fill.Quantity.StringFixed(8), price.String())
		d.onFill(ctx, fill, ledger.KindLimit, o.Summary)
	}
	return rep
}

func (d *Dispatcher) cachedTicker(ctx context.Context, symbol string, cache map[string]market.Ticker, failed map[string]error) (market.Ticker, error) {
	if t, ok := cache[symbol]; ok {
		return t, nil
	}
	if err, ok := failed[symbol]; ok {
		return market.Ticker{}, err
	}
	if d.quotes == nil {
		return market.Ticker{}, fmt.Errorf("no quote source")
	}
	t, err := d.quotes.Ticker(ctx, symbol)
	if err != nil {
		failed[symbol] = err
		return market.Ticker{}, err
	}
	cache[symbol] = t
	return t, nil
}

// triggerPrice returns the execution price and whether the limit is reached.
func triggerPrice(o ledger.OpenOrder, t market.Ticker) (price decimal.Decimal, hit bool) {
	limit := *o.LimitPrice
	switch o.Side {
	case ledger.SideBuy:
		if t.Ask.IsPositive() && t.Ask.LessThanOrEqual(limit) {
			return t.Ask, true
		}
	case ledger.SideSell:
		if t.Bid.IsPositive() && t.Bid.GreaterThanOrEqual(limit) {
			return t.Bid, true
		}
	}
	return price, false
}
