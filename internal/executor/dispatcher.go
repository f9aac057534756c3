package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptoprinter/internal/agent/interfaces"
	"cryptoprinter/internal/decision"
	"cryptoprinter/internal/gateway/notifier"
	"cryptoprinter/internal/ledger"
	"cryptoprinter/internal/logger"
	"cryptoprinter/internal/market"
	"cryptoprinter/internal/metrics"

	"github.com/shopspring/decimal"
)

// Ledger is the part of *ledger.Ledger the dispatcher drives.
type Ledger interface {
	BuyMarket(ctx context.Context, symbol string, amount, price decimal.Decimal, reasoning string) (ledger.Fill, error)
	SellMarket(ctx context.Context, symbol string, amount, price decimal.Decimal, reasoning string) (ledger.Fill, error)
	PlaceLimitBuy(ctx context.Context, symbol string, amount, limit decimal.Decimal, summary string) (ledger.OpenOrder, error)
	PlaceLimitSell(ctx context.Context, symbol string, amount, limit decimal.Decimal, summary string) (ledger.OpenOrder, error)
	CancelOrder(ctx context.Context, id int64) (bool, error)
	FillOrder(ctx context.Context, id int64, price decimal.Decimal) (ledger.Fill, error)
	OpenOrders() []ledger.OpenOrder
}

// Publisher receives a FillEvent per fill, keyed by symbol.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// FillEvent is the published form of a ledger fill.
type FillEvent struct {
	Time     time.Time        `json:"time"`
	Symbol   string           `json:"symbol"`
	Side     ledger.Side      `json:"side"`
	Kind     ledger.OrderKind `json:"kind"`
	Amount   decimal.Decimal  `json:"amount"`
	Quantity decimal.Decimal  `json:"quantity"`
	Price    decimal.Decimal  `json:"price"`
	Balance  decimal.Decimal  `json:"balance"`
	OrderID  *int64           `json:"order_id,omitempty"`
	Summary  string           `json:"summary,omitempty"`
}

// Dispatcher maps parsed commands onto ledger operations.
type Dispatcher struct {
	ledger    Ledger
	quotes    market.QuoteSource
	notifier  notifier.TextNotifier
	publisher Publisher
	now       func() time.Time
}

type Option func(*Dispatcher)

// WithNotifier sends a message for every fill.
func WithNotifier(n notifier.TextNotifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithPublisher streams every fill as a FillEvent.
func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

func New(l Ledger, quotes market.QuoteSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{ledger: l, quotes: quotes, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes cmds in order. A failing command is logged and recorded;
// the rest of the batch still runs.
func (d *Dispatcher) Dispatch(ctx context.Context, cmds []decision.Command) Report {
	rep := Report{Outcomes: make([]Outcome, 0, len(cmds))}
	for _, cmd := range cmds {
		out := d.execute(ctx, cmd)
		rep.add(out)
		metrics.CommandsTotal.WithLabelValues(cmd.Kind.String(), string(out.Status)).Inc()
		switch out.Status {
		case StatusFailed:
			logger.Warnf("executor: %s failed: %s", cmd, out.Error)
		case StatusOK:
			logger.Infof("executor: %s ok %s", cmd, out.Detail)
		}
	}
	return rep
}

func (d *Dispatcher) execute(ctx context.Context, cmd decision.Command) Outcome {
	out := Outcome{Command: cmd.String(), Kind: cmd.Kind.String(), Symbol: cmd.Symbol()}
	var err error
	switch cmd.Kind {
	case decision.KindBuyMarket:
		err = d.marketOrder(ctx, cmd.Order, ledger.SideBuy, &out)
	case decision.KindSellMarket:
		err = d.marketOrder(ctx, cmd.Order, ledger.SideSell, &out)
	case decision.KindBuyLimit:
		var o ledger.OpenOrder
		o, err = d.ledger.PlaceLimitBuy(ctx, cmd.Order.Symbol, cmd.Order.Amount, cmd.Order.Limit, cmd.Order.Summary)
		if err == nil {
			out.setOrder(o)
		}
	case decision.KindSellLimit:
		var o ledger.OpenOrder
		o, err = d.ledger.PlaceLimitSell(ctx, cmd.Order.Symbol, cmd.Order.Amount, cmd.Order.Limit, cmd.Order.Summary)
		if err == nil {
			out.setOrder(o)
		}
	case decision.KindCancel:
		var ok bool
		ok, err = d.ledger.CancelOrder(ctx, cmd.Cancel.OrderID)
		if err == nil && !ok {
			// unknown or already resolved ids are a silent no-op
			out.Status = StatusNoop
			out.Detail = fmt.Sprintf("order #%d not open", cmd.Cancel.OrderID)
			return out
		}
		if err == nil {
			out.Detail = fmt.Sprintf("order #%d cancelled", cmd.Cancel.OrderID)
		}
	case decision.KindDoNothing:
		out.Status = StatusNoop
		return out
	default:
		err = fmt.Errorf("%w: unknown command kind %v", decision.ErrMalformedCommand, cmd.Kind)
	}
	if err != nil {
		out.Status = StatusFailed
		out.Error = err.Error()
		out.err = err
		return out
	}
	out.Status = StatusOK
	return out
}

func (d *Dispatcher) marketOrder(ctx context.Context, args decision.OrderArgs, side ledger.Side, out *Outcome) error {
	price, err := d.quote(ctx, args.Symbol, side)
	if err != nil {
		return err
	}
	var fill ledger.Fill
	if side == ledger.SideBuy {
		fill, err = d.ledger.BuyMarket(ctx, args.Symbol, args.Amount, price, args.Summary)
	} else {
		fill, err = d.ledger.SellMarket(ctx, args.Symbol, args.Amount, price, args.Summary)
	}
	if err != nil {
		return err
	}
	out.setFill(fill)
	d.onFill(ctx, fill, ledger.KindMarket, args.Summary)
	return nil
}

// quote returns the ask for buys and the bid for sells.
func (d *Dispatcher) quote(ctx context.Context, symbol string, side ledger.Side) (decimal.Decimal, error) {
	if d.quotes == nil {
		return decimal.Zero, fmt.Errorf("%w: no quote source", interfaces.ErrCollaboratorUnavailable)
	}
	t, err := d.quotes.Ticker(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: quote %s: %v", interfaces.ErrCollaboratorUnavailable, symbol, err)
	}
	price := t.Ask
	if side == ledger.SideSell {
		price = t.Bid
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: quote %s has no %s price", interfaces.ErrCollaboratorUnavailable, symbol, sideQuote(side))
	}
	return price, nil
}

func sideQuote(side ledger.Side) string {
	if side == ledger.SideSell {
		return "bid"
	}
	return "ask"
}

func (d *Dispatcher) onFill(ctx context.Context, fill ledger.Fill, kind ledger.OrderKind, summary string) {
	metrics.FillsTotal.WithLabelValues(string(fill.Side), string(kind)).Inc()
	at := d.now()
	if d.publisher != nil {
		ev := FillEvent{
			Time: at.UTC(), Symbol: fill.Symbol, Side: fill.Side, Kind: kind,
			Amount: fill.Amount, Quantity: fill.Quantity, Price: fill.Price,
			Balance: fill.Balance, OrderID: fill.OrderID, Summary: summary,
		}
		if err := d.publisher.Publish(ctx, fill.Symbol, ev); err != nil {
			logger.Warnf("executor: publish fill %s %s: %v", fill.Side, fill.Symbol, err)
		}
	}
	if d.notifier == nil {
		return
	}
	if err := d.notifier.SendText(fillMessage(fill, kind, summary, at)); err != nil {
		logger.Warnf("executor: notify fill %s %s: %v", fill.Side, fill.Symbol, err)
	}
}

// IsCollaboratorError reports whether err came from a quote lookup.
func IsCollaboratorError(err error) bool {
	return errors.Is(err, interfaces.ErrCollaboratorUnavailable)
}
