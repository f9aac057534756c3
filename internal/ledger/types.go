package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderKind string

const (
	KindMarket OrderKind = "market"
	KindLimit  OrderKind = "limit"
)

type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
)

// Trade command names as written to the history.
const (
	CommandBuyMarket  = "buy_market"
	CommandSellMarket = "sell_market"
	CommandLimitBuy   = "limit_buy"
	CommandLimitSell  = "limit_sell"
)

// Position is a held quantity of one base asset.
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
}

// CostBasis is quantity * average price.
func (p Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AveragePrice)
}

// OpenOrder is a resting limit order. Filled and cancelled are terminal.
type OpenOrder struct {
	ID         int64            `json:"id"`
	Symbol     string           `json:"symbol"`
	Side       Side             `json:"side"`
	Kind       OrderKind        `json:"type"`
	Amount     decimal.Decimal  `json:"amount"`
	LimitPrice *decimal.Decimal `json:"price,omitempty"`
	Status     OrderStatus      `json:"status"`
	Summary    string           `json:"summary,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	FilledAt   *time.Time       `json:"filled_at,omitempty"`
	FillPrice  *decimal.Decimal `json:"fill_price,omitempty"`
}

func (o OpenOrder) IsOpen() bool { return o.Status == StatusOpen }

// TradeRecord is one executed fill. Entries are never edited once appended.
type TradeRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	Command   string          `json:"command"`
	Success   bool            `json:"success"`
	Kind      OrderKind       `json:"type"`
	Side      Side            `json:"side"`
	Symbol    string          `json:"symbol"`
	Amount    decimal.Decimal `json:"amount"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Reasoning string          `json:"ai_reasoning"`
	OrderID   *int64          `json:"order_id,omitempty"`
}

// Fill is the result of a market execution.
type Fill struct {
	Symbol   string
	Side     Side
	Amount   decimal.Decimal
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Balance  decimal.Decimal
	OrderID  *int64
}

// Snapshot is the persisted ledger document.
type Snapshot struct {
	Balance      decimal.Decimal     `json:"balance"`
	Reserved     decimal.Decimal     `json:"reserved"`
	Positions    map[string]Position `json:"positions"`
	OpenOrders   []OpenOrder         `json:"open_orders"`
	TradeHistory []TradeRecord       `json:"trade_history"`
	NextOrderID  int64               `json:"next_order_id"`
	LastUpdated  time.Time           `json:"last_updated"`
}

// Store persists whole snapshots. Load reports false when nothing was saved yet.
type Store interface {
	Load(ctx context.Context) (Snapshot, bool, error)
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}
