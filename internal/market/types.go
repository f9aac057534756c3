package market

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// Ticker is the current quote for one base ticker.
type Ticker struct {
	Symbol      string          `json:"symbol"`
	Bid         decimal.Decimal `json:"bid"`
	Ask         decimal.Decimal `json:"ask"`
	Last        decimal.Decimal `json:"last"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Volume      decimal.Decimal `json:"volume"`
	QuoteVolume decimal.Decimal `json:"quote_volume"`
	ChangePct   decimal.Decimal `json:"change_pct"`
	Time        time.Time       `json:"time"`
}

// Valid reports whether both sides of the book are usable prices.
func (t Ticker) Valid() bool {
	return t.Bid.IsPositive() && t.Ask.IsPositive()
}

// Mid is the midpoint of bid and ask.
func (t Ticker) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// QuoteSource returns current quotes. Symbols are base tickers such as "BTC".
type QuoteSource interface {
	Ticker(ctx context.Context, symbol string) (Ticker, error)
}

// Source is a full market data provider.
type Source interface {
	QuoteSource
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	Close() error
}
