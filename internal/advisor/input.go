package advisor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"cryptoprinter/internal/analysis/indicator"
	"cryptoprinter/internal/gateway/newsapi"
	"cryptoprinter/internal/ledger"
	"cryptoprinter/internal/market"

	"github.com/shopspring/decimal"
)

// Input is everything one cycle shows the model.
type Input struct {
	Now          time.Time
	Market       market.Snapshot
	Indicators   map[string]indicator.Report
	News         map[string][]newsapi.Headline
	Portfolio    ledger.Snapshot
	RecentTrades []ledger.TradeRecord
}

// Prompt is the rendered system/user pair.
type Prompt struct {
	System string
	User   string
}

type cryptoInfo struct {
	Symbol    string          `json:"symbol"`
	AskPrice  decimal.Decimal `json:"ask_price"`
	BidPrice  decimal.Decimal `json:"bid_price"`
	HighPrice decimal.Decimal `json:"high_price"`
	LowPrice  decimal.Decimal `json:"low_price"`
	Volume    decimal.Decimal `json:"volume"`
	ChangePct decimal.Decimal `json:"change_24h_pct"`
}

type positionView struct {
	Symbol         string          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	AverageBuy     decimal.Decimal `json:"average_buy_price"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	MarketValue    decimal.Decimal `json:"market_value"`
	PortfolioShare decimal.Decimal `json:"portfolio_percentage"`
}

type orderView struct {
	ID     int64            `json:"id"`
	Symbol string           `json:"symbol"`
	Type   ledger.OrderKind `json:"type"`
	Side   ledger.Side      `json:"side"`
	Amount decimal.Decimal  `json:"amount"`
	Price  *decimal.Decimal `json:"price,omitempty"`
}

type tradeView struct {
	Time      string          `json:"time"`
	Action    string          `json:"action"`
	Symbol    string          `json:"symbol"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Reasoning string          `json:"reasoning,omitempty"`
}

// historyRow is [open_time, open, high, low, close, volume].
type historyRow [6]any

var hundred = decimal.NewFromInt(100)

// renderData lays out the data block appended to the system prompt.
func renderData(in Input) (string, error) {
	infos := make([]cryptoInfo, 0, len(in.Market.Symbols))
	history := make(map[string][]historyRow)
	marks := make(map[string]decimal.Decimal)
	for _, d := range in.Market.Available() {
		t := d.Ticker
		infos = append(infos, cryptoInfo{
			Symbol: d.Symbol, AskPrice: t.Ask, BidPrice: t.Bid,
			HighPrice: t.High, LowPrice: t.Low, Volume: t.Volume, ChangePct: t.ChangePct,
		})
		marks[d.Symbol] = t.Bid
		if len(d.History) > 0 {
			rows := make([]historyRow, 0, len(d.History))
			for _, c := range d.History {
				rows = append(rows, historyRow{
					time.UnixMilli(c.OpenTime).UTC().Format("2006-01-02T15:04Z"),
					c.Open, c.High, c.Low, c.Close, c.Volume,
				})
			}
			history[d.Symbol] = rows
		}
	}

	sections := []struct {
		title string
		value any
	}{
		{"Crypto Info", infos},
		{"Technical Analysis", in.Indicators},
		{"Balance", balanceView(in.Portfolio)},
		{"Positions", positionViews(in.Portfolio, marks)},
		{"Open Orders", orderViews(in.Portfolio.OpenOrders)},
		{"Past Trades", tradeViews(in.RecentTrades)},
		{"News", in.News},
		{"Historical Data (open_time, open, high, low, close, volume)", history},
	}
	var b strings.Builder
	for _, sec := range sections {
		raw, err := json.Marshal(sec.value)
		if err != nil {
			return "", fmt.Errorf("render %s: %w", sec.title, err)
		}
		b.WriteString(sec.title)
		b.WriteString(": ")
		b.Write(raw)
		b.WriteString("\n")
	}
	if failed := in.Market.Failed(); len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, d := range failed {
			names = append(names, d.Symbol)
		}
		fmt.Fprintf(&b, "Unavailable this cycle (do not trade): %s\n", strings.Join(names, ", "))
	}
	return b.String(), nil
}

func balanceView(s ledger.Snapshot) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"cash":      s.Balance.Round(2),
		"reserved":  s.Reserved.Round(2),
		"available": s.Balance.Sub(s.Reserved).Round(2),
	}
}

// positionViews values holdings at the bid when known, else at cost.
func positionViews(s ledger.Snapshot, marks map[string]decimal.Decimal) []positionView {
	out := make([]positionView, 0, len(s.Positions))
	total := s.Balance
	for sym, p := range s.Positions {
		v := positionView{Symbol: sym, Quantity: p.Quantity, AverageBuy: p.AveragePrice, CostBasis: p.CostBasis().Round(2)}
		if mark, ok := marks[sym]; ok && mark.IsPositive() {
			v.MarketValue = p.Quantity.Mul(mark).Round(2)
		} else {
			v.MarketValue = v.CostBasis
		}
		total = total.Add(v.MarketValue)
		out = append(out, v)
	}
	for i := range out {
		if total.IsPositive() {
			out[i].PortfolioShare = out[i].MarketValue.Div(total).Mul(hundred).Round(2)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func orderViews(orders []ledger.OpenOrder) []orderView {
	out := make([]orderView, 0, len(orders))
	for _, o := range orders {
		if !o.IsOpen() {
			continue
		}
		out = append(out, orderView{ID: o.ID, Symbol: o.Symbol, Type: o.Kind, Side: o.Side, Amount: o.Amount, Price: o.LimitPrice})
	}
	return out
}

func tradeViews(trades []ledger.TradeRecord) []tradeView {
	out := make([]tradeView, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeView{
			Time:      t.Timestamp.UTC().Format(time.RFC3339),
			Action:    t.Command,
			Symbol:    t.Symbol,
			Amount:    t.Amount,
			Price:     t.Price,
			Reasoning: t.Reasoning,
		})
	}
	return out
}
