package executor

import (
	"fmt"
	"strings"
	"time"

	"cryptoprinter/internal/gateway/notifier"
	"cryptoprinter/internal/ledger"
)

type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
	StatusNoop   Status = "noop"
)

// Outcome is what happened to one command.
type Outcome struct {
	Command string       `json:"command"`
	Kind    string       `json:"kind"`
	Symbol  string       `json:"symbol,omitempty"`
	Status  Status       `json:"status"`
	Detail  string       `json:"detail,omitempty"`
	Error   string       `json:"error,omitempty"`
	Fill    *ledger.Fill `json:"fill,omitempty"`
	OrderID *int64       `json:"order_id,omitempty"`

	err error
}

// Err is the original error, for errors.Is checks.
func (o Outcome) Err() error { return o.err }

func (o *Outcome) setFill(f ledger.Fill) {
	o.Fill = &f
	o.Detail = fmt.Sprintf("%s %s qty=%s @ %s balance=%s",
		f.Side, f.Symbol, f.Quantity.StringFixed(8), f.Price.String(), f.Balance.StringFixed(2))
}

func (o *Outcome) setOrder(ord ledger.OpenOrder) {
	id := ord.ID
	o.OrderID = &id
	limit := ""
	if ord.LimitPrice != nil {
		limit = ord.LimitPrice.String()
	}
	o.Detail = fmt.Sprintf("order #%d %s %s $%s @ %s", ord.ID, ord.Side, ord.Symbol, ord.Amount.String(), limit)
}

// Report summarises one dispatch batch. do_nothing is neither attempted nor failed.
type Report struct {
	Attempted int       `json:"attempted"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case StatusOK:
		r.Attempted++
		r.Succeeded++
	case StatusFailed:
		r.Attempted++
		r.Failed++
	}
}

func (r Report) String() string {
	return fmt.Sprintf("attempted=%d succeeded=%d failed=%d", r.Attempted, r.Succeeded, r.Failed)
}

// ResolveReport summarises one pass over the open limit orders.
type ResolveReport struct {
	Checked   int           `json:"checked"`
	Filled    int           `json:"filled"`
	Cancelled int           `json:"cancelled"`
	Skipped   int           `json:"skipped"`
	Fills     []ledger.Fill `json:"fills,omitempty"`
	Errors    []string      `json:"errors,omitempty"`
}

func (r ResolveReport) String() string {
	return fmt.Sprintf("checked=%d filled=%d cancelled=%d skipped=%d", r.Checked, r.Filled, r.Cancelled, r.Skipped)
}

func fillMessage(f ledger.Fill, kind ledger.OrderKind, summary string, at time.Time) string {
	icon := "🟢"
	if f.Side == ledger.SideSell {
		icon = "🔴"
	}
	fields := []notifier.Field{
		{Label: "amount", Value: "$" + f.Amount.StringFixed(2)},
		{Label: "quantity", Value: f.Quantity.StringFixed(8)},
		{Label: "price", Value: f.Price.String()},
	}
	if f.OrderID != nil {
		fields = append(fields, notifier.Field{Label: "order", Value: fmt.Sprintf("#%d", *f.OrderID)})
	}
	secs := []notifier.MessageSection{{Title: "Fill", Fields: fields}}
	if s := strings.TrimSpace(summary); s != "" {
		secs = append(secs, notifier.MessageSection{Title: "Reasoning", Lines: []string{s}})
	}
	msg := notifier.StructuredMessage{
		Icon:      icon,
		Title:     fmt.Sprintf("%s %s %s", strings.ToUpper(string(kind)), strings.ToUpper(string(f.Side)), f.Symbol),
		Sections:  secs,
		Footer:    fmt.Sprintf("cash balance $%s", f.Balance.StringFixed(2)),
		Timestamp: at,
	}
	return msg.RenderMarkdown()
}
