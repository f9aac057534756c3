package decision

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMalformedCommand marks a line that names a command but cannot be used.
var ErrMalformedCommand = errors.New("malformed command")

// Kind is the closed set of commands the advisor may emit.
type Kind int

const (
	KindBuyMarket Kind = iota + 1
	KindBuyLimit
	KindSellMarket
	KindSellLimit
	KindCancel
	KindDoNothing
)

var kindNames = map[Kind]string{
	KindBuyMarket:  "buy_crypto_price",
	KindBuyLimit:   "buy_crypto_limit",
	KindSellMarket: "sell_crypto_price",
	KindSellLimit:  "sell_crypto_limit",
	KindCancel:     "cancel_order",
	KindDoNothing:  "do_nothing",
}

// kindOrder fixes match priority; longer names never prefix shorter ones here.
var kindOrder = []Kind{KindBuyMarket, KindBuyLimit, KindSellMarket, KindSellLimit, KindCancel, KindDoNothing}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

// KindFromName maps a command token to its Kind.
func KindFromName(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range kindOrder {
		if kindNames[k] == name {
			return k, true
		}
	}
	return 0, false
}

// IsTrade reports whether k moves cash or coins.
func (k Kind) IsTrade() bool {
	switch k {
	case KindBuyMarket, KindBuyLimit, KindSellMarket, KindSellLimit:
		return true
	}
	return false
}

// IsLimit reports whether k rests a limit order.
func (k Kind) IsLimit() bool { return k == KindBuyLimit || k == KindSellLimit }

// OrderArgs is the payload of the four trading commands. Limit is zero for
// market orders.
type OrderArgs struct {
	Symbol  string
	Amount  decimal.Decimal
	Summary string
	Limit   decimal.Decimal
}

// CancelArgs is the payload of cancel_order.
type CancelArgs struct {
	OrderID int64
}

// Command is one parsed, typed instruction. Only the payload matching Kind
// is populated.
type Command struct {
	Kind   Kind
	Line   int
	Raw    string
	Args   []string
	Order  OrderArgs
	Cancel CancelArgs
}

// String renders the command in the advisor's call syntax.
func (c Command) String() string {
	switch c.Kind {
	case KindBuyMarket, KindSellMarket:
		return fmt.Sprintf("%s(%q, %s, %q)", c.Kind, c.Order.Symbol, c.Order.Amount.String(), c.Order.Summary)
	case KindBuyLimit, KindSellLimit:
		return fmt.Sprintf("%s(%q, %s, %q, %s)", c.Kind, c.Order.Symbol, c.Order.Amount.String(), c.Order.Summary, c.Order.Limit.String())
	case KindCancel:
		return fmt.Sprintf("%s(%d)", c.Kind, c.Cancel.OrderID)
	case KindDoNothing:
		return "do_nothing()"
	default:
		return c.Kind.String()
	}
}

// Symbol returns the traded ticker, empty for non-trading commands.
func (c Command) Symbol() string {
	if c.Kind.IsTrade() {
		return c.Order.Symbol
	}
	return ""
}

// Issue is a command line that was rejected.
type Issue struct {
	Line int
	Text string
	Err  error
}

func (i Issue) Error() string {
	return fmt.Sprintf("line %d: %v: %s", i.Line, i.Err, i.Text)
}

func (i Issue) Unwrap() error { return i.Err }

// ParseResult holds accepted commands in line order plus rejected lines.
type ParseResult struct {
	Commands []Command
	Issues   []Issue
}

// HasCommands reports whether at least one command, do_nothing included, was found.
func (r ParseResult) HasCommands() bool { return len(r.Commands) > 0 }

// Actionable drops do_nothing entries.
func (r ParseResult) Actionable() []Command {
	out := make([]Command, 0, len(r.Commands))
	for _, c := range r.Commands {
		if c.Kind != KindDoNothing {
			out = append(out, c)
		}
	}
	return out
}

// Strings renders every command, used for decision logs.
func (r ParseResult) Strings() []string {
	out := make([]string, 0, len(r.Commands))
	for _, c := range r.Commands {
		out = append(out, c.String())
	}
	return out
}

// IssueStrings renders every issue.
func (r ParseResult) IssueStrings() []string {
	out := make([]string, 0, len(r.Issues))
	for _, i := range r.Issues {
		out = append(out, i.Error())
	}
	return out
}
