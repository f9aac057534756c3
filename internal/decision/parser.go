package decision

import (
	"fmt"
	"strconv"
	"strings"

	"cryptoprinter/internal/logger"
	"cryptoprinter/internal/pkg/symbol"

	"github.com/shopspring/decimal"
)

// Parser turns free-form advisor text into typed commands. It scans line by
// line; prose is skipped, and a bad command line is reported without
// affecting the others.
type Parser struct {
	allowed map[string]struct{}
}

// NewParser returns a parser. When symbols is non-empty, trading commands for
// other tickers are rejected.
func NewParser(symbols []string) *Parser {
	p := &Parser{}
	if list := symbol.BaseList(symbols); len(list) > 0 {
		p.allowed = make(map[string]struct{}, len(list))
		for _, s := range list {
			p.allowed[s] = struct{}{}
		}
	}
	return p
}

// Parse never fails; zero commands means the advisor asked for nothing.
func (p *Parser) Parse(raw string) ParseResult {
	res := ParseResult{Commands: []Command{}}
	raw = strings.ReplaceAll(raw, `\`, "")
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	for idx, line := range strings.Split(raw, "\n") {
		lineNo := idx + 1
		line = strings.ReplaceAll(line, "`", "")
		if strings.TrimSpace(line) == "" {
			continue
		}
		p.parseLine(lineNo, line, &res)
	}
	for _, is := range res.Issues {
		logger.Warnf("decision: skipped %s", is.Error())
	}
	return res
}

func (p *Parser) parseLine(lineNo int, line string, res *ParseResult) {
	lower := asciiLower(line)
	pos := 0
	for pos < len(line) {
		kind, start, end, ok := nextToken(lower, pos)
		if !ok {
			return
		}
		open := skipSpaces(line, end)
		if open >= len(line) || line[open] != '(' {
			res.Issues = append(res.Issues, Issue{
				Line: lineNo,
				Text: strings.TrimSpace(line),
				Err:  fmt.Errorf("%w: %s without argument list", ErrMalformedCommand, kind),
			})
			pos = end
			continue
		}
		body, closeIdx, ok := callBody(line, open)
		if !ok {
			res.Issues = append(res.Issues, Issue{
				Line: lineNo,
				Text: strings.TrimSpace(line),
				Err:  fmt.Errorf("%w: %s has no closing parenthesis", ErrMalformedCommand, kind),
			})
			return
		}
		rawCall := strings.TrimSpace(line[start : closeIdx+1])
		cmd, err := p.build(kind, splitArgs(body))
		if err != nil {
			res.Issues = append(res.Issues, Issue{Line: lineNo, Text: rawCall, Err: err})
		} else {
			cmd.Line = lineNo
			cmd.Raw = rawCall
			res.Commands = append(res.Commands, cmd)
		}
		pos = closeIdx + 1
	}
}

// nextToken finds the earliest command name at or after pos that stands as
// its own word.
func nextToken(lower string, pos int) (Kind, int, int, bool) {
	bestStart := -1
	var best Kind
	for _, k := range kindOrder {
		name := kindNames[k]
		from := pos
		for from < len(lower) {
			i := strings.Index(lower[from:], name)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(name)
			if isWordBoundary(lower, start-1) && isWordBoundary(lower, end) {
				if bestStart < 0 || start < bestStart {
					bestStart, best = start, k
				}
				break
			}
			from = end
		}
	}
	if bestStart < 0 {
		return 0, 0, 0, false
	}
	return best, bestStart, bestStart + len(kindNames[best]), true
}

func isWordBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c == '_' || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'))
}

// asciiLower keeps byte offsets aligned with the original line.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func skipSpaces(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

func (p *Parser) build(kind Kind, args []string) (Command, error) {
	cmd := Command{Kind: kind, Args: args}
	switch kind {
	case KindDoNothing:
		return cmd, nil
	case KindCancel:
		if len(args) < 1 {
			return cmd, fmt.Errorf("%w: cancel_order needs an order id", ErrMalformedCommand)
		}
		id, err := parseOrderID(args[0])
		if err != nil {
			return cmd, err
		}
		cmd.Cancel = CancelArgs{OrderID: id}
		return cmd, nil
	case KindBuyMarket, KindSellMarket:
		if len(args) < 2 {
			return cmd, fmt.Errorf("%w: %s needs symbol and amount, got %d argument(s)", ErrMalformedCommand, kind, len(args))
		}
		order, err := p.orderArgs(args[0], args[1])
		if err != nil {
			return cmd, err
		}
		order.Summary = strings.Join(args[2:], ", ")
		cmd.Order = order
		return cmd, nil
	case KindBuyLimit, KindSellLimit:
		if len(args) < 3 {
			return cmd, fmt.Errorf("%w: %s needs symbol, amount and limit, got %d argument(s)", ErrMalformedCommand, kind, len(args))
		}
		order, err := p.orderArgs(args[0], args[1])
		if err != nil {
			return cmd, err
		}
		last := len(args) - 1
		if limit, err := parseAmount(args[last]); err == nil {
			order.Limit = limit
			order.Summary = strings.Join(args[2:last], ", ")
		} else if limit, err2 := parseAmount(args[2]); err2 == nil && len(args) > 3 {
			order.Limit = limit
			order.Summary = strings.Join(args[3:], ", ")
		} else {
			return cmd, fmt.Errorf("%w: %s limit price: %v", ErrMalformedCommand, kind, err)
		}
		cmd.Order = order
		return cmd, nil
	default:
		return cmd, fmt.Errorf("%w: unknown command %s", ErrMalformedCommand, kind)
	}
}

func (p *Parser) orderArgs(rawSymbol, rawAmount string) (OrderArgs, error) {
	sym := symbol.Base(rawSymbol)
	if !symbol.IsTicker(sym) {
		return OrderArgs{}, fmt.Errorf("%w: invalid symbol %q", ErrMalformedCommand, rawSymbol)
	}
	if p.allowed != nil {
		if _, ok := p.allowed[sym]; !ok {
			return OrderArgs{}, fmt.Errorf("%w: symbol %s is not tracked", ErrMalformedCommand, sym)
		}
	}
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return OrderArgs{}, fmt.Errorf("%w: amount: %v", ErrMalformedCommand, err)
	}
	return OrderArgs{Symbol: sym, Amount: amount}, nil
}

// parseAmount accepts "1000", "$1,000.50", "250 USD".
func parseAmount(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)
	upper := strings.ToUpper(clean)
	for _, suffix := range []string{"USDT", "USD"} {
		if strings.HasSuffix(upper, suffix) {
			clean = clean[:len(clean)-len(suffix)]
			break
		}
	}
	clean = strings.NewReplacer("$", "", ",", "", "_", "", " ", "").Replace(clean)
	if clean == "" {
		return decimal.Zero, fmt.Errorf("empty number %q", s)
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number %q", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("must be positive, got %s", d.String())
	}
	return d, nil
}

func parseOrderID(s string) (int64, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(s), "#")
	id, err := strconv.ParseInt(clean, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: invalid order id %q", ErrMalformedCommand, s)
	}
	return id, nil
}
