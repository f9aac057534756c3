package symbol

import "strings"

// BinanceConverter maps base tickers to Binance spot pairs and back.
type BinanceConverter struct {
	Quote string
}

func NewBinanceConverter(quote string) BinanceConverter {
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if quote == "" {
		quote = DefaultQuote
	}
	return BinanceConverter{Quote: quote}
}

// ToExchange turns "BTC" (or "BTC/USDT") into "BTCUSDT".
func (c BinanceConverter) ToExchange(base string) string {
	sym := Parse(base)
	if sym.Base == "" {
		return ""
	}
	if sym.Quote == "" || sym.Quote == "USD" {
		sym.Quote = c.Quote
	}
	return sym.Binance()
}

// FromExchange turns "BTCUSDT" back into "BTC".
func (c BinanceConverter) FromExchange(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if strings.HasSuffix(s, c.Quote) && len(s) > len(c.Quote) {
		return s[:len(s)-len(c.Quote)]
	}
	return Parse(s).Base
}
