package binance

import (
	"strings"
	"time"

	"cryptoprinter/internal/pkg/symbol"
)

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
	QuoteAsset  string

	APIKey    string
	APISecret string

	ProxyEnabled bool
	RESTProxyURL string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimRight(strings.TrimSpace(out.RESTBaseURL), "/")
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://api.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 10 * time.Second
	}
	out.QuoteAsset = strings.ToUpper(strings.TrimSpace(out.QuoteAsset))
	if out.QuoteAsset == "" {
		out.QuoteAsset = symbol.DefaultQuote
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}
