package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cryptoprinter/internal/market"
	symbolpkg "cryptoprinter/internal/pkg/symbol"
	"cryptoprinter/internal/scheduler"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

const maxHistoryLimit = 1000

var errEmptyResponse = errors.New("binance: empty response")

// Source 基于 go-binance 现货 REST 实现 market.Source。
type Source struct {
	cfg    Config
	client *binance.Client
	conv   symbolpkg.BinanceConverter
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client, err := newClient(final)
	if err != nil {
		return nil, err
	}
	return &Source{
		cfg:    final,
		client: client,
		conv:   symbolpkg.NewBinanceConverter(final.QuoteAsset),
	}, nil
}

func newClient(final Config) (*binance.Client, error) {
	client := binance.NewClient(final.APIKey, final.APISecret)
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return client, nil
}

// Ticker reads the 24h rolling stats, which carry bid/ask as well as
// high/low/volume.
func (s *Source) Ticker(ctx context.Context, symbol string) (market.Ticker, error) {
	base := symbolpkg.Base(symbol)
	if base == "" {
		return market.Ticker{}, fmt.Errorf("symbol is required")
	}
	stats, err := s.client.NewListPriceChangeStatsService().Symbol(s.conv.ToExchange(base)).Do(ctx)
	if err != nil {
		return market.Ticker{}, err
	}
	if len(stats) == 0 || stats[0] == nil {
		return market.Ticker{}, errEmptyResponse
	}
	st := stats[0]
	t := market.Ticker{
		Symbol:      base,
		Bid:         parseDecimal(st.BidPrice),
		Ask:         parseDecimal(st.AskPrice),
		Last:        parseDecimal(st.LastPrice),
		High:        parseDecimal(st.HighPrice),
		Low:         parseDecimal(st.LowPrice),
		Volume:      parseDecimal(st.Volume),
		QuoteVolume: parseDecimal(st.QuoteVolume),
		ChangePct:   parseDecimal(st.PriceChangePercent),
		Time:        time.UnixMilli(st.CloseTime).UTC(),
	}
	if !t.Valid() {
		return t, fmt.Errorf("binance: %s has no usable bid/ask", base)
	}
	return t, nil
}

func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	base := symbolpkg.Base(symbol)
	if base == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	kls, err := s.client.NewKlinesService().Symbol(s.conv.ToExchange(base)).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	if dur, ok := scheduler.ParseIntervalDuration(interval); ok {
		out = scheduler.DropUnclosedBinanceKline(out, dur)
	}
	return out, nil
}

func (s *Source) Close() error { return nil }

func parseDecimal(v string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseFloat(v string) float64 {
	f, _ := parseDecimal(v).Float64()
	return f
}
