package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"cryptoprinter/internal/market"
)

// MinCandles is the shortest series for which every indicator has a value.
// MACD(12,26,9) needs the most history.
const MinCandles = 34

type MACD struct {
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	State     string  `json:"state"`
}

type Stochastic struct {
	K     float64 `json:"k"`
	D     float64 `json:"d"`
	State string  `json:"state"`
}

type Bollinger struct {
	High float64 `json:"high"`
	Mid  float64 `json:"mid"`
	Low  float64 `json:"low"`
}

type Price struct {
	Current float64 `json:"current"`
	Open    float64 `json:"open"`
	High    float64 `json:"high"`
	Low     float64 `json:"low"`
}

// Report 汇总单个 symbol 在最新一根 K 线上的指标。
type Report struct {
	Symbol     string     `json:"symbol"`
	Interval   string     `json:"interval"`
	Count      int        `json:"count"`
	MACD       MACD       `json:"macd"`
	SMA20      float64    `json:"sma_20"`
	EMA20      float64    `json:"ema_20"`
	RSI14      float64    `json:"rsi"`
	RSIState   string     `json:"rsi_state"`
	Stochastic Stochastic `json:"stochastic"`
	Bollinger  Bollinger  `json:"bollinger_bands"`
	VWAP       float64    `json:"vwap"`
	Price      Price      `json:"price"`
	Warnings   []string   `json:"warnings,omitempty"`
}

// Compute derives the latest trend, momentum, volatility and volume values.
func Compute(symbol, interval string, candles []market.Candle) (Report, error) {
	rep := Report{Symbol: symbol, Interval: interval, Count: len(candles)}
	if len(candles) == 0 {
		return rep, fmt.Errorf("no candles")
	}
	if len(candles) < MinCandles {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("only %d candles, some indicators are empty", len(candles)))
	}
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}
	last := candles[len(candles)-1]
	rep.Price = Price{Current: last.Close, Open: last.Open, High: last.High, Low: last.Low}

	if len(closes) >= MinCandles {
		macd, signal, hist := talib.Macd(closes, 12, 26, 9)
		rep.MACD = MACD{
			Value:     round4(lastValid(sanitizeSeries(macd))),
			Signal:    round4(lastValid(sanitizeSeries(signal))),
			Histogram: round4(lastValid(sanitizeSeries(hist))),
		}
		rep.MACD.State = polarityState(rep.MACD.Histogram, "bullish", "bearish")
	}

	if len(closes) >= 20 {
		rep.SMA20 = round4(lastValid(sanitizeSeries(talib.Sma(closes, 20))))
		rep.EMA20 = round4(lastValid(sanitizeSeries(talib.Ema(closes, 20))))
		upper, mid, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
		rep.Bollinger = Bollinger{
			High: round4(lastValid(sanitizeSeries(upper))),
			Mid:  round4(lastValid(sanitizeSeries(mid))),
			Low:  round4(lastValid(sanitizeSeries(lower))),
		}
	}

	if len(closes) > 14 {
		rep.RSI14 = round4(lastValid(sanitizeSeries(talib.Rsi(closes, 14))))
		rep.RSIState = rangeState(rep.RSI14, 30, 70)
	}

	if len(closes) >= 14+3+3 {
		k, d := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)
		rep.Stochastic = Stochastic{
			K: round4(lastValid(sanitizeSeries(k))),
			D: round4(lastValid(sanitizeSeries(d))),
		}
		rep.Stochastic.State = rangeState(rep.Stochastic.K, 20, 80)
	}

	rep.VWAP = round4(vwap(highs, lows, closes, volumes, 14))
	return rep, nil
}

// vwap is the rolling volume weighted typical price over the last window candles.
func vwap(highs, lows, closes, volumes []float64, window int) float64 {
	n := len(closes)
	if n == 0 {
		return 0
	}
	start := n - window
	if start < 0 {
		start = 0
	}
	var pv, vol float64
	for i := start; i < n; i++ {
		typical := (highs[i] + lows[i] + closes[i]) / 3
		pv += typical * volumes[i]
		vol += volumes[i]
	}
	if vol == 0 {
		return closes[n-1]
	}
	return pv / vol
}

func sanitizeSeries(src []float64) []float64 {
	out := make([]float64, 0, len(src))
	for _, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

func polarityState(v float64, pos, neg string) string {
	switch {
	case v > 0:
		return pos
	case v < 0:
		return neg
	default:
		return "flat"
	}
}

func rangeState(v, low, high float64) string {
	switch {
	case v >= high:
		return "overbought"
	case v <= low:
		return "oversold"
	default:
		return "neutral"
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
