package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cryptoprinter/internal/logger"

	"golang.org/x/sync/errgroup"
)

// ErrNoMarketData means every symbol failed in one collection round.
var ErrNoMarketData = errors.New("no market data available")

// SymbolData is everything collected for one ticker. Err is set when any
// part failed; the other fields hold whatever did arrive.
type SymbolData struct {
	Symbol  string
	Ticker  Ticker
	Candles []Candle
	History []Candle
	Err     error
}

func (d SymbolData) OK() bool { return d.Err == nil && d.Ticker.Valid() }

// Snapshot is one collection round in configured symbol order.
type Snapshot struct {
	At      time.Time
	Symbols []SymbolData
}

// Available returns symbols that produced a usable quote.
func (s Snapshot) Available() []SymbolData {
	out := make([]SymbolData, 0, len(s.Symbols))
	for _, d := range s.Symbols {
		if d.OK() {
			out = append(out, d)
		}
	}
	return out
}

// Failed returns symbols that errored.
func (s Snapshot) Failed() []SymbolData {
	var out []SymbolData
	for _, d := range s.Symbols {
		if !d.OK() {
			out = append(out, d)
		}
	}
	return out
}

type CollectorOptions struct {
	Symbols         []string
	CandleInterval  string
	CandleLimit     int
	HistoryInterval string
	HistoryLimit    int
	Concurrency     int
}

// Collector gathers quotes and candles for all configured symbols.
type Collector struct {
	src  Source
	opts CollectorOptions
	now  func() time.Time
}

func NewCollector(src Source, opts CollectorOptions) *Collector {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.CandleLimit <= 0 {
		opts.CandleLimit = 100
	}
	return &Collector{src: src, opts: opts, now: time.Now}
}

func (c *Collector) Symbols() []string {
	return append([]string(nil), c.opts.Symbols...)
}

// Collect fetches every symbol concurrently. Per-symbol failures are logged
// and kept in the snapshot; only a round where nothing succeeded is an error.
func (c *Collector) Collect(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{At: c.now().UTC(), Symbols: make([]SymbolData, len(c.opts.Symbols))}
	if len(c.opts.Symbols) == 0 {
		return snap, fmt.Errorf("%w: no symbols configured", ErrNoMarketData)
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, sym := range c.opts.Symbols {
		i, sym := i, sym
		g.Go(func() error {
			data := c.collectOne(gctx, sym)
			mu.Lock()
			snap.Symbols[i] = data
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return snap, err
	}

	var failed []string
	for _, d := range snap.Symbols {
		if !d.OK() {
			failed = append(failed, d.Symbol)
		}
	}
	if len(failed) > 0 {
		logger.Warnf("market: %d/%d symbols unavailable: %s", len(failed), len(snap.Symbols), strings.Join(failed, ","))
	}
	if len(failed) == len(snap.Symbols) {
		return snap, ErrNoMarketData
	}
	return snap, nil
}

func (c *Collector) collectOne(ctx context.Context, sym string) SymbolData {
	data := SymbolData{Symbol: sym}
	t, err := c.src.Ticker(ctx, sym)
	if err != nil {
		data.Err = fmt.Errorf("ticker %s: %w", sym, err)
		logger.Warnf("market: %v", data.Err)
		return data
	}
	data.Ticker = t
	if c.opts.CandleInterval != "" {
		candles, err := c.src.FetchHistory(ctx, sym, c.opts.CandleInterval, c.opts.CandleLimit)
		if err != nil {
			logger.Warnf("market: candles %s %s: %v", sym, c.opts.CandleInterval, err)
		} else {
			data.Candles = candles
		}
	}
	if c.opts.HistoryInterval != "" && c.opts.HistoryLimit > 0 {
		hist, err := c.src.FetchHistory(ctx, sym, c.opts.HistoryInterval, c.opts.HistoryLimit)
		if err != nil {
			logger.Warnf("market: history %s %s: %v", sym, c.opts.HistoryInterval, err)
		} else {
			data.History = hist
		}
	}
	return data
}
