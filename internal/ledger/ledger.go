package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cryptoprinter/internal/logger"

	"github.com/shopspring/decimal"
)

// Options configures a Ledger.
type Options struct {
	InitialBalance decimal.Decimal
	// MaxHistory caps retained trade records; 0 keeps all of them.
	MaxHistory int
	Now        func() time.Time
	// OnPersistError is called after a failed save has been logged.
	OnPersistError func(error)
}

// Ledger is the simulated portfolio. Every mutation is saved through the
// Store before the call returns; a failed save is logged and the in-memory
// state stays authoritative.
type Ledger struct {
	mu    sync.RWMutex
	store Store
	opts  Options
	state Snapshot
}

// Open loads the ledger from store, or creates and saves a fresh one funded
// with opts.InitialBalance when the store is empty.
func Open(ctx context.Context, store Store, opts Options) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger: store is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxHistory < 0 {
		opts.MaxHistory = 0
	}
	snap, found, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load snapshot: %w", err)
	}
	l := &Ledger{store: store, opts: opts}
	if !found {
		if !opts.InitialBalance.IsPositive() {
			return nil, fmt.Errorf("%w: initial balance must be positive", ErrInvalidArgument)
		}
		l.state = Snapshot{
			Balance:      opts.InitialBalance,
			Positions:    map[string]Position{},
			OpenOrders:   []OpenOrder{},
			TradeHistory: []TradeRecord{},
			NextOrderID:  1,
			LastUpdated:  opts.Now().UTC(),
		}
		logger.Infof("ledger: created with initial balance %s", opts.InitialBalance.StringFixed(2))
		l.mu.Lock()
		l.persistLocked(ctx)
		l.mu.Unlock()
		return l, nil
	}
	l.state = normalizeSnapshot(snap)
	logger.Infof("ledger: loaded balance=%s positions=%d open_orders=%d trades=%d",
		l.state.Balance.StringFixed(2), len(l.state.Positions), countOpen(l.state.OpenOrders), len(l.state.TradeHistory))
	return l, nil
}

// Close releases the underlying store.
func (l *Ledger) Close() error {
	if l == nil || l.store == nil {
		return nil
	}
	return l.store.Close()
}

func (l *Ledger) Balance() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Balance
}

// Reserved is the cash held back for open limit buys.
func (l *Ledger) Reserved() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Reserved
}

// Available is balance minus reserved cash.
func (l *Ledger) Available() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.availableLocked()
}

// Positions returns non-empty positions sorted by symbol.
func (l *Ledger) Positions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.state.Positions))
	for _, p := range l.state.Positions {
		if !p.Quantity.IsPositive() {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Position returns the position for symbol, if any.
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.state.Positions[NormalizeSymbol(symbol)]
	return p, ok
}

// OpenOrders returns orders still in the open state, oldest first.
func (l *Ledger) OpenOrders() []OpenOrder {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]OpenOrder, 0, len(l.state.OpenOrders))
	for _, o := range l.state.OpenOrders {
		if o.IsOpen() {
			out = append(out, cloneOrder(o))
		}
	}
	return out
}

// TradeHistory returns a copy of the audit log, oldest first.
func (l *Ledger) TradeHistory() []TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneTrades(l.state.TradeHistory)
}

// RecentTrades returns at most n of the latest trades, oldest first.
func (l *Ledger) RecentTrades(n int) []TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	hist := l.state.TradeHistory
	if n > 0 && len(hist) > n {
		hist = hist[len(hist)-n:]
	}
	return cloneTrades(hist)
}

// Snapshot returns a deep copy of the full state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.state)
}

// NormalizeSymbol upper-cases and trims a base ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (l *Ledger) availableLocked() decimal.Decimal {
	return l.state.Balance.Sub(l.state.Reserved)
}

func (l *Ledger) persistLocked(ctx context.Context) {
	l.state.LastUpdated = l.opts.Now().UTC()
	if err := l.store.Save(ctx, cloneSnapshot(l.state)); err != nil {
		err = fmt.Errorf("%w: %v", ErrPersistence, err)
		logger.Errorf("ledger: %v", err)
		if l.opts.OnPersistError != nil {
			l.opts.OnPersistError(err)
		}
	}
}

func (l *Ledger) appendTradeLocked(rec TradeRecord) {
	l.state.TradeHistory = append(l.state.TradeHistory, rec)
	if limit := l.opts.MaxHistory; limit > 0 && len(l.state.TradeHistory) > limit {
		trimmed := make([]TradeRecord, limit)
		copy(trimmed, l.state.TradeHistory[len(l.state.TradeHistory)-limit:])
		l.state.TradeHistory = trimmed
	}
}

func countOpen(orders []OpenOrder) int {
	n := 0
	for _, o := range orders {
		if o.IsOpen() {
			n++
		}
	}
	return n
}
