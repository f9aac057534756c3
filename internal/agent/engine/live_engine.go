package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"cryptoprinter/internal/agent/interfaces"
	"cryptoprinter/internal/decision"
	"cryptoprinter/internal/executor"
	"cryptoprinter/internal/gateway/notifier"
	"cryptoprinter/internal/ledger"
	"cryptoprinter/internal/logger"
	"cryptoprinter/internal/market"
	"cryptoprinter/internal/pkg/circuit"
	"cryptoprinter/internal/scheduler"
	"cryptoprinter/internal/store/decisionlog"
)

// Portfolio is the read side of the ledger the cycle shows the model.
type Portfolio interface {
	Snapshot() ledger.Snapshot
	RecentTrades(n int) []ledger.TradeRecord
}

// Dispatcher executes parsed commands and settles resting orders.
type Dispatcher interface {
	ResolveOpenOrders(ctx context.Context) executor.ResolveReport
	Dispatch(ctx context.Context, cmds []decision.Command) executor.Report
}

// CycleLog persists one row per cycle.
type CycleLog interface {
	Insert(ctx context.Context, rec decisionlog.CycleRecord) (int64, error)
}

type Options struct {
	Interval         time.Duration
	Backoff          time.Duration
	RunImmediately   bool
	CandleInterval   string
	MaxAttempts      int
	RetryDelay       time.Duration
	CircuitThreshold int
	CircuitTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.Backoff <= 0 {
		o.Backoff = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.CircuitThreshold <= 0 {
		o.CircuitThreshold = 5
	}
	if o.CircuitTimeout <= 0 {
		o.CircuitTimeout = 10 * time.Minute
	}
	return o
}

type EngineParams struct {
	Market      interfaces.MarketService
	News        interfaces.NewsService
	Advisor     interfaces.Advisor
	Parser      *decision.Parser
	Portfolio   Portfolio
	Dispatcher  Dispatcher
	DecisionLog CycleLog
	Notifier    notifier.TextNotifier
	Options     Options
}

// LiveEngine runs decision cycles one after another until its context ends.
type LiveEngine struct {
	market      interfaces.MarketService
	news        interfaces.NewsService
	advisor     interfaces.Advisor
	parser      *decision.Parser
	portfolio   Portfolio
	dispatcher  Dispatcher
	decisionLog CycleLog
	notifier    notifier.TextNotifier
	opts        Options

	CircuitBreaker *circuit.CircuitBreaker

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool

	mu         sync.RWMutex
	lastMarket market.Snapshot
	lastCycle  *CycleResult
}

func NewLiveEngine(p EngineParams) (*LiveEngine, error) {
	switch {
	case p.Market == nil:
		return nil, errors.New("engine: market service is required")
	case p.Advisor == nil:
		return nil, errors.New("engine: advisor is required")
	case p.Portfolio == nil:
		return nil, errors.New("engine: portfolio is required")
	case p.Dispatcher == nil:
		return nil, errors.New("engine: dispatcher is required")
	}
	parser := p.Parser
	if parser == nil {
		parser = decision.NewParser(p.Market.Symbols())
	}
	opts := p.Options.withDefaults()
	e := &LiveEngine{
		market:      p.Market,
		news:        p.News,
		advisor:     p.Advisor,
		parser:      parser,
		portfolio:   p.Portfolio,
		dispatcher:  p.Dispatcher,
		decisionLog: p.DecisionLog,
		notifier:    p.Notifier,
		opts:        opts,
		now:         time.Now,
		sleep:       scheduler.Sleep,
	}
	e.CircuitBreaker = circuit.NewCircuitBreaker("LiveEngine", opts.CircuitThreshold, opts.CircuitTimeout)
	e.CircuitBreaker.SetStateChangeHandler(e.notifyBreaker)
	return e, nil
}

// Run loops until ctx is cancelled. Cycles start Interval apart; a failed
// cycle waits Backoff instead.
func (e *LiveEngine) Run(ctx context.Context) error {
	logger.Infof("LiveEngine: starting symbols=%v interval=%s backoff=%s run_immediately=%v",
		e.market.Symbols(), e.opts.Interval, e.opts.Backoff, e.opts.RunImmediately)
	if !e.opts.RunImmediately {
		if !e.sleep(ctx, e.opts.Interval) {
			return ctx.Err()
		}
	}
	for {
		wait := e.tick(ctx)
		if ctx.Err() != nil {
			logger.Infof("LiveEngine: stopped")
			return ctx.Err()
		}
		logger.Debugf("LiveEngine: next cycle in %s", wait)
		if !e.sleep(ctx, wait) {
			logger.Infof("LiveEngine: stopped")
			return ctx.Err()
		}
	}
}

// tick runs one guarded cycle and returns how long to wait before the next.
func (e *LiveEngine) tick(ctx context.Context) time.Duration {
	start := e.now()
	var res CycleResult
	err := e.CircuitBreaker.Execute(func() error {
		var err error
		res, err = e.RunCycle(ctx)
		return err
	})
	switch {
	case errors.Is(err, circuit.ErrOpen):
		wait := max(e.CircuitBreaker.RetryAfter(), e.opts.Backoff)
		logger.Warnf("LiveEngine: circuit breaker %s, skipping cycle (retry in %s)", e.CircuitBreaker.State(), wait)
		return wait
	case ctx.Err() != nil:
		return 0
	case err != nil:
		logger.Errorf("LiveEngine: cycle %s failed: %v", res.TraceID, err)
		e.notifyFailure(res, err)
		return e.opts.Backoff
	}
	return scheduler.NextWait(e.opts.Interval, e.now().Sub(start))
}

// LastSnapshot returns the most recent market snapshot, if any.
func (e *LiveEngine) LastSnapshot() (market.Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastMarket, !e.lastMarket.At.IsZero()
}

// LastCycle returns the most recent cycle result, if any.
func (e *LiveEngine) LastCycle() (CycleResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastCycle == nil {
		return CycleResult{}, false
	}
	return *e.lastCycle, true
}

func (e *LiveEngine) CandleInterval() string { return e.opts.CandleInterval }
