package engine

import (
	"context"
	"fmt"
	"time"

	"cryptoprinter/internal/advisor"
	"cryptoprinter/internal/agent/interfaces"
	"cryptoprinter/internal/analysis/indicator"
	"cryptoprinter/internal/decision"
	"cryptoprinter/internal/executor"
	"cryptoprinter/internal/gateway/newsapi"
	"cryptoprinter/internal/logger"
	"cryptoprinter/internal/market"
	"cryptoprinter/internal/metrics"
	"cryptoprinter/internal/store/decisionlog"

	"github.com/google/uuid"
)

// CycleResult is what one decision cycle saw and did.
type CycleResult struct {
	TraceID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Symbols    []string
	Prompt     advisor.Prompt
	Attempts   int
	Raw        string
	Parsed     decision.ParseResult
	Resolve    executor.ResolveReport
	Report     executor.Report
	Err        error
}

// RunCycle collects inputs, asks the advisor, settles resting orders and
// dispatches the parsed commands. Market or advisor failures abort the
// cycle before anything touches the ledger.
func (e *LiveEngine) RunCycle(ctx context.Context) (res CycleResult, err error) {
	res = CycleResult{TraceID: uuid.NewString(), StartedAt: e.now()}
	defer func() {
		res.Err = err
		res.FinishedAt = e.now()
		e.finish(ctx, res)
	}()

	logger.Infof("LiveEngine: cycle start trace=%s", res.TraceID)
	snap, err := e.market.Collect(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: market: %v", interfaces.ErrCollaboratorUnavailable, err)
	}
	e.mu.Lock()
	e.lastMarket = snap
	e.mu.Unlock()

	avail := snap.Available()
	for _, d := range avail {
		res.Symbols = append(res.Symbols, d.Symbol)
	}
	for _, d := range snap.Failed() {
		logger.Warnf("LiveEngine: %s unavailable this cycle: %v", d.Symbol, d.Err)
	}

	portfolio := e.portfolio.Snapshot()
	in := advisor.Input{
		Now:          res.StartedAt,
		Market:       snap,
		Indicators:   e.indicators(avail),
		News:         e.headlines(ctx, res.Symbols),
		Portfolio:    portfolio,
		RecentTrades: e.portfolio.RecentTrades(e.advisor.RecentTrades()),
	}
	res.Prompt, err = e.advisor.Build(in)
	if err != nil {
		return res, fmt.Errorf("build prompt: %w", err)
	}

	res.Raw, res.Parsed, res.Attempts, err = e.ask(ctx, res.TraceID, res.Prompt)
	if err != nil {
		return res, err
	}

	res.Resolve = e.dispatcher.ResolveOpenOrders(ctx)
	if res.Resolve.Checked > 0 {
		logger.Infof("LiveEngine: open orders %s", res.Resolve)
	}
	res.Report = e.dispatcher.Dispatch(ctx, res.Parsed.Commands)
	logger.Infof("LiveEngine: cycle end trace=%s commands=%d %s duration=%s",
		res.TraceID, len(res.Parsed.Commands), res.Report, e.now().Sub(res.StartedAt))
	return res, nil
}

// ask queries the advisor until a reply contains at least one recognised
// command or MaxAttempts is used up. A reply without commands after the last
// attempt is not an error; the cycle simply trades nothing. Only when every
// attempt failed to reach the model does the cycle fail.
func (e *LiveEngine) ask(ctx context.Context, traceID string, p advisor.Prompt) (string, decision.ParseResult, int, error) {
	var (
		raw     string
		parsed  decision.ParseResult
		lastErr error
		replied bool
	)
	attempt := 0
	for attempt < e.opts.MaxAttempts {
		attempt++
		out, err := e.advisor.Ask(ctx, traceID, attempt, p)
		if err != nil {
			lastErr = err
			logger.Warnf("LiveEngine: advisor attempt %d/%d failed trace=%s: %v", attempt, e.opts.MaxAttempts, traceID, err)
		} else {
			replied = true
			raw = out
			parsed = e.parser.Parse(out)
			for _, is := range parsed.Issues {
				logger.Warnf("LiveEngine: rejected command trace=%s %s", traceID, is.Error())
			}
			if parsed.HasCommands() {
				return raw, parsed, attempt, nil
			}
			logger.Warnf("LiveEngine: advisor reply has no command, attempt %d/%d trace=%s", attempt, e.opts.MaxAttempts, traceID)
		}
		if attempt < e.opts.MaxAttempts && !e.sleep(ctx, e.opts.RetryDelay) {
			return raw, parsed, attempt, ctx.Err()
		}
	}
	if !replied {
		return raw, parsed, attempt, fmt.Errorf("%w: advisor: %v", interfaces.ErrCollaboratorUnavailable, lastErr)
	}
	return raw, parsed, attempt, nil
}

func (e *LiveEngine) indicators(avail []market.SymbolData) map[string]indicator.Report {
	out := make(map[string]indicator.Report, len(avail))
	for _, d := range avail {
		if len(d.Candles) == 0 {
			continue
		}
		rep, err := indicator.Compute(d.Symbol, e.opts.CandleInterval, d.Candles)
		if err != nil {
			logger.Warnf("LiveEngine: indicators %s: %v", d.Symbol, err)
			continue
		}
		out[d.Symbol] = rep
	}
	return out
}

func (e *LiveEngine) headlines(ctx context.Context, symbols []string) map[string][]newsapi.Headline {
	if e.news == nil || len(symbols) == 0 {
		return nil
	}
	return e.news.Headlines(ctx, symbols)
}

// finish records metrics and the decision log row.
func (e *LiveEngine) finish(ctx context.Context, res CycleResult) {
	result := "ok"
	if res.Err != nil {
		result = "failed"
	}
	metrics.CyclesTotal.WithLabelValues(result).Inc()
	metrics.CycleDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	if res.Attempts > 0 {
		metrics.AdvisorAttempts.Observe(float64(res.Attempts))
	}
	metrics.ParseIssuesTotal.Add(float64(len(res.Parsed.Issues)))

	snap := e.portfolio.Snapshot()
	metrics.CashBalance.Set(snap.Balance.InexactFloat64())
	metrics.ReservedCash.Set(snap.Reserved.InexactFloat64())
	open := 0
	for _, o := range snap.OpenOrders {
		if o.IsOpen() {
			open++
		}
	}
	metrics.OpenOrders.Set(float64(open))

	e.mu.Lock()
	r := res
	e.lastCycle = &r
	e.mu.Unlock()

	if e.decisionLog == nil {
		return
	}
	rec := decisionlog.CycleRecord{
		TraceID:    res.TraceID,
		StartedAt:  res.StartedAt.UnixMilli(),
		FinishedAt: res.FinishedAt.UnixMilli(),
		ProviderID: e.advisor.ProviderID(),
		Model:      e.advisor.Model(),
		Attempts:   res.Attempts,
		SystemLen:  len(res.Prompt.System),
		UserPrompt: res.Prompt.User,
		RawOutput:  res.Raw,
		Commands:   res.Parsed.Strings(),
		Issues:     res.Parsed.IssueStrings(),
		Symbols:    res.Symbols,
		Attempted:  res.Report.Attempted,
		Succeeded:  res.Report.Succeeded,
		Failed:     res.Report.Failed,
		Resolved:   res.Resolve.Filled,
		Balance:    snap.Balance.StringFixed(2),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if n := len(res.Parsed.Commands) - len(res.Parsed.Actionable()); n > 0 && res.Report.Attempted == 0 {
		rec.Note = "do_nothing"
	}
	// the cycle ctx may already be cancelled; the row should still land
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := e.decisionLog.Insert(logCtx, rec); err != nil {
		logger.Warnf("LiveEngine: decision log insert trace=%s: %v", res.TraceID, err)
	}
}
