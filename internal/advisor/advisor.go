package advisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cryptoprinter/internal/gateway/provider"
	"cryptoprinter/internal/logger"

	"github.com/shopspring/decimal"
)

type Options struct {
	Symbols        []string
	InitialBalance decimal.Decimal
	Interval       time.Duration
	// RecentTrades is how many past fills the prompt carries.
	RecentTrades int
}

// Advisor builds prompts from a cycle's data and asks the model.
type Advisor struct {
	provider provider.ModelProvider
	tpl      *Templates
	opts     Options
}

func New(p provider.ModelProvider, tpl *Templates, opts Options) (*Advisor, error) {
	if p == nil {
		return nil, fmt.Errorf("advisor requires a model provider")
	}
	if tpl == nil {
		var err error
		if tpl, err = LoadTemplates(""); err != nil {
			return nil, err
		}
	}
	if opts.RecentTrades <= 0 {
		opts.RecentTrades = 10
	}
	return &Advisor{provider: p, tpl: tpl, opts: opts}, nil
}

func (a *Advisor) ProviderID() string { return a.provider.ID() }
func (a *Advisor) Model() string      { return a.provider.Model() }
func (a *Advisor) RecentTrades() int  { return a.opts.RecentTrades }

// Build renders the system prompt (rules + data) and the user prompt
// (command grammar).
func (a *Advisor) Build(in Input) (Prompt, error) {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	interval := "15 minutes"
	if a.opts.Interval > 0 {
		interval = a.opts.Interval.String()
	}
	system, err := a.tpl.renderSystem(systemVars{
		Now:            now.UTC().Format(time.RFC3339),
		Symbols:        a.opts.Symbols,
		InitialBalance: a.opts.InitialBalance.StringFixed(2),
		Interval:       interval,
	})
	if err != nil {
		return Prompt{}, fmt.Errorf("render system prompt: %w", err)
	}
	data, err := renderData(in)
	if err != nil {
		return Prompt{}, err
	}
	user, err := a.tpl.renderUser()
	if err != nil {
		return Prompt{}, fmt.Errorf("render user prompt: %w", err)
	}
	return Prompt{System: strings.TrimRight(system, "\n") + "\n\n" + data, User: user}, nil
}

// Ask sends one prompt. attempt is only used to label the LLM transcript.
func (a *Advisor) Ask(ctx context.Context, traceID string, attempt int, p Prompt) (string, error) {
	logger.LogLLMRequest(a.provider.ID(), traceID, attempt, p.System, p.User)
	start := time.Now()
	raw, err := a.provider.Call(ctx, provider.ChatPayload{System: p.System, User: p.User})
	if err != nil {
		logger.Errorf("advisor: %s attempt %d failed after %s: %v", a.provider.ID(), attempt, time.Since(start).Truncate(time.Millisecond), err)
		return "", err
	}
	logger.LogLLMResponse(a.provider.ID(), traceID, attempt, raw)
	logger.Infof("advisor: %s attempt %d answered in %s (%d bytes)", a.provider.ID(), attempt, time.Since(start).Truncate(time.Millisecond), len(raw))
	return raw, nil
}
