package interfaces

import (
	"context"

	"cryptoprinter/internal/advisor"
	"cryptoprinter/internal/gateway/newsapi"
	"cryptoprinter/internal/market"
)

// MarketService gathers the per-cycle market picture.
type MarketService interface {
	// Symbols returns the configured tickers in order.
	Symbols() []string

	// Collect fetches quotes and candles for every symbol. It only fails when
	// no symbol could be fetched.
	Collect(ctx context.Context) (market.Snapshot, error)
}

// NewsService returns recent headlines per symbol. Missing symbols mean no news.
type NewsService interface {
	Headlines(ctx context.Context, symbols []string) map[string][]newsapi.Headline
}

// Advisor renders prompts and asks the model for commands.
type Advisor interface {
	ProviderID() string
	Model() string
	RecentTrades() int

	Build(in advisor.Input) (advisor.Prompt, error)
	Ask(ctx context.Context, traceID string, attempt int, p advisor.Prompt) (string, error)
}
