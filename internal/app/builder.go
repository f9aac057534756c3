package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cryptoprinter/internal/advisor"
	"cryptoprinter/internal/agent/engine"
	"cryptoprinter/internal/agent/interfaces"
	brcfg "cryptoprinter/internal/config"
	"cryptoprinter/internal/decision"
	"cryptoprinter/internal/executor"
	"cryptoprinter/internal/gateway/binance"
	"cryptoprinter/internal/gateway/eventbus"
	"cryptoprinter/internal/gateway/newsapi"
	"cryptoprinter/internal/gateway/notifier"
	"cryptoprinter/internal/gateway/provider"
	"cryptoprinter/internal/logger"
	"cryptoprinter/internal/market"
	"cryptoprinter/internal/store/decisionlog"
	livehttp "cryptoprinter/internal/transport/http/live"

	"github.com/shopspring/decimal"
)

type AppBuilder struct {
	cfg *brcfg.Config

	marketSourceFn func(brcfg.MarketConfig) (market.Source, error)
	providerFn     func(brcfg.AIConfig) (provider.ModelProvider, error)
	ledgerStoreFn  func(context.Context, brcfg.LedgerConfig) (LedgerStore, error)
	notifierFn     func(brcfg.NotifyConfig) notifier.TextNotifier
	brokerFn       func(context.Context, brcfg.Config) (LiveBroker, error)
}

// LiveBroker is an exchange account that stands in for the paper ledger.
type LiveBroker interface {
	executor.Ledger
	executor.Syncer
	livehttp.PortfolioReader
}

type AppBuilderOption func(*AppBuilder)

// WithMarketSource replaces the exchange client, e.g. with a fake in tests.
func WithMarketSource(src market.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.marketSourceFn = func(brcfg.MarketConfig) (market.Source, error) { return src, nil }
	}
}

// WithModelProvider replaces the LLM client.
func WithModelProvider(p provider.ModelProvider) AppBuilderOption {
	return func(b *AppBuilder) {
		b.providerFn = func(brcfg.AIConfig) (provider.ModelProvider, error) { return p, nil }
	}
}

// WithLiveBroker replaces the exchange account used in live mode.
func WithLiveBroker(broker LiveBroker) AppBuilderOption {
	return func(b *AppBuilder) {
		b.brokerFn = func(context.Context, brcfg.Config) (LiveBroker, error) { return broker, nil }
	}
}

func NewAppBuilder(cfg *brcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:            cfg,
		marketSourceFn: buildMarketSource,
		providerFn:     buildModelProvider,
		ledgerStoreFn:  OpenLedgerStore,
		notifierFn:     newTelegram,
		brokerFn:       buildBroker,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (a *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	a = &App{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := b.ledgerStoreFn(ctx, cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("ledger store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	book, err := OpenLedger(ctx, cfg.Ledger, store)
	if err != nil {
		return nil, err
	}
	a.ledger = book
	logger.Infof("✓ ledger loaded backend=%s balance=%s positions=%d open_orders=%d",
		cfg.Ledger.Backend, book.Balance().StringFixed(2), len(book.Positions()), len(book.OpenOrders()))

	var (
		trader    executor.Ledger          = book
		portfolio livehttp.PortfolioReader = book
	)
	if cfg.Ledger.IsLive() {
		broker, err := b.brokerFn(ctx, *cfg)
		if err != nil {
			return nil, fmt.Errorf("live broker: %w", err)
		}
		trader, portfolio = broker, broker
		logger.Infof("✓ live trading on %s available=%s open_orders=%d",
			cfg.Market.Exchange, broker.Available().StringFixed(2), len(broker.OpenOrders()))
	}

	src, err := b.marketSourceFn(cfg.Market)
	if err != nil {
		return nil, fmt.Errorf("market source: %w", err)
	}
	a.closers = append(a.closers, src.Close)
	symbols := cfg.Market.SymbolsUpper()
	collector := market.NewCollector(src, market.CollectorOptions{
		Symbols:         symbols,
		CandleInterval:  cfg.Market.CandleInterval,
		CandleLimit:     cfg.Market.CandleLimit,
		HistoryInterval: cfg.Market.HistoryInterval,
		HistoryLimit:    cfg.Market.HistoryLimit,
		Concurrency:     cfg.Market.Concurrency,
	})

	var news interfaces.NewsService
	if cfg.News.Enabled {
		client, err := newsapi.NewClient(newsapi.Config{
			Endpoint:  cfg.News.APIURL,
			APIKey:    cfg.News.APIKey,
			PerSymbol: cfg.News.PerSymbol,
			Timeout:   time.Duration(cfg.News.TimeoutSeconds) * time.Second,
			CacheTTL:  cfg.News.CacheTTL(),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		news = client
	}

	mp, err := b.providerFn(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("model provider: %w", err)
	}
	tpl, err := advisor.LoadTemplates(cfg.AI.PromptsPath)
	if err != nil {
		return nil, err
	}
	adv, err := advisor.New(mp, tpl, advisor.Options{
		Symbols:        symbols,
		InitialBalance: decimal.NewFromFloat(cfg.Ledger.InitialBalance),
		Interval:       cfg.Engine.Interval(),
		RecentTrades:   cfg.AI.RecentTrades,
	})
	if err != nil {
		return nil, err
	}

	var tg notifier.TextNotifier
	if b.notifierFn != nil {
		tg = b.notifierFn(cfg.Notify)
	}
	dispOpts := []executor.Option{}
	if tg != nil {
		dispOpts = append(dispOpts, executor.WithNotifier(tg))
	}
	if cfg.Notify.Kafka.Enabled {
		pub, err := eventbus.NewKafkaPublisher(eventbus.Config{
			Brokers:      cfg.Notify.Kafka.Brokers,
			Topic:        cfg.Notify.Kafka.Topic,
			WriteTimeout: time.Duration(cfg.Notify.Kafka.WriteTimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		dispOpts = append(dispOpts, executor.WithPublisher(pub))
	}
	dispatcher := executor.New(trader, src, dispOpts...)

	var cycleLog *decisionlog.DecisionLogStore
	if p := strings.TrimSpace(cfg.Engine.DecisionLogPath); p != "" {
		cycleLog, err = decisionlog.NewDecisionLogStore(p)
		if err != nil {
			return nil, fmt.Errorf("decision log: %w", err)
		}
		a.closers = append(a.closers, cycleLog.Close)
	}

	params := engine.EngineParams{
		Market:     collector,
		Advisor:    adv,
		Parser:     decision.NewParser(symbols),
		Portfolio:  portfolio,
		Dispatcher: dispatcher,
		Notifier:   tg,
		Options: engine.Options{
			Interval:         cfg.Engine.Interval(),
			Backoff:          cfg.Engine.Backoff(),
			RunImmediately:   cfg.Engine.RunImmediately,
			CandleInterval:   cfg.Market.CandleInterval,
			MaxAttempts:      cfg.AI.MaxAttempts,
			RetryDelay:       cfg.AI.RetryDelay(),
			CircuitThreshold: cfg.Engine.CircuitThreshold,
			CircuitTimeout:   cfg.Engine.CircuitTimeout(),
		},
	}
	// typed nils must not reach the engine's nil checks
	if news != nil {
		params.News = news
	}
	if cycleLog != nil {
		params.DecisionLog = cycleLog
	}
	eng, err := engine.NewLiveEngine(params)
	if err != nil {
		return nil, err
	}
	a.engine = eng

	if cfg.HTTP.Enabled {
		srvCfg := livehttp.ServerConfig{
			Addr:     cfg.HTTP.Addr,
			Ledger:   portfolio,
			Market:   eng,
			LogPaths: map[string]string{},
		}
		if cycleLog != nil {
			srvCfg.Logs = cycleLog
		}
		if p := strings.TrimSpace(cfg.App.LogPath); p != "" {
			srvCfg.LogPaths["app"] = p
		}
		if p := strings.TrimSpace(cfg.App.LLMLog); p != "" {
			srvCfg.LogPaths["llm"] = p
		}
		a.liveHTTP, err = livehttp.NewServer(srvCfg)
		if err != nil {
			return nil, err
		}
	}

	a.Summary = newStartupSummary(cfg, mp, book)
	return a, nil
}

func buildMarketSource(cfg brcfg.MarketConfig) (market.Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Exchange)) {
	case "", "binance":
	default:
		return nil, fmt.Errorf("unsupported exchange %q", cfg.Exchange)
	}
	src, err := binance.New(binance.Config{
		RESTBaseURL: cfg.RESTBaseURL,
		HTTPTimeout: cfg.Timeout(),
		QuoteAsset:  cfg.QuoteAsset,
		APIKey:      cfg.APIKey,
		APISecret:   cfg.APISecret,
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// buildBroker opens the exchange account and pulls its state once, so bad
// credentials fail at startup rather than on the first order.
func buildBroker(ctx context.Context, cfg brcfg.Config) (LiveBroker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Market.Exchange)) {
	case "", "binance":
	default:
		return nil, fmt.Errorf("live trading is not supported on %q", cfg.Market.Exchange)
	}
	broker, err := binance.NewBroker(binance.Config{
		RESTBaseURL: cfg.Market.RESTBaseURL,
		HTTPTimeout: cfg.Market.Timeout(),
		QuoteAsset:  cfg.Market.QuoteAsset,
		APIKey:      cfg.Market.APIKey,
		APISecret:   cfg.Market.APISecret,
	}, cfg.Ledger.MaxHistory)
	if err != nil {
		return nil, err
	}
	if err := broker.Sync(ctx); err != nil {
		return nil, err
	}
	return broker, nil
}

func buildModelProvider(cfg brcfg.AIConfig) (provider.ModelProvider, error) {
	return provider.BuildProvider(provider.ModelCfg{
		Provider:    cfg.Provider,
		APIURL:      cfg.APIURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxRetries:  cfg.MaxRetries,
		Headers:     cfg.Headers,
	}, cfg.Timeout())
}

func newTelegram(cfg brcfg.NotifyConfig) notifier.TextNotifier {
	if !cfg.Telegram.Enabled {
		return nil
	}
	return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
}
