package config

import "strings"

const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppLogFormat      = "text"
	defaultAppLogPath        = "logs/trading_bot.log"
	defaultAppLLMLogPath     = "logs/llm.log"
	defaultMarketExchange    = "binance"
	defaultMarketREST        = "https://api.binance.com"
	defaultMarketQuote       = "USDT"
	defaultCandleInterval    = "15m"
	defaultCandleLimit       = 100
	defaultHistoryInterval   = "1h"
	defaultHistoryLimit      = 168
	defaultMarketConcurrency = 4
	defaultMarketTimeout     = 10
	defaultAIProvider        = "openai"
	defaultAIURL             = "https://api.openai.com/v1"
	defaultAIModel           = "gpt-4o-mini"
	defaultAITemperature     = 0.2
	defaultAITimeout         = 60
	defaultAIMaxRetries      = 2
	defaultAIMaxAttempts     = 3
	defaultAIRetryDelay      = 10
	defaultAIRecentTrades    = 10
	defaultNewsURL           = "https://newsapi.org/v2/everything"
	defaultNewsPerSymbol     = 3
	defaultNewsTimeout       = 10
	defaultNewsCacheSeconds  = 3600
	defaultLedgerMode        = "paper"
	defaultLedgerBackend     = "file"
	defaultLedgerPath        = "data/mock_portfolio_data.json"
	defaultLedgerSQLite      = "data/ledger.db"
	defaultLedgerBalance     = 10000
	defaultEngineInterval    = 900
	defaultEngineBackoff     = 10
	defaultEngineDecisionLog = "data/decisions.db"
	defaultCircuitThreshold  = 5
	defaultCircuitTimeout    = 1800
	defaultHTTPAddr          = ":9991"
)

var defaultSymbols = []string{"BTC", "ETH", "XRP", "SOL", "DOGE", "ADA", "AVAX", "LINK", "SHIB", "XLM", "XTZ"}

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.AI.applyDefaults(keys)
	c.News.applyDefaults(keys)
	c.Ledger.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.HTTP.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.llm_log_path", &a.LLMLog, defaultAppLLMLogPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.exchange", &m.Exchange, defaultMarketExchange),
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		stringFieldDefault("market.quote_asset", &m.QuoteAsset, defaultMarketQuote),
		stringFieldDefault("market.candle_interval", &m.CandleInterval, defaultCandleInterval),
		intFieldDefault("market.candle_limit", &m.CandleLimit, defaultCandleLimit),
		stringFieldDefault("market.history_interval", &m.HistoryInterval, defaultHistoryInterval),
		intFieldDefault("market.history_limit", &m.HistoryLimit, defaultHistoryLimit),
		intFieldDefault("market.concurrency", &m.Concurrency, defaultMarketConcurrency),
		intFieldDefault("market.timeout_seconds", &m.TimeoutSeconds, defaultMarketTimeout),
		fieldDefault{
			key:   "market.symbols",
			need:  func() bool { return len(m.Symbols) == 0 },
			apply: func() { m.Symbols = append([]string(nil), defaultSymbols...) },
		},
	)
	m.QuoteAsset = strings.ToUpper(strings.TrimSpace(m.QuoteAsset))
}

func (a *AIConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ai.provider", &a.Provider, defaultAIProvider),
		stringFieldDefault("ai.api_url", &a.APIURL, defaultAIURL),
		stringFieldDefault("ai.model", &a.Model, defaultAIModel),
		intFieldDefault("ai.timeout_seconds", &a.TimeoutSeconds, defaultAITimeout),
		intFieldDefault("ai.max_retries", &a.MaxRetries, defaultAIMaxRetries),
		intFieldDefault("ai.max_attempts", &a.MaxAttempts, defaultAIMaxAttempts),
		intFieldDefault("ai.retry_delay_seconds", &a.RetryDelaySeconds, defaultAIRetryDelay),
		intFieldDefault("ai.recent_trades", &a.RecentTrades, defaultAIRecentTrades),
		fieldDefault{
			key:   "ai.temperature",
			need:  func() bool { return a.Temperature <= 0 },
			apply: func() { a.Temperature = defaultAITemperature },
		},
	)
}

func (n *NewsConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("news.api_url", &n.APIURL, defaultNewsURL),
		intFieldDefault("news.per_symbol", &n.PerSymbol, defaultNewsPerSymbol),
		intFieldDefault("news.timeout_seconds", &n.TimeoutSeconds, defaultNewsTimeout),
		intFieldDefault("news.cache_seconds", &n.CacheSeconds, defaultNewsCacheSeconds),
	)
}

func (l *LedgerConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ledger.mode", &l.Mode, defaultLedgerMode),
		stringFieldDefault("ledger.backend", &l.Backend, defaultLedgerBackend),
		stringFieldDefault("ledger.path", &l.Path, defaultLedgerPath),
		stringFieldDefault("ledger.sqlite_path", &l.SQLitePath, defaultLedgerSQLite),
		fieldDefault{
			key:   "ledger.initial_balance",
			need:  func() bool { return l.InitialBalance <= 0 },
			apply: func() { l.InitialBalance = defaultLedgerBalance },
		},
	)
	l.Mode = strings.ToLower(strings.TrimSpace(l.Mode))
	l.Backend = strings.ToLower(strings.TrimSpace(l.Backend))
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("engine.interval_seconds", &e.IntervalSeconds, defaultEngineInterval),
		intFieldDefault("engine.backoff_seconds", &e.BackoffSeconds, defaultEngineBackoff),
		stringFieldDefault("engine.decision_log_path", &e.DecisionLogPath, defaultEngineDecisionLog),
		intFieldDefault("engine.circuit_threshold", &e.CircuitThreshold, defaultCircuitThreshold),
		intFieldDefault("engine.circuit_timeout_seconds", &e.CircuitTimeoutSeconds, defaultCircuitTimeout),
		boolFieldDefault("engine.run_immediately", &e.RunImmediately, true),
	)
}

func (h *HTTPConfig) applyDefaults(keys keySet) {
	if h == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("http.addr", &h.Addr, defaultHTTPAddr),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
