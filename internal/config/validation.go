package config

import (
	"fmt"
	"strings"

	"cryptoprinter/internal/scheduler"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.AI.validate(); err != nil {
		return err
	}
	if err := c.News.validate(); err != nil {
		return err
	}
	if err := c.Ledger.validate(); err != nil {
		return err
	}
	if c.Ledger.IsLive() && (strings.TrimSpace(c.Market.APIKey) == "" || strings.TrimSpace(c.Market.APISecret) == "") {
		return fmt.Errorf("ledger.mode live needs market.api_key and market.api_secret")
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if c.HTTP.Enabled && strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("http.addr cannot be empty when http is enabled")
	}
	switch strings.ToLower(c.App.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text or json, got %s", c.App.LogFormat)
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if strings.ToLower(strings.TrimSpace(m.Exchange)) != "binance" {
		return fmt.Errorf("market.exchange only supports 'binance', got %s", m.Exchange)
	}
	if strings.TrimSpace(m.RESTBaseURL) == "" {
		return fmt.Errorf("market.rest_base_url cannot be empty")
	}
	if len(m.SymbolsUpper()) == 0 {
		return fmt.Errorf("market.symbols requires at least one symbol")
	}
	if !IsValidInterval(m.CandleInterval) {
		return fmt.Errorf("market.candle_interval is invalid: %s", m.CandleInterval)
	}
	if m.CandleLimit < 30 || m.CandleLimit > 1000 {
		return fmt.Errorf("market.candle_limit must be in [30,1000]")
	}
	if !IsValidInterval(m.HistoryInterval) {
		return fmt.Errorf("market.history_interval is invalid: %s", m.HistoryInterval)
	}
	if m.HistoryLimit < 0 || m.HistoryLimit > 1000 {
		return fmt.Errorf("market.history_limit must be in [0,1000]")
	}
	return nil
}

func (a *AIConfig) validate() error {
	if strings.TrimSpace(a.Model) == "" {
		return fmt.Errorf("ai.model cannot be empty")
	}
	if strings.TrimSpace(a.APIURL) == "" {
		return fmt.Errorf("ai.api_url cannot be empty")
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		return fmt.Errorf("ai.temperature must be in [0,2]")
	}
	if a.MaxRetries < 0 {
		return fmt.Errorf("ai.max_retries must be >= 0")
	}
	if a.MaxAttempts < 1 {
		return fmt.Errorf("ai.max_attempts must be >= 1")
	}
	if a.RecentTrades < 0 {
		return fmt.Errorf("ai.recent_trades must be >= 0")
	}
	return nil
}

func (n *NewsConfig) validate() error {
	if !n.Enabled {
		return nil
	}
	if strings.TrimSpace(n.APIKey) == "" {
		return fmt.Errorf("news enabled but missing api_key (set NEWSAPI_KEY)")
	}
	if n.PerSymbol <= 0 {
		return fmt.Errorf("news.per_symbol must be > 0")
	}
	return nil
}

func (l *LedgerConfig) validate() error {
	switch l.Mode {
	case "paper", "live":
	default:
		return fmt.Errorf("ledger.mode must be paper or live, got %s", l.Mode)
	}
	switch l.Backend {
	case "file":
		if strings.TrimSpace(l.Path) == "" {
			return fmt.Errorf("ledger.path cannot be empty for file backend")
		}
	case "sqlite":
		if strings.TrimSpace(l.SQLitePath) == "" {
			return fmt.Errorf("ledger.sqlite_path cannot be empty for sqlite backend")
		}
	case "postgres":
		if strings.TrimSpace(l.PostgresDSN) == "" {
			return fmt.Errorf("ledger.postgres_dsn cannot be empty for postgres backend")
		}
	default:
		return fmt.Errorf("ledger.backend must be file, sqlite or postgres, got %s", l.Backend)
	}
	if l.InitialBalance <= 0 {
		return fmt.Errorf("ledger.initial_balance must be > 0")
	}
	if l.MaxHistory < 0 {
		return fmt.Errorf("ledger.max_history must be >= 0")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.IntervalSeconds < 1 {
		return fmt.Errorf("engine.interval_seconds must be >= 1")
	}
	if e.BackoffSeconds < 1 {
		return fmt.Errorf("engine.backoff_seconds must be >= 1")
	}
	if e.CircuitThreshold < 1 {
		return fmt.Errorf("engine.circuit_threshold must be >= 1")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	if n.Kafka.Enabled {
		if len(n.Kafka.Brokers) == 0 || strings.TrimSpace(n.Kafka.Topic) == "" {
			return fmt.Errorf("kafka notification enabled but missing brokers or topic")
		}
		if n.Kafka.WriteTimeoutSeconds < 0 {
			return fmt.Errorf("notify.kafka.write_timeout_seconds must be >= 0")
		}
	}
	return nil
}

// IsValidInterval 校验交易所周期写法，如 15m / 4h / 1d。
func IsValidInterval(s string) bool {
	_, ok := scheduler.ParseIntervalDuration(s)
	return ok
}
