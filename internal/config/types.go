package config

import (
	"strings"
	"time"
)

// Config is the root configuration document.
type Config struct {
	App    AppConfig    `toml:"app"`
	Market MarketConfig `toml:"market"`
	AI     AIConfig     `toml:"ai"`
	News   NewsConfig   `toml:"news"`
	Ledger LedgerConfig `toml:"ledger"`
	Engine EngineConfig `toml:"engine"`
	HTTP   HTTPConfig   `toml:"http"`
	Notify NotifyConfig `toml:"notify"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogPath   string `toml:"log_path"`
	LLMLog    string `toml:"llm_log_path"`
	LLMDump   bool   `toml:"llm_dump_prompt"`
}

// MarketConfig describes where tickers and candles come from.
type MarketConfig struct {
	Exchange        string   `toml:"exchange"`
	RESTBaseURL     string   `toml:"rest_base_url"`
	APIKey          string   `toml:"api_key"`
	APISecret       string   `toml:"api_secret"`
	QuoteAsset      string   `toml:"quote_asset"`
	Symbols         []string `toml:"symbols"`
	CandleInterval  string   `toml:"candle_interval"`
	CandleLimit     int      `toml:"candle_limit"`
	HistoryInterval string   `toml:"history_interval"`
	HistoryLimit    int      `toml:"history_limit"`
	Concurrency     int      `toml:"concurrency"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
}

func (m MarketConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// SymbolsUpper returns the configured tickers, upper-cased and de-duplicated.
func (m MarketConfig) SymbolsUpper() []string {
	out := make([]string, 0, len(m.Symbols))
	seen := make(map[string]bool, len(m.Symbols))
	for _, s := range m.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// AIConfig configures the advisor model.
type AIConfig struct {
	Provider          string            `toml:"provider"`
	APIURL            string            `toml:"api_url"`
	APIKey            string            `toml:"api_key"`
	Model             string            `toml:"model"`
	Temperature       float64           `toml:"temperature"`
	TimeoutSeconds    int               `toml:"timeout_seconds"`
	MaxRetries        int               `toml:"max_retries"`
	MaxAttempts       int               `toml:"max_attempts"`
	RetryDelaySeconds int               `toml:"retry_delay_seconds"`
	PromptsPath       string            `toml:"prompts_path"`
	RecentTrades      int               `toml:"recent_trades"`
	Headers           map[string]string `toml:"headers"`
}

func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func (a AIConfig) RetryDelay() time.Duration {
	return time.Duration(a.RetryDelaySeconds) * time.Second
}

type NewsConfig struct {
	Enabled        bool   `toml:"enabled"`
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	PerSymbol      int    `toml:"per_symbol"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	CacheSeconds   int    `toml:"cache_seconds"`
}

func (n NewsConfig) CacheTTL() time.Duration {
	return time.Duration(n.CacheSeconds) * time.Second
}

// LedgerConfig selects the simulated ledger backend.
type LedgerConfig struct {
	Mode           string  `toml:"mode"`    // "paper" | "live"
	Backend        string  `toml:"backend"` // "file" | "sqlite" | "postgres"
	Path           string  `toml:"path"`
	SQLitePath     string  `toml:"sqlite_path"`
	PostgresDSN    string  `toml:"postgres_dsn"`
	InitialBalance float64 `toml:"initial_balance"`
	MaxHistory     int     `toml:"max_history"` // 0 keeps everything
}

// IsLive reports whether orders go to the exchange account.
func (l LedgerConfig) IsLive() bool { return l.Mode == "live" }

// EngineConfig controls the decision cycle.
type EngineConfig struct {
	IntervalSeconds       int    `toml:"interval_seconds"`
	BackoffSeconds        int    `toml:"backoff_seconds"`
	RunImmediately        bool   `toml:"run_immediately"`
	DecisionLogPath       string `toml:"decision_log_path"`
	CircuitThreshold      int    `toml:"circuit_threshold"`
	CircuitTimeoutSeconds int    `toml:"circuit_timeout_seconds"`
}

func (e EngineConfig) Interval() time.Duration {
	return time.Duration(e.IntervalSeconds) * time.Second
}

func (e EngineConfig) Backoff() time.Duration {
	return time.Duration(e.BackoffSeconds) * time.Second
}

func (e EngineConfig) CircuitTimeout() time.Duration {
	return time.Duration(e.CircuitTimeoutSeconds) * time.Second
}

type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
	Kafka    KafkaConfig    `toml:"kafka"`
}

// KafkaConfig 将成交事件写入 Kafka topic。
type KafkaConfig struct {
	Enabled             bool     `toml:"enabled"`
	Brokers             []string `toml:"brokers"`
	Topic               string   `toml:"topic"`
	WriteTimeoutSeconds int      `toml:"write_timeout_seconds"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
