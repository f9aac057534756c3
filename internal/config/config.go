package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvConfigPath names the variable consulted when no --config flag is given.
const EnvConfigPath = "CRYPTOPRINTER_CONFIG"

// DefaultConfigPath is used when neither the flag nor EnvConfigPath is set.
const DefaultConfigPath = "configs/config.yaml"

// ResolvePath picks the config file: explicit flag, then environment, then default.
func ResolvePath(flagPath string) string {
	if p := strings.TrimSpace(flagPath); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultConfigPath
}

// Load reads path (plus any include: files), applies defaults and
// environment secrets, then validates the result.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	files, err := includeOrder(abs, map[string]bool{}, map[string]bool{})
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		part, err := readFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
		if err := v.MergeConfigMap(part.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging config file failed (%s): %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	for _, key := range v.AllKeys() {
		setKeys.mark(key)
	}
	cfg.applyDefaults(setKeys)
	if err := cfg.applyEnv(nil); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}

// includeOrder returns path and its includes depth first, includes before
// the file that names them, so later files override earlier ones.
func includeOrder(path string, done, visiting map[string]bool) ([]string, error) {
	path = filepath.Clean(path)
	switch {
	case visiting[path]:
		return nil, fmt.Errorf("include cycle detected: %s", path)
	case done[path]:
		return nil, nil
	}
	visiting[path] = true
	v, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	var ordered []string
	for _, inc := range v.GetStringSlice("include") {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		sub, err := includeOrder(inc, done, visiting)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, sub...)
	}
	delete(visiting, path)
	done[path] = true
	return append(ordered, path), nil
}

// secrets never have to live in the yaml file; non-empty variables win.
type secrets struct {
	OpenAIKey     string `env:"OPENAI_API_KEY"`
	NewsKey       string `env:"NEWSAPI_KEY"`
	BinanceKey    string `env:"BINANCE_API_KEY"`
	BinanceSecret string `env:"BINANCE_API_SECRET"`
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChat  string `env:"TELEGRAM_CHAT_ID"`
	PostgresDSN   string `env:"CRYPTOPRINTER_PG_DSN"`
}

// applyEnv overlays secrets from environ, or from the process environment
// when environ is nil.
func (c *Config) applyEnv(environ map[string]string) error {
	var s secrets
	if err := env.ParseWithOptions(&s, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("reading environment failed: %w", err)
	}
	for _, o := range []struct {
		dst *string
		val string
	}{
		{&c.AI.APIKey, s.OpenAIKey},
		{&c.News.APIKey, s.NewsKey},
		{&c.Market.APIKey, s.BinanceKey},
		{&c.Market.APISecret, s.BinanceSecret},
		{&c.Notify.Telegram.BotToken, s.TelegramToken},
		{&c.Notify.Telegram.ChatID, s.TelegramChat},
		{&c.Ledger.PostgresDSN, s.PostgresDSN},
	} {
		if v := strings.TrimSpace(o.val); v != "" {
			*o.dst = v
		}
	}
	return nil
}
