package config

import (
	"fmt"
	"strings"

	"cryptoprinter/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChangeListener receives the freshly loaded config after the file changes.
type ChangeListener func(*Config)

// Watch reloads path whenever it changes on disk and hands valid results to
// fn. Invalid edits are logged and ignored so the running config survives.
func Watch(path string, fn ChangeListener) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config watch requires path")
	}
	if fn == nil {
		return fmt.Errorf("config watch requires listener")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config for watch failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(path)
		if err != nil {
			logger.Errorf("config reload failed: %v", err)
			return
		}
		logger.Infof("config reloaded: %s", evt.Name)
		fn(cfg)
	})
	v.WatchConfig()
	return nil
}
