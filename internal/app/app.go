package app

import (
	"context"
	"errors"
	"fmt"

	"cryptoprinter/internal/agent/engine"
	brcfg "cryptoprinter/internal/config"
	"cryptoprinter/internal/ledger"
	"cryptoprinter/internal/logger"
	livehttp "cryptoprinter/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动决策循环与 HTTP 服务。
type App struct {
	cfg        *brcfg.Config
	configPath string
	engine     *engine.LiveEngine
	ledger     *ledger.Ledger
	liveHTTP   *livehttp.Server
	closers    []func() error
	Summary    *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *brcfg.Config, configPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	a, err := buildAppWithWire(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	a.configPath = configPath
	return a, nil
}

// Run 启动决策循环与 HTTP 服务，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.engine == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()
	if a.Summary != nil {
		a.Summary.Print()
	}
	a.watchConfig()

	group, gctx := errgroup.WithContext(ctx)
	if a.liveHTTP != nil {
		group.Go(func() error {
			if err := a.liveHTTP.Start(gctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		err := a.engine.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return group.Wait()
}

// watchConfig applies log level edits without a restart. Everything else
// needs one.
func (a *App) watchConfig() {
	if a.configPath == "" {
		return
	}
	err := brcfg.Watch(a.configPath, func(next *brcfg.Config) {
		if next.App.LogLevel != a.cfg.App.LogLevel {
			logger.Infof("log level %s -> %s", a.cfg.App.LogLevel, next.App.LogLevel)
			logger.SetLevel(next.App.LogLevel)
			a.cfg.App.LogLevel = next.App.LogLevel
		}
	})
	if err != nil {
		logger.Warnf("config watch disabled: %v", err)
	}
}

// Close releases stores in reverse order of opening.
func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("close: %v", err)
		}
	}
	a.closers = nil
}

func (a *App) Engine() *engine.LiveEngine { return a.engine }
func (a *App) Ledger() *ledger.Ledger     { return a.ledger }
