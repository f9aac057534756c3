package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"cryptoprinter/internal/app"
	"cryptoprinter/internal/logger"

	"github.com/spf13/cobra"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the decision loop (and the status server when enabled)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := root.load()
			if err != nil {
				return err
			}
			logFile, err := setupLogOutput(cfg.App.LogPath)
			if err != nil {
				return fmt.Errorf("初始化日志文件失败: %w", err)
			}
			if logFile != nil {
				defer logFile.Close()
			}
			logger.SetLLMWriter(nil)
			llmFile, err := setupLLMLogOutput(cfg.App.LLMLog)
			if err != nil {
				return fmt.Errorf("初始化 LLM 日志失败: %w", err)
			}
			if llmFile != nil {
				defer llmFile.Close()
			}
			logger.EnableLLMPromptDump(cfg.App.LLMDump)
			logger.Infof("✓ 配置加载成功（环境=%s，config=%s）", cfg.App.Env, path)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.NewApp(cfg, path)
			if err != nil {
				return fmt.Errorf("初始化应用失败: %w", err)
			}
			if err := a.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("运行失败: %w", err)
			}
			logger.Infof("shutdown complete")
			return nil
		},
	}
}
