package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	brcfg "cryptoprinter/internal/config"
	"cryptoprinter/internal/gateway/provider"
	"cryptoprinter/internal/ledger"

	"github.com/jackc/pgx/v5"
)

type StartupSummary struct {
	Market MarketSummary
	Model  ModelSummary
	Ledger LedgerSummary
	Engine EngineSummary
	HTTP   string
	Notify string
	out    io.Writer
}

type MarketSummary struct {
	Exchange       string
	Symbols        []string
	CandleInterval string
	CandleLimit    int
	News           bool
}

type ModelSummary struct {
	ProviderID  string
	Model       string
	MaxAttempts int
}

type LedgerSummary struct {
	Mode       string
	Backend    string
	Location   string
	Balance    string
	Positions  int
	OpenOrders int
}

type EngineSummary struct {
	Interval    string
	Backoff     string
	DecisionLog string
}

func newStartupSummary(cfg *brcfg.Config, mp provider.ModelProvider, book *ledger.Ledger) *StartupSummary {
	s := &StartupSummary{
		Market: MarketSummary{
			Exchange:       cfg.Market.Exchange,
			Symbols:        cfg.Market.SymbolsUpper(),
			CandleInterval: cfg.Market.CandleInterval,
			CandleLimit:    cfg.Market.CandleLimit,
			News:           cfg.News.Enabled,
		},
		Model: ModelSummary{ProviderID: mp.ID(), Model: mp.Model(), MaxAttempts: cfg.AI.MaxAttempts},
		Ledger: LedgerSummary{
			Mode:       cfg.Ledger.Mode,
			Backend:    cfg.Ledger.Backend,
			Location:   cfg.Ledger.Path,
			Balance:    book.Balance().StringFixed(2),
			Positions:  len(book.Positions()),
			OpenOrders: len(book.OpenOrders()),
		},
		Engine: EngineSummary{
			Interval:    cfg.Engine.Interval().String(),
			Backoff:     cfg.Engine.Backoff().String(),
			DecisionLog: cfg.Engine.DecisionLogPath,
		},
		HTTP:   "disabled",
		Notify: "disabled",
		out:    os.Stdout,
	}
	switch strings.ToLower(cfg.Ledger.Backend) {
	case "sqlite":
		s.Ledger.Location = cfg.Ledger.SQLitePath
	case "postgres":
		s.Ledger.Location = postgresLocation(cfg.Ledger.PostgresDSN)
	}
	if cfg.HTTP.Enabled {
		s.HTTP = cfg.HTTP.Addr
	}
	var sinks []string
	if cfg.Notify.Telegram.Enabled {
		sinks = append(sinks, "telegram")
	}
	if cfg.Notify.Kafka.Enabled {
		sinks = append(sinks, "kafka:"+cfg.Notify.Kafka.Topic)
	}
	if len(sinks) > 0 {
		s.Notify = strings.Join(sinks, ", ")
	}
	return s
}

func (s *StartupSummary) Print() {
	w := s.out
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[行情 (MARKET)]")
	fmt.Fprintf(w, "  交易所: %s\n", s.Market.Exchange)
	fmt.Fprintf(w, "  监控币种: %s\n", formatList(s.Market.Symbols))
	fmt.Fprintf(w, "  K线: %s x %d\n", s.Market.CandleInterval, s.Market.CandleLimit)
	fmt.Fprintf(w, "  新闻: %v\n", s.Market.News)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[模型 (MODEL)]")
	fmt.Fprintf(w, "  Provider: %s (%s)\n", s.Model.ProviderID, s.Model.Model)
	fmt.Fprintf(w, "  最大尝试: %d\n", s.Model.MaxAttempts)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[账本 (LEDGER)]")
	fmt.Fprintf(w, "  模式: %s\n", orDash(s.Ledger.Mode))
	fmt.Fprintf(w, "  存储: %s %s\n", s.Ledger.Backend, s.Ledger.Location)
	fmt.Fprintf(w, "  现金: $%s  持仓: %d  挂单: %d\n", s.Ledger.Balance, s.Ledger.Positions, s.Ledger.OpenOrders)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[循环 (ENGINE)]")
	fmt.Fprintf(w, "  间隔: %s  失败退避: %s\n", s.Engine.Interval, s.Engine.Backoff)
	fmt.Fprintf(w, "  决策日志: %s\n", orDash(s.Engine.DecisionLog))
	fmt.Fprintf(w, "  HTTP: %s  通知: %s\n", s.HTTP, s.Notify)
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// postgresLocation shows host:port/db without credentials.
func postgresLocation(dsn string) string {
	pc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return "(invalid dsn)"
	}
	return fmt.Sprintf("%s:%d/%s", pc.Host, pc.Port, pc.Database)
}
