// Package metrics provides Prometheus instrumentation for the trading loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandsTotal counts dispatched commands by kind and outcome (ok|failed|noop).
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptoprinter_commands_total",
		Help: "Dispatched advisor commands",
	}, []string{"kind", "outcome"})

	// FillsTotal counts ledger fills by side and order type.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptoprinter_fills_total",
		Help: "Executed simulated fills",
	}, []string{"side", "type"})

	// CyclesTotal counts decision cycles by result (ok|failed|skipped).
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptoprinter_cycles_total",
		Help: "Decision cycles run",
	}, []string{"result"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cryptoprinter_cycle_duration_seconds",
		Help:    "Decision cycle wall time",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
	})

	AdvisorAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cryptoprinter_advisor_attempts",
		Help:    "Advisor requests needed per cycle",
		Buckets: []float64{1, 2, 3, 4, 5},
	})

	ParseIssuesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptoprinter_parse_issues_total",
		Help: "Advisor lines rejected by the command parser",
	})

	// CashBalance and ReservedCash track the ledger in quote currency.
	CashBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptoprinter_cash_balance",
		Help: "Ledger cash balance",
	})
	ReservedCash = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptoprinter_reserved_cash",
		Help: "Cash held by open limit buys",
	})
	OpenOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptoprinter_open_orders",
		Help: "Open limit orders",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
