// Package metrics exposes the engine's Prometheus instrumentation:
//
//   - trader_entry_cycles_total{outcome,mode}  – entry cycles by outcome
//   - trader_exit_cycles_total{mode}           – exit cycles run
//   - trader_trades_closed_total{reason,mode}  – positions closed by reason
//   - trader_orders_total{kind,mode}           – broker orders submitted
//   - trader_gap_checks_total{result}          – VIX gap evaluations
//   - trader_pdt_trades_remaining{mode}        – rolling day trades left
//
// Registered in init() and served at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	entryCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_entry_cycles_total",
			Help: "Entry cycles by outcome",
		},
		[]string{"outcome", "mode"},
	)

	exitCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_exit_cycles_total",
			Help: "Exit cycles run",
		},
		[]string{"mode"},
	)

	tradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_trades_closed_total",
			Help: "Positions closed by reason",
		},
		[]string{"reason", "mode"},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Broker orders submitted (kind: entry|close|cancel)",
		},
		[]string{"kind", "mode"},
	)

	gapChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_gap_checks_total",
			Help: "VIX gap evaluations (result: met|not_met|error)",
		},
		[]string{"result"},
	)

	pdtRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_pdt_trades_remaining",
			Help: "Rolling-window day trades remaining per account mode",
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(entryCycles, exitCycles, tradesClosed, orders)
	prometheus.MustRegister(gapChecks, pdtRemaining)
}

func IncEntryCycle(outcome, mode string) { entryCycles.WithLabelValues(outcome, mode).Inc() }
func IncExitCycle(mode string)           { exitCycles.WithLabelValues(mode).Inc() }
func IncTradeClosed(reason, mode string) { tradesClosed.WithLabelValues(reason, mode).Inc() }
func IncOrder(kind, mode string)         { orders.WithLabelValues(kind, mode).Inc() }
func IncGapCheck(result string)          { gapChecks.WithLabelValues(result).Inc() }
func SetPDTRemaining(mode string, n int) { pdtRemaining.WithLabelValues(mode).Set(float64(n)) }
