// Package metrics 提供 Prometheus 指标集合与指标服务
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantex/strategyengine/pkg/logger"
)

// Metrics 策略引擎指标集合
type Metrics struct {
	// 信号处理计数
	SignalsTotal   prometheus.Counter
	SignalsValid   prometheus.Counter
	SignalsInvalid prometheus.Counter

	// 交易流水计数
	FlowsTotal          prometheus.Counter
	FlowsSucceeded      prometheus.Counter
	FlowsRejected       prometheus.Counter
	FlowsFailed         prometheus.Counter
	FlowDuration        prometheus.Histogram
	RiskRejections      prometheus.Counter
	StrategyRejections  prometheus.Counter
	ExecutionFailures   prometheus.Counter
	CommandsRouted      prometheus.Counter

	// 持仓与组合指标
	PositionsActive          prometheus.Gauge
	PortfolioValue           prometheus.Gauge
	PortfolioPnL             prometheus.Gauge
	RebalanceRecommendations prometheus.Counter
	OptimizationsPerformed   prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		SignalsTotal:   counter("signals_total", "Total trading signals received"),
		SignalsValid:   counter("signals_valid_total", "Signals that passed validation"),
		SignalsInvalid: counter("signals_invalid_total", "Signals rejected by validation"),

		FlowsTotal:     counter("flows_total", "Total trading flows started"),
		FlowsSucceeded: counter("flows_succeeded_total", "Flows that reached execution"),
		FlowsRejected:  counter("flows_rejected_total", "Flows rejected by compliance or gates"),
		FlowsFailed:    counter("flows_failed_total", "Flows failed on build or routing"),
		FlowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "flow_duration_seconds",
			Help:      "Trading flow duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RiskRejections:     counter("risk_rejections_total", "Flows rejected by local risk compliance"),
		StrategyRejections: counter("strategy_rejections_total", "Flows rejected by the strategy gate"),
		ExecutionFailures:  counter("execution_failures_total", "Flows failed on execution routing"),
		CommandsRouted:     counter("commands_routed_total", "Trade commands routed to execution"),

		PositionsActive:          gauge("positions_active", "Number of open positions"),
		PortfolioValue:           gauge("portfolio_value", "Total portfolio value"),
		PortfolioPnL:             gauge("portfolio_pnl", "Total portfolio PnL"),
		RebalanceRecommendations: counter("rebalance_recommendations_total", "Rebalance recommendations emitted"),
		OptimizationsPerformed:   counter("optimizations_performed_total", "Portfolio optimization runs"),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.SignalsTotal, m.SignalsValid, m.SignalsInvalid,
		m.FlowsTotal, m.FlowsSucceeded, m.FlowsRejected, m.FlowsFailed,
		m.FlowDuration, m.RiskRejections, m.StrategyRejections,
		m.ExecutionFailures, m.CommandsRouted,
		m.PositionsActive, m.PortfolioValue, m.PortfolioPnL,
		m.RebalanceRecommendations, m.OptimizationsPerformed,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error(context.Background(), "Prometheus HTTP server exited", "error", err)
		}
	}()
}
