package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side"},
	)

	BookUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "book_updates_total", Help: "L2 updates applied per symbol"},
		[]string{"symbol"},
	)
	SignalEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_evaluations_total", Help: "Aggregator evaluations per symbol and confidence band"},
		[]string{"symbol", "confidence"},
	)
	ExecutionOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "execution_outcomes_total", Help: "Executor terminal outcomes by leg and state"},
		[]string{"symbol", "leg", "outcome"},
	)
	RiskDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "risk_denials_total", Help: "Orders rejected by the risk gate"},
		[]string{"symbol"},
	)
	HaltsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "halts_total", Help: "Hard-limit halt latches tripped"},
		[]string{"reason"},
	)
	FillRateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "maker_fill_rate", Help: "Current windowed maker fill rate by confidence band"},
		[]string{"confidence"},
	)
	AlphaShareGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "pnl_alpha_share", Help: "Rolling alpha share of the sum of |total pnl| over retained fills"},
	)
	IterationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trading_loop_iteration_seconds",
			Help:    "End-to-end latency of one per-symbol trading loop iteration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, OrdersTotal,
		BookUpdatesTotal, SignalEvaluationsTotal, ExecutionOutcomesTotal,
		RiskDenialsTotal, HaltsTotal, FillRateGauge, AlphaShareGauge, IterationLatency,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
