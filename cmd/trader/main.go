// Binary trader wires the configured venue adapter, market-data hub, signal
// engine, risk gate, and hybrid executor into one TradingLoop per symbol,
// the way the teacher's cmd/paper wires its feed/strategy/execution chain.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/adapter/wsrest"
	"github.com/arvion-labs/perpcore/internal/audit"
	"github.com/arvion-labs/perpcore/internal/config"
	"github.com/arvion-labs/perpcore/internal/cost"
	"github.com/arvion-labs/perpcore/internal/engine"
	"github.com/arvion-labs/perpcore/internal/execution"
	"github.com/arvion-labs/perpcore/internal/marketdata"
	"github.com/arvion-labs/perpcore/internal/metrics"
	"github.com/arvion-labs/perpcore/internal/monitor"
	"github.com/arvion-labs/perpcore/internal/pnl"
	"github.com/arvion-labs/perpcore/internal/risk"
	"github.com/arvion-labs/perpcore/internal/signalengine"
	"github.com/arvion-labs/perpcore/internal/util"
)

const shutdownGrace = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/trader.yaml", "path to the YAML configuration file")
	dryRun := flag.Bool("dry-run", false, "skip order submission; exercise every other path")
	checkConfig := flag.Bool("check-config", false, "parse and validate the configuration, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	if *checkConfig {
		fmt.Println("config OK")
		return
	}

	log := util.NewLogger(cfg.App.LogLevel)

	var sink audit.Sink
	if cfg.App.AuditPath != "" {
		jsonlSink, err := audit.NewJSONLSink(cfg.App.AuditPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open audit sink")
		}
		defer jsonlSink.Close()
		sink = jsonlSink
	}

	metricsSrv := metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics listening")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(ctx)
	}()

	venueAdapter := wsrest.New(wsrest.Config{
		StreamURL:         cfg.Venue.StreamURL,
		RESTBaseURL:       cfg.Venue.RESTBaseURL,
		RequestsPerSecond: cfg.Venue.RequestsPerSecond,
		Burst:             cfg.Venue.Burst,
	}, log)

	hub := marketdata.New(venueAdapter, cfg.App.BookDepth, log)

	aggregator, err := signalengine.Build(signalengine.WeightConfig{
		OBIWeight:        cfg.Signals.Weights.OBI,
		OBILevels:        cfg.Signals.OBILevels,
		OBIWeighted:      cfg.Signals.OBIWeighted,
		MicropriceWeight: cfg.Signals.Weights.Microprice,
		MicropriceScale:  cfg.Signals.MicropriceScale,
		ImpactWeight:     cfg.Signals.Weights.Impact,
		ImpactWindowMs:   cfg.Signals.ImpactWindowMs,
		Theta1:           cfg.Signals.Thresholds.Theta1,
		Theta2:           cfg.Signals.Thresholds.Theta2,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build signal aggregator")
	}

	costEstimator := cost.New(cost.Config{
		MakerFeeBps: cfg.Cost.MakerFeeBps,
		TakerFeeBps: cfg.Cost.TakerFeeBps,
		ImpactAlpha: cfg.Cost.ImpactAlpha,
	}, log)

	initialNAV := decimal.NewFromFloat(cfg.App.InitialNAV)
	gate := risk.NewGate(initialNAV, risk.Limits{
		MaxSingleLossPct:    cfg.Risk.MaxSingleLossPct,
		MaxDailyDrawdownPct: cfg.Risk.MaxDailyDrawdownPct,
		MaxPositionUSD:      decimal.NewFromFloat(cfg.Risk.MaxPositionUSD),
	}, nil, sink, log)

	positions := risk.NewPositionManager(log)
	fillRates := monitor.NewFillRateMonitor(cfg.Monitoring.FillRate.WindowSize, sink, log)
	attributor := pnl.NewPnLAttributor(pnl.DefaultConfig(), log)

	maker := execution.NewShallowMakerExecutor(venueAdapter, execution.ShallowMakerConfig{
		TimeoutHigh:   time.Duration(cfg.Execution.ShallowMaker.TimeoutHighSecs * float64(time.Second)),
		TimeoutMedium: time.Duration(cfg.Execution.ShallowMaker.TimeoutMediumSecs * float64(time.Second)),
		TickOffset:    decimal.NewFromFloat(cfg.Execution.ShallowMaker.TickOffset),
		PostOnly:      cfg.Execution.ShallowMaker.PostOnly,
	}, log)
	ioc := execution.NewIOCExecutor(venueAdapter, execution.DefaultIOCConfig(), log)

	hybrid := execution.NewHybridExecutor(maker, ioc, execution.HybridConfig{
		EnableFallback:   cfg.Execution.IOC.FallbackOnHigh,
		FallbackOnMedium: cfg.Execution.IOC.FallbackOnMedium,
	}, positions, fillRates, attributor, log)

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hub.Run(ctx, cfg.Venue.Symbols); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("market data hub stopped")
			cancel()
		}
	}()

	loops := make(map[string]*engine.TradingLoop, len(cfg.Venue.Symbols))
	for _, symbol := range cfg.Venue.Symbols {
		loop := engine.New(engine.Config{
			Symbol:       symbol,
			BaseSize:     decimal.NewFromFloat(1),
			SizeK:        1.0,
			MaxStaleness: 250 * time.Millisecond,
			DryRun:       *dryRun,
		}, hub, aggregator, gate, positions, hybrid, costEstimator, fillRates, attributor, log)
		loops[symbol] = loop

		wg.Add(1)
		go func() {
			defer wg.Done()
			loop.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case tick := <-hub.Ticks():
				if loop, ok := loops[tick.Symbol]; ok {
					loop.Notify()
				}
			}
		}
	}()

	log.Info().Strs("symbols", cfg.Venue.Symbols).Bool("dry_run", *dryRun).Msg("trader started")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining loops")

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		log.Info().Msg("trader stopped")
	case <-time.After(shutdownGrace):
		log.Warn().Dur("grace", shutdownGrace).Msg("shutdown deadline exceeded, exiting anyway")
	}
}
