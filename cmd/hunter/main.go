package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/clobhunter/config"
	"github.com/alejandrodnm/clobhunter/internal/adapters/notify"
	"github.com/alejandrodnm/clobhunter/internal/adapters/storage"
	"github.com/alejandrodnm/clobhunter/internal/adapters/venue"
	"github.com/alejandrodnm/clobhunter/internal/application/monitor"
	"github.com/alejandrodnm/clobhunter/internal/application/trader"
	"github.com/alejandrodnm/clobhunter/internal/domain"
	"github.com/alejandrodnm/clobhunter/internal/metrics"
	"github.com/alejandrodnm/clobhunter/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	mode := flag.String("mode", "all", "monitor | trade | all")
	paper := flag.Bool("paper", false, "trade against the simulated broker")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	runMonitor := *mode == "monitor" || *mode == "all"
	runTrader := *mode == "trade" || *mode == "all"
	if !runMonitor && !runTrader {
		slog.Error("unknown mode", "mode", *mode)
		os.Exit(1)
	}

	slog.Info("clobhunter starting",
		"config", *configPath,
		"mode", *mode,
		"paper", *paper,
		"dsn", cfg.Storage.DSN,
	)

	client := venue.NewClient(venue.ClientOpts{
		BaseURL:           cfg.API.BaseURL,
		GeneralRatePerSec: cfg.Risk.GeneralRatePerSec,
		GeneralBurst:      cfg.Risk.GeneralBurst,
		OrderRatePerSec:   cfg.Risk.OrderRatePerSec,
		OrderBurst:        cfg.Risk.OrderBurst,
	})
	marketData := venue.NewMarketData(client, cfg.Monitor.MaxMarkets)

	store, err := storage.New(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	notifier := notify.NewConsole()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Listen != "" {
		go metrics.Serve(ctx, cfg.Metrics.Listen, slog.Default())
	}

	errs := make(chan error, 2)
	running := 0

	if runMonitor {
		eng := buildMonitor(cfg, marketData, store, notifier)
		running++
		go func() { errs <- eng.Run(ctx) }()
	}
	if runTrader {
		exec, err := buildExecutor(cfg, client, *paper)
		if err != nil {
			slog.Error("failed to build executor", "err", err)
			os.Exit(1)
		}
		eng := buildTrader(cfg, marketData, store, notifier, exec)
		running++
		go func() { errs <- eng.Run(ctx) }()
	}

	var failed bool
	for i := 0; i < running; i++ {
		if err := <-errs; err != nil {
			failed = true
			slog.Error("engine exited with error", "err", err)
			cancel()
		}
	}
	if failed {
		os.Exit(1)
	}
	slog.Info("clobhunter stopped cleanly")
}

func buildMonitor(cfg *config.Config, marketData ports.MarketDataProvider, store *storage.Store, notifier ports.Notifier) *monitor.Engine {
	m := cfg.Monitor

	stats := domain.NewStatsEngine(domain.StatsParams{
		HistoryLen:      m.HistoryLen,
		MinHistory:      m.MinHistory,
		SpikeThreshold:  m.SpikeThreshold,
		ZScoreMin:       m.ZScoreMin,
		WatchZ:          m.WatchZ,
		AlertZ:          m.AlertZ,
		GlobalDeltasLen: m.GlobalDeltasLen,
		TopPercentile:   m.TopPercentile,
		WarmupGlobalMin: m.WarmupGlobalMin,
		WarmupZExtra:    m.WarmupZExtra,
		TailMin:         m.TailMin,
		TailMax:         m.TailMax,
		LiquidityMin:    m.LiquidityMin,
		MaxSpread:       m.MaxSpread,
		BurstWindow:     time.Duration(m.BurstWindowSec) * time.Second,
		BurstZMin:       m.BurstZMin,
	})
	gate := domain.NewSignalGate(domain.GateParams{
		MidMin:         m.SignalMidMin,
		MidMax:         m.SignalMidMax,
		LiquidityMin:   m.LiquidityMin,
		Cooldown:       time.Duration(m.CooldownSec) * time.Second,
		FadeZMin:       m.FadeZMin,
		FadeZMax:       m.FadeZMax,
		TrendZMin:      m.TrendZMin,
		SpreadMaxFade:  m.SpreadMaxFade,
		SpreadMaxTrend: m.SpreadMaxTrend,
	})
	regime := domain.NewRegimeTracker(domain.RegimeParams{
		CheckDelay:         time.Duration(cfg.Regime.CheckDelaySec) * time.Second,
		ReversionThreshold: cfg.Regime.ReversionThreshold,
		Window:             time.Duration(cfg.Regime.WindowSec) * time.Second,
		MinSamples:         cfg.Regime.MinSamples,
		TrendingRatio:      cfg.Regime.TrendingRatio,
	})
	selector := domain.NewStrategySelector(strategyParams(cfg))

	stream := venue.NewStream(cfg.API.StreamURL, m.StreamWildcard, slog.Default())

	return monitor.New(monitor.Config{
		MarketRefresh:   cfg.MarketRefresh(),
		VolumeRefresh:   cfg.VolumeRefresh(),
		ScoreRefresh:    cfg.ScoreRefresh(),
		Heartbeat:       cfg.Heartbeat(),
		Cleanup:         time.Duration(m.CleanupSec) * time.Second,
		StaleFeed:       time.Duration(m.StaleFeedSec) * time.Second,
		SharesActiveMin: m.SharesActiveMin,
		SignalRetention: time.Duration(m.SignalKeepSec) * time.Second,
	}, stats, gate, regime, selector, marketData, stream, store, notifier)
}

func buildExecutor(cfg *config.Config, client *venue.Client, paper bool) (ports.OrderExecutor, error) {
	if paper {
		slog.Info("paper broker active", "cash", cfg.Trader.PaperCash)
		return trader.NewPaperBroker(cfg.Trader.PaperCash, cfg.Trader.FeeRate), nil
	}
	signer, err := venue.NewSigner(client, cfg.API.KeyID, cfg.API.SecretKey)
	if err != nil {
		return nil, err
	}
	return venue.NewTrading(signer), nil
}

func buildTrader(cfg *config.Config, marketData ports.MarketDataProvider, store *storage.Store, notifier ports.Notifier, exec ports.OrderExecutor) *trader.Engine {
	t := cfg.Trader

	pricing := domain.PricingParams{
		CrossBuffer:  t.CrossBuffer,
		SlippagePct:  t.SlippagePct,
		EntrySlipCap: t.EntrySlipCap,
		CashFraction: t.CashFraction,
		CashMin:      t.CashMin,
		CashMax:      t.CashMax,
		MinCash:      t.MinCash,
	}
	exits := trader.ExitRuleSet{
		Contrarian:  exitRules(cfg.Exits.Contrarian),
		Momentum:    exitRules(cfg.Exits.Momentum),
		Convergence: exitRules(cfg.Exits.Convergence),
		Trail: domain.TrailParams{
			PeakDecayInterval: time.Duration(cfg.Exits.PeakDecaySec) * time.Second,
			PeakDecayRate:     cfg.Exits.PeakDecayRate,
			MinConsecutive:    cfg.Exits.TrailMinConsecutive,
		},
	}

	risk := trader.NewRiskManager(trader.RiskParams{
		MaxContrarian:      cfg.Risk.MaxContrarian,
		MaxMomentum:        cfg.Risk.MaxMomentum,
		MaxConvergence:     cfg.Risk.MaxConvergence,
		SharedMomentumPool: cfg.Risk.SharedMomentumPool,
		DailyLossLimit:     cfg.Risk.DailyLossLimit,
		MaxLossesPerMarket: t.MaxLossesPerMarket,
		Rearm:              time.Duration(t.RearmSec) * time.Second,
		MinOpenInterval:    time.Duration(t.MinOpenIntervalSec) * time.Second,
	})
	gate := trader.NewEntryGate(trader.GateParams{
		MaxSignalAge:      time.Duration(t.MaxSignalAgeSec) * time.Second,
		MinDeltaPct:       t.MinDeltaPct,
		MaxDeltaPct:       t.MaxDeltaPct,
		MidMin:            t.MidMin,
		MidMax:            t.MidMax,
		SpreadMaxBase:     t.SpreadMaxBase,
		SpreadMaxMid:      t.SpreadMaxMid,
		SpreadMaxHigh:     t.SpreadMaxHigh,
		LiquidityMin:      t.LiquidityMin,
		BlockPreGame:      t.BlockPreGame,
		AllowUnknownPhase: t.AllowUnknownPhase,
		ConvergenceMidMin: t.ConvergenceMidMin,
		Blocklist:         t.Blocklist,
	})

	prices := trader.NewPriceCache(marketData, time.Duration(t.PriceTTLSec)*time.Second)
	confirmer := trader.NewFillConfirmer(exec, t.FillPollAttempts, time.Duration(t.FillPollDelayMs)*time.Millisecond)
	book := trader.NewPositionBook(exec, confirmer, prices, marketData, store, notifier, risk,
		pricing, exits, t.CloseRetries, time.Duration(t.CloseRetryDelayMs)*time.Millisecond)
	selector := domain.NewStrategySelector(strategyParams(cfg))

	return trader.New(trader.Config{
		PollInterval:    cfg.PollInterval(),
		MaxSignalAge:    time.Duration(t.MaxSignalAgeSec) * time.Second,
		SummaryInterval: cfg.Heartbeat(),
		CleanupInterval: time.Duration(cfg.Monitor.CleanupSec) * time.Second,
		GeneralRate:     rate.Limit(cfg.Risk.GeneralRatePerSec),
		GeneralBurst:    cfg.Risk.GeneralBurst,
		OrderRate:       rate.Limit(cfg.Risk.OrderRatePerSec),
		OrderBurst:      cfg.Risk.OrderBurst,
	}, store, exec, confirmer, prices, risk, selector, gate, book, marketData, pricing, exits)
}

func strategyParams(cfg *config.Config) domain.StrategyParams {
	return domain.StrategyParams{
		Window:         time.Duration(cfg.Strategy.WindowSec) * time.Second,
		MinSignals:     cfg.Strategy.MinSignals,
		DominanceRatio: cfg.Strategy.DominanceRatio,
	}
}

func exitRules(p config.ExitParams) domain.ExitRules {
	return domain.ExitRules{
		TakeProfit:    p.TakeProfit,
		StopLoss:      p.StopLoss,
		TimeExit:      time.Duration(p.TimeExitSec) * time.Second,
		Breakeven:     time.Duration(p.BreakevenSec) * time.Second,
		BreakevenTol:  p.BreakevenTol,
		TrailActivate: p.TrailActivate,
		TrailStop:     p.TrailStop,
		MaxHold:       time.Duration(p.MaxHoldSec) * time.Second,
		EmergencyStop: p.EmergencyStop,
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
