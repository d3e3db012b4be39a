// Command tradenova runs the TradeNova options-trading control loop
// (spec.md §1): flag/env/config-file wiring, logger and metrics registry
// construction, collaborator assembly, and the Scheduler's run loop with
// graceful shutdown on SIGINT/SIGTERM. No HTTP API is served for the core
// control-plane logic (spec.md §1 non-goal); a /metrics endpoint is
// exposed purely for Prometheus scraping of the injected registry.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/achavala/tradenova/internal/agents"
	"github.com/achavala/tradenova/internal/broker"
	"github.com/achavala/tradenova/internal/clock"
	"github.com/achavala/tradenova/internal/config"
	"github.com/achavala/tradenova/internal/events"
	"github.com/achavala/tradenova/internal/marketdata"
	"github.com/achavala/tradenova/internal/metrics"
	"github.com/achavala/tradenova/internal/options"
	"github.com/achavala/tradenova/internal/portfolio"
	"github.com/achavala/tradenova/internal/regime"
	"github.com/achavala/tradenova/internal/risk"
	"github.com/achavala/tradenova/internal/rl"
	"github.com/achavala/tradenova/internal/scheduler"
	"github.com/achavala/tradenova/internal/sizing"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML/JSON/TOML config file")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	metricsAddr := flag.String("metrics-addr", ":9090", "Address to serve /metrics on")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	logger.Info("starting tradenova",
		zap.Strings("universe", cfg.Universe),
		zap.Bool("paperTrading", cfg.PaperTrading),
		zap.String("cyclePeriod", cfg.CyclePeriod.String()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.New()
	metricsRegistry.MustRegister(reg)
	go serveMetrics(logger, *metricsAddr, reg)

	clk, err := clock.New(clock.Config{
		Timezone:     cfg.Timezone,
		WarmupTime:   cfg.WarmupTime,
		SessionOpen:  cfg.SessionOpen,
		FlattenTime:  cfg.FlattenTime,
		SessionClose: cfg.SessionClose,
	}, nil)
	if err != nil {
		logger.Fatal("failed to construct market clock", zap.Error(err))
	}

	primarySource := marketdata.NewHTTPSource(logger, marketdata.DefaultHTTPSourceConfig(
		"primary",
		getEnvOrDefault("TRADENOVA_MARKETDATA_URL", "https://api.marketdata.example.com"),
		os.Getenv("TRADENOVA_MARKETDATA_API_KEY"),
	))
	var fallbackSource marketdata.Source
	if fallbackURL := os.Getenv("TRADENOVA_MARKETDATA_FALLBACK_URL"); fallbackURL != "" {
		fallbackSource = marketdata.NewHTTPSource(logger, marketdata.DefaultHTTPSourceConfig(
			"fallback", fallbackURL, os.Getenv("TRADENOVA_MARKETDATA_FALLBACK_API_KEY"),
		))
	}
	dataAdapter := marketdata.New(logger, marketdata.Config{
		MinBars:        cfg.MinBars,
		FallbackBudget: 4 * time.Second,
	}, primarySource, fallbackSource)

	brokerAdapter := broker.New(logger, broker.Config{
		BaseURL:           getEnvOrDefault("TRADENOVA_BROKER_URL", "https://api.broker.example.com"),
		APIKey:            os.Getenv("TRADENOVA_BROKER_API_KEY"),
		APISecret:         os.Getenv("TRADENOVA_BROKER_API_SECRET"),
		RetryAttempts:     cfg.BrokerRetryAttempts,
		RetryBaseDelay:    cfg.BrokerRetryBaseDelay,
		OrderPollInterval: 500 * time.Millisecond,
		OrderTimeout:      cfg.OrderTimeout,
	})

	riskManager := risk.NewManager(risk.Config{
		MaxDelta:         cfg.MaxDelta,
		MaxGamma:         cfg.MaxGamma,
		MaxThetaPerDay:   cfg.MaxThetaPerDay,
		MaxVega:          cfg.MaxVega,
		MaxUVaRPct:       cfg.MaxUVaRPct,
		DailyTradeLimit:  cfg.DailyTradeLimit,
		UVaRLookbackDays: 60,
	}, risk.NoCalendar{}, risk.NoReturnSource{}, logger)

	portfolioManager := portfolio.New(*cfg, logger)
	eventsBus := events.New(logger)
	regimeClassifier := regime.New(logger, regime.DefaultConfig())
	rlPredictor := rl.New(rl.NoOpSource{})

	sched := scheduler.New(scheduler.Deps{
		Config:      *cfg,
		Logger:      logger,
		Clock:       clk,
		Data:        dataAdapter,
		Risk:        riskManager,
		Portfolio:   portfolioManager,
		Broker:      brokerAdapter,
		Events:      eventsBus,
		Regime:      regimeClassifier,
		Agents:      agents.Default(),
		RL:          rlPredictor,
		FilterCfg:   options.DefaultFilterConfig(),
		SelectorCfg: options.DefaultSelectorConfig(),
		SizingCfg:   sizing.Config{PositionSizePct: cfg.PositionSizePct, PortfolioHeatCap: cfg.PortfolioHeatCap},
		Metrics:     metricsRegistry,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() {
		runErr <- sched.Run(ctx)
	}()

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil {
			logger.Error("scheduler exited with error", zap.Error(err))
		}
	}

	logger.Info("tradenova stopped")
}

func serveMetrics(logger *zap.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", zap.Error(err))
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func setupLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	encoding := "console"
	var levelEncoder zapcore.LevelEncoder = zapcore.CapitalColorLevelEncoder
	if format == "json" {
		encoding = "json"
		levelEncoder = zapcore.CapitalLevelEncoder
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    levelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
