// Package main is the entry point for the API Gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hameed1198/api-gateway/internal/audit"
	"github.com/hameed1198/api-gateway/internal/config"
	"github.com/hameed1198/api-gateway/internal/gateway"
	"github.com/hameed1198/api-gateway/internal/health"
	"github.com/hameed1198/api-gateway/internal/middleware"
	"github.com/hameed1198/api-gateway/internal/observability"
	"github.com/hameed1198/api-gateway/internal/partner"
	"github.com/hameed1198/api-gateway/internal/proxy"
	"github.com/hameed1198/api-gateway/internal/ratelimit"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)
	app := initApplication(cfg, logger)

	runGateway(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("GATEWAY_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("GATEWAY_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("GATEWAY_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("api-gateway version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// loadAndValidateConfig loads and validates the configuration. A
// missing config file is not fatal: the gateway runs with defaults and
// the built-in demo partners.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting api-gateway",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("config file not found, using defaults",
				observability.String("path", configPath),
			)
			cfg = config.Default()
		} else {
			logger.Fatal("failed to load configuration", observability.Error(err))
		}
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("listen_addr", cfg.Listener.Addr),
		observability.String("backend", cfg.Backend.BaseURL),
		observability.Int("partners", len(cfg.Partners)),
		observability.Duration("rate_limit_window", cfg.RateLimit.Window.Duration()),
	)

	return cfg
}

// application holds all application components.
type application struct {
	config *config.Config
	store  *partner.Store
	// limiter is nil when rate limiting is disabled; the gateway then
	// runs on a no-op limiter and there is no cleanup loop to stop.
	limiter       *ratelimit.SlidingWindowLimiter
	auditLog      *audit.Log
	floodLimiter  *middleware.FloodLimiter
	healthChecker *health.Checker
	server        *http.Server
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := partner.NewSeededStore(partnerSeeds(cfg.Partners, logger))
	if err != nil {
		logger.Fatal("failed to seed partner store", observability.Error(err))
	}

	var limiter ratelimit.Limiter
	var slidingLimiter *ratelimit.SlidingWindowLimiter
	if cfg.RateLimit.Disabled {
		logger.Warn("per-partner rate limiting disabled by configuration")
		limiter = ratelimit.NewNoopLimiter()
	} else {
		slidingLimiter = ratelimit.NewSlidingWindowLimiter(cfg.RateLimit.Window.Duration(),
			ratelimit.WithLogger(logger),
			ratelimit.WithMetrics(ratelimit.NewMetrics("gateway", registry)),
		)
		slidingLimiter.StartCleanup(cfg.RateLimit.CleanupInterval.Duration())
		limiter = slidingLimiter
	}

	auditLog := audit.NewLog(cfg.Audit.MaxRecords,
		audit.WithLogMetrics(audit.NewMetrics("gateway", registry)),
	)

	forwarder := initForwarder(cfg, logger, registry)

	extractor := middleware.NewClientIPExtractor(cfg.TrustedProxies)

	gw := gateway.New(store, limiter, auditLog, forwarder,
		gateway.WithLogger(logger),
		gateway.WithMetrics(gateway.NewMetrics("gateway", registry)),
		gateway.WithClientIPExtractor(extractor),
		gateway.WithVersion(version),
		gateway.WithBackendURL(cfg.Backend.BaseURL),
		gateway.WithWindow(cfg.RateLimit.Window.Duration()),
	)

	healthChecker := health.NewChecker(version)
	healthChecker.RegisterCheck("partner_store", func() health.Check {
		if store.Count() == 0 {
			return health.Check{Status: health.StatusUnhealthy, Message: "no partners registered"}
		}
		return health.Check{Status: health.StatusHealthy}
	})

	mux := http.NewServeMux()
	gw.Register(mux)
	mux.HandleFunc("/health", healthChecker.HealthHandler())
	mux.HandleFunc("/ready", healthChecker.ReadinessHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	var floodLimiter *middleware.FloodLimiter
	chain := []func(http.Handler) http.Handler{
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger, extractor),
	}
	if cfg.FloodLimit.Enabled {
		floodLimiter = middleware.NewFloodLimiter(
			cfg.FloodLimit.RequestsPerSecond,
			cfg.FloodLimit.Burst,
			middleware.WithFloodLimiterLogger(logger),
		)
		floodLimiter.StartCleanup()
		chain = append(chain, middleware.FloodLimit(floodLimiter, extractor))
	}

	server := &http.Server{
		Addr:              cfg.Listener.Addr,
		Handler:           middleware.Chain(mux, chain...),
		ReadTimeout:       cfg.Listener.ReadTimeout.Duration(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Listener.WriteTimeout.Duration(),
	}

	return &application{
		config:        cfg,
		store:         store,
		limiter:       slidingLimiter,
		auditLog:      auditLog,
		floodLimiter:  floodLimiter,
		healthChecker: healthChecker,
		server:        server,
	}
}

// initForwarder builds the backend forwarder from configuration.
func initForwarder(cfg *config.Config, logger observability.Logger, registry prometheus.Registerer) *proxy.Forwarder {
	opts := []proxy.Option{
		proxy.WithLogger(logger),
		proxy.WithTimeout(cfg.Backend.Timeout.Duration()),
		proxy.WithRetry(cfg.Backend.Retry.MaxAttempts, cfg.Backend.Retry.Backoff.Duration()),
		proxy.WithMetrics(proxy.NewMetrics("gateway", registry)),
	}
	if cfg.Backend.CircuitBreaker.Enabled {
		opts = append(opts, proxy.WithCircuitBreaker(
			cfg.Backend.CircuitBreaker.MinCalls,
			cfg.Backend.CircuitBreaker.Cooldown.Duration(),
			logger,
		))
	}

	forwarder, err := proxy.NewForwarder(cfg.Backend.BaseURL, opts...)
	if err != nil {
		logger.Fatal("failed to create forwarder", observability.Error(err))
	}
	return forwarder
}

// partnerSeeds converts configured partners into store seeds. An empty
// configuration yields nil, which makes the store register the built-in
// demo partners.
func partnerSeeds(configured []config.PartnerConfig, logger observability.Logger) []partner.Seed {
	seeds := make([]partner.Seed, 0, len(configured))
	for _, pc := range configured {
		caps := make([]partner.Capability, 0, len(pc.Capabilities))
		for _, raw := range pc.Capabilities {
			c, ok := partner.ParseCapability(raw)
			if !ok {
				logger.Fatal("unknown capability in partner config",
					observability.String("partner", pc.ID),
					observability.String("capability", raw),
				)
			}
			caps = append(caps, c)
		}
		seeds = append(seeds, partner.Seed{
			ID:           pc.ID,
			Name:         pc.Name,
			Token:        pc.Token,
			Capabilities: caps,
			RateLimit:    pc.RateLimit,
		})
	}
	return seeds
}

// runGateway runs the HTTP server until a shutdown signal arrives.
func runGateway(app *application, configPath string, logger observability.Logger) {
	go func() {
		logger.Info("listening", observability.String("addr", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", observability.Error(err))
		}
	}()

	watcher := startConfigWatcher(app, configPath, logger)

	waitForShutdown(app, watcher, logger)
}

// startConfigWatcher watches the config file. Hot reload registers
// partners added to the file; structural settings (listener, backend)
// apply on restart.
func startConfigWatcher(app *application, configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		for _, seed := range partnerSeeds(newCfg.Partners, logger) {
			if _, err := app.store.GetByID(seed.ID); err == nil {
				continue
			}
			if _, _, err := app.store.Create(seed); err != nil {
				logger.Error("failed to register partner from reloaded config",
					observability.String("partner", seed.ID),
					observability.Error(err),
				)
				continue
			}
			logger.Info("partner registered from reloaded config",
				observability.String("partner", seed.ID),
			)
		}
	}, config.WithWatcherLogger(logger))

	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
	}

	return watcher
}

// waitForShutdown blocks until SIGINT/SIGTERM, then shuts down gracefully.
func waitForShutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		app.config.Listener.ShutdownTimeout.Duration())
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if app.limiter != nil {
		app.limiter.Stop()
	}
	if app.floodLimiter != nil {
		app.floodLimiter.Stop()
	}

	logger.Info("gateway stopped",
		observability.Int("audit_records_retained", app.auditLog.Len()),
	)
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
