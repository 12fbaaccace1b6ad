package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cdpview/cdp"
	"cdpview/cmd/internal/wiring"
	"cdpview/config"
	"cdpview/gateway/middleware"
	"cdpview/gateway/routes"
	"cdpview/observability/logging"
	telemetry "cdpview/observability/otel"
	"cdpview/view"
)

func main() {
	var cfgPath string
	var screenID string
	flag.StringVar(&cfgPath, "config", "", "path to cdpview configuration (.yaml or .toml)")
	flag.StringVar(&screenID, "cdp", "", "CDP to open on the screen at startup")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(config.EnvEnv))
	logger := logging.Setup("cdpviewd", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if otlpEndpoint == "" {
		otlpEndpoint = cfg.Observability.OTLPEndpoint
	}
	insecure := cfg.Observability.OTLPInsecure
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: cfg.Observability.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Observability.Metrics && otlpEndpoint != "",
		Traces:      cfg.Observability.Tracing && otlpEndpoint != "",
	})
	if err != nil {
		logger.Error("failed to initialise telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := wiring.Dial(ctx, cfg, logger)
	if err != nil {
		logger.Error("connect to node", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("starting cdpviewd", "listen", cfg.ListenAddress, logging.MaskField("account", cfg.Account))
	stack := wiring.Build(cfg, client, logger)
	if err := stack.OpenHistory(cfg.HistoryDSN, logger); err != nil {
		logger.Error("open history", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Warn("close history", "error", err)
		}
	}()

	if cfg.FeedCacheDir != "" {
		if err := stack.OpenFeedCache(cfg.FeedCacheDir, logger); err != nil {
			logger.Error("open feed cache", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		if err := stack.Poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("feed poller stopped", "error", err)
		}
	}()

	session := cdp.NewSession(ctx, stack.Loader, logger)
	screen := view.NewScreen(ctx, session, stack.Wallet(), logger)
	if screenID != "" {
		id, err := cdp.ParseID(screenID)
		if err != nil {
			logger.Error("parse -cdp", "error", err)
			os.Exit(1)
		}
		screen.Open(id)
	}

	rateLimits := make(map[string]middleware.RateLimit)
	for _, entry := range cfg.RateLimits {
		rateLimits[entry.ID] = middleware.RateLimit{
			RequestsPerMinute: entry.RequestsPerMinute,
			Burst:             entry.Burst,
		}
	}
	if len(rateLimits) == 0 {
		rateLimits[routes.LimitCDP] = middleware.RateLimit{RequestsPerMinute: 120, Burst: 20}
		rateLimits[routes.LimitScreen] = middleware.RateLimit{RequestsPerMinute: 600, Burst: 60}
		rateLimits[routes.LimitFeeds] = middleware.RateLimit{RequestsPerMinute: 600, Burst: 60}
	}

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   cfg.Observability.ServiceName,
		MetricsPrefix: cfg.Observability.MetricsPrefix,
		LogRequests:   cfg.Observability.LogRequests,
		Enabled:       cfg.Observability.Metrics || cfg.Observability.Tracing,
	}, logger)

	router := routes.New(routes.Config{
		Loader:        stack.Loader,
		Feeds:         stack.Feeds,
		History:       stack.History,
		Wallet:        stack.Wallet(),
		Dispatcher:    view.NewDispatcher(view.LogSidebar{Logger: logger}, stack.Recorder()),
		Screen:        screen,
		RateLimiter:   middleware.NewRateLimiter(rateLimits, logger),
		Observability: obs,
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
		},
		Logger: logger,
	})

	handler := router
	if cfg.Observability.Tracing {
		handler = otelhttp.NewHandler(router, cfg.Observability.ServiceName)
	}

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		logger.Error("listen", "error", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("listening", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	screen.Wait()
}
