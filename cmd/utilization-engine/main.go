package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/miradorstack/mirador-utilization/internal/api"
	"github.com/miradorstack/mirador-utilization/internal/config"
	"github.com/miradorstack/mirador-utilization/internal/engine"
	"github.com/miradorstack/mirador-utilization/internal/metrics"
	"github.com/miradorstack/mirador-utilization/internal/services"
	"github.com/miradorstack/mirador-utilization/internal/utils"
)

func main() {
	var configPath string
	flag.StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	flag.Parse()

	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-utilization",
		slog.String("address", cfg.Server.Address),
		slog.String("events", cfg.Store.Events),
		slog.String("directory", cfg.Store.Directory))

	var reporter services.ErrorReporter
	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			logger.Warn("sentry disabled", slog.Any("error", err))
		} else {
			reporter = services.NewSentryReporter(sentry.CurrentHub())
			defer sentry.Flush(2 * time.Second)
		}
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	catalog, err := engine.NewStateCatalog(cfg.Engine.StatesPath, logger)
	if err != nil {
		logger.Error("failed to load state catalog", slog.Any("error", err))
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open stores", slog.Any("error", err))
		os.Exit(1)
	}
	defer backends.Close()

	eng, err := engine.New(engine.Config{
		Logger:          logger,
		Clock:           clock,
		Events:          backends.events,
		Machines:        backends.machines,
		Alarms:          backends.alarms,
		Catalog:         catalog,
		ReportingOffset: &cfg.Engine.ReportingOffset,
	})
	if err != nil {
		logger.Error("failed to build engine", slog.Any("error", err))
		os.Exit(1)
	}

	service := services.NewUtilizationService(logger, eng, cfg.Engine.RequestTimeout, reporter)

	server, err := api.NewServer(cfg.Server, service)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("mirador-utilization stopped", slog.Duration("p95", service.LatencyP95()))
}
