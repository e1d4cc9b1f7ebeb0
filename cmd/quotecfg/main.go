// Package main is the entry point for the quote calculator configuration
// server. It wires all dependencies together and starts the HTTP server.
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

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pitabwire/quotecfg/internal/config"
	"github.com/pitabwire/quotecfg/internal/definition"
	"github.com/pitabwire/quotecfg/internal/evaluator"
	"github.com/pitabwire/quotecfg/internal/importer"
	"github.com/pitabwire/quotecfg/internal/observability"
	"github.com/pitabwire/quotecfg/internal/openapi"
	"github.com/pitabwire/quotecfg/internal/service"
	"github.com/pitabwire/quotecfg/internal/store"
	"github.com/pitabwire/quotecfg/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "quotecfg", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Load templates and build the registry.
	loader := definition.NewLoader()
	tmpls, err := loader.LoadCatalog(cfg.Templates.Directories)
	if err != nil {
		logger.Error("template loading failed", zap.Error(err))
		return 1
	}
	validator := definition.NewValidator()
	for _, t := range tmpls {
		for _, ve := range validator.ValidateConfig(t.CalculatorConfig) {
			logger.Warn("template validation issue",
				zap.String("template_id", t.ID),
				zap.String("path", ve.Path),
				zap.String("severity", ve.Severity),
				zap.String("error", ve.Message),
			)
		}
	}
	registry := definition.NewRegistry(tmpls)
	metrics.SetTemplatesLoaded(registry.Len())

	im, err := importer.New()
	if err != nil {
		logger.Error("import schema compilation failed", zap.Error(err))
		return 1
	}

	// Step 5: Open storage.
	handle, err := store.Open(ctx, store.Options{
		Driver:         cfg.Storage.Driver,
		DSN:            cfg.Storage.DSN,
		MaxConns:       cfg.Storage.MaxConns,
		ConnectTimeout: cfg.Storage.ConnectTimeout,
		AutoMigrate:    cfg.Storage.AutoMigrate,
	}, logger)
	if err != nil {
		logger.Error("storage initialization failed", zap.Error(err))
		return 1
	}
	defer handle.Close()

	configStore := handle.Store
	if bc := cfg.Storage.Breaker; bc.FailureThreshold > 0 {
		configStore = store.NewBreakingStore(handle.Store, store.BreakerOptions{
			FailureThreshold: bc.FailureThreshold,
			SuccessThreshold: bc.SuccessThreshold,
			Cooldown:         bc.Cooldown,
			OnStateChange: func(from, to store.BreakerState) {
				logger.Warn("storage circuit breaker state changed",
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		})
	}

	// Step 6: Build the evaluation cache.
	cache, cacheCloser, err := buildCache(ctx, cfg.Cache, logger)
	if err != nil {
		logger.Error("cache initialization failed", zap.Error(err))
		return 1
	}
	if cacheCloser != nil {
		defer cacheCloser()
	}

	// Step 7: Build the service and HTTP router.
	svc := service.New(service.Options{
		Store:     configStore,
		Templates: registry,
		Importer:  im,
		Cache:     cache,
		Validator: validator,
		Metrics:   metrics,
		Logger:    logger,
	})

	api, err := openapi.Load()
	if err != nil {
		logger.Error("OpenAPI description load failed", zap.Error(err))
		return 1
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:   cfg,
		Service:  svc,
		API:      api,
		Logger:   logger,
		Metrics:  metrics,
		Gatherer: prometheus.DefaultGatherer,
		Readiness: observability.ReadinessChecks{
			"templates": observability.TemplatesLoaded(registry.Len),
			"store":     handle.Store,
			"cache":     cache,
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 8: Start the server and background tasks.
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Templates.HotReload && len(cfg.Templates.Directories) > 0 {
		watcher := definition.NewWatcher(cfg.Templates.Directories, loader, registry, logger, cfg.Templates.Debounce)
		watcher.OnReload = func(count int, err error) {
			if err != nil {
				metrics.RecordTemplateReload("error")
				return
			}
			metrics.RecordTemplateReload("success")
			metrics.SetTemplatesLoaded(count)
		}
		g.Go(func() error { return watcher.Run(gctx) })
	}

	g.Go(func() error {
		logger.Info("server started",
			zap.Int("port", cfg.Server.Port),
			zap.String("version", version),
			zap.String("commit", commit),
			zap.String("storage", handle.Driver),
			zap.String("cache", cfg.Cache.Driver),
			zap.Int("templates", registry.Len()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting new connections and drain in-flight requests.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := tracingShutdown(shutdownCtx); err != nil {
			logger.Error("tracing shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}

// buildCache creates the evaluation cache selected by config. The returned
// closer is nil when there is nothing to release.
func buildCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (evaluator.Cache, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		return evaluator.NewMemoryCache(cfg.MaxEntries, cfg.TTL), nil, nil
	case "none":
		logger.Info("evaluation cache disabled")
		return evaluator.NopCache{}, nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

		policy := backoff.NewExponentialBackOff()
		policy.MaxInterval = 5 * time.Second
		policy.MaxElapsedTime = 30 * time.Second

		err := backoff.RetryNotify(
			func() error { return client.Ping(ctx).Err() },
			backoff.WithContext(policy, ctx),
			func(err error, next time.Duration) {
				logger.Warn("redis not reachable, retrying",
					zap.String("addr", cfg.RedisAddr),
					zap.Duration("next_attempt", next),
					zap.Error(err),
				)
			},
		)
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis cache: ping %s: %w", cfg.RedisAddr, err)
		}
		return evaluator.NewRedisCache(client, cfg.TTL), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache driver: %q", cfg.Driver)
	}
}
