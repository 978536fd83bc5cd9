package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/obsguard/obsguard/internal/api"
	"github.com/obsguard/obsguard/internal/checks"
	"github.com/obsguard/obsguard/internal/sink"
	"github.com/obsguard/obsguard/pkg/config"
	"github.com/obsguard/obsguard/pkg/gate"
	"github.com/obsguard/obsguard/pkg/logging"
	"github.com/obsguard/obsguard/pkg/metrics"
	"github.com/obsguard/obsguard/pkg/resilience"
	"github.com/obsguard/obsguard/pkg/tracing"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "obsguard-api",
		Version:     version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	m := metrics.NewMetrics(metrics.DefaultConfig())

	tracingService, err := tracing.NewTracingService(&tracing.Config{
		ServiceName:    "obsguard-api",
		ServiceVersion: version,
		Environment:    cfg.Gate.Environment,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	managerOpts := []resilience.ManagerOption{
		resilience.WithLogger(logger),
		resilience.WithMetrics(m),
		resilience.WithTracing(tracingService),
	}

	var eventSink *sink.RedisSink
	if cfg.Redis.Enabled {
		// Redis may still be coming up alongside us; give it a few tries.
		err = resilience.Retry(context.Background(), func(ctx context.Context) error {
			var connectErr error
			eventSink, connectErr = sink.NewRedisSink(&cfg.Redis)
			return connectErr
		})
		if err != nil {
			// The sink is a durability upgrade, not a requirement. Run
			// on the in-memory buffer and keep retrying via health sweeps.
			logger.WithError(err).Warn("Redis sink unavailable, events stay in memory")
		} else {
			defer eventSink.Close()
			managerOpts = append(managerOpts, resilience.WithSink(eventSink))
		}
	}

	manager := resilience.NewManager(managerConfig(cfg), managerOpts...)
	manager.Start()
	defer manager.Stop()

	gatekeeper := gate.NewGatekeeper(
		checks.Defaults(manager, cfg, logger),
		gate.WithLogger(logger),
		gate.WithMetrics(m),
		gate.WithTracing(tracingService),
	)

	router := api.NewRouter(cfg, logger, m, manager, gatekeeper)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting API server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := tracingService.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Tracing shutdown failed")
	}

	logger.Info("Server exited")
}

func managerConfig(cfg *config.Config) resilience.ManagerConfig {
	mc := resilience.DefaultManagerConfig()
	mc.Breaker.FailureThreshold = cfg.Resilience.BreakerThreshold
	mc.Breaker.Cooldown = cfg.Resilience.BreakerCooldown
	mc.Executor.MaxRetries = cfg.Resilience.MaxRetries
	mc.Executor.RetryBaseDelay = cfg.Resilience.RetryBaseDelay
	mc.Executor.RetryMaxDelay = cfg.Resilience.RetryMaxDelay
	mc.Executor.RetryMultiplier = cfg.Resilience.RetryMultiplier
	mc.SweepInterval = cfg.Resilience.SweepInterval
	mc.CleanupInterval = cfg.Resilience.CleanupInterval
	mc.ResolvedRetention = cfg.Resilience.ResolvedRetention
	mc.BufferCapacity = cfg.Resilience.BufferCapacity
	mc.MemoryLimitMB = cfg.Resilience.MemoryLimitMB
	return mc
}
