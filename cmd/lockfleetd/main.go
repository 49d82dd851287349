// Command lockfleetd runs the lock fleet HTTP service: it loads
// configuration, stands up the configured lock backend and storage
// backend, and serves the transfer/withdraw/balance and lock-management
// endpoints described in spec.md.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lockfleet/lockfleet"
	"github.com/lockfleet/lockfleet/internal/banking"
	"github.com/lockfleet/lockfleet/internal/config"
	"github.com/lockfleet/lockfleet/internal/httpapi"
	"github.com/lockfleet/lockfleet/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := lockfleet.NewProductionZapLogger()
	if err != nil {
		return err
	}

	metrics := lockfleet.NewPrometheusMetrics(prometheus.NewRegistry())

	lock, err := cfg.BuildLock(cfg.Backend.Active, logger, metrics)
	if err != nil {
		return err
	}

	telemetry := lockfleet.NewTelemetry(cfg.BuildFleetCounter(logger, metrics), time.Now())
	attachTelemetry(lock, telemetry)

	registry := lockfleet.NewRegistry(lock, logger, metrics)
	coordinator := lockfleet.NewCoordinator(lock, logger, metrics)
	health := lockfleet.NewHealthMonitor(registry, logger, metrics)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	backend, err := buildStorageBackend(ctx, cfg.Storage)
	cancel()
	if err != nil {
		return err
	}

	store := storage.NewStoreWithObservability(backend, logger, metrics)

	orchestrator := banking.NewOrchestrator(store, coordinator, logger, metrics, func() lockfleet.BackendName {
		return registry.Active().Name()
	}).WithTelemetry(telemetry)

	handlers := httpapi.NewHandlers(orchestrator, registry, telemetry, health, cfg, logger).
		WithLockManager(cfg.BuildLockManager(logger, metrics))
	router := httpapi.NewRouter(handlers, logger, cfg.HTTP.CORSOrigins)

	healthCtx, healthCancel := context.WithCancel(context.Background())
	defer healthCancel()
	health.Start(healthCtx)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lockfleetd listening", "addr", cfg.HTTP.Addr, "backend", cfg.Backend.Active)
		serverErr <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sigCh:
		logger.Info("shutting down lockfleetd")
		health.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		_ = backend.Close()
	}

	return nil
}

// attachTelemetry wires telemetry into whichever concrete Lock
// implementation cfg.BuildLock produced, so the process's initial backend
// reports real acquire/release activity on /lock-management/status.
func attachTelemetry(lock lockfleet.Lock, telemetry *lockfleet.Telemetry) {
	switch backend := lock.(type) {
	case *lockfleet.RedisLock:
		backend.WithTelemetry(telemetry)
	case *lockfleet.ZKLock:
		backend.WithTelemetry(telemetry)
	}
}

func buildStorageBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "", "filesystem":
		basePath := cfg.BasePath
		if basePath == "" {
			basePath = "./data"
		}
		return storage.NewFilesystemBackend(basePath), nil
	case "postgres":
		return storage.NewPostgresBackend(ctx, storage.PostgresConfig{DSN: cfg.DSN})
	case "gcs":
		return storage.NewGCSBackend(ctx, storage.GCSConfig{Bucket: cfg.Bucket})
	default:
		return nil, lockfleet.WithContext(lockfleet.ErrInvalidConfig, map[string]interface{}{
			"field":  "storage.backend",
			"value":  cfg.Backend,
			"reason": "must be one of filesystem, postgres, gcs",
		})
	}
}
