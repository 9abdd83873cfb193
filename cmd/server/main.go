package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"

	"ossim/backend/internal/api"
	"ossim/backend/internal/audit"
	"ossim/backend/internal/auth"
	"ossim/backend/internal/engine"
	"ossim/backend/internal/metrics"
	"ossim/backend/internal/security"
	"ossim/backend/internal/snapshots"
	"ossim/backend/internal/storage"
	"ossim/backend/pkg/config"
	"ossim/backend/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "ossim:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open result store: %w", err)
	}
	defer results.Close()

	auditLogger, err := audit.NewAuditLogger(audit.AuditConfig{
		LogPath:       cfg.Audit.LogPath,
		BufferSize:    cfg.Audit.BufferSize,
		FlushInterval: cfg.Audit.FlushInterval,
	}, logger)
	if err != nil {
		return err
	}
	defer auditLogger.Close()

	snapManager, err := snapshots.NewSnapshotManager(cfg.Snapshots.Dir)
	if err != nil {
		return err
	}

	authHandlers, err := auth.NewAuthHandlers(cfg.Auth, auditLogger)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	defaults, err := cfg.Engine()
	if err != nil {
		return err
	}

	runs := storage.NewRunRegistry(cfg.Simulation.MaxRuns)
	defer runs.StopAll()

	collector := metrics.NewCollector(cfg.Metrics.MaxDataPoints)
	monitor := metrics.NewMonitor(collector, cfg.Metrics.MaxAlerts, logger)
	monitor.SetThreshold(metrics.MetricMemoryUsage, metrics.Threshold{MaxValue: cfg.Metrics.Thresholds.MemoryUsage, Enabled: cfg.Metrics.Thresholds.MemoryUsage > 0})
	monitor.SetThreshold(metrics.MetricFaultRate, metrics.Threshold{MaxValue: cfg.Metrics.Thresholds.FaultRate, Enabled: cfg.Metrics.Thresholds.FaultRate > 0})
	monitor.SetThreshold(metrics.MetricConflicts, metrics.Threshold{MaxValue: cfg.Metrics.Thresholds.Conflicts, Enabled: cfg.Metrics.Thresholds.Conflicts > 0})
	reporter := metrics.NewReporter(collector, monitor)

	handlers := api.NewHandlers(runs, results, monitor, auditLogger, api.HandlersConfig{
		Defaults: defaults,
		Runner: engine.RunnerConfig{
			Interval: cfg.Simulation.StepInterval,
			LogTail:  cfg.Simulation.LogTail,
		},
		StorageName: strings.ToLower(cfg.Storage.Driver),
	}, logger)

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	api.SetupRoutes(r, api.Router{
		Handlers:  handlers,
		Auth:      authHandlers,
		Metrics:   metrics.NewMetricsHandlers(collector, monitor, reporter, runs, results),
		Snapshots: snapshots.NewSnapshotHandlers(snapManager, runs, auditLogger),
		Security:  security.NewSecurityMiddleware(cfg.Security),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("OS simulator API starting",
			"addr", srv.Addr,
			"policy", defaults.Policy,
			"replacement", defaults.Replacement,
			"storage", cfg.Storage.Driver,
			"auth", cfg.Auth.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "live_runs", runs.Len())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
