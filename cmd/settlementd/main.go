package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atlasbank/settlement-core/internal/audit"
	"github.com/atlasbank/settlement-core/internal/bank"
	"github.com/atlasbank/settlement-core/internal/config"
	"github.com/atlasbank/settlement-core/internal/history"
	"github.com/atlasbank/settlement-core/internal/instructions"
	"github.com/atlasbank/settlement-core/internal/logging"
	"github.com/atlasbank/settlement-core/internal/repository"
	"github.com/atlasbank/settlement-core/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("settlementd", cfg.LogLevel, cfg.AppEnv)

	db, err := repository.Connect(context.Background(), cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime(),
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime(),
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := repository.NewStore(db)
	recorder := audit.NewRecorder(store.Audit)

	registry := bank.NewRegistry()
	if err := rehydrate(context.Background(), registry, store); err != nil {
		slog.Error("failed to rehydrate accounts", "error", err)
		os.Exit(1)
	}

	queue := settlement.NewQueue()
	svc := bank.NewService(registry, history.New(), queue, store, recorder)

	worker := settlement.NewWorker(
		queue,
		settlement.NewSnapshotSettler(store.Transactions),
		recorder,
		logger,
		cfg.SettlementInterval(),
		cfg.SettlementBatchSize,
		cfg.SettlementMaxAttempts,
	)

	ctx, cancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	metricsSrv := startMetricsServer(cfg.MetricsPort)

	if cfg.InstructionsPath != "" {
		if err := applyInstructionFeed(ctx, cfg.InstructionsPath, svc, registry); err != nil {
			slog.Error("instruction feed failed", "path", cfg.InstructionsPath, "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cancel()

	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		slog.Error("settlement worker did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server forced to shutdown", "error", err)
	}
	slog.Info("stopped")
}

// applyInstructionFeed runs the startup batch of operations against the
// service; the worker settles whatever the batch enqueues.
func applyInstructionFeed(ctx context.Context, path string, svc *bank.Service, registry *bank.Registry) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("applyInstructionFeed: %w", err)
	}
	defer f.Close()

	res, err := instructions.NewApplier(svc, registry).Apply(ctx, f)
	if err != nil {
		return fmt.Errorf("applyInstructionFeed: %w", err)
	}
	slog.Info("instruction feed applied",
		"path", path,
		"applied", res.Applied,
		"rejected", res.Rejected,
		"malformed", res.Malformed,
	)
	return nil
}

// rehydrate loads persisted account snapshots into the in-memory
// registry so balances survive a restart.
func rehydrate(ctx context.Context, registry *bank.Registry, store *repository.Store) error {
	accounts, err := store.Accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}
	for i := range accounts {
		if err := registry.Register(&accounts[i]); err != nil {
			return fmt.Errorf("rehydrate: %w", err)
		}
	}
	slog.Info("accounts rehydrated", "count", len(accounts))
	return nil
}

func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", handleHealth)

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return srv
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		slog.Error("failed to write health response", "error", err)
	}
}
