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

	"github.com/kioskolabs/kiosko-sync/internal/api"
	"github.com/kioskolabs/kiosko-sync/internal/config"
	"github.com/kioskolabs/kiosko-sync/internal/connectivity"
	"github.com/kioskolabs/kiosko-sync/internal/inventory"
	"github.com/kioskolabs/kiosko-sync/internal/remote"
	"github.com/kioskolabs/kiosko-sync/internal/sales"
	"github.com/kioskolabs/kiosko-sync/internal/store"
	"github.com/kioskolabs/kiosko-sync/internal/syncer"
	"github.com/kioskolabs/kiosko-sync/pkg/infra"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("🛒 Kiosk terminal daemon initializing",
		"terminal_id", cfg.TerminalID,
		"remote_mode", cfg.RemoteMode,
	)

	// The local store must open or the terminal cannot sell; the remote
	// is dialed lazily so an offline boot still works.
	recordStore, err := store.Open(cfg.StorePath)
	if err != nil {
		logger.Error("FATAL: Failed to open local store", "path", cfg.StorePath, "error", err)
		os.Exit(1)
	}
	defer recordStore.Close()

	remoteStore := remote.NewReconnecting(remoteDialer(cfg, logger), logger)
	defer remoteStore.Close()

	monitor := connectivity.NewMonitor(cfg.ProbeAddr, cfg.ProbeInterval, logger)
	go monitor.Run(ctx)

	recorder := sales.NewRecorder(recordStore, logger)
	inv := inventory.NewService(recordStore, logger)

	engine := syncer.NewEngine(recordStore, remoteStore, monitor, logger)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		engine.Run(ctx, monitor.Events(), cfg.SyncInterval)
	}()

	handler := api.NewHandler(recorder, inv, engine, recordStore, monitor, cfg.TerminalID, logger)
	server := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("🚀 Terminal API online", "addr", cfg.APIAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("FATAL: API server failed", "error", err)
		stop()
	}

	<-engineDone
	logger.Info("✅ Terminal daemon shut down")
}

// remoteDialer picks the path to the system of record: direct Postgres
// inserts, or publishing to RabbitMQ for the hub to complete.
func remoteDialer(cfg *config.Config, logger *slog.Logger) remote.Dialer {
	switch cfg.RemoteMode {
	case config.RemoteAMQP:
		return func(ctx context.Context) (remote.Store, error) {
			return remote.NewAMQPBridge(cfg.RabbitMQURL, logger)
		}
	default:
		return func(ctx context.Context) (remote.Store, error) {
			pg, err := remote.NewPostgres(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return nil, err
			}
			if err := pg.EnsureSchema(ctx); err != nil {
				pg.Close()
				return nil, err
			}
			return pg, nil
		}
	}
}
