package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kioskolabs/kiosko-sync/internal/broker"
	"github.com/kioskolabs/kiosko-sync/internal/config"
	"github.com/kioskolabs/kiosko-sync/internal/hub"
	"github.com/kioskolabs/kiosko-sync/internal/remote"
	"github.com/kioskolabs/kiosko-sync/pkg/infra"
	_ "github.com/kioskolabs/kiosko-sync/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg.LogLevel, cfg.LogFormat, "hub.log")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("🏢 Hub ingest daemon initializing")

	repo, err := connectPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("FATAL: Postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	handler := hub.NewHandler(repo, logger)

	go startObservabilityServer(cfg.MetricsAddr, logger)

	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for {
		select {
		case <-ctx.Done():
			logger.Info("✅ Hub shut down")
			return
		default:
			consumer, err := broker.NewConsumer(cfg.RabbitMQURL, handler, logger)
			if err != nil {
				wait := connBackoff.Next()
				logger.Error("RabbitMQ connection failed, retrying", "wait", wait, "error", err)

				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
					continue
				}
			}

			connBackoff.Reset()
			logger.Info("✅ Connected to broker, ingesting sales")

			if err := consumer.Listen(ctx); err != nil {
				logger.Error("⚠️ Consumer connection lost", "error", err)
			}
			consumer.Close()
		}
	}
}

// connectPostgres retries until the system of record answers; the hub
// has no useful work to do without it.
func connectPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*remote.Postgres, error) {
	backoff := infra.NewBackoff(1*time.Second, 30*time.Second, 2.0)

	for {
		repo, err := remote.NewPostgres(ctx, cfg.DatabaseURL, logger)
		if err == nil {
			if err := repo.EnsureSchema(ctx); err != nil {
				repo.Close()
				return nil, err
			}
			return repo, nil
		}

		wait := backoff.Next()
		logger.Error("Postgres connection failed, retrying", "wait", wait, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func startObservabilityServer(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("HUB ALIVE"))
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("📊 Observability server online", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Observability server failed", "error", err)
	}
}
