package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kioskolabs/kiosko-sync/internal/models"
	"github.com/kioskolabs/kiosko-sync/pkg/metrics"
)

// ErrMalformed marks deliveries that can never be persisted. The
// consumer drops these instead of requeueing them forever.
var ErrMalformed = errors.New("malformed sale delivery")

// SaleRepository is the hub's write surface on the system of record.
type SaleRepository interface {
	Insert(ctx context.Context, sale models.SaleRecord) error
	Exists(ctx context.Context, id string) (bool, error)
}

// Handler persists sale deliveries into the system of record. Terminals
// deliver at-least-once, so the handler is where duplicates die: ids
// already present are acknowledged without a second insert.
type Handler struct {
	repo   SaleRepository
	logger *slog.Logger
}

func NewHandler(repo SaleRepository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// ProcessSale decodes and persists one delivery. A nil return means the
// sale is durably in the system of record (inserted now or previously)
// and the delivery may be acked.
func (h *Handler) ProcessSale(ctx context.Context, body []byte) error {
	start := time.Now()

	sale, err := models.UnmarshalSale(body)
	if err != nil {
		h.logger.Error("Failed to decode sale delivery", "error", err)
		metrics.HubMessages.WithLabelValues("malformed", "unknown").Inc()
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if sale.ID == "" || sale.TerminalID == "" {
		h.logger.Error("Sale delivery missing identity", "sale_id", sale.ID, "terminal_id", sale.TerminalID)
		metrics.HubMessages.WithLabelValues("malformed", sale.TerminalID).Inc()
		return fmt.Errorf("%w: missing id or terminal id", ErrMalformed)
	}

	l := h.logger.With("sale_id", sale.ID, "terminal_id", sale.TerminalID)

	// Fast duplicate check before writing. The insert itself is
	// conflict-safe, so a race between check and insert is harmless.
	exists, err := h.repo.Exists(ctx, sale.ID)
	if err != nil {
		return fmt.Errorf("duplicate check failed: %w", err)
	}
	if exists {
		l.Info("Sale already processed, acking duplicate delivery")
		metrics.HubMessages.WithLabelValues("duplicate", sale.TerminalID).Inc()
		return nil
	}

	if err := h.repo.Insert(ctx, sale); err != nil {
		metrics.HubMessages.WithLabelValues("error", sale.TerminalID).Inc()
		return err
	}

	metrics.HubMessages.WithLabelValues("inserted", sale.TerminalID).Inc()
	metrics.HubIngestDuration.Observe(time.Since(start).Seconds())
	l.Info("Sale persisted to system of record", "total", sale.Total)
	return nil
}
