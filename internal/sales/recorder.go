package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kioskolabs/kiosko-sync/internal/models"
	"github.com/kioskolabs/kiosko-sync/internal/store"
	"github.com/kioskolabs/kiosko-sync/pkg/metrics"

	"github.com/google/uuid"
)

var (
	// ErrEmptyCart is returned when a sale is attempted with no line items.
	ErrEmptyCart = errors.New("cart must not be empty")

	// ErrInvalidTotal is returned for a negative sale total.
	ErrInvalidTotal = errors.New("total must not be negative")

	// ErrMissingTerminal is returned when no terminal id was supplied.
	ErrMissingTerminal = errors.New("terminal id is required")

	// ErrInvalidLineItem is returned for a line with qty <= 0 or a
	// negative unit price.
	ErrInvalidLineItem = errors.New("invalid line item")
)

// RecordStore is the slice of the local store the recorder needs.
type RecordStore interface {
	Update(ctx context.Context, fn func(tx *store.Tx) error) error
}

// Recorder commits sales into the local store. It owns id generation and
// timestamping; it does not own retry policy (the sync engine does).
type Recorder struct {
	store  RecordStore
	logger *slog.Logger
}

func NewRecorder(s RecordStore, l *slog.Logger) *Recorder {
	return &Recorder{store: s, logger: l}
}

// CreateSale validates the cart, builds the SaleRecord, and writes it to
// the sales collection and the sync queue in a single transaction. Input
// errors are rejected before anything is persisted; store errors are
// propagated to the caller untouched.
func (r *Recorder) CreateSale(ctx context.Context, cart []models.LineItem, total float64, terminalID string) (*models.SaleRecord, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}
	if total < 0 {
		return nil, ErrInvalidTotal
	}
	if terminalID == "" {
		return nil, ErrMissingTerminal
	}
	for i, item := range cart {
		if item.Qty <= 0 || item.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: line %d (sku %q)", ErrInvalidLineItem, i, item.SKU)
		}
	}

	sale := models.SaleRecord{
		ID:         uuid.NewString(),
		TerminalID: terminalID,
		Items:      cart,
		Total:      total,
		CreatedAt:  time.Now().UTC(),
		Synced:     false,
	}

	payload, err := sale.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize sale: %w", err)
	}

	// Queue entry first: queue membership is the needs-sync signal, so a
	// store downgraded to single-collection writes still leaves the sale
	// queued if interrupted between the two puts.
	err = r.store.Update(ctx, func(tx *store.Tx) error {
		if err := tx.Put(ctx, models.CollectionSyncQueue, sale.ID, payload); err != nil {
			return err
		}
		return tx.Put(ctx, models.CollectionSales, sale.ID, payload)
	})
	if err != nil {
		r.logger.Error("Failed to commit sale", "terminal_id", terminalID, "error", err)
		return nil, fmt.Errorf("failed to commit sale: %w", err)
	}

	metrics.SalesRecorded.Inc()
	r.logger.Info("Sale committed",
		"sale_id", sale.ID,
		"terminal_id", terminalID,
		"items", len(cart),
		"total", total,
	)

	return &sale, nil
}
