package syncer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kioskolabs/kiosko-sync/internal/models"
	"github.com/kioskolabs/kiosko-sync/internal/store"
	"github.com/kioskolabs/kiosko-sync/pkg/infra"
	"github.com/kioskolabs/kiosko-sync/pkg/metrics"
)

// RemoteStore is the system of record. Insert must be idempotent by
// record id (insert-or-ignore), because the engine cannot distinguish
// "never sent" from "sent but acknowledgment lost".
type RemoteStore interface {
	Insert(ctx context.Context, sale models.SaleRecord) error
}

// Connectivity reports whether the remote endpoint is reachable.
type Connectivity interface {
	IsOnline() bool
}

// DrainStats summarizes one drain pass.
type DrainStats struct {
	Snapshot  int  // queue entries in the snapshot
	Delivered int  // acked by the remote and removed from the queue
	Failed    int  // left in the queue for the next pass
	Offline   bool // pass skipped: terminal offline
	Coalesced bool // pass skipped: another pass already draining
}

// Engine reconciles the pending-sync queue with the remote store. One
// drain pass runs at a time; overlapping triggers are coalesced, never
// queued.
type Engine struct {
	store    *store.Store
	remote   RemoteStore
	conn     Connectivity
	logger   *slog.Logger
	draining atomic.Bool
	triggers chan struct{}
}

func NewEngine(s *store.Store, remote RemoteStore, conn Connectivity, l *slog.Logger) *Engine {
	return &Engine{
		store:    s,
		remote:   remote,
		conn:     conn,
		logger:   l,
		triggers: make(chan struct{}, 1),
	}
}

// Status reports "draining" while a pass is in progress, "idle" otherwise.
func (e *Engine) Status() string {
	if e.draining.Load() {
		return "draining"
	}
	return "idle"
}

// TriggerSync requests a drain pass without blocking. A request landing
// while a pass is in progress is dropped; the entries it would have
// covered are picked up by the next timer tick.
func (e *Engine) TriggerSync() {
	select {
	case e.triggers <- struct{}{}:
	default:
	}
}

// Drain runs one pass over a snapshot of the sync queue. Per-record
// failures are absorbed and logged so one bad record cannot block the
// rest; only a failed queue read is a pass-level error. Entries added
// after the snapshot wait for the next trigger.
func (e *Engine) Drain(ctx context.Context) (DrainStats, error) {
	var stats DrainStats

	if !e.conn.IsOnline() {
		stats.Offline = true
		e.logger.Debug("Drain skipped: terminal is offline")
		return stats, nil
	}

	if !e.draining.CompareAndSwap(false, true) {
		stats.Coalesced = true
		return stats, nil
	}
	defer e.draining.Store(false)

	start := time.Now()
	defer func() {
		metrics.DrainDuration.Observe(time.Since(start).Seconds())
	}()

	snapshot, err := e.store.GetAll(ctx, models.CollectionSyncQueue)
	if err != nil {
		return stats, err
	}
	stats.Snapshot = len(snapshot)
	if len(snapshot) == 0 {
		metrics.QueueBacklog.Set(0)
		return stats, nil
	}

	for _, entry := range snapshot {
		select {
		case <-ctx.Done():
			e.logger.Warn("Drain interrupted mid-pass", "delivered", stats.Delivered, "remaining", stats.Snapshot-stats.Delivered-stats.Failed)
			e.updateBacklog(context.Background())
			return stats, ctx.Err()
		default:
		}

		if e.deliver(ctx, entry) {
			stats.Delivered++
		} else {
			stats.Failed++
		}
	}

	e.updateBacklog(ctx)
	e.logger.Info("Drain pass complete",
		"snapshot", stats.Snapshot,
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return stats, nil
}

// deliver attempts one queue entry. It reports true when the entry was
// acked and removed from the queue, false when it must stay queued.
func (e *Engine) deliver(ctx context.Context, entry store.Record) bool {
	sale, err := models.UnmarshalSale(entry.Payload)
	if err != nil {
		// A payload that cannot be decoded will never deliver; it stays
		// queued for operator inspection rather than being dropped.
		e.logger.Error("Corrupt queue entry", "id", entry.ID, "error", err)
		return false
	}

	l := e.logger.With("sale_id", sale.ID, "terminal_id", sale.TerminalID)

	if err := e.remote.Insert(ctx, sale); err != nil {
		l.Warn("Remote insert failed, entry retained for next pass", "error", err)
		metrics.SyncDeliveries.WithLabelValues("retry", sale.TerminalID).Inc()
		return false
	}

	// Ack received: flip the synced flag and drop the queue entry in one
	// transaction. If this write fails the entry is retried next pass,
	// which is safe against the idempotent remote.
	sale.Synced = true
	payload, err := sale.Marshal()
	if err != nil {
		l.Error("Failed to reserialize acked sale", "error", err)
		return false
	}
	err = e.store.Update(ctx, func(tx *store.Tx) error {
		if err := tx.Put(ctx, models.CollectionSales, sale.ID, payload); err != nil {
			return err
		}
		return tx.Delete(ctx, models.CollectionSyncQueue, sale.ID)
	})
	if err != nil {
		l.Error("Sale acked remotely but local finalize failed", "error", err)
		metrics.SyncDeliveries.WithLabelValues("retry", sale.TerminalID).Inc()
		return false
	}

	metrics.SyncDeliveries.WithLabelValues("delivered", sale.TerminalID).Inc()
	l.Debug("Sale synchronized")
	return true
}

func (e *Engine) updateBacklog(ctx context.Context) {
	if n, err := e.store.Count(ctx, models.CollectionSyncQueue); err == nil {
		metrics.QueueBacklog.Set(float64(n))
	}
}

// Run blocks, draining on connectivity-restored events, explicit
// TriggerSync calls, and a periodic ticker. Failed passes back off with
// jitter; a clean pass resets the backoff.
func (e *Engine) Run(ctx context.Context, online <-chan struct{}, interval time.Duration) {
	backoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Sync engine started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Sync engine shutting down")
			return
		case <-online:
			e.logger.Info("Connectivity restored, draining queue")
		case <-e.triggers:
		case <-ticker.C:
		}

		if _, err := e.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := backoff.Next()
			e.logger.Error("Drain pass failed", "retry_in", wait, "error", err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			continue
		}
		backoff.Reset()
	}
}
