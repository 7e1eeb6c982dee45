package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kioskolabs/kiosko-sync/internal/models"
)

// Store is the remote system of record from the terminal's side.
type Store interface {
	Insert(ctx context.Context, sale models.SaleRecord) error
}

// Dialer establishes a concrete remote client.
type Dialer func(ctx context.Context) (Store, error)

// Reconnecting wraps a Dialer and connects lazily, on the first insert
// that needs the link. An offline terminal therefore boots and keeps
// selling; failed dials surface as per-record sync failures, which the
// engine already retries. A client that reports itself unhealthy is
// dropped and redialed on the next insert.
type Reconnecting struct {
	dial   Dialer
	logger *slog.Logger

	mu      sync.Mutex
	current Store
}

func NewReconnecting(dial Dialer, l *slog.Logger) *Reconnecting {
	return &Reconnecting{dial: dial, logger: l}
}

func (r *Reconnecting) Insert(ctx context.Context, sale models.SaleRecord) error {
	client, err := r.client(ctx)
	if err != nil {
		return fmt.Errorf("remote unavailable: %w", err)
	}

	if err := client.Insert(ctx, sale); err != nil {
		if hc, ok := client.(interface{ IsHealthy() bool }); ok && !hc.IsHealthy() {
			r.drop(client)
		}
		return err
	}
	return nil
}

func (r *Reconnecting) client(ctx context.Context) (Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return r.current, nil
	}

	client, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Remote store link established")
	r.current = client
	return client, nil
}

func (r *Reconnecting) drop(old Store) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != old {
		return
	}
	r.logger.Warn("Remote store link lost, will redial on next insert")
	r.closeLocked(old)
	r.current = nil
}

// Close releases the underlying client, if any.
func (r *Reconnecting) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.closeLocked(r.current)
		r.current = nil
	}
}

func (r *Reconnecting) closeLocked(s Store) {
	switch c := s.(type) {
	case interface{ Close() error }:
		c.Close()
	case interface{ Close() }:
		c.Close()
	}
}
