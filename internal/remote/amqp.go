package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kioskolabs/kiosko-sync/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// ExchangeSales is the topic exchange terminals publish sales to.
	ExchangeSales = "pos.sales"

	confirmTimeout = 10 * time.Second
)

// RoutingKey builds the per-terminal routing key for a sale, letting
// the hub bind a single wildcard queue or per-terminal queues.
func RoutingKey(terminalID string) string {
	return fmt.Sprintf("pos.terminal.%s.sale", terminalID)
}

// AMQPBridge delivers sales to the system of record through RabbitMQ.
// A publisher confirm counts as the remote acknowledgment: the broker
// has persisted the delivery and the hub completes the insert with the
// same insert-or-ignore semantics.
type AMQPBridge struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	logger     *slog.Logger
	connClosed chan *amqp.Error
	chanClosed chan *amqp.Error
	closeOnce  sync.Once
	healthy    atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewAMQPBridge connects, declares the sales exchange, and enables
// publisher confirms.
func NewAMQPBridge(url string, l *slog.Logger) (*AMQPBridge, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeSales, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare sales exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bridge := &AMQPBridge{
		conn:       conn,
		channel:    ch,
		logger:     l,
		connClosed: make(chan *amqp.Error, 1),
		chanClosed: make(chan *amqp.Error, 1),
		ctx:        ctx,
		cancel:     cancel,
	}

	bridge.healthy.Store(true)
	bridge.conn.NotifyClose(bridge.connClosed)
	bridge.channel.NotifyClose(bridge.chanClosed)

	go func() {
		select {
		case err := <-bridge.connClosed:
			bridge.healthy.Store(false)
			l.Warn("RabbitMQ connection closed", "error", err)
		case err := <-bridge.chanClosed:
			bridge.healthy.Store(false)
			l.Warn("RabbitMQ channel closed", "error", err)
		case <-bridge.ctx.Done():
			return
		}
	}()

	l.Info("Connected to RabbitMQ", "exchange", ExchangeSales)
	return bridge, nil
}

// Insert publishes one sale and blocks until the broker confirms it.
// An unconfirmed or nacked delivery is an error so the queue entry is
// retained for the next pass.
func (b *AMQPBridge) Insert(ctx context.Context, sale models.SaleRecord) error {
	if !b.IsHealthy() {
		return fmt.Errorf("broker connection is closed")
	}

	body, err := sale.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize sale: %w", err)
	}

	deferred, err := b.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		ExchangeSales,
		RoutingKey(sale.TerminalID),
		false,
		false,
		amqp.Publishing{
			Headers: amqp.Table{
				"sale_id":     sale.ID,
				"terminal_id": sale.TerminalID,
			},
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish call failed: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("RabbitMQ NACK received: sale not persisted")
		}
		return nil
	case <-time.After(confirmTimeout):
		return fmt.Errorf("publisher confirm timeout")
	}
}

// IsHealthy reports whether the connection and channel are still up.
func (b *AMQPBridge) IsHealthy() bool {
	return b.healthy.Load()
}

// Close shuts down the bridge. Safe to call more than once.
func (b *AMQPBridge) Close() error {
	b.closeOnce.Do(func() {
		b.logger.Info("Closing RabbitMQ bridge")
		b.cancel()
		if b.channel != nil {
			b.channel.Close()
		}
		if b.conn != nil {
			b.conn.Close()
		}
	})
	return nil
}
