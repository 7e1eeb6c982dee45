package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kioskolabs/kiosko-sync/internal/hub"
	"github.com/kioskolabs/kiosko-sync/internal/remote"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	hubQueue      = "pos.sales.hub"
	hubRoutingKey = "pos.terminal.#"

	// requeueThrottle slows redelivery after a transient failure so a
	// struggling Postgres is not hammered.
	requeueThrottle = 5 * time.Second
)

// SaleHandler persists one sale delivery.
type SaleHandler interface {
	ProcessSale(ctx context.Context, body []byte) error
}

// Consumer feeds sale deliveries from RabbitMQ into the hub handler.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	handler SaleHandler
	logger  *slog.Logger
}

func NewConsumer(url string, handler SaleHandler, logger *slog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	// Prefetch 1: one delivery at a time keeps ingest ordering simple
	// and duplicate windows small.
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: ch,
		handler: handler,
		logger:  logger,
	}, nil
}

// Listen binds the hub queue to the sales exchange and consumes until
// the context is canceled or the connection drops.
func (c *Consumer) Listen(ctx context.Context) error {
	q, err := c.channel.QueueDeclare(hubQueue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare hub queue: %w", err)
	}

	if err := c.channel.QueueBind(q.Name, hubRoutingKey, remote.ExchangeSales, false, nil); err != nil {
		return fmt.Errorf("failed to bind hub queue: %w", err)
	}

	msgs, err := c.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Hub consumer online", "queue", q.Name, "routing_key", hubRoutingKey)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			err := c.handler.ProcessSale(ctx, d.Body)
			switch {
			case err == nil:
				if err := d.Ack(false); err != nil {
					c.logger.Error("Failed to ack delivery", "error", err)
				}
			case errors.Is(err, hub.ErrMalformed):
				// Poison message: requeueing would loop forever.
				c.logger.Error("Dropping malformed delivery", "error", err)
				d.Nack(false, false)
			default:
				c.logger.Error("Processing failed, requeueing", "error", err)
				time.Sleep(requeueThrottle)
				d.Nack(false, true)
			}
		}
	}
}

// Close terminates the consumer's broker resources.
func (c *Consumer) Close() {
	c.logger.Info("Shutting down hub consumer")
	c.channel.Close()
	c.conn.Close()
}
