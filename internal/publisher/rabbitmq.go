package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"inventory_sync/internal/domain"
)

// RabbitMQ publishes inventory-change events for downstream consumers
// (site cache invalidation, search index refresh).
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

type InventoryEvent struct {
	Action    string     `json:"action"` // "vehicle.sold" or "inventory.synced"
	VIN       string     `json:"vin,omitempty"`
	SoldAt    *time.Time `json:"sold_at,omitempty"`
	Processed int        `json:"processed,omitempty"`
	Sold      int        `json:"sold,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// PublishSold emits one event per vehicle transitioned to Sold by omission.
func (r *RabbitMQ) PublishSold(ctx context.Context, vin string, soldAt time.Time) error {
	return r.publish(ctx, InventoryEvent{
		Action:    "vehicle.sold",
		VIN:       vin,
		SoldAt:    &soldAt,
		Timestamp: time.Now().UTC(),
	})
}

// PublishSynced emits one summary event per completed snapshot run.
func (r *RabbitMQ) PublishSynced(ctx context.Context, stats *domain.SyncStats) error {
	return r.publish(ctx, InventoryEvent{
		Action:    "inventory.synced",
		Processed: stats.Processed,
		Sold:      stats.Sold,
		Timestamp: time.Now().UTC(),
	})
}

func (r *RabbitMQ) publish(ctx context.Context, event InventoryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published inventory event",
		"action", event.Action,
		"vin", event.VIN,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
