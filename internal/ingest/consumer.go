// Package ingest consumes domain events from the platform queue and writes
// them into the inbox table, where the event-processing stage picks them up.
package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/comandocentral/edge-svc/internal/config"
	"github.com/comandocentral/edge-svc/internal/models"
	"github.com/comandocentral/edge-svc/internal/rabbitmq"
)

// IncomingEvent is the wire format produced by the storefront and back-office
// services.
type IncomingEvent struct {
	TenantID   uuid.UUID              `json:"tenant_id"`
	EventType  string                 `json:"event_type"`
	Payload    map[string]interface{} `json:"payload"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Consumer reads queue messages and inserts pending inbox events.
type Consumer struct {
	cfg         *config.RabbitMQConfig
	conn        *rabbitmq.Connection
	db          *gorm.DB
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	consumerTag string
	started     bool
}

// NewConsumer creates a consumer instance with dependencies.
func NewConsumer(cfg *config.RabbitMQConfig, conn *rabbitmq.Connection, db *gorm.DB, logger *zap.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		cfg:         cfg,
		conn:        conn,
		db:          db,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		consumerTag: fmt.Sprintf("inbox-ingest-%d", time.Now().Unix()),
	}
}

// Start begins consuming. The source queue must already exist.
func (c *Consumer) Start() error {
	if c.cfg.SourceQueue == "" {
		return fmt.Errorf("source queue is required")
	}

	if err := c.conn.SetQoS(c.cfg.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := c.startConsuming(); err != nil {
		return err
	}

	c.started = true
	c.logger.Info("Ingest consumer started",
		zap.String("source_queue", c.cfg.SourceQueue),
		zap.String("consumer_tag", c.consumerTag),
	)
	return nil
}

func (c *Consumer) startConsuming() error {
	messages, err := c.conn.ConsumeMessages(
		c.cfg.SourceQueue,
		c.consumerTag,
		false, // autoAck (we'll manually ACK)
		false, // exclusive
		false, // noLocal
		false, // noWait
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming from queue %s: %w", c.cfg.SourceQueue, err)
	}

	go c.processMessages(messages)

	return nil
}

// Stop gracefully stops the consumer.
func (c *Consumer) Stop() error {
	c.logger.Info("Stopping ingest consumer",
		zap.String("consumer_tag", c.consumerTag),
	)
	c.cancel()

	ch := c.conn.GetChannel()
	if ch != nil {
		if err := ch.Cancel(c.consumerTag, false); err != nil {
			c.logger.Error("Failed to cancel consumer",
				zap.String("consumer_tag", c.consumerTag),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (c *Consumer) processMessages(messages <-chan amqp.Delivery) {
	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("Ingest consumer context cancelled, stopping message processing")
			return
		case msg, ok := <-messages:
			if !ok {
				c.logger.Warn("Message channel closed, attempting to restart consumer...",
					zap.String("source_queue", c.cfg.SourceQueue),
				)
				for c.started {
					select {
					case <-c.ctx.Done():
						return
					default:
					}

					time.Sleep(2 * time.Second)

					if !c.conn.IsHealthy() {
						continue
					}

					if err := c.startConsuming(); err != nil {
						c.logger.Error("Failed to restart consuming after channel close, will retry",
							zap.String("source_queue", c.cfg.SourceQueue),
							zap.Error(err),
						)
						time.Sleep(5 * time.Second)
						continue
					}

					// New processing goroutine took over
					return
				}
				return
			}
			c.handleDelivery(msg)
		}
	}
}

// handleDelivery decodes the base64-encoded message, inserts the inbox row
// and ACKs; any failure NACKs without requeue (the producer side owns
// redelivery policy).
func (c *Consumer) handleDelivery(msg amqp.Delivery) {
	decoded, err := base64.StdEncoding.DecodeString(string(msg.Body))
	if err != nil {
		c.logger.Error("Failed to decode base64 message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		c.reject(msg)
		return
	}

	if err := c.handleEvent(decoded); err != nil {
		c.logger.Error("Failed to process message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		c.reject(msg)
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		c.reject(msg)
	}
}

func (c *Consumer) handleEvent(decoded []byte) error {
	var incoming IncomingEvent
	if err := json.Unmarshal(decoded, &incoming); err != nil {
		return fmt.Errorf("failed to unmarshal incoming event: %w", err)
	}

	if incoming.TenantID == uuid.Nil {
		return fmt.Errorf("incoming event has no tenant_id")
	}
	if _, err := models.ParseEventType(incoming.EventType); err != nil {
		return err
	}

	occurredAt := incoming.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	event := models.InboxEvent{
		ID:         uuid.New(),
		TenantID:   incoming.TenantID,
		EventType:  incoming.EventType,
		Payload:    incoming.Payload,
		OccurredAt: occurredAt,
		Status:     models.EventStatusPending,
	}

	if err := c.db.Create(&event).Error; err != nil {
		return fmt.Errorf("failed to insert inbox event: %w", err)
	}

	c.logger.Info("Inbox event recorded",
		zap.String("event_id", event.ID.String()),
		zap.String("tenant_id", event.TenantID.String()),
		zap.String("event_type", event.EventType),
	)
	return nil
}

func (c *Consumer) reject(msg amqp.Delivery) {
	if err := msg.Nack(false, false); err != nil {
		c.logger.Error("Failed to nack message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
	}
}
