package rabbit

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/pkg/logger"
	wrap "github.com/ecodeli/delivery-tracking-system/pkg/logger/wrapper"
	"github.com/ecodeli/delivery-tracking-system/pkg/rabbit"
)

const (
	queuePaymentStatus = "payment_status_updates"
	keyPaymentStatus   = "payment.status.*"
)

// PaymentStatusHandler processes one provider callback.
type PaymentStatusHandler func(ctx context.Context, msg models.PaymentStatusMessage) error

// PaymentStatusConsumer listens for payment provider callbacks. Each message
// refreshes the local payment read model and queues the delivery for a
// reconciliation check.
type PaymentStatusConsumer struct {
	client *rabbit.RabbitMQ
	l      logger.Logger
}

func NewPaymentStatusConsumer(client *rabbit.RabbitMQ, l logger.Logger) *PaymentStatusConsumer {
	return &PaymentStatusConsumer{client: client, l: l}
}

func (c *PaymentStatusConsumer) declareAndBindQueue(ctx context.Context) (amqp.Queue, error) {
	q, err := c.client.Channel.QueueDeclare(queuePaymentStatus, true, false, false, false, nil)
	if err != nil {
		return q, wrap.Error(ctx, err)
	}

	if err := c.client.Channel.QueueBind(q.Name, keyPaymentStatus, PaymentExchange, false, nil); err != nil {
		return q, wrap.Error(ctx, err)
	}

	return q, nil
}

func (c *PaymentStatusConsumer) handleMessage(ctx context.Context, fn PaymentStatusHandler, msg amqp.Delivery) {
	var status models.PaymentStatusMessage
	if err := json.Unmarshal(msg.Body, &status); err != nil {
		c.l.Error(ctx, "decode payment status failed", err)
		_ = msg.Nack(false, false)
		return
	}

	ctx = wrap.WithDeliveryID(ctx, status.DeliveryID.String())

	if err := fn(ctx, status); err != nil {
		c.l.Error(ctx, "payment status handler failed", err)
		_ = msg.Nack(false, isRecoverableError(err))
		return
	}

	if err := msg.Ack(false); err != nil {
		c.l.Warn(ctx, "ack failed", "err", err.Error())
	}
}

// Consume runs the consumer loop until the context is cancelled. Connection
// loss is handled by re-declaring the topology and resubscribing.
func (c *PaymentStatusConsumer) Consume(ctx context.Context, fn PaymentStatusHandler) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_consume_payment_status")

	for {
		if ctx.Err() != nil {
			c.l.Debug(ctx, "payment status consumer stopped by context")
			return nil
		}

		if err := c.client.EnsureConnection(ctx); err != nil {
			c.l.Error(ctx, "ensure connection failed", err)
			time.Sleep(2 * time.Second)
			continue
		}

		if err := c.client.Channel.ExchangeDeclare(PaymentExchange, "topic", true, false, false, false, nil); err != nil {
			c.l.Error(ctx, "declare exchange failed", err)
			time.Sleep(3 * time.Second)
			continue
		}

		q, err := c.declareAndBindQueue(ctx)
		if err != nil {
			c.l.Error(ctx, "declare queue failed", err)
			time.Sleep(2 * time.Second)
			continue
		}

		msgs, err := c.client.Channel.Consume(q.Name, "", false, false, false, false, nil)
		if err != nil {
			c.l.Error(ctx, "consume failed", err)
			time.Sleep(2 * time.Second)
			continue
		}

		c.l.Info(ctx, "payment status consumer started", "queue", q.Name)

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-msgs:
				if !ok {
					c.l.Warn(ctx, "payment status channel closed, resubscribing")
					break consumeLoop
				}
				c.handleMessage(ctx, fn, msg)
			}
		}
	}
}
