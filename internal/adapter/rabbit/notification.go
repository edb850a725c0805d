package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/pkg/logger"
	wrap "github.com/ecodeli/delivery-tracking-system/pkg/logger/wrapper"
	"github.com/ecodeli/delivery-tracking-system/pkg/rabbit"
)

const NotificationExchange = "notification_topic"

// NotificationBroker publishes user notifications to the notification
// exchange. The notification service on the other side owns delivery to the
// user's devices.
type NotificationBroker struct {
	client   *rabbit.RabbitMQ
	exchange string

	l logger.Logger
}

func NewNotificationBroker(client *rabbit.RabbitMQ, log logger.Logger) *NotificationBroker {
	return &NotificationBroker{
		client:   client,
		exchange: NotificationExchange,
		l:        log,
	}
}

// Notify publishes one notification with routing key
// "notification.{kind}", e.g. "notification.delivery_update".
func (b *NotificationBroker) Notify(ctx context.Context, n models.Notification) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_notification")

	if err := b.client.EnsureConnection(ctx); err != nil {
		b.l.Error(ctx, "ensure connection failed", err)
		return wrap.Error(ctx, err)
	}

	body, err := json.Marshal(n)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to marshal notification: %w", err))
	}

	key := fmt.Sprintf("notification.%s", strings.ToLower(string(n.Kind)))

	if err := retry(5, time.Second, func() error {
		return b.client.Channel.PublishWithContext(
			ctx,
			b.exchange,
			key,
			true,  // mandatory
			false, // immediate
			amqp091.Publishing{
				ContentType: "application/json",
				Body:        body,
				Timestamp:   time.Now(),
			},
		)
	}); err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to publish notification: %w", err))
	}

	return nil
}
