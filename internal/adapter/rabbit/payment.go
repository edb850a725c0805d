package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/pkg/logger"
	wrap "github.com/ecodeli/delivery-tracking-system/pkg/logger/wrapper"
	"github.com/ecodeli/delivery-tracking-system/pkg/rabbit"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

const (
	PaymentExchange = "payment_topic"

	keyPaymentRelease = "payment.command.release"
	keyPaymentFlag    = "payment.command.flag_review"
)

const (
	actionRelease = "release"
	actionFlag    = "flag_review"
)

// PaymentReader is the local read model of payment state.
type PaymentReader interface {
	GetPayment(ctx context.Context, deliveryID uuid.UUID) (*models.Payment, error)
}

// PaymentGateway is the payment side of the system: reads go to the local
// read model, commands go to the payment provider through the payment
// exchange. Command handling is asynchronous; the provider reports back via
// the payment status queue.
type PaymentGateway struct {
	client   *rabbit.RabbitMQ
	reads    PaymentReader
	exchange string

	l logger.Logger
}

func NewPaymentGateway(client *rabbit.RabbitMQ, reads PaymentReader, log logger.Logger) *PaymentGateway {
	return &PaymentGateway{
		client:   client,
		reads:    reads,
		exchange: PaymentExchange,
		l:        log,
	}
}

func (g *PaymentGateway) GetPayment(ctx context.Context, deliveryID uuid.UUID) (*models.Payment, error) {
	return g.reads.GetPayment(ctx, deliveryID)
}

// ReleaseHeldFunds asks the provider to release the escrow for the delivery.
func (g *PaymentGateway) ReleaseHeldFunds(ctx context.Context, deliveryID uuid.UUID) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_payment_release")
	return g.publishCommand(ctx, deliveryID, actionRelease, "", keyPaymentRelease)
}

// FlagForReview asks the provider to hold the payment for manual review.
func (g *PaymentGateway) FlagForReview(ctx context.Context, deliveryID uuid.UUID, reason string) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_payment_flag")
	return g.publishCommand(ctx, deliveryID, actionFlag, reason, keyPaymentFlag)
}

func (g *PaymentGateway) publishCommand(ctx context.Context, deliveryID uuid.UUID, action, reason, key string) error {
	if err := g.client.EnsureConnection(ctx); err != nil {
		g.l.Error(ctx, "ensure connection failed", err)
		return wrap.Error(ctx, err)
	}

	payment, err := g.reads.GetPayment(ctx, deliveryID)
	if err != nil {
		return wrap.Error(ctx, err)
	}

	cmd := models.PaymentCommand{
		DeliveryID:    deliveryID,
		PaymentID:     payment.ID,
		Action:        action,
		Reason:        reason,
		CorrelationID: uuid.MustNew().String(),
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to marshal payment command: %w", err))
	}

	if err := retry(5, time.Second, func() error {
		return g.client.Channel.PublishWithContext(
			ctx,
			g.exchange,
			key,
			true,  // mandatory
			false, // immediate
			amqp091.Publishing{
				ContentType:   "application/json",
				CorrelationId: cmd.CorrelationID,
				Body:          body,
				Timestamp:     time.Now(),
			},
		)
	}); err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to publish payment command: %w", err))
	}

	return nil
}
