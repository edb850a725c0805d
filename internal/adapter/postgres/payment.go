package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
	"github.com/ecodeli/delivery-tracking-system/pkg/metrics"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

// PaymentRepo is the local read model of the payment provider's state, kept
// current by the payment status consumer.
type PaymentRepo struct {
	db *pgxpool.Pool
}

func NewPaymentRepo(db *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{db: db}
}

func (r *PaymentRepo) GetPayment(ctx context.Context, deliveryID uuid.UUID) (*models.Payment, error) {
	q := TxorDB(ctx, r.db)
	start := time.Now()

	query := `
		SELECT id, delivery_id, status, updated_at
		FROM payments
		WHERE delivery_id = $1;`

	var p models.Payment
	err := q.QueryRow(ctx, query, deliveryID).Scan(&p.ID, &p.DeliveryID, &p.Status, &p.UpdatedAt)
	metrics.RecordDatabaseQuery(serviceName, "payment_get", queryStatus(err), time.Since(start))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repo: GetPayment: %w", err)
	}
	return &p, nil
}

// UpsertStatus records the provider-reported status for a payment.
func (r *PaymentRepo) UpsertStatus(ctx context.Context, payment models.Payment) error {
	q := TxorDB(ctx, r.db)
	start := time.Now()

	query := `
		INSERT INTO payments (id, delivery_id, status, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at;`

	_, err := q.Exec(ctx, query, payment.ID, payment.DeliveryID, payment.Status, payment.UpdatedAt)
	metrics.RecordDatabaseQuery(serviceName, "payment_upsert_status", queryStatus(err), time.Since(start))
	if err != nil {
		return fmt.Errorf("payment repo: UpsertStatus: %w", err)
	}
	return nil
}
