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

const serviceName = "tracking-service"

type DeliveryRepo struct {
	db *pgxpool.Pool
}

func NewDeliveryRepo(db *pgxpool.Pool) *DeliveryRepo {
	return &DeliveryRepo{db: db}
}

const deliveryColumns = `
	d.id, d.tracking_code, d.status, d.client_id, d.courier_id, d.payment_id,
	d.pickup_address, d.pickup_lat, d.pickup_lon,
	d.dropoff_address, d.dropoff_lat, d.dropoff_lon,
	d.created_at, d.accepted_at, d.picked_up_at, d.in_transit_at, d.delivered_at, d.cancelled_at`

func scanDelivery(row pgx.Row) (*models.Delivery, error) {
	var d models.Delivery
	err := row.Scan(
		&d.ID, &d.TrackingCode, &d.Status, &d.ClientID, &d.CourierID, &d.PaymentID,
		&d.Pickup.Address, &d.Pickup.Latitude, &d.Pickup.Longitude,
		&d.Dropoff.Address, &d.Dropoff.Latitude, &d.Dropoff.Longitude,
		&d.CreatedAt, &d.AcceptedAt, &d.PickedUpAt, &d.InTransitAt, &d.DeliveredAt, &d.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrDeliveryNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *DeliveryRepo) Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	q := TxorDB(ctx, r.db)
	start := time.Now()

	query := `SELECT` + deliveryColumns + ` FROM deliveries d WHERE d.id = $1;`

	d, err := scanDelivery(q.QueryRow(ctx, query, id))
	metrics.RecordDatabaseQuery(serviceName, "delivery_get", queryStatus(err), time.Since(start))
	if err != nil {
		if errors.Is(err, types.ErrDeliveryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("delivery repo: Get: %w", err)
	}
	return d, nil
}

func (r *DeliveryRepo) GetByTrackingCode(ctx context.Context, code string) (*models.Delivery, error) {
	q := TxorDB(ctx, r.db)
	start := time.Now()

	query := `SELECT` + deliveryColumns + ` FROM deliveries d WHERE d.tracking_code = $1;`

	d, err := scanDelivery(q.QueryRow(ctx, query, code))
	metrics.RecordDatabaseQuery(serviceName, "delivery_get_by_code", queryStatus(err), time.Since(start))
	if err != nil {
		if errors.Is(err, types.ErrDeliveryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("delivery repo: GetByTrackingCode: %w", err)
	}
	return d, nil
}

// UpdateStatus writes the status and every lifecycle timestamp. Timestamps
// that were never set stay NULL; the state machine sets each exactly once.
func (r *DeliveryRepo) UpdateStatus(ctx context.Context, d *models.Delivery) error {
	q := TxorDB(ctx, r.db)
	start := time.Now()

	query := `
		UPDATE deliveries
		SET status = $2,
		    courier_id = $3,
		    accepted_at = $4,
		    picked_up_at = $5,
		    in_transit_at = $6,
		    delivered_at = $7,
		    cancelled_at = $8
		WHERE id = $1;`

	tag, err := q.Exec(ctx, query,
		d.ID, d.Status, d.CourierID,
		d.AcceptedAt, d.PickedUpAt, d.InTransitAt, d.DeliveredAt, d.CancelledAt,
	)
	metrics.RecordDatabaseQuery(serviceName, "delivery_update_status", queryStatus(err), time.Since(start))
	if err != nil {
		return fmt.Errorf("delivery repo: UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrDeliveryNotFound
	}
	return nil
}

func (r *DeliveryRepo) IncrementCourierCompleted(ctx context.Context, courierID uuid.UUID) error {
	q := TxorDB(ctx, r.db)
	start := time.Now()

	query := `
		INSERT INTO courier_stats (courier_id, completed_deliveries)
		VALUES ($1, 1)
		ON CONFLICT (courier_id)
		DO UPDATE SET completed_deliveries = courier_stats.completed_deliveries + 1;`

	_, err := q.Exec(ctx, query, courierID)
	metrics.RecordDatabaseQuery(serviceName, "courier_stats_increment", queryStatus(err), time.Since(start))
	if err != nil {
		return fmt.Errorf("delivery repo: IncrementCourierCompleted: %w", err)
	}
	return nil
}

// ListInDoubt returns deliveries whose payment state deserves a
// reconciliation check: settled deliveries with unsettled payments and
// active deliveries whose payment failed or completed early.
func (r *DeliveryRepo) ListInDoubt(ctx context.Context, limit int) ([]uuid.UUID, error) {
	q := TxorDB(ctx, r.db)
	start := time.Now()

	query := `
		SELECT d.id
		FROM deliveries d
		JOIN payments p ON p.delivery_id = d.id
		WHERE (d.status = 'DELIVERED' AND p.status IN ('PENDING', 'PROCESSING'))
		   OR (d.status = 'PENDING' AND p.status = 'COMPLETED')
		   OR (d.status IN ('ACCEPTED', 'IN_TRANSIT') AND p.status = 'FAILED')
		ORDER BY d.created_at
		LIMIT $1;`

	rows, err := q.Query(ctx, query, limit)
	metrics.RecordDatabaseQuery(serviceName, "delivery_list_in_doubt", queryStatus(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("delivery repo: ListInDoubt: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("delivery repo: ListInDoubt scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delivery repo: ListInDoubt rows: %w", err)
	}
	return ids, nil
}

func queryStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
