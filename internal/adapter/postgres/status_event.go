package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/pkg/metrics"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

type StatusEventRepo struct {
	db *pgxpool.Pool
}

func NewStatusEventRepo(db *pgxpool.Pool) *StatusEventRepo {
	return &StatusEventRepo{db: db}
}

// Append inserts one audit record. The table is append-only.
func (r *StatusEventRepo) Append(ctx context.Context, event models.StatusEvent) error {
	q := TxorDB(ctx, r.db)
	start := time.Now()

	query := `
		INSERT INTO delivery_status_events (id, delivery_id, from_status, to_status, actor_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := q.Exec(ctx, query,
		event.ID, event.DeliveryID, event.FromStatus, event.ToStatus,
		event.ActorID, event.Notes, event.CreatedAt,
	)
	metrics.RecordDatabaseQuery(serviceName, "status_event_append", queryStatus(err), time.Since(start))
	if err != nil {
		return fmt.Errorf("status event repo: Append: %w", err)
	}
	return nil
}

// ListByDelivery returns the audit trail for one delivery, oldest first.
func (r *StatusEventRepo) ListByDelivery(ctx context.Context, deliveryID uuid.UUID) ([]models.StatusEvent, error) {
	q := TxorDB(ctx, r.db)
	start := time.Now()

	query := `
		SELECT id, delivery_id, from_status, to_status, actor_id, notes, created_at
		FROM delivery_status_events
		WHERE delivery_id = $1
		ORDER BY created_at;`

	rows, err := q.Query(ctx, query, deliveryID)
	metrics.RecordDatabaseQuery(serviceName, "status_event_list", queryStatus(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("status event repo: ListByDelivery: %w", err)
	}
	defer rows.Close()

	var events []models.StatusEvent
	for rows.Next() {
		var e models.StatusEvent
		if err := rows.Scan(&e.ID, &e.DeliveryID, &e.FromStatus, &e.ToStatus, &e.ActorID, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("status event repo: ListByDelivery scan: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("status event repo: ListByDelivery rows: %w", err)
	}
	return events, nil
}
