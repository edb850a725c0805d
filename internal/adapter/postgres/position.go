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

type PositionRepo struct {
	db *pgxpool.Pool
}

func NewPositionRepo(db *pgxpool.Pool) *PositionRepo {
	return &PositionRepo{db: db}
}

// Append inserts one sample and trims the delivery's history down to the
// retention window, oldest rows first.
func (r *PositionRepo) Append(ctx context.Context, sample models.PositionSample, windowSize int) error {
	q := TxorDB(ctx, r.db)
	start := time.Now()

	insert := `
		INSERT INTO position_samples (delivery_id, latitude, longitude, recorded_at, speed_kmh, heading_degrees, accuracy_meters)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := q.Exec(ctx, insert,
		sample.DeliveryID, sample.Latitude, sample.Longitude, sample.Timestamp,
		nullableFloat(sample.SpeedKmh), nullableFloat(sample.HeadingDegrees), nullableFloat(sample.AccuracyMeters),
	)
	if err != nil {
		metrics.RecordDatabaseQuery(serviceName, "position_append", "error", time.Since(start))
		return fmt.Errorf("position repo: Append: %w", err)
	}

	trim := `
		DELETE FROM position_samples
		WHERE delivery_id = $1
		  AND id NOT IN (
			SELECT id FROM position_samples
			WHERE delivery_id = $1
			ORDER BY recorded_at DESC
			LIMIT $2
		  );`

	_, err = q.Exec(ctx, trim, sample.DeliveryID, windowSize)
	metrics.RecordDatabaseQuery(serviceName, "position_append", queryStatus(err), time.Since(start))
	if err != nil {
		return fmt.Errorf("position repo: Append (trim): %w", err)
	}
	return nil
}

// Recent returns up to limit samples for the delivery, oldest first, so the
// result feeds straight into the trailing speed computation.
func (r *PositionRepo) Recent(ctx context.Context, deliveryID uuid.UUID, limit int) ([]models.PositionSample, error) {
	q := TxorDB(ctx, r.db)
	start := time.Now()

	query := `
		SELECT delivery_id, latitude, longitude, recorded_at,
		       COALESCE(speed_kmh, 0), COALESCE(heading_degrees, 0), COALESCE(accuracy_meters, 0)
		FROM (
			SELECT id, delivery_id, latitude, longitude, recorded_at, speed_kmh, heading_degrees, accuracy_meters
			FROM position_samples
			WHERE delivery_id = $1
			ORDER BY recorded_at DESC
			LIMIT $2
		) w
		ORDER BY recorded_at;`

	rows, err := q.Query(ctx, query, deliveryID, limit)
	metrics.RecordDatabaseQuery(serviceName, "position_recent", queryStatus(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("position repo: Recent: %w", err)
	}
	defer rows.Close()

	var samples []models.PositionSample
	for rows.Next() {
		var s models.PositionSample
		if err := rows.Scan(&s.DeliveryID, &s.Latitude, &s.Longitude, &s.Timestamp, &s.SpeedKmh, &s.HeadingDegrees, &s.AccuracyMeters); err != nil {
			return nil, fmt.Errorf("position repo: Recent scan: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("position repo: Recent rows: %w", err)
	}
	return samples, nil
}

// nullableFloat maps the zero "not reported" value to NULL.
func nullableFloat(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
