package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReadingRepository persists the sensor_readings time series.
type ReadingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReadingRepository creates a sensor reading repository.
func NewReadingRepository(db *sql.DB, logger *zap.Logger) *ReadingRepository {
	return &ReadingRepository{db: db, logger: logger}
}

// InsertReading appends one reading. Called from the ingestion pipeline.
func (r *ReadingRepository) InsertReading(ctx context.Context, reading models.SensorReading) error {
	if reading.ID == "" {
		reading.ID = uuid.NewString()
	}
	query := `
		INSERT INTO sensor_readings (id, time, device_id, sensor_type, sensor_name, value, formatted_value, unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		reading.ID,
		reading.Time,
		reading.DeviceID,
		reading.SensorID,
		reading.SensorName,
		reading.Value,
		reading.FormattedValue,
		reading.Unit,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sensor reading: %w", err)
	}
	return nil
}

// ListRange returns readings for one sensor in a time window, oldest first.
func (r *ReadingRepository) ListRange(ctx context.Context, deviceID, sensorID string, since, until time.Time, limit int) ([]models.SensorReading, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	query := `
		SELECT id, time, device_id, sensor_type, sensor_name, value, formatted_value, unit
		FROM sensor_readings
		WHERE device_id = $1 AND sensor_type = $2 AND time >= $3 AND time <= $4
		ORDER BY time
		LIMIT $5
	`
	rows, err := r.db.QueryContext(ctx, query, deviceID, sensorID, since, until, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor readings: %w", err)
	}
	defer rows.Close()

	var readings []models.SensorReading
	for rows.Next() {
		var reading models.SensorReading
		if err := rows.Scan(
			&reading.ID,
			&reading.Time,
			&reading.DeviceID,
			&reading.SensorID,
			&reading.SensorName,
			&reading.Value,
			&reading.FormattedValue,
			&reading.Unit,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sensor reading: %w", err)
		}
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}
