package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// DeviceRepository persists registered devices.
type DeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceRepository creates a device repository.
func NewDeviceRepository(db *sql.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{db: db, logger: logger}
}

// Create inserts a new device and fills in its generated id and timestamps.
func (r *DeviceRepository) Create(ctx context.Context, device *models.Device) error {
	device.ID = uuid.NewString()
	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (id, device_id, device_type, name, access_token, app_link_code, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.Serial,
		device.DeviceType,
		device.Name,
		device.AccessToken,
		device.AppLinkCode,
		device.IsActive,
		device.CreatedAt,
		device.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert device: %w", err)
	}
	return nil
}

// GetByID loads one device.
func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	query := `
		SELECT id, device_id, device_type, name, access_token, app_link_code, is_active, created_at, updated_at
		FROM devices
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetBySerial loads one device by its vendor serial.
func (r *DeviceRepository) GetBySerial(ctx context.Context, serial string) (*models.Device, error) {
	query := `
		SELECT id, device_id, device_type, name, access_token, app_link_code, is_active, created_at, updated_at
		FROM devices
		WHERE device_id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, serial))
}

// ListActive returns devices whose sessions should be open, used to rebuild
// the registry at startup.
func (r *DeviceRepository) ListActive(ctx context.Context) ([]models.Device, error) {
	query := `
		SELECT id, device_id, device_type, name, access_token, app_link_code, is_active, created_at, updated_at
		FROM devices
		WHERE is_active = true
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var d models.Device
		if err := scanDevice(rows, &d); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// SetActive flips a device's is_active flag.
func (r *DeviceRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE devices SET is_active = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	return requireRow(result)
}

// Delete removes a device row. Alarm rules and history cascade in schema.
func (r *DeviceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return requireRow(result)
}

func (r *DeviceRepository) scanOne(row *sql.Row) (*models.Device, error) {
	var d models.Device
	err := row.Scan(
		&d.ID,
		&d.Serial,
		&d.DeviceType,
		&d.Name,
		&d.AccessToken,
		&d.AppLinkCode,
		&d.IsActive,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan device: %w", err)
	}
	return &d, nil
}

func scanDevice(rows *sql.Rows, d *models.Device) error {
	if err := rows.Scan(
		&d.ID,
		&d.Serial,
		&d.DeviceType,
		&d.Name,
		&d.AccessToken,
		&d.AppLinkCode,
		&d.IsActive,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to scan device: %w", err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
