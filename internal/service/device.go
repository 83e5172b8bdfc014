package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/davifernan/bayrol-pool-api/internal/cloud"
	"github.com/davifernan/bayrol-pool-api/internal/codec"
	"github.com/davifernan/bayrol-pool-api/internal/models"
	"github.com/davifernan/bayrol-pool-api/internal/registry"
	"github.com/davifernan/bayrol-pool-api/internal/repository"

	"go.uber.org/zap"
)

// ErrDeviceExists means the serial is already linked.
var ErrDeviceExists = errors.New("device already registered")

// Linker exchanges app link codes for device credentials, satisfied by
// cloud.Client.
type Linker interface {
	ExchangeAppLinkCode(ctx context.Context, code string) (*cloud.Credentials, error)
}

// DeviceStore is the persistence DeviceService needs, satisfied by
// repository.DeviceRepository.
type DeviceStore interface {
	Create(ctx context.Context, device *models.Device) error
	GetByID(ctx context.Context, id string) (*models.Device, error)
	GetBySerial(ctx context.Context, serial string) (*models.Device, error)
	ListActive(ctx context.Context) ([]models.Device, error)
	Delete(ctx context.Context, id string) error
}

// DeviceService orchestrates device lifecycle: vendor handshake, database
// row and live registry session stay consistent through one entry point.
type DeviceService struct {
	linker   Linker
	store    DeviceStore
	registry *registry.Registry
	logger   *zap.Logger
}

// NewDeviceService creates a device service.
func NewDeviceService(linker Linker, store DeviceStore, reg *registry.Registry, logger *zap.Logger) *DeviceService {
	return &DeviceService{linker: linker, store: store, registry: reg, logger: logger}
}

// RegisterWithAppLink links a new device: the app link code is exchanged for
// credentials, the device is persisted and its live session opened.
func (s *DeviceService) RegisterWithAppLink(ctx context.Context, appLinkCode, name, deviceType string) (*models.Device, error) {
	if _, err := codec.ForDeviceType(deviceType); err != nil {
		return nil, err
	}

	creds, err := s.linker.ExchangeAppLinkCode(ctx, appLinkCode)
	if err != nil {
		return nil, err
	}

	if existing, err := s.store.GetBySerial(ctx, creds.DeviceSerial); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: serial %s", ErrDeviceExists, creds.DeviceSerial)
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if name == "" {
		name = fmt.Sprintf("Pool %s", creds.DeviceSerial)
	}
	device := &models.Device{
		Serial:      creds.DeviceSerial,
		DeviceType:  deviceType,
		Name:        name,
		AccessToken: creds.AccessToken,
		AppLinkCode: appLinkCode,
		IsActive:    true,
	}
	if err := s.store.Create(ctx, device); err != nil {
		return nil, err
	}

	if err := s.registry.Register(ctx, *device); err != nil {
		// Keep the row and the registry consistent: a device that cannot
		// open a session is rolled back entirely.
		if delErr := s.store.Delete(ctx, device.ID); delErr != nil {
			s.logger.Error("Failed to roll back device row",
				zap.String("device_id", device.ID),
				zap.Error(delErr),
			)
		}
		return nil, err
	}

	s.logger.Info("Device linked",
		zap.String("device_id", device.ID),
		zap.String("device_serial", device.Serial),
	)
	return device, nil
}

// Get loads one device row.
func (s *DeviceService) Get(ctx context.Context, id string) (*models.Device, error) {
	return s.store.GetByID(ctx, id)
}

// Remove closes a device's session and deletes it.
func (s *DeviceService) Remove(ctx context.Context, id string) error {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return err
	}
	// The registry may not know the device after a crash; not an error.
	if err := s.registry.Deregister(ctx, id); err != nil {
		s.logger.Warn("Device was not in live registry", zap.String("device_id", id))
	}
	return s.store.Delete(ctx, id)
}

// RestoreActive opens sessions for every active device, used at startup.
// A device that fails to register is logged and skipped so one bad row
// cannot keep the service down.
func (s *DeviceService) RestoreActive(ctx context.Context) error {
	devices, err := s.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active devices: %w", err)
	}
	for _, device := range devices {
		if err := s.registry.Register(ctx, device); err != nil {
			s.logger.Error("Failed to restore device session",
				zap.String("device_id", device.ID),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("Restored device sessions", zap.Int("count", len(devices)))
	return nil
}
