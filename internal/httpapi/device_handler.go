package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/cloud"
	"github.com/davifernan/bayrol-pool-api/internal/codec"
	"github.com/davifernan/bayrol-pool-api/internal/models"
	"github.com/davifernan/bayrol-pool-api/internal/registry"
	"github.com/davifernan/bayrol-pool-api/internal/repository"
	"github.com/davifernan/bayrol-pool-api/internal/service"

	"go.uber.org/zap"
)

// ReadingHistory serves persisted sensor readings, satisfied by
// repository.ReadingRepository.
type ReadingHistory interface {
	ListRange(ctx context.Context, deviceID, sensorID string, since, until time.Time, limit int) ([]models.SensorReading, error)
}

// DeviceHandler serves device lifecycle and sensor endpoints.
type DeviceHandler struct {
	devices  *service.DeviceService
	registry *registry.Registry
	readings ReadingHistory
	logger   *zap.Logger
}

// NewDeviceHandler creates a device handler.
func NewDeviceHandler(devices *service.DeviceService, reg *registry.Registry, readings ReadingHistory, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, registry: reg, readings: readings, logger: logger}
}

const devicesPrefix = "/api/v1/devices"

// ServeHTTP dispatches /api/v1/devices and its subresources.
func (h *DeviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, devicesPrefix)
	rest = strings.Trim(rest, "/")

	if rest == "" {
		switch r.Method {
		case http.MethodGet:
			h.List(w, r)
		case http.MethodPost:
			h.Register(w, r)
		default:
			methodNotAllowed(w)
		}
		return
	}

	parts := strings.Split(rest, "/")
	deviceID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.Get(w, r, deviceID)
		case http.MethodDelete:
			h.Delete(w, r, deviceID)
		default:
			methodNotAllowed(w)
		}
	case len(parts) == 2 && parts[1] == "sensors":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.Sensors(w, r, deviceID)
	case len(parts) == 4 && parts[1] == "sensors" && parts[3] == "history":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.SensorHistory(w, r, deviceID, parts[2])
	case len(parts) == 4 && parts[1] == "sensors" && parts[3] == "set":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.SetSensor(w, r, deviceID, parts[2])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

type registerDeviceRequest struct {
	AppLinkCode string `json:"app_link_code"`
	Name        string `json:"name"`
	DeviceType  string `json:"device_type"`
}

// Register links a new device through its vendor app link code.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AppLinkCode == "" || req.DeviceType == "" {
		writeError(w, http.StatusBadRequest, "app_link_code and device_type are required")
		return
	}

	device, err := h.devices.RegisterWithAppLink(r.Context(), req.AppLinkCode, req.Name, req.DeviceType)
	if err != nil {
		switch {
		case errors.Is(err, cloud.ErrInvalidCode):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, service.ErrDeviceExists):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("Device registration failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, Ok(device))
}

// List returns every registered device with its live connection state.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	writeOk(w, h.registry.List())
}

// Get returns one device's live snapshot.
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request, deviceID string) {
	snap, err := h.registry.Snapshot(deviceID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeOk(w, snap)
}

// Delete unlinks a device.
func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request, deviceID string) {
	if err := h.devices.Remove(r.Context(), deviceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		h.logger.Error("Device removal failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOk(w, map[string]string{"deleted": deviceID})
}

// Sensors returns the live value of every sensor on one device.
func (h *DeviceHandler) Sensors(w http.ResponseWriter, r *http.Request, deviceID string) {
	snap, err := h.registry.Snapshot(deviceID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeOk(w, snap.Sensors)
}

// SensorHistory returns persisted readings for one sensor in a time window.
// Defaults to the last 24 hours.
func (h *DeviceHandler) SensorHistory(w http.ResponseWriter, r *http.Request, deviceID, sensorID string) {
	q := r.URL.Query()
	until := time.Now().UTC()
	since := until.Add(-24 * time.Hour)
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "until must be RFC3339")
			return
		}
		until = t
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	readings, err := h.readings.ListRange(r.Context(), deviceID, sensorID, since, until, limit)
	if err != nil {
		h.logger.Error("Sensor history query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeOk(w, readings)
}

type setSensorRequest struct {
	Value string `json:"value"`
}

// SetSensor writes a display value to a select sensor.
func (h *DeviceHandler) SetSensor(w http.ResponseWriter, r *http.Request, deviceID, sensorID string) {
	var req setSensorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Value == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	if err := h.registry.WriteSelect(r.Context(), deviceID, sensorID, req.Value); err != nil {
		switch {
		case errors.Is(err, codec.ErrUnknownSensor), errors.Is(err, codec.ErrNotSelect), errors.Is(err, codec.ErrInvalidOption):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}
	writeOk(w, map[string]string{"sensor_id": sensorID, "value": req.Value})
}
