package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/alarm"
	"github.com/davifernan/bayrol-pool-api/internal/codec"
	"github.com/davifernan/bayrol-pool-api/internal/fanout"
	"github.com/davifernan/bayrol-pool-api/internal/history"
	"github.com/davifernan/bayrol-pool-api/internal/models"
	"github.com/davifernan/bayrol-pool-api/internal/notify"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	sensorCacheTTL = 60 * time.Second
	persistTimeout = 5 * time.Second
)

// Link is the per-device broker session the registry drives. Satisfied by
// *link.DeviceLink; a test double stands in for it in tests.
type Link interface {
	Start()
	Stop()
	State() string
	Publish(sensorID, rawValue string) error
}

// LinkFactory builds a link for one device. The handler must receive every
// inbound value and connectivity change.
type LinkFactory func(serial, accessToken string, sensorIDs []string, handler LinkHandler) Link

// LinkHandler mirrors link.Handler without importing it, keeping the
// registry testable with no broker.
type LinkHandler interface {
	HandleSensorValue(deviceSerial, sensorID string, raw any)
	HandleConnectionChange(deviceSerial string, connected bool)
}

// ReadingStore persists individual sensor readings.
type ReadingStore interface {
	InsertReading(ctx context.Context, reading models.SensorReading) error
}

// LiveReading is the most recent decoded value of one sensor.
type LiveReading struct {
	SensorID       string    `json:"sensor_id"`
	Name           string    `json:"name"`
	Value          any       `json:"value"`
	IsLabel        bool      `json:"is_label"`
	Unit           string    `json:"unit,omitempty"`
	FormattedValue string    `json:"formatted_value"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LiveDevice is a point-in-time copy of one device's live state. LastSeen is
// zero until the first reading arrives and goes stale while the link is down.
type LiveDevice struct {
	Device    models.Device          `json:"device"`
	Connected bool                   `json:"connected"`
	LinkState string                 `json:"link_state"`
	LastSeen  time.Time              `json:"last_seen"`
	Sensors   map[string]LiveReading `json:"sensors"`
}

type liveDevice struct {
	// mu serializes the full inbound pipeline for this device so readings
	// apply in arrival order. Devices never share it.
	mu        sync.Mutex
	device    models.Device
	schema    *codec.Schema
	link      Link
	connected bool
	lastSeen  time.Time
	sensors   map[string]LiveReading
}

// Registry holds every registered device's live session and state and runs
// the inbound pipeline: decode, cache, persist, broadcast, evaluate alarms.
type Registry struct {
	engine      *alarm.Engine
	dispatcher  *notify.Dispatcher
	fanout      *fanout.Fanout
	history     *history.Writer
	readings    ReadingStore
	redisClient *redis.Client
	newLink     LinkFactory
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.RWMutex
	devices  map[string]*liveDevice // keyed by device id
	bySerial map[string]string      // serial -> device id
}

// New creates an empty registry.
func New(
	engine *alarm.Engine,
	dispatcher *notify.Dispatcher,
	fan *fanout.Fanout,
	historyWriter *history.Writer,
	readings ReadingStore,
	redisClient *redis.Client,
	newLink LinkFactory,
	logger *zap.Logger,
) *Registry {
	return &Registry{
		engine:      engine,
		dispatcher:  dispatcher,
		fanout:      fan,
		history:     historyWriter,
		readings:    readings,
		redisClient: redisClient,
		newLink:     newLink,
		logger:      logger,
		now:         time.Now,
		devices:     make(map[string]*liveDevice),
		bySerial:    make(map[string]string),
	}
}

// Register adds a device and opens its broker session. Registering an
// already-registered device id or serial is an error; deregister first.
func (r *Registry) Register(ctx context.Context, device models.Device) error {
	schema, err := codec.ForDeviceType(device.DeviceType)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.devices[device.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("device %s is already registered", device.ID)
	}
	if _, exists := r.bySerial[device.Serial]; exists {
		r.mu.Unlock()
		return fmt.Errorf("device serial %s is already registered", device.Serial)
	}

	dev := &liveDevice{
		device:  device,
		schema:  schema,
		sensors: make(map[string]LiveReading),
	}
	dev.link = r.newLink(device.Serial, device.AccessToken, schema.AllSensorIDs(), r)
	r.devices[device.ID] = dev
	r.bySerial[device.Serial] = device.ID
	r.mu.Unlock()

	dev.link.Start()
	r.logger.Info("Device registered",
		zap.String("device_id", device.ID),
		zap.String("device_serial", device.Serial),
		zap.String("device_type", device.DeviceType),
	)
	return nil
}

// Deregister closes a device's session and discards its live state. Live
// subscribers are closed as well; history rows are untouched.
func (r *Registry) Deregister(ctx context.Context, deviceID string) error {
	r.mu.Lock()
	dev, ok := r.devices[deviceID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("device %s is not registered", deviceID)
	}
	delete(r.devices, deviceID)
	delete(r.bySerial, dev.device.Serial)
	r.mu.Unlock()

	// Stop outside the registry lock: the link goroutine may be mid-callback.
	dev.link.Stop()
	r.fanout.RemoveDevice(deviceID)

	r.logger.Info("Device deregistered", zap.String("device_id", deviceID))
	return nil
}

// StopAll closes every device session, used at shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	devices := make([]*liveDevice, 0, len(r.devices))
	for id, dev := range r.devices {
		devices = append(devices, dev)
		delete(r.devices, id)
		delete(r.bySerial, dev.device.Serial)
	}
	r.mu.Unlock()

	for _, dev := range devices {
		dev.link.Stop()
	}
}

// Snapshot returns a copy of one device's live state.
func (r *Registry) Snapshot(deviceID string) (LiveDevice, error) {
	r.mu.RLock()
	dev, ok := r.devices[deviceID]
	r.mu.RUnlock()
	if !ok {
		return LiveDevice{}, fmt.Errorf("device %s is not registered", deviceID)
	}
	return dev.snapshot(), nil
}

// List returns a snapshot of every registered device, ordered by name.
func (r *Registry) List() []LiveDevice {
	r.mu.RLock()
	devices := make([]*liveDevice, 0, len(r.devices))
	for _, dev := range r.devices {
		devices = append(devices, dev)
	}
	r.mu.RUnlock()

	out := make([]LiveDevice, 0, len(devices))
	for _, dev := range devices {
		out = append(out, dev.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device.Name < out[j].Device.Name })
	return out
}

// WriteSelect encodes a display value for a select sensor and publishes it
// to the device. The write is rejected before any network traffic when the
// value is not in the sensor's option set.
func (r *Registry) WriteSelect(ctx context.Context, deviceID, sensorID, displayValue string) error {
	r.mu.RLock()
	dev, ok := r.devices[deviceID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("device %s is not registered", deviceID)
	}

	raw, err := codec.EncodeForWrite(dev.schema, sensorID, displayValue)
	if err != nil {
		return err
	}
	if err := dev.link.Publish(sensorID, raw); err != nil {
		return err
	}

	r.logger.Info("Sensor write published",
		zap.String("device_id", deviceID),
		zap.String("sensor_id", sensorID),
		zap.String("value", displayValue),
		zap.String("raw", raw),
	)
	return nil
}

// HandleSensorValue runs the inbound pipeline for one raw value. It is
// called from the device's link goroutine; per-device ordering comes from
// the device mutex.
func (r *Registry) HandleSensorValue(deviceSerial, sensorID string, raw any) {
	r.mu.RLock()
	deviceID, ok := r.bySerial[deviceSerial]
	dev := r.devices[deviceID]
	r.mu.RUnlock()
	if !ok || dev == nil {
		return
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()

	decoded, err := codec.Decode(dev.schema, sensorID, raw)
	if err != nil {
		if decoded.Value == nil {
			// Unknown sensor id for this device type.
			r.logger.Warn("Dropping value for unknown sensor",
				zap.String("device_id", deviceID),
				zap.String("sensor_id", sensorID),
			)
			return
		}
		// Conversion failed but the raw value survives as a string.
		r.logger.Warn("Sensor value kept unconverted",
			zap.String("device_id", deviceID),
			zap.String("sensor_id", sensorID),
			zap.Error(err),
		)
	}

	spec, _ := dev.schema.Spec(sensorID)
	reading := LiveReading{
		SensorID:       sensorID,
		Name:           spec.Name,
		Value:          decoded.Value,
		IsLabel:        decoded.IsLabel,
		Unit:           decoded.Unit,
		FormattedValue: decoded.Formatted,
		UpdatedAt:      r.now().UTC(),
	}
	dev.sensors[sensorID] = reading
	// An inbound value proves the device is alive even if the connection
	// callback has not fired yet.
	dev.connected = true
	dev.lastSeen = reading.UpdatedAt

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	r.cacheReading(ctx, deviceID, reading)
	r.persistReading(ctx, deviceID, reading)

	r.fanout.Broadcast(deviceID, fanout.Envelope{
		Type:      fanout.MessageSensorUpdate,
		DeviceID:  deviceID,
		Timestamp: reading.UpdatedAt,
		Data:      reading,
	})

	if value, ok := decoded.Numeric(); ok {
		events := r.engine.Evaluate(ctx, deviceID, sensorID, spec.Name, value, decoded.Formatted, decoded.Unit)
		for _, event := range events {
			r.fanout.Broadcast(deviceID, fanout.Envelope{
				Type:      fanout.MessageAlarmTriggered,
				DeviceID:  deviceID,
				Timestamp: event.TriggeredAt,
				Data:      event,
			})
			// Notification delivery and history never block the pipeline.
			go r.notifyAndRecord(event)
		}
	}
}

// HandleConnectionChange records link connectivity and tells subscribers.
func (r *Registry) HandleConnectionChange(deviceSerial string, connected bool) {
	r.mu.RLock()
	deviceID, ok := r.bySerial[deviceSerial]
	dev := r.devices[deviceID]
	r.mu.RUnlock()
	if !ok || dev == nil {
		return
	}

	dev.mu.Lock()
	dev.connected = connected
	dev.mu.Unlock()

	r.fanout.Broadcast(deviceID, fanout.Envelope{
		Type:      fanout.MessageConnectionStatus,
		DeviceID:  deviceID,
		Timestamp: r.now().UTC(),
		Data:      map[string]bool{"connected": connected},
	})
}

func (r *Registry) notifyAndRecord(event models.TriggeredAlarmEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	results := r.dispatcher.Dispatch(ctx, event)
	r.history.Enqueue(ctx, event, results)
}

// cacheReading keeps the latest value in Redis for cheap snapshot reads.
// Best effort only.
func (r *Registry) cacheReading(ctx context.Context, deviceID string, reading LiveReading) {
	data, err := json.Marshal(reading)
	if err != nil {
		return
	}
	key := fmt.Sprintf("sensor:%s:%s", deviceID, reading.SensorID)
	if err := r.redisClient.Set(ctx, key, data, sensorCacheTTL).Err(); err != nil {
		r.logger.Debug("Failed to cache sensor reading", zap.Error(err))
	}
}

func (r *Registry) persistReading(ctx context.Context, deviceID string, reading LiveReading) {
	row := models.SensorReading{
		Time:           reading.UpdatedAt,
		DeviceID:       deviceID,
		SensorID:       reading.SensorID,
		SensorName:     reading.Name,
		Value:          fmt.Sprintf("%v", reading.Value),
		FormattedValue: reading.FormattedValue,
		Unit:           reading.Unit,
	}
	if err := r.readings.InsertReading(ctx, row); err != nil {
		r.logger.Error("Failed to persist sensor reading",
			zap.String("device_id", deviceID),
			zap.String("sensor_id", reading.SensorID),
			zap.Error(err),
		)
	}
}

func (d *liveDevice) snapshot() LiveDevice {
	d.mu.Lock()
	defer d.mu.Unlock()

	sensors := make(map[string]LiveReading, len(d.sensors))
	for id, reading := range d.sensors {
		sensors[id] = reading
	}
	return LiveDevice{
		Device:    d.device,
		Connected: d.connected,
		LinkState: d.link.State(),
		LastSeen:  d.lastSeen,
		Sensors:   sensors,
	}
}
