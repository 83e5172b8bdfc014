package fanout

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Live message envelope types.
const (
	MessageSensorUpdate     = "sensor_update"
	MessageAlarmTriggered   = "alarm_triggered"
	MessageConnectionStatus = "connection_status"
)

// Envelope is the wire format sent to live subscribers.
type Envelope struct {
	Type      string    `json:"type"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Sink receives live messages for one device. A Send error marks the sink
// dead.
type Sink interface {
	Send(msg Envelope) error
	Close() error
}

// Fanout broadcasts live updates to the subscribers of each device. Sinks
// that fail on delivery are pruned during the same broadcast pass, so no
// separate reaper is needed.
type Fanout struct {
	mu     sync.Mutex
	sinks  map[string][]Sink
	logger *zap.Logger
}

// New creates a fanout.
func New(logger *zap.Logger) *Fanout {
	return &Fanout{
		sinks:  make(map[string][]Sink),
		logger: logger,
	}
}

// Subscribe registers a sink for a device.
func (f *Fanout) Subscribe(deviceID string, sink Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks[deviceID] = append(f.sinks[deviceID], sink)
}

// Unsubscribe removes a sink for a device. The sink is not closed; the
// caller owns its lifecycle.
func (f *Fanout) Unsubscribe(deviceID string, sink Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(deviceID, sink)
}

func (f *Fanout) removeLocked(deviceID string, sink Sink) {
	sinks := f.sinks[deviceID]
	for i, s := range sinks {
		if s == sink {
			f.sinks[deviceID] = append(sinks[:i], sinks[i+1:]...)
			break
		}
	}
	if len(f.sinks[deviceID]) == 0 {
		delete(f.sinks, deviceID)
	}
}

// Broadcast delivers msg to every sink subscribed to deviceID. Delivery
// errors remove the sink in the same pass; sends happen outside the lock so
// one device's slow subscriber does not block other devices.
func (f *Fanout) Broadcast(deviceID string, msg Envelope) {
	f.mu.Lock()
	sinks := make([]Sink, len(f.sinks[deviceID]))
	copy(sinks, f.sinks[deviceID])
	f.mu.Unlock()

	var dead []Sink
	for _, sink := range sinks {
		if err := sink.Send(msg); err != nil {
			f.logger.Warn("Removing dead subscriber",
				zap.String("device_id", deviceID),
				zap.String("message_type", msg.Type),
				zap.Error(err),
			)
			dead = append(dead, sink)
		}
	}

	if len(dead) == 0 {
		return
	}
	f.mu.Lock()
	for _, sink := range dead {
		f.removeLocked(deviceID, sink)
	}
	f.mu.Unlock()
	for _, sink := range dead {
		_ = sink.Close()
	}
}

// RemoveDevice closes and drops every subscriber of a device. Called when
// the device is deregistered.
func (f *Fanout) RemoveDevice(deviceID string) {
	f.mu.Lock()
	sinks := f.sinks[deviceID]
	delete(f.sinks, deviceID)
	f.mu.Unlock()

	for _, sink := range sinks {
		_ = sink.Close()
	}
}

// SubscriberCount returns the number of live sinks for a device.
func (f *Fanout) SubscriberCount(deviceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks[deviceID])
}
