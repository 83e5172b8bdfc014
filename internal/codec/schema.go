package codec

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/davifernan/bayrol-pool-api/internal/models"
)

// Entity kinds. Sensors are read-only; selects are writable endpoints
// constrained to an enumerated option set.
const (
	EntitySensor = "sensor"
	EntitySelect = "select"
)

// SensorSpec describes one sensor or select endpoint of a device family.
// Coefficient semantics: 0 means no scaling is declared, -1 means the raw
// value is an opaque string, any positive value divides the raw number.
type SensorSpec struct {
	Name        string
	Unit        string
	Coefficient float64
	Entity      string
	Options     []string
}

// HasOption reports whether displayValue is in the declared option set.
func (s SensorSpec) HasOption(displayValue string) bool {
	for _, opt := range s.Options {
		if opt == displayValue {
			return true
		}
	}
	return false
}

// Schema is the immutable sensor table for one device family. Loaded once,
// shared read-only by every device of that family.
type Schema struct {
	DeviceType string
	Sensors    map[string]SensorSpec

	// display value -> raw protocol code, family specific
	valueToCode map[string]string
}

// Spec returns the spec for a sensor id.
func (s *Schema) Spec(sensorID string) (SensorSpec, bool) {
	spec, ok := s.Sensors[sensorID]
	return spec, ok
}

// ReadableSensorIDs returns the ids of all read-only sensor endpoints,
// sorted for deterministic subscription order.
func (s *Schema) ReadableSensorIDs() []string {
	ids := make([]string, 0, len(s.Sensors))
	for id, spec := range s.Sensors {
		if spec.Entity == EntitySensor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// AllSensorIDs returns every endpoint id, sensors and selects, sorted.
// Selects are subscribed too so their current value is visible.
func (s *Schema) AllSensorIDs() []string {
	ids := make([]string, 0, len(s.Sensors))
	for id := range s.Sensors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ForDeviceType returns the shared schema for a device type.
func ForDeviceType(deviceType string) (*Schema, error) {
	switch deviceType {
	case models.DeviceTypeAutomaticSalt:
		return schemaAutomaticSalt, nil
	case models.DeviceTypeAutomaticClPH:
		return schemaAutomaticClPH, nil
	case models.DeviceTypePM5Chlorine:
		return schemaPM5Chlorine, nil
	default:
		return nil, fmt.Errorf("unsupported device type: %s", deviceType)
	}
}

// Option set construction helpers used by the family tables.

func optFloatRange(start, end, step float64, decimals int) []string {
	var opts []string
	// small epsilon so the inclusive end survives float accumulation
	for v := start; v <= end+step/2; v += step {
		opts = append(opts, strconv.FormatFloat(v, 'f', decimals, 64))
	}
	return opts
}

func optIntRange(start, stop, step int) []string {
	var opts []string
	if step > 0 {
		for v := start; v < stop; v += step {
			opts = append(opts, strconv.Itoa(v))
		}
	} else {
		for v := start; v > stop; v += step {
			opts = append(opts, strconv.Itoa(v))
		}
	}
	return opts
}
