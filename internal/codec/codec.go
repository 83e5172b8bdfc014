package codec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrUnknownSensor means the sensor id is not in the device schema.
	ErrUnknownSensor = errors.New("unknown sensor")
	// ErrNotSelect means a write was attempted on a read-only sensor.
	ErrNotSelect = errors.New("sensor is not a select entity")
	// ErrInvalidOption means the display value is outside the declared
	// option set.
	ErrInvalidOption = errors.New("value not in option set")
)

// Decoded is the typed result of decoding one raw protocol value. Value is
// either a float64 (scaled reading) or a string (status label, opaque string
// or numeric passthrough that failed to parse).
type Decoded struct {
	Value     any
	IsLabel   bool
	Unit      string
	Formatted string
}

// Numeric returns the decoded value as a float64 when it is numeric.
func (d Decoded) Numeric() (float64, bool) {
	switch v := d.Value.(type) {
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// Decode maps a raw protocol value for one sensor to a typed reading.
//
// Priority order: status label table first, then the -1 string sentinel,
// then coefficient scaling, then raw passthrough. A raw value that should be
// numeric but does not parse is passed through as a string together with a
// non-nil error; decoding never drops the reading on its own.
func Decode(schema *Schema, sensorID string, raw any) (Decoded, error) {
	spec, ok := schema.Spec(sensorID)
	if !ok {
		return Decoded{}, fmt.Errorf("%w: %s", ErrUnknownSensor, sensorID)
	}

	s := rawString(raw)

	// 1. Fixed enumeration codes win over everything, unit never applies.
	if label, ok := statusLabels[s]; ok {
		return Decoded{Value: label, IsLabel: true, Formatted: label}, nil
	}

	// 2. Coefficient handling.
	switch {
	case spec.Coefficient == -1:
		// Opaque string, no numeric conversion.
		return Decoded{Value: s, Unit: spec.Unit, Formatted: withUnit(s, spec.Unit)}, nil

	case spec.Coefficient > 0:
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// Pass the raw value through unmodified; the caller logs.
			d := Decoded{Value: s, Unit: spec.Unit, Formatted: withUnit(s, spec.Unit)}
			return d, fmt.Errorf("failed to apply coefficient %v to value %q: %w", spec.Coefficient, s, err)
		}
		v := x / spec.Coefficient
		return Decoded{Value: v, Unit: spec.Unit, Formatted: withUnit(formatNumber(v), spec.Unit)}, nil

	default:
		// No coefficient declared: return the raw value unconverted.
		if x, err := strconv.ParseFloat(s, 64); err == nil {
			return Decoded{Value: x, Unit: spec.Unit, Formatted: withUnit(formatNumber(x), spec.Unit)}, nil
		}
		return Decoded{Value: s, Unit: spec.Unit, Formatted: withUnit(s, spec.Unit)}, nil
	}
}

// EncodeForWrite maps a display value for a select entity back to the raw
// protocol value. The family enum table is consulted first, then coefficient
// multiplication, then passthrough. Values outside the declared option set
// are rejected before any network write.
func EncodeForWrite(schema *Schema, sensorID, displayValue string) (string, error) {
	spec, ok := schema.Spec(sensorID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSensor, sensorID)
	}
	if spec.Entity != EntitySelect {
		return "", fmt.Errorf("%w: %s", ErrNotSelect, sensorID)
	}
	if !spec.HasOption(displayValue) {
		return "", fmt.Errorf("%w: %q for sensor %s", ErrInvalidOption, displayValue, sensorID)
	}

	if code, ok := schema.valueToCode[displayValue]; ok {
		return code, nil
	}

	if spec.Coefficient > 0 {
		x, err := strconv.ParseFloat(displayValue, 64)
		if err != nil {
			return "", fmt.Errorf("failed to parse display value %q: %w", displayValue, err)
		}
		return strconv.Itoa(int(math.Round(x * spec.Coefficient))), nil
	}

	return displayValue, nil
}

// rawString normalizes an inbound JSON value (string or number) to its
// canonical string form so enum lookups behave the same for "7001" and 7001.
func rawString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return formatNumber(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func withUnit(value, unit string) string {
	if unit == "" {
		return value
	}
	return value + " " + unit
}
