package models

import "time"

// Device types supported by the Bayrol vendor cloud. The type selects the
// sensor schema used for decoding.
const (
	DeviceTypeAutomaticSalt = "Automatic SALT"
	DeviceTypeAutomaticClPH = "Automatic Cl-pH"
	DeviceTypePM5Chlorine   = "PM5 Chlorine"
)

// Device is a registered pool controller (devices table).
type Device struct {
	ID          string     `json:"id" db:"id"`
	Serial      string     `json:"device_id" db:"device_id"`
	DeviceType  string     `json:"device_type" db:"device_type"`
	Name        string     `json:"name" db:"name"`
	AccessToken string     `json:"-" db:"access_token"`
	AppLinkCode string     `json:"app_link_code,omitempty" db:"app_link_code"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// SensorReading is one persisted time-series row (sensor_readings table).
type SensorReading struct {
	ID             string    `json:"id" db:"id"`
	Time           time.Time `json:"time" db:"time"`
	DeviceID       string    `json:"device_id" db:"device_id"`
	SensorID       string    `json:"sensor_type" db:"sensor_type"`
	SensorName     string    `json:"sensor_name" db:"sensor_name"`
	Value          string    `json:"value" db:"value"`
	FormattedValue string    `json:"formatted_value" db:"formatted_value"`
	Unit           string    `json:"unit,omitempty" db:"unit"`
}

// APIKey authenticates HTTP and WebSocket clients (api_keys table).
type APIKey struct {
	ID          string     `json:"id" db:"id"`
	Key         string     `json:"key" db:"key"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description,omitempty" db:"description"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastUsed    *time.Time `json:"last_used,omitempty" db:"last_used"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}
