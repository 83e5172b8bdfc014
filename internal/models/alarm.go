package models

import (
	"fmt"
	"time"
)

// Alarm rule conditions.
const (
	ConditionAbove      = "above"
	ConditionBelow      = "below"
	ConditionEquals     = "equals"
	ConditionOutOfRange = "out_of_range"
)

// Alarm severities, ordered by urgency.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// AlarmRule is a user-defined threshold rule for one (device, sensor)
// pair (alarms table). LastTriggered is the only field the engine itself
// advances; everything else is owned by the CRUD layer.
type AlarmRule struct {
	ID              string     `json:"id" db:"id"`
	DeviceID        string     `json:"device_id" db:"device_id"`
	SensorID        string     `json:"sensor_type" db:"sensor_type"`
	Name            string     `json:"name" db:"name"`
	Condition       string     `json:"condition" db:"condition"`
	ThresholdMin    *float64   `json:"threshold_min,omitempty" db:"threshold_min"`
	ThresholdMax    *float64   `json:"threshold_max,omitempty" db:"threshold_max"`
	Enabled         bool       `json:"enabled" db:"enabled"`
	WebhookURL      string     `json:"webhook_url,omitempty" db:"webhook_url"`
	Email           string     `json:"email,omitempty" db:"email"`
	CooldownMinutes int        `json:"cooldown_minutes" db:"cooldown_minutes"`
	LastTriggered   *time.Time `json:"last_triggered,omitempty" db:"last_triggered"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Cooldown returns the rule cooldown as a duration.
func (r *AlarmRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// Validate checks threshold presence for the rule condition. Rules are
// validated once at creation time, not on every evaluation.
func (r *AlarmRule) Validate() error {
	switch r.Condition {
	case ConditionAbove:
		if r.ThresholdMax == nil {
			return fmt.Errorf("condition %q requires threshold_max", r.Condition)
		}
	case ConditionBelow, ConditionEquals:
		if r.ThresholdMin == nil {
			return fmt.Errorf("condition %q requires threshold_min", r.Condition)
		}
	case ConditionOutOfRange:
		if r.ThresholdMin == nil || r.ThresholdMax == nil {
			return fmt.Errorf("condition %q requires both threshold_min and threshold_max", r.Condition)
		}
	default:
		return fmt.Errorf("unknown condition %q", r.Condition)
	}
	if r.ThresholdMin != nil && r.ThresholdMax != nil && *r.ThresholdMin >= *r.ThresholdMax {
		return fmt.Errorf("threshold_min must be less than threshold_max")
	}
	if r.CooldownMinutes < 0 {
		return fmt.Errorf("cooldown_minutes must not be negative")
	}
	return nil
}

// TriggeredAlarmEvent is built once per trigger and fanned out to the
// notification dispatcher, live subscribers and the history queue without
// re-derivation.
type TriggeredAlarmEvent struct {
	Rule           AlarmRule `json:"rule"`
	DeviceID       string    `json:"device_id"`
	SensorID       string    `json:"sensor_type"`
	SensorName     string    `json:"sensor_name"`
	Value          float64   `json:"sensor_value"`
	FormattedValue string    `json:"formatted_value"`
	Unit           string    `json:"unit,omitempty"`
	ConditionMet   string    `json:"condition_met"`
	Severity       string    `json:"severity"`
	TriggeredAt    time.Time `json:"triggered_at"`
}

// AlarmHistoryRecord is the persisted projection of a TriggeredAlarmEvent
// (alarm_history table). Sensor name/value/condition are denormalized so
// history queries need no joins back to live rule state.
type AlarmHistoryRecord struct {
	ID                  string    `json:"id" db:"id"`
	AlarmID             string    `json:"alarm_id" db:"alarm_id"`
	DeviceID            string    `json:"device_id" db:"device_id"`
	SensorID            string    `json:"sensor_type" db:"sensor_type"`
	SensorName          string    `json:"sensor_name" db:"sensor_name"`
	SensorValue         float64   `json:"sensor_value" db:"sensor_value"`
	FormattedValue      string    `json:"formatted_value" db:"formatted_value"`
	ConditionMet        string    `json:"condition_met" db:"condition_met"`
	Severity            string    `json:"severity" db:"severity"`
	TriggeredAt         time.Time `json:"triggered_at" db:"triggered_at"`
	NotificationSent    bool      `json:"notification_sent" db:"notification_sent"`
	NotificationResults string    `json:"notification_results,omitempty" db:"notification_results"` // JSONB
}
