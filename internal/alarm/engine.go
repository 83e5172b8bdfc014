package alarm

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/models"

	"go.uber.org/zap"
)

// RuleSource yields the enabled rules for one (device, sensor) pair. It is
// called on every reading, so implementations are expected to be cache
// backed.
type RuleSource interface {
	EnabledRules(ctx context.Context, deviceID, sensorID string) ([]models.AlarmRule, error)
}

// Engine evaluates alarm rules against incoming sensor readings. Cooldown
// bookkeeping is kept in memory so that rapid back-to-back readings on the
// same sensor cannot trigger the same rule twice inside its cooldown window.
type Engine struct {
	rules  RuleSource
	logger *zap.Logger
	now    func() time.Time

	mu            sync.Mutex
	lastTriggered map[string]time.Time // rule id -> last trigger time
}

// NewEngine creates an alarm engine.
func NewEngine(rules RuleSource, logger *zap.Logger) *Engine {
	return &Engine{
		rules:         rules,
		logger:        logger,
		now:           time.Now,
		lastTriggered: make(map[string]time.Time),
	}
}

// Evaluate tests every enabled rule for (deviceID, sensorID) against the
// numeric value and returns the triggered events. Rules evaluate
// independently; one reading can trigger several alarms in one pass.
func (e *Engine) Evaluate(ctx context.Context, deviceID, sensorID, sensorName string, value float64, formattedValue, unit string) []models.TriggeredAlarmEvent {
	rules, err := e.rules.EnabledRules(ctx, deviceID, sensorID)
	if err != nil {
		e.logger.Error("Failed to load alarm rules",
			zap.String("device_id", deviceID),
			zap.String("sensor_type", sensorID),
			zap.Error(err),
		)
		return nil
	}

	var events []models.TriggeredAlarmEvent
	for _, rule := range rules {
		event, triggered := e.evaluateRule(rule, deviceID, sensorID, sensorName, value, formattedValue, unit)
		if triggered {
			e.logger.Info("Alarm triggered",
				zap.String("alarm_id", rule.ID),
				zap.String("alarm_name", rule.Name),
				zap.String("condition_met", event.ConditionMet),
				zap.String("severity", event.Severity),
			)
			events = append(events, event)
		}
	}
	return events
}

// evaluateRule runs the cooldown gate and condition test for one rule. The
// lastTriggered read-then-write happens under one lock so two concurrent
// evaluations of the same rule cannot both pass the cooldown check.
func (e *Engine) evaluateRule(rule models.AlarmRule, deviceID, sensorID, sensorName string, value float64, formattedValue, unit string) (models.TriggeredAlarmEvent, bool) {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	last, ok := e.lastTriggered[rule.ID]
	if !ok && rule.LastTriggered != nil {
		last = *rule.LastTriggered
	}
	if !last.IsZero() && now.Before(last.Add(rule.Cooldown())) {
		return models.TriggeredAlarmEvent{}, false
	}

	desc, met := conditionMet(rule, sensorName, value, formattedValue)
	if !met {
		return models.TriggeredAlarmEvent{}, false
	}

	e.lastTriggered[rule.ID] = now
	triggered := now
	rule.LastTriggered = &triggered

	return models.TriggeredAlarmEvent{
		Rule:           rule,
		DeviceID:       deviceID,
		SensorID:       sensorID,
		SensorName:     sensorName,
		Value:          value,
		FormattedValue: formattedValue,
		Unit:           unit,
		ConditionMet:   desc,
		Severity:       Severity(rule, value),
		TriggeredAt:    now,
	}, true
}

// conditionMet tests the rule condition and builds the human-readable
// description for triggered rules. Thresholds were validated at rule
// creation, so missing values simply never match here.
func conditionMet(rule models.AlarmRule, sensorName string, value float64, formattedValue string) (string, bool) {
	switch rule.Condition {
	case models.ConditionAbove:
		if rule.ThresholdMax != nil && value > *rule.ThresholdMax {
			return fmt.Sprintf("%s %s > %s (above threshold)",
				sensorName, formattedValue, formatThreshold(*rule.ThresholdMax)), true
		}
	case models.ConditionBelow:
		if rule.ThresholdMin != nil && value < *rule.ThresholdMin {
			return fmt.Sprintf("%s %s < %s (below threshold)",
				sensorName, formattedValue, formatThreshold(*rule.ThresholdMin)), true
		}
	case models.ConditionEquals:
		// Exact match, no epsilon.
		if rule.ThresholdMin != nil && value == *rule.ThresholdMin {
			return fmt.Sprintf("%s %s = %s (equals threshold)",
				sensorName, formattedValue, formatThreshold(*rule.ThresholdMin)), true
		}
	case models.ConditionOutOfRange:
		if rule.ThresholdMin != nil && rule.ThresholdMax != nil &&
			(value < *rule.ThresholdMin || value > *rule.ThresholdMax) {
			return fmt.Sprintf("%s %s outside range [%s, %s]",
				sensorName, formattedValue,
				formatThreshold(*rule.ThresholdMin), formatThreshold(*rule.ThresholdMax)), true
		}
	}
	return "", false
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
