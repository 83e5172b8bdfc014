package alarm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticRules struct {
	rules []models.AlarmRule
}

func (s *staticRules) EnabledRules(_ context.Context, deviceID, sensorID string) ([]models.AlarmRule, error) {
	var out []models.AlarmRule
	for _, r := range s.rules {
		if r.DeviceID == deviceID && r.SensorID == sensorID && r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func f(v float64) *float64 { return &v }

func newTestEngine(rules ...models.AlarmRule) *Engine {
	return NewEngine(&staticRules{rules: rules}, zap.NewNop())
}

func TestEvaluate_AboveTriggers(t *testing.T) {
	rule := models.AlarmRule{
		ID: "r1", DeviceID: "dev1", SensorID: "4.182", Name: "pH high",
		Condition: models.ConditionAbove, ThresholdMax: f(7.6), Enabled: true,
		CooldownMinutes: 60,
	}
	engine := newTestEngine(rule)

	events := engine.Evaluate(context.Background(), "dev1", "4.182", "pH", 7.8, "7.8", "")
	require.Len(t, events, 1)
	assert.Equal(t, "r1", events[0].Rule.ID)
	assert.Equal(t, "pH 7.8 > 7.6 (above threshold)", events[0].ConditionMet)
	assert.Equal(t, 7.8, events[0].Value)
	assert.NotNil(t, events[0].Rule.LastTriggered)
}

func TestEvaluate_BelowAndEquals(t *testing.T) {
	below := models.AlarmRule{
		ID: "r-below", DeviceID: "dev1", SensorID: "4.182", Name: "pH low",
		Condition: models.ConditionBelow, ThresholdMin: f(7.0), Enabled: true,
	}
	equals := models.AlarmRule{
		ID: "r-eq", DeviceID: "dev1", SensorID: "4.182", Name: "pH exact",
		Condition: models.ConditionEquals, ThresholdMin: f(6.5), Enabled: true,
	}
	engine := newTestEngine(below, equals)

	events := engine.Evaluate(context.Background(), "dev1", "4.182", "pH", 6.5, "6.5", "")
	// One reading can trigger several independent rules in one pass.
	require.Len(t, events, 2)
	assert.Equal(t, "pH 6.5 < 7 (below threshold)", events[0].ConditionMet)
	assert.Equal(t, "pH 6.5 = 6.5 (equals threshold)", events[1].ConditionMet)
}

func TestEvaluate_EqualsIsExact(t *testing.T) {
	rule := models.AlarmRule{
		ID: "r1", DeviceID: "dev1", SensorID: "4.182", Name: "pH exact",
		Condition: models.ConditionEquals, ThresholdMin: f(7.0), Enabled: true,
	}
	engine := newTestEngine(rule)

	events := engine.Evaluate(context.Background(), "dev1", "4.182", "pH", 7.0000001, "7.0", "")
	assert.Empty(t, events)
}

func TestEvaluate_OutOfRange(t *testing.T) {
	rule := models.AlarmRule{
		ID: "r1", DeviceID: "dev1", SensorID: "4.182", Name: "pH band",
		Condition: models.ConditionOutOfRange, ThresholdMin: f(7.0), ThresholdMax: f(7.6),
		Enabled: true,
	}
	engine := newTestEngine(rule)

	events := engine.Evaluate(context.Background(), "dev1", "4.182", "pH", 6.9, "6.9", "")
	require.Len(t, events, 1)
	assert.Equal(t, "pH 6.9 outside range [7, 7.6]", events[0].ConditionMet)

	engine2 := newTestEngine(rule)
	events = engine2.Evaluate(context.Background(), "dev1", "4.182", "pH", 7.3, "7.3", "")
	assert.Empty(t, events)
}

func TestEvaluate_CooldownWindow(t *testing.T) {
	rule := models.AlarmRule{
		ID: "r1", DeviceID: "dev1", SensorID: "4.182", Name: "pH high",
		Condition: models.ConditionAbove, ThresholdMax: f(7.6), Enabled: true,
		CooldownMinutes: 60,
	}
	engine := newTestEngine(rule)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return base }

	events := engine.Evaluate(context.Background(), "dev1", "4.182", "pH", 8.0, "8.0", "")
	require.Len(t, events, 1)

	// 59 minutes later the rule is still cooling down.
	engine.now = func() time.Time { return base.Add(59 * time.Minute) }
	events = engine.Evaluate(context.Background(), "dev1", "4.182", "pH", 8.0, "8.0", "")
	assert.Empty(t, events)

	// 61 minutes later it triggers again.
	engine.now = func() time.Time { return base.Add(61 * time.Minute) }
	events = engine.Evaluate(context.Background(), "dev1", "4.182", "pH", 8.0, "8.0", "")
	assert.Len(t, events, 1)
}

func TestEvaluate_CooldownSeededFromStore(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	last := base.Add(-30 * time.Minute)
	rule := models.AlarmRule{
		ID: "r1", DeviceID: "dev1", SensorID: "4.182", Name: "pH high",
		Condition: models.ConditionAbove, ThresholdMax: f(7.6), Enabled: true,
		CooldownMinutes: 60, LastTriggered: &last,
	}
	engine := newTestEngine(rule)
	engine.now = func() time.Time { return base }

	// The persisted last_triggered must gate the first in-process evaluation.
	events := engine.Evaluate(context.Background(), "dev1", "4.182", "pH", 8.0, "8.0", "")
	assert.Empty(t, events)
}

func TestEvaluate_ConcurrentSameRuleSingleTrigger(t *testing.T) {
	rule := models.AlarmRule{
		ID: "r1", DeviceID: "dev1", SensorID: "4.182", Name: "pH high",
		Condition: models.ConditionAbove, ThresholdMax: f(7.6), Enabled: true,
		CooldownMinutes: 60,
	}
	engine := newTestEngine(rule)

	const n = 16
	var wg sync.WaitGroup
	results := make([][]models.TriggeredAlarmEvent, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = engine.Evaluate(context.Background(), "dev1", "4.182", "pH", 8.0, "8.0", "")
		}(i)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += len(r)
	}
	// The read-then-write on lastTriggered is atomic per rule, so exactly
	// one of the racing evaluations may pass the cooldown gate.
	assert.Equal(t, 1, total)
}

func TestEvaluate_DisabledRuleIgnored(t *testing.T) {
	rule := models.AlarmRule{
		ID: "r1", DeviceID: "dev1", SensorID: "4.182", Name: "pH high",
		Condition: models.ConditionAbove, ThresholdMax: f(7.6), Enabled: false,
	}
	engine := newTestEngine(rule)

	events := engine.Evaluate(context.Background(), "dev1", "4.182", "pH", 9.0, "9.0", "")
	assert.Empty(t, events)
}
