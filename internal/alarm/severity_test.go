package alarm

import (
	"testing"

	"github.com/davifernan/bayrol-pool-api/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestSeverity(t *testing.T) {
	tests := []struct {
		name     string
		rule     models.AlarmRule
		value    float64
		expected string
	}{
		{
			name:     "above critical at 25 percent",
			rule:     models.AlarmRule{Condition: models.ConditionAbove, ThresholdMax: f(100)},
			value:    125,
			expected: models.SeverityCritical,
		},
		{
			name:     "above warning at 15 percent",
			rule:     models.AlarmRule{Condition: models.ConditionAbove, ThresholdMax: f(100)},
			value:    115,
			expected: models.SeverityWarning,
		},
		{
			name:     "above info at 5 percent",
			rule:     models.AlarmRule{Condition: models.ConditionAbove, ThresholdMax: f(100)},
			value:    105,
			expected: models.SeverityInfo,
		},
		{
			name:     "below critical",
			rule:     models.AlarmRule{Condition: models.ConditionBelow, ThresholdMin: f(100)},
			value:    75,
			expected: models.SeverityCritical,
		},
		{
			name:     "below warning",
			rule:     models.AlarmRule{Condition: models.ConditionBelow, ThresholdMin: f(100)},
			value:    88,
			expected: models.SeverityWarning,
		},
		{
			name:     "out of range below nearer bound",
			rule:     models.AlarmRule{Condition: models.ConditionOutOfRange, ThresholdMin: f(7.0), ThresholdMax: f(7.6)},
			value:    6.8,
			expected: models.SeverityCritical,
		},
		{
			name:     "out of range just above",
			rule:     models.AlarmRule{Condition: models.ConditionOutOfRange, ThresholdMin: f(7.0), ThresholdMax: f(7.6)},
			value:    7.63,
			expected: models.SeverityInfo,
		},
		{
			name:     "equals is always info",
			rule:     models.AlarmRule{Condition: models.ConditionEquals, ThresholdMin: f(7.0)},
			value:    7.0,
			expected: models.SeverityInfo,
		},
		{
			name:     "zero threshold short circuits",
			rule:     models.AlarmRule{Condition: models.ConditionAbove, ThresholdMax: f(0)},
			value:    50,
			expected: models.SeverityInfo,
		},
		{
			name:     "zero width range short circuits",
			rule:     models.AlarmRule{Condition: models.ConditionOutOfRange, ThresholdMin: f(5), ThresholdMax: f(5)},
			value:    50,
			expected: models.SeverityInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Severity(tt.rule, tt.value))
		})
	}
}
