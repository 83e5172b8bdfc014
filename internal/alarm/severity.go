package alarm

import "github.com/davifernan/bayrol-pool-api/internal/models"

// Severity classifies a triggered rule by relative deviation from its
// threshold: > 20% is critical, > 10% is warning, anything else info.
// Equals rules have no deviation metric and are always info, as is any rule
// whose denominator would be zero.
func Severity(rule models.AlarmRule, value float64) string {
	var deviation float64

	switch rule.Condition {
	case models.ConditionAbove:
		if rule.ThresholdMax == nil || *rule.ThresholdMax == 0 {
			return models.SeverityInfo
		}
		deviation = (value - *rule.ThresholdMax) / *rule.ThresholdMax

	case models.ConditionBelow:
		if rule.ThresholdMin == nil || *rule.ThresholdMin == 0 {
			return models.SeverityInfo
		}
		deviation = (*rule.ThresholdMin - value) / *rule.ThresholdMin

	case models.ConditionOutOfRange:
		if rule.ThresholdMin == nil || rule.ThresholdMax == nil {
			return models.SeverityInfo
		}
		rangeSize := *rule.ThresholdMax - *rule.ThresholdMin
		if rangeSize == 0 {
			return models.SeverityInfo
		}
		if value < *rule.ThresholdMin {
			deviation = (*rule.ThresholdMin - value) / rangeSize
		} else {
			deviation = (value - *rule.ThresholdMax) / rangeSize
		}

	default:
		return models.SeverityInfo
	}

	switch {
	case deviation > 0.2:
		return models.SeverityCritical
	case deviation > 0.1:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}
