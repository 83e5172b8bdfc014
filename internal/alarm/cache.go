package alarm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RuleStore is the durable source of alarm rules.
type RuleStore interface {
	ListEnabledByDevice(ctx context.Context, deviceID string) ([]models.AlarmRule, error)
}

// RuleCache caches a device's enabled rules in Redis so rule evaluation on
// the hot path does not hit PostgreSQL for every reading. Entries expire
// after the configured TTL and are invalidated explicitly whenever the CRUD
// layer mutates a rule.
type RuleCache struct {
	store       RuleStore
	redisClient *redis.Client
	ttl         time.Duration
	logger      *zap.Logger
}

// NewRuleCache creates a rule cache.
func NewRuleCache(store RuleStore, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *RuleCache {
	return &RuleCache{
		store:       store,
		redisClient: redisClient,
		ttl:         ttl,
		logger:      logger,
	}
}

func (c *RuleCache) cacheKey(deviceID string) string {
	return fmt.Sprintf("alarms:device:%s", deviceID)
}

// EnabledRules returns the enabled rules for (deviceID, sensorID), serving
// from cache when possible. Cache failures fall back to the store; the
// evaluation path must keep working without Redis.
func (c *RuleCache) EnabledRules(ctx context.Context, deviceID, sensorID string) ([]models.AlarmRule, error) {
	rules, err := c.deviceRules(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	var matched []models.AlarmRule
	for _, rule := range rules {
		if rule.Enabled && rule.SensorID == sensorID {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

func (c *RuleCache) deviceRules(ctx context.Context, deviceID string) ([]models.AlarmRule, error) {
	key := c.cacheKey(deviceID)

	val, err := c.redisClient.Get(ctx, key).Result()
	if err == nil {
		var rules []models.AlarmRule
		if err := json.Unmarshal([]byte(val), &rules); err == nil {
			return rules, nil
		}
		c.logger.Warn("Dropping corrupt alarm rule cache entry", zap.String("key", key))
		c.redisClient.Del(ctx, key)
	} else if err != redis.Nil {
		c.logger.Warn("Alarm rule cache read failed, falling back to store",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}

	rules, err := c.store.ListEnabledByDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alarm rules: %w", err)
	}

	if data, err := json.Marshal(rules); err == nil {
		if err := c.redisClient.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("Failed to cache alarm rules",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
	}

	return rules, nil
}

// Invalidate drops the cached rules for a device. Called by the CRUD layer
// after every rule mutation.
func (c *RuleCache) Invalidate(ctx context.Context, deviceID string) {
	if err := c.redisClient.Del(ctx, c.cacheKey(deviceID)).Err(); err != nil {
		c.logger.Warn("Failed to invalidate alarm rule cache",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}
}
