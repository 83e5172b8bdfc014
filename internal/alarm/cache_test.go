package alarm

import (
	"context"
	"testing"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingStore struct {
	rules []models.AlarmRule
	calls int
}

func (s *countingStore) ListEnabledByDevice(_ context.Context, deviceID string) ([]models.AlarmRule, error) {
	s.calls++
	var out []models.AlarmRule
	for _, r := range s.rules {
		if r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func setupRuleCache(t *testing.T) (*miniredis.Miniredis, *countingStore, *RuleCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := &countingStore{
		rules: []models.AlarmRule{
			{ID: "r1", DeviceID: "dev1", SensorID: "4.182", Condition: models.ConditionAbove, ThresholdMax: f(7.6), Enabled: true},
			{ID: "r2", DeviceID: "dev1", SensorID: "4.98", Condition: models.ConditionBelow, ThresholdMin: f(10), Enabled: true},
			{ID: "r3", DeviceID: "dev1", SensorID: "4.182", Condition: models.ConditionBelow, ThresholdMin: f(6.8), Enabled: false},
		},
	}
	cache := NewRuleCache(store, client, 5*time.Minute, zap.NewNop())
	return mr, store, cache
}

func TestRuleCache_FiltersBySensorAndEnabled(t *testing.T) {
	_, _, cache := setupRuleCache(t)

	rules, err := cache.EnabledRules(context.Background(), "dev1", "4.182")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "r1", rules[0].ID)
}

func TestRuleCache_ServesSecondReadFromCache(t *testing.T) {
	_, store, cache := setupRuleCache(t)

	_, err := cache.EnabledRules(context.Background(), "dev1", "4.182")
	require.NoError(t, err)
	_, err = cache.EnabledRules(context.Background(), "dev1", "4.98")
	require.NoError(t, err)

	assert.Equal(t, 1, store.calls)
}

func TestRuleCache_InvalidateForcesReload(t *testing.T) {
	_, store, cache := setupRuleCache(t)
	ctx := context.Background()

	_, err := cache.EnabledRules(ctx, "dev1", "4.182")
	require.NoError(t, err)

	cache.Invalidate(ctx, "dev1")

	_, err = cache.EnabledRules(ctx, "dev1", "4.182")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestRuleCache_EntryExpires(t *testing.T) {
	mr, store, cache := setupRuleCache(t)
	ctx := context.Background()

	_, err := cache.EnabledRules(ctx, "dev1", "4.182")
	require.NoError(t, err)

	mr.FastForward(6 * time.Minute)

	_, err = cache.EnabledRules(ctx, "dev1", "4.182")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestRuleCache_FallsBackWhenRedisDown(t *testing.T) {
	mr, store, cache := setupRuleCache(t)

	mr.Close()

	rules, err := cache.EnabledRules(context.Background(), "dev1", "4.182")
	require.NoError(t, err)
	assert.Len(t, rules, 1)
	assert.Equal(t, 1, store.calls)
}
