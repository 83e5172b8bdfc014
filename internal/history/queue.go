package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists flushed history batches.
type Store interface {
	InsertBatch(ctx context.Context, records []models.AlarmHistoryRecord) error
	// AdvanceLastTriggered moves a rule's last_triggered forward, never
	// backward.
	AdvanceLastTriggered(ctx context.Context, ruleID string, triggeredAt time.Time) error
}

// Writer queues triggered-alarm events in a Redis list and flushes them to
// the durable store in batches, keeping persistence off the ingestion hot
// path. Delivery to the store is at-least-once; deduplication is left to
// consumers of the history table.
type Writer struct {
	redisClient *redis.Client
	store       Store
	queueKey    string
	logger      *zap.Logger
}

// NewWriter creates a history queue writer.
func NewWriter(redisClient *redis.Client, store Store, queueKey string, logger *zap.Logger) *Writer {
	return &Writer{
		redisClient: redisClient,
		store:       store,
		queueKey:    queueKey,
		logger:      logger,
	}
}

// Enqueue pushes one event onto the queue. It never blocks on the durable
// store and never fails the caller: when the queue itself is unreachable the
// event is dropped with a loud error.
func (w *Writer) Enqueue(ctx context.Context, event models.TriggeredAlarmEvent, notificationResults any) {
	record := models.AlarmHistoryRecord{
		ID:             uuid.NewString(),
		AlarmID:        event.Rule.ID,
		DeviceID:       event.DeviceID,
		SensorID:       event.SensorID,
		SensorName:     event.SensorName,
		SensorValue:    event.Value,
		FormattedValue: event.FormattedValue,
		ConditionMet:   event.ConditionMet,
		Severity:       event.Severity,
		TriggeredAt:    event.TriggeredAt,
	}
	if notificationResults != nil {
		if data, err := json.Marshal(notificationResults); err == nil {
			record.NotificationSent = true
			record.NotificationResults = string(data)
		}
	}

	data, err := json.Marshal(record)
	if err != nil {
		w.logger.Error("Failed to marshal history record", zap.Error(err))
		return
	}
	if err := w.redisClient.LPush(ctx, w.queueKey, data).Err(); err != nil {
		// Queue unavailable: best-effort persistence, the event is lost
		// but the hot path keeps running.
		w.logger.Error("History queue unavailable, dropping event",
			zap.String("alarm_id", record.AlarmID),
			zap.String("device_id", record.DeviceID),
			zap.Error(err),
		)
	}
}

// Depth returns the current queue length.
func (w *Writer) Depth(ctx context.Context) (int64, error) {
	return w.redisClient.LLen(ctx, w.queueKey).Result()
}

// FlushBatch pops up to maxItems queued events, persists them as one batch
// and advances each affected rule's last_triggered. If the store rejects the
// batch the items go back on the queue for the next flush.
func (w *Writer) FlushBatch(ctx context.Context, maxItems int) (int, error) {
	var raw []string
	var records []models.AlarmHistoryRecord

	for len(records) < maxItems {
		item, err := w.redisClient.RPop(ctx, w.queueKey).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			w.requeue(ctx, raw)
			return 0, err
		}
		var record models.AlarmHistoryRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			w.logger.Error("Dropping invalid history queue item", zap.Error(err))
			continue
		}
		raw = append(raw, item)
		records = append(records, record)
	}

	if len(records) == 0 {
		return 0, nil
	}

	if err := w.store.InsertBatch(ctx, records); err != nil {
		w.requeue(ctx, raw)
		return 0, err
	}

	// Latest trigger per rule wins; the store ignores older timestamps.
	latest := make(map[string]time.Time)
	for _, record := range records {
		if t, ok := latest[record.AlarmID]; !ok || record.TriggeredAt.After(t) {
			latest[record.AlarmID] = record.TriggeredAt
		}
	}
	for ruleID, t := range latest {
		if err := w.store.AdvanceLastTriggered(ctx, ruleID, t); err != nil {
			w.logger.Error("Failed to advance last_triggered",
				zap.String("alarm_id", ruleID),
				zap.Error(err),
			)
		}
	}

	w.logger.Info("Flushed alarm history batch", zap.Int("count", len(records)))
	return len(records), nil
}

func (w *Writer) requeue(ctx context.Context, raw []string) {
	for _, item := range raw {
		if err := w.redisClient.RPush(ctx, w.queueKey, item).Err(); err != nil {
			w.logger.Error("Failed to requeue history item", zap.Error(err))
		}
	}
}
