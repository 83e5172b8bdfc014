package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const alarmColumns = `
	id, device_id, sensor_type, name, condition, threshold_min, threshold_max,
	enabled, webhook_url, email, cooldown_minutes, last_triggered, created_at, updated_at
`

// AlarmRepository persists alarm rules.
type AlarmRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlarmRepository creates an alarm rule repository.
func NewAlarmRepository(db *sql.DB, logger *zap.Logger) *AlarmRepository {
	return &AlarmRepository{db: db, logger: logger}
}

// Create inserts a new rule and fills in its generated id and timestamps.
func (r *AlarmRepository) Create(ctx context.Context, rule *models.AlarmRule) error {
	rule.ID = uuid.NewString()
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `
		INSERT INTO alarms (` + alarmColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.DeviceID,
		rule.SensorID,
		rule.Name,
		rule.Condition,
		rule.ThresholdMin,
		rule.ThresholdMax,
		rule.Enabled,
		rule.WebhookURL,
		rule.Email,
		rule.CooldownMinutes,
		rule.LastTriggered,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alarm rule: %w", err)
	}
	return nil
}

// GetByID loads one rule.
func (r *AlarmRepository) GetByID(ctx context.Context, id string) (*models.AlarmRule, error) {
	query := `SELECT ` + alarmColumns + ` FROM alarms WHERE id = $1`
	rule, err := scanAlarmRow(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alarm rule: %w", err)
	}
	return rule, nil
}

// ListByDevice returns every rule for one device, enabled or not.
func (r *AlarmRepository) ListByDevice(ctx context.Context, deviceID string) ([]models.AlarmRule, error) {
	query := `SELECT ` + alarmColumns + ` FROM alarms WHERE device_id = $1 ORDER BY created_at`
	return r.queryRules(ctx, query, deviceID)
}

// ListEnabledByDevice returns the rules the evaluation path cares about.
// This feeds the rule cache, not the hot path directly.
func (r *AlarmRepository) ListEnabledByDevice(ctx context.Context, deviceID string) ([]models.AlarmRule, error) {
	query := `SELECT ` + alarmColumns + ` FROM alarms WHERE device_id = $1 AND enabled = true ORDER BY created_at`
	return r.queryRules(ctx, query, deviceID)
}

// Update rewrites the user-editable fields of a rule.
func (r *AlarmRepository) Update(ctx context.Context, rule *models.AlarmRule) error {
	rule.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE alarms
		SET name = $2, condition = $3, threshold_min = $4, threshold_max = $5,
			enabled = $6, webhook_url = $7, email = $8, cooldown_minutes = $9, updated_at = $10
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		rule.Condition,
		rule.ThresholdMin,
		rule.ThresholdMax,
		rule.Enabled,
		rule.WebhookURL,
		rule.Email,
		rule.CooldownMinutes,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update alarm rule: %w", err)
	}
	return requireRow(result)
}

// Delete removes a rule.
func (r *AlarmRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alarms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alarm rule: %w", err)
	}
	return requireRow(result)
}

// AdvanceLastTriggered moves last_triggered forward. Older timestamps are
// silently ignored so out-of-order history flushes cannot rewind it.
func (r *AlarmRepository) AdvanceLastTriggered(ctx context.Context, ruleID string, triggeredAt time.Time) error {
	query := `
		UPDATE alarms
		SET last_triggered = $2
		WHERE id = $1 AND (last_triggered IS NULL OR last_triggered < $2)
	`
	if _, err := r.db.ExecContext(ctx, query, ruleID, triggeredAt); err != nil {
		return fmt.Errorf("failed to advance last_triggered: %w", err)
	}
	return nil
}

func (r *AlarmRepository) queryRules(ctx context.Context, query string, args ...any) ([]models.AlarmRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alarm rules: %w", err)
	}
	defer rows.Close()

	var rules []models.AlarmRule
	for rows.Next() {
		var rule models.AlarmRule
		if err := rows.Scan(
			&rule.ID,
			&rule.DeviceID,
			&rule.SensorID,
			&rule.Name,
			&rule.Condition,
			&rule.ThresholdMin,
			&rule.ThresholdMax,
			&rule.Enabled,
			&rule.WebhookURL,
			&rule.Email,
			&rule.CooldownMinutes,
			&rule.LastTriggered,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alarm rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanAlarmRow(row *sql.Row) (*models.AlarmRule, error) {
	var rule models.AlarmRule
	err := row.Scan(
		&rule.ID,
		&rule.DeviceID,
		&rule.SensorID,
		&rule.Name,
		&rule.Condition,
		&rule.ThresholdMin,
		&rule.ThresholdMax,
		&rule.Enabled,
		&rule.WebhookURL,
		&rule.Email,
		&rule.CooldownMinutes,
		&rule.LastTriggered,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// HistoryFilter narrows alarm history queries. Zero values mean no filter.
type HistoryFilter struct {
	DeviceID string
	AlarmID  string
	Severity string
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// AlarmHistoryRepository persists triggered-alarm history.
type AlarmHistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlarmHistoryRepository creates an alarm history repository.
func NewAlarmHistoryRepository(db *sql.DB, logger *zap.Logger) *AlarmHistoryRepository {
	return &AlarmHistoryRepository{db: db, logger: logger}
}

// InsertBatch writes one flushed queue batch in a single transaction.
func (r *AlarmHistoryRepository) InsertBatch(ctx context.Context, records []models.AlarmHistoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO alarm_history (
			id, alarm_id, device_id, sensor_type, sensor_name, sensor_value,
			formatted_value, condition_met, severity, triggered_at,
			notification_sent, notification_results
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		var results any
		if record.NotificationResults != "" {
			results = record.NotificationResults
		}
		if _, err := stmt.ExecContext(ctx,
			record.ID,
			record.AlarmID,
			record.DeviceID,
			record.SensorID,
			record.SensorName,
			record.SensorValue,
			record.FormattedValue,
			record.ConditionMet,
			record.Severity,
			record.TriggeredAt,
			record.NotificationSent,
			results,
		); err != nil {
			return fmt.Errorf("failed to insert history record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history batch: %w", err)
	}
	return nil
}

// List returns history records newest first, narrowed by filter.
func (r *AlarmHistoryRepository) List(ctx context.Context, filter HistoryFilter) ([]models.AlarmHistoryRecord, error) {
	query := `
		SELECT id, alarm_id, device_id, sensor_type, sensor_name, sensor_value,
			formatted_value, condition_met, severity, triggered_at,
			notification_sent, COALESCE(notification_results::text, '')
		FROM alarm_history
		WHERE 1=1
	`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.DeviceID != "" {
		query += " AND device_id = " + arg(filter.DeviceID)
	}
	if filter.AlarmID != "" {
		query += " AND alarm_id = " + arg(filter.AlarmID)
	}
	if filter.Severity != "" {
		query += " AND severity = " + arg(filter.Severity)
	}
	if !filter.Since.IsZero() {
		query += " AND triggered_at >= " + arg(filter.Since)
	}
	if !filter.Until.IsZero() {
		query += " AND triggered_at <= " + arg(filter.Until)
	}
	query += " ORDER BY triggered_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += " LIMIT " + arg(limit)
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alarm history: %w", err)
	}
	defer rows.Close()

	var records []models.AlarmHistoryRecord
	for rows.Next() {
		var record models.AlarmHistoryRecord
		if err := rows.Scan(
			&record.ID,
			&record.AlarmID,
			&record.DeviceID,
			&record.SensorID,
			&record.SensorName,
			&record.SensorValue,
			&record.FormattedValue,
			&record.ConditionMet,
			&record.Severity,
			&record.TriggeredAt,
			&record.NotificationSent,
			&record.NotificationResults,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
