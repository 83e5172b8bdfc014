package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockAlarmDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AlarmRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewAlarmRepository(db, zap.NewNop())
}

func TestListEnabledByDevice(t *testing.T) {
	db, mock, repo := setupMockAlarmDB(t)
	defer db.Close()

	max := 7.6
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "device_id", "sensor_type", "name", "condition", "threshold_min", "threshold_max",
		"enabled", "webhook_url", "email", "cooldown_minutes", "last_triggered", "created_at", "updated_at",
	}).AddRow(
		"r1", "dev1", "4.182", "pH high", models.ConditionAbove, nil, max,
		true, "https://hooks.example.com/ph", "", 60, nil, now, now,
	)

	mock.ExpectQuery(`SELECT .+ FROM alarms WHERE device_id = \$1 AND enabled = true`).
		WithArgs("dev1").
		WillReturnRows(rows)

	rules, err := repo.ListEnabledByDevice(context.Background(), "dev1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "r1", rules[0].ID)
	assert.Equal(t, models.ConditionAbove, rules[0].Condition)
	require.NotNil(t, rules[0].ThresholdMax)
	assert.Equal(t, 7.6, *rules[0].ThresholdMax)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlarmRule(t *testing.T) {
	db, mock, repo := setupMockAlarmDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO alarms`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	min := 6.8
	rule := models.AlarmRule{
		DeviceID:        "dev1",
		SensorID:        "4.182",
		Name:            "pH low",
		Condition:       models.ConditionBelow,
		ThresholdMin:    &min,
		Enabled:         true,
		CooldownMinutes: 60,
	}
	err := repo.Create(context.Background(), &rule)
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)
	assert.False(t, rule.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceLastTriggered_NeverRewinds(t *testing.T) {
	db, mock, repo := setupMockAlarmDB(t)
	defer db.Close()

	triggeredAt := time.Now().UTC()

	// The WHERE clause guards against rewinding; an older timestamp simply
	// matches no row and that is not an error.
	mock.ExpectExec(`UPDATE alarms SET last_triggered = \$2 WHERE id = \$1 AND \(last_triggered IS NULL OR last_triggered < \$2\)`).
		WithArgs("r1", triggeredAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AdvanceLastTriggered(context.Background(), "r1", triggeredAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAlarmRule_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlarmDB(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM alarms WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertBatch_SingleTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAlarmHistoryRepository(db, zap.NewNop())

	now := time.Now().UTC()
	records := []models.AlarmHistoryRecord{
		{ID: "h1", AlarmID: "r1", DeviceID: "dev1", SensorID: "4.182", SensorName: "pH",
			SensorValue: 7.9, Severity: models.SeverityWarning, TriggeredAt: now},
		{ID: "h2", AlarmID: "r2", DeviceID: "dev1", SensorID: "5.3", SensorName: "Salt",
			SensorValue: 2.1, Severity: models.SeverityCritical, TriggeredAt: now,
			NotificationSent: true, NotificationResults: `{"alarm_webhook":{"success":true}}`},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO alarm_history`)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = repo.InsertBatch(context.Background(), records)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatch_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAlarmHistoryRepository(db, zap.NewNop())

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO alarm_history`)
	prep.ExpectExec().WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	records := []models.AlarmHistoryRecord{{ID: "h1", AlarmID: "r1", TriggeredAt: time.Now()}}
	err = repo.InsertBatch(context.Background(), records)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
