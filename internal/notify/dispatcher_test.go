package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEvent(webhookURL, email string) models.TriggeredAlarmEvent {
	max := 7.6
	return models.TriggeredAlarmEvent{
		Rule: models.AlarmRule{
			ID: "r1", Name: "pH high", Condition: models.ConditionAbove,
			ThresholdMax: &max, WebhookURL: webhookURL, Email: email,
		},
		DeviceID:       "dev1",
		SensorID:       "4.182",
		SensorName:     "pH",
		Value:          7.8,
		FormattedValue: "7.8",
		ConditionMet:   "pH 7.8 > 7.6 (above threshold)",
		Severity:       models.SeverityInfo,
		TriggeredAt:    time.Now(),
	}
}

func TestDispatch_DeliversToRuleWebhook(t *testing.T) {
	var gotBody map[string]any
	var gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("X-Notification-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(Options{Timeout: 5 * time.Second}, zap.NewNop())
	results := d.Dispatch(context.Background(), testEvent(server.URL, ""))

	require.Len(t, results, 1)
	result := results[TargetAlarmWebhook]
	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.Equal(t, TargetAlarmWebhook, gotType)
	assert.Equal(t, "pH 7.8 > 7.6 (above threshold)", gotBody["condition_met"])
}

func TestDispatch_FailingTargetDoesNotAffectSiblings(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	d := NewDispatcher(Options{GlobalWebhookURL: healthy.URL, Timeout: 5 * time.Second}, zap.NewNop())
	results := d.Dispatch(context.Background(), testEvent(broken.URL, ""))

	require.Len(t, results, 2)
	assert.False(t, results[TargetAlarmWebhook].Success)
	assert.Equal(t, http.StatusInternalServerError, results[TargetAlarmWebhook].Status)
	assert.True(t, results[TargetGlobalWebhook].Success)
}

func TestDispatch_EmailTargetGetsEmailPayload(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(Options{EmailWebhookURL: server.URL, Timeout: 5 * time.Second}, zap.NewNop())
	results := d.Dispatch(context.Background(), testEvent("", "owner@example.com"))

	require.Len(t, results, 1)
	assert.True(t, results[TargetEmail].Success)

	email, ok := gotBody["email"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "owner@example.com", email["to"])
	assert.Equal(t, "Pool Alarm: pH high", email["subject"])
	assert.Equal(t, "normal", email["priority"])
}

func TestDispatch_CircuitSkipsWithoutNetworkCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	d := NewDispatcher(Options{Timeout: 5 * time.Second}, zap.NewNop())
	event := testEvent(server.URL, "")

	for i := 0; i < MaxFailures; i++ {
		d.Dispatch(context.Background(), event)
	}
	require.EqualValues(t, MaxFailures, calls.Load())

	// Sixth attempt inside the window: recorded as a synthetic failure,
	// no request hits the server.
	results := d.Dispatch(context.Background(), event)
	assert.True(t, results[TargetAlarmWebhook].Skipped)
	assert.False(t, results[TargetAlarmWebhook].Success)
	assert.EqualValues(t, MaxFailures, calls.Load())
}

func TestDispatch_TruncatesResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer server.Close()

	d := NewDispatcher(Options{Timeout: 5 * time.Second}, zap.NewNop())
	results := d.Dispatch(context.Background(), testEvent(server.URL, ""))

	assert.Len(t, results[TargetAlarmWebhook].Response, maxRecordedBody)
}

func TestDispatch_NoTargetsConfigured(t *testing.T) {
	d := NewDispatcher(Options{}, zap.NewNop())
	results := d.Dispatch(context.Background(), testEvent("", ""))
	assert.Empty(t, results)
}
