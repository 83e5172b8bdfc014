package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Target names in dispatch results.
const (
	TargetAlarmWebhook  = "alarm_webhook"
	TargetGlobalWebhook = "global_webhook"
	TargetEmail         = "email"
)

// maxRecordedBody bounds how much of a webhook response is kept in results.
const maxRecordedBody = 500

// DeliveryResult is the structured per-target outcome of one dispatch.
// Failures are recorded here, never raised; one broken target must not abort
// sibling deliveries.
type DeliveryResult struct {
	Success  bool   `json:"success"`
	Skipped  bool   `json:"skipped,omitempty"` // circuit open, no network call made
	Status   int    `json:"status,omitempty"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Options configures the dispatcher's global endpoints.
type Options struct {
	GlobalWebhookURL string
	EmailWebhookURL  string
	Timeout          time.Duration
}

// Dispatcher delivers triggered-alarm events to webhook targets. All targets
// for one event are attempted concurrently with a fixed per-attempt timeout;
// repeatedly failing endpoints are isolated by the circuit breaker.
type Dispatcher struct {
	client  *resty.Client
	breaker *Breaker
	opts    Options
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts Options, logger *zap.Logger) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "Bayrol-Pool-API/1.0")

	return &Dispatcher{
		client:  client,
		breaker: NewBreaker(),
		opts:    opts,
		logger:  logger,
	}
}

type target struct {
	name    string
	url     string
	payload any
}

// Dispatch sends an event to every configured target and returns the
// per-target results keyed by target name.
func (d *Dispatcher) Dispatch(ctx context.Context, event models.TriggeredAlarmEvent) map[string]DeliveryResult {
	payload := buildPayload(event)

	var targets []target
	if event.Rule.WebhookURL != "" {
		targets = append(targets, target{TargetAlarmWebhook, event.Rule.WebhookURL, payload})
	}
	if d.opts.GlobalWebhookURL != "" {
		targets = append(targets, target{TargetGlobalWebhook, d.opts.GlobalWebhookURL, payload})
	}
	if event.Rule.Email != "" && d.opts.EmailWebhookURL != "" {
		targets = append(targets, target{TargetEmail, d.opts.EmailWebhookURL, emailPayload(event, payload)})
	}

	results := make(map[string]DeliveryResult, len(targets))
	if len(targets) == 0 {
		return results
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, tgt := range targets {
		wg.Add(1)
		go func(tgt target) {
			defer wg.Done()
			result := d.deliver(ctx, tgt)
			mu.Lock()
			results[tgt.name] = result
			mu.Unlock()
		}(tgt)
	}
	wg.Wait()

	return results
}

// deliver performs one webhook attempt, consulting the circuit breaker
// before touching the network.
func (d *Dispatcher) deliver(ctx context.Context, tgt target) DeliveryResult {
	if !d.breaker.Allow(tgt.url) {
		d.logger.Warn("Skipping delivery, circuit open",
			zap.String("target", tgt.name),
			zap.String("url", tgt.url),
		)
		return DeliveryResult{Success: false, Skipped: true, Error: "circuit breaker open"}
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("X-Notification-Type", tgt.name).
		SetBody(tgt.payload).
		Post(tgt.url)

	if err != nil {
		d.breaker.RecordFailure(tgt.url)
		d.logger.Error("Webhook delivery failed",
			zap.String("target", tgt.name),
			zap.String("url", tgt.url),
			zap.Error(err),
		)
		return DeliveryResult{Success: false, Error: err.Error()}
	}

	body := truncate(resp.String(), maxRecordedBody)
	if resp.StatusCode() >= 200 && resp.StatusCode() < 300 {
		d.breaker.RecordSuccess(tgt.url)
		d.logger.Info("Webhook delivered",
			zap.String("target", tgt.name),
			zap.Int("status", resp.StatusCode()),
		)
		return DeliveryResult{Success: true, Status: resp.StatusCode(), Response: body}
	}

	d.breaker.RecordFailure(tgt.url)
	d.logger.Error("Webhook returned error status",
		zap.String("target", tgt.name),
		zap.String("url", tgt.url),
		zap.Int("status", resp.StatusCode()),
	)
	return DeliveryResult{
		Success: false,
		Status:  resp.StatusCode(),
		Error:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), body),
	}
}

func buildPayload(event models.TriggeredAlarmEvent) map[string]any {
	return map[string]any{
		"alarm": map[string]any{
			"id":            event.Rule.ID,
			"name":          event.Rule.Name,
			"condition":     event.Rule.Condition,
			"threshold_min": event.Rule.ThresholdMin,
			"threshold_max": event.Rule.ThresholdMax,
		},
		"device_id": event.DeviceID,
		"sensor": map[string]any{
			"type":            event.SensorID,
			"name":            event.SensorName,
			"value":           event.Value,
			"formatted_value": event.FormattedValue,
			"unit":            event.Unit,
		},
		"condition_met": event.ConditionMet,
		"severity":      event.Severity,
		"triggered_at":  event.TriggeredAt.UTC().Format(time.RFC3339),
	}
}

func emailPayload(event models.TriggeredAlarmEvent, base map[string]any) map[string]any {
	priority := "normal"
	if event.Severity == models.SeverityCritical {
		priority = "high"
	}
	payload := make(map[string]any, len(base)+1)
	for k, v := range base {
		payload[k] = v
	}
	payload["email"] = map[string]any{
		"to":       event.Rule.Email,
		"subject":  fmt.Sprintf("Pool Alarm: %s", event.Rule.Name),
		"template": "alarm_notification",
		"priority": priority,
	}
	return payload
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
