package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/alarm"
	"github.com/davifernan/bayrol-pool-api/internal/models"
	"github.com/davifernan/bayrol-pool-api/internal/notify"
	"github.com/davifernan/bayrol-pool-api/internal/repository"

	"go.uber.org/zap"
)

// AlarmHandler serves alarm rule CRUD, history queries and test deliveries.
type AlarmHandler struct {
	rules      *repository.AlarmRepository
	history    *repository.AlarmHistoryRepository
	cache      *alarm.RuleCache
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
}

// NewAlarmHandler creates an alarm handler.
func NewAlarmHandler(
	rules *repository.AlarmRepository,
	history *repository.AlarmHistoryRepository,
	cache *alarm.RuleCache,
	dispatcher *notify.Dispatcher,
	logger *zap.Logger,
) *AlarmHandler {
	return &AlarmHandler{rules: rules, history: history, cache: cache, dispatcher: dispatcher, logger: logger}
}

const alarmsPrefix = "/api/v1/alarms"

// ServeHTTP dispatches /api/v1/alarms and its subresources.
func (h *AlarmHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, alarmsPrefix), "/")

	switch {
	case rest == "":
		switch r.Method {
		case http.MethodGet:
			h.List(w, r)
		case http.MethodPost:
			h.Create(w, r)
		default:
			methodNotAllowed(w)
		}
	case rest == "history":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.History(w, r)
	case strings.HasSuffix(rest, "/test"):
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.Test(w, r, strings.TrimSuffix(rest, "/test"))
	case !strings.Contains(rest, "/"):
		switch r.Method {
		case http.MethodGet:
			h.Get(w, r, rest)
		case http.MethodPut:
			h.Update(w, r, rest)
		case http.MethodDelete:
			h.Delete(w, r, rest)
		default:
			methodNotAllowed(w)
		}
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// Create adds a new rule. The rule is validated once here; the evaluation
// path trusts stored rules.
func (h *AlarmHandler) Create(w http.ResponseWriter, r *http.Request) {
	var rule models.AlarmRule
	if !decodeBody(w, r, &rule) {
		return
	}
	if rule.DeviceID == "" || rule.SensorID == "" {
		writeError(w, http.StatusBadRequest, "device_id and sensor_type are required")
		return
	}
	if err := rule.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.rules.Create(r.Context(), &rule); err != nil {
		h.logger.Error("Alarm rule creation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create alarm")
		return
	}
	h.cache.Invalidate(r.Context(), rule.DeviceID)
	writeJSON(w, http.StatusCreated, Ok(rule))
}

// List returns rules, optionally narrowed to one device.
func (h *AlarmHandler) List(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	rules, err := h.rules.ListByDevice(r.Context(), deviceID)
	if err != nil {
		h.logger.Error("Alarm rule query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load alarms")
		return
	}
	writeOk(w, rules)
}

// Get returns one rule.
func (h *AlarmHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	rule, err := h.rules.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alarm not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load alarm")
		return
	}
	writeOk(w, rule)
}

// Update rewrites a rule's editable fields.
func (h *AlarmHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	existing, err := h.rules.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alarm not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load alarm")
		return
	}

	var rule models.AlarmRule
	if !decodeBody(w, r, &rule) {
		return
	}
	rule.ID = existing.ID
	rule.DeviceID = existing.DeviceID
	rule.SensorID = existing.SensorID
	if err := rule.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.rules.Update(r.Context(), &rule); err != nil {
		h.logger.Error("Alarm rule update failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update alarm")
		return
	}
	h.cache.Invalidate(r.Context(), rule.DeviceID)
	writeOk(w, rule)
}

// Delete removes a rule.
func (h *AlarmHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	rule, err := h.rules.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alarm not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load alarm")
		return
	}
	if err := h.rules.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete alarm")
		return
	}
	h.cache.Invalidate(r.Context(), rule.DeviceID)
	writeOk(w, map[string]string{"deleted": id})
}

// Test fires a synthetic event through the rule's notification targets so
// users can verify webhooks without driving pool chemistry out of range.
func (h *AlarmHandler) Test(w http.ResponseWriter, r *http.Request, id string) {
	rule, err := h.rules.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alarm not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load alarm")
		return
	}

	event := models.TriggeredAlarmEvent{
		Rule:           *rule,
		DeviceID:       rule.DeviceID,
		SensorID:       rule.SensorID,
		SensorName:     rule.Name,
		FormattedValue: "test",
		ConditionMet:   "test notification",
		Severity:       models.SeverityInfo,
		TriggeredAt:    time.Now().UTC(),
	}
	results := h.dispatcher.Dispatch(r.Context(), event)
	writeOk(w, results)
}

// History lists triggered-alarm history, newest first.
func (h *AlarmHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.HistoryFilter{
		DeviceID: q.Get("device_id"),
		AlarmID:  q.Get("alarm_id"),
		Severity: q.Get("severity"),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "until must be RFC3339")
			return
		}
		filter.Until = t
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	records, err := h.history.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Alarm history query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeOk(w, records)
}
