package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/davifernan/bayrol-pool-api/internal/alarm"
	"github.com/davifernan/bayrol-pool-api/internal/auth"
	"github.com/davifernan/bayrol-pool-api/internal/cloud"
	"github.com/davifernan/bayrol-pool-api/internal/fanout"
	"github.com/davifernan/bayrol-pool-api/internal/history"
	"github.com/davifernan/bayrol-pool-api/internal/models"
	"github.com/davifernan/bayrol-pool-api/internal/notify"
	"github.com/davifernan/bayrol-pool-api/internal/registry"
	"github.com/davifernan/bayrol-pool-api/internal/repository"
	"github.com/davifernan/bayrol-pool-api/internal/service"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testMasterKey = "master-key"

type stubLink struct{}

func (stubLink) Start()        {}
func (stubLink) Stop()         {}
func (stubLink) State() string { return "connected" }
func (stubLink) Publish(sensorID, rawValue string) error {
	return nil
}

type stubLinker struct {
	creds *cloud.Credentials
	err   error
}

func (s *stubLinker) ExchangeAppLinkCode(context.Context, string) (*cloud.Credentials, error) {
	return s.creds, s.err
}

type memDeviceStore struct {
	devices map[string]*models.Device
	nextID  int
}

func newMemDeviceStore() *memDeviceStore {
	return &memDeviceStore{devices: make(map[string]*models.Device)}
}

func (s *memDeviceStore) Create(_ context.Context, device *models.Device) error {
	s.nextID++
	device.ID = fmt.Sprintf("dev%d", s.nextID)
	s.devices[device.ID] = device
	return nil
}

func (s *memDeviceStore) GetByID(_ context.Context, id string) (*models.Device, error) {
	d, ok := s.devices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return d, nil
}

func (s *memDeviceStore) GetBySerial(_ context.Context, serial string) (*models.Device, error) {
	for _, d := range s.devices {
		if d.Serial == serial {
			return d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memDeviceStore) ListActive(_ context.Context) ([]models.Device, error) {
	var out []models.Device
	for _, d := range s.devices {
		if d.IsActive {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memDeviceStore) Delete(_ context.Context, id string) error {
	if _, ok := s.devices[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.devices, id)
	return nil
}

type stubReadings struct{ rows []models.SensorReading }

func (s *stubReadings) ListRange(context.Context, string, string, time.Time, time.Time, int) ([]models.SensorReading, error) {
	return s.rows, nil
}

type noRules struct{}

func (noRules) EnabledRules(context.Context, string, string) ([]models.AlarmRule, error) {
	return nil, nil
}

type noopHistoryStore struct{}

func (noopHistoryStore) InsertBatch(context.Context, []models.AlarmHistoryRecord) error { return nil }
func (noopHistoryStore) AdvanceLastTriggered(context.Context, string, time.Time) error  { return nil }

type noopReadingStore struct{}

func (noopReadingStore) InsertReading(context.Context, models.SensorReading) error { return nil }

type apiHarness struct {
	server   *httptest.Server
	registry *registry.Registry
	linker   *stubLinker
	store    *memDeviceStore
}

func setupAPI(t *testing.T) *apiHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := zap.NewNop()

	fan := fanout.New(logger)
	engine := alarm.NewEngine(noRules{}, logger)
	dispatcher := notify.NewDispatcher(notify.Options{Timeout: time.Second}, logger)
	writer := history.NewWriter(client, noopHistoryStore{}, "queue:alarm_history", logger)

	factory := func(serial, accessToken string, sensorIDs []string, handler registry.LinkHandler) registry.Link {
		return stubLink{}
	}
	reg := registry.New(engine, dispatcher, fan, writer, noopReadingStore{}, client, factory, logger)

	linker := &stubLinker{creds: &cloud.Credentials{AccessToken: "tok", DeviceSerial: "SER1"}}
	store := newMemDeviceStore()
	devices := service.NewDeviceService(linker, store, reg, logger)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	alarmRepo := repository.NewAlarmRepository(db, logger)
	historyRepo := repository.NewAlarmHistoryRepository(db, logger)
	ruleCache := alarm.NewRuleCache(alarmRepo, client, 5*time.Minute, logger)

	authService := auth.NewService(nil, testMasterKey, logger)
	router := NewRouter(authService, logger)
	router.Register(
		NewDeviceHandler(devices, reg, &stubReadings{}, logger),
		NewAlarmHandler(alarmRepo, historyRepo, ruleCache, dispatcher, logger),
		NewAPIKeyHandler(authService, logger),
		NewWSHandler(reg, fan, logger),
	)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &apiHarness{server: server, registry: reg, linker: linker, store: store}
}

func (h *apiHarness) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testMasterKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func TestHealth_NoAuthRequired(t *testing.T) {
	h := setupAPI(t)

	resp, err := http.Get(h.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDevices_RequireAPIKey(t *testing.T) {
	h := setupAPI(t)

	resp, err := http.Get(h.server.URL + "/api/v1/devices")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterDevice(t *testing.T) {
	h := setupAPI(t)

	resp, envelope := h.do(t, http.MethodPost, "/api/v1/devices",
		`{"app_link_code": "AB12CD34", "name": "Backyard", "device_type": "Automatic SALT"}`)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, envelope["success"])
	data := envelope["data"].(map[string]any)
	assert.Equal(t, "SER1", data["device_id"])
	assert.Equal(t, "Backyard", data["name"])
	// The access token never leaves the server.
	assert.NotContains(t, data, "access_token")

	// The device is live immediately.
	resp, envelope = h.do(t, http.MethodGet, "/api/v1/devices", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, envelope["data"], 1)
}

func TestRegisterDevice_InvalidCode(t *testing.T) {
	h := setupAPI(t)
	h.linker.creds = nil
	h.linker.err = cloud.ErrInvalidCode

	resp, envelope := h.do(t, http.MethodPost, "/api/v1/devices",
		`{"app_link_code": "WRONG123", "device_type": "Automatic SALT"}`)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, envelope["success"])
}

func TestRegisterDevice_UnknownType(t *testing.T) {
	h := setupAPI(t)

	resp, _ := h.do(t, http.MethodPost, "/api/v1/devices",
		`{"app_link_code": "AB12CD34", "device_type": "Toaster"}`)

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestSensorsAndSet(t *testing.T) {
	h := setupAPI(t)

	_, envelope := h.do(t, http.MethodPost, "/api/v1/devices",
		`{"app_link_code": "AB12CD34", "device_type": "Automatic SALT"}`)
	deviceID := envelope["data"].(map[string]any)["id"].(string)

	// Feed one value through the pipeline.
	h.registry.HandleSensorValue("SER1", "4.182", float64(72))

	resp, envelope := h.do(t, http.MethodGet, "/api/v1/devices/"+deviceID+"/sensors", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	sensors := envelope["data"].(map[string]any)
	require.Contains(t, sensors, "4.182")
	reading := sensors["4.182"].(map[string]any)
	assert.Equal(t, 7.2, reading["value"])

	// Valid select write passes.
	resp, _ = h.do(t, http.MethodPost, "/api/v1/devices/"+deviceID+"/sensors/4.2/set", `{"value": "7.2"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Out-of-option-set write is a client error.
	resp, _ = h.do(t, http.MethodPost, "/api/v1/devices/"+deviceID+"/sensors/4.2/set", `{"value": "11.0"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Read-only sensor write is a client error.
	resp, _ = h.do(t, http.MethodPost, "/api/v1/devices/"+deviceID+"/sensors/4.182/set", `{"value": "7.2"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteDevice(t *testing.T) {
	h := setupAPI(t)

	_, envelope := h.do(t, http.MethodPost, "/api/v1/devices",
		`{"app_link_code": "AB12CD34", "device_type": "Automatic SALT"}`)
	deviceID := envelope["data"].(map[string]any)["id"].(string)

	resp, _ := h.do(t, http.MethodDelete, "/api/v1/devices/"+deviceID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/devices/"+deviceID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodDelete, "/api/v1/devices/"+deviceID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
