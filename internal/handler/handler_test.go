package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"servo-commissioning/internal/commissioning"
	"servo-commissioning/internal/config"
	"servo-commissioning/internal/model"
	"servo-commissioning/internal/repository"
	"servo-commissioning/internal/service"
	"servo-commissioning/internal/store"
	"servo-commissioning/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type gatedEngine struct {
	gate    chan struct{}
	outcome model.Outcome
}

func (e *gatedEngine) Commission(ctx context.Context, attemptID string, req model.CommissioningRequest, target model.TargetConfig) model.Outcome {
	select {
	case <-e.gate:
		return e.outcome
	case <-ctx.Done():
		return model.Failure(model.OutcomeConfigurationTimeout, "Cancelled.", ctx.Err())
	}
}

type okFlasher struct{}

func (okFlasher) Flash(ctx context.Context, attemptID string, module model.Module) model.Outcome {
	return model.Success("Module flashed.", nil)
}

type mapLoader map[string]model.TargetConfig

func (l mapLoader) Load(robotPart, deviceName string) (model.TargetConfig, error) {
	target, ok := l[deviceName]
	if !ok {
		return model.TargetConfig{}, store.ErrUnknownDevice
	}
	return target, nil
}

type staticPorts []string

func (p staticPorts) Candidates(goos string) ([]string, error) {
	return p, nil
}

type testServer struct {
	router  *gin.Engine
	engine  *gatedEngine
	bus     *EventBus
	ws      *WebSocketHandler
	service *service.CommissioningService
	repo    repository.AttemptRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	ts := &testServer{
		engine: &gatedEngine{gate: make(chan struct{}), outcome: model.Failure(model.OutcomeNoDeviceDetected, "No motor detected.", nil)},
		bus:    NewEventBus(logger),
		repo:   repository.NewMemoryAttemptRepository(50, logger),
	}
	go ts.bus.Start()

	ts.service = service.NewCommissioningService(
		ts.engine, okFlasher{},
		mapLoader{"r_gripper": {Identifier: 17, BaudRate: 1000000}},
		store.DefaultCatalog(), ts.repo, ts.bus,
		service.Runners{
			Motors:  commissioning.NewRunner("motors", time.Millisecond, logger),
			Modules: commissioning.NewRunner("modules", time.Millisecond, logger),
		},
		logger,
	)

	cfg := &config.Config{App: config.AppConfig{Name: "servo-commissioning", Version: "test"}}
	ts.router = gin.New()
	ts.ws = NewWebSocketHandler(ts.bus, logger)
	NewCommissioningHandler(ts.service, logger).RegisterRoutes(ts.router.Group("/api/v1"))
	NewHealthHandler(nil, staticPorts{"/dev/ttyUSB0"}, cfg, logger).RegisterRoutes(ts.router.Group(""))
	ts.router.GET("/ws/progress", ts.ws.HandleProgressConnection)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = ts.service.Shutdown(ctx)
		ts.bus.Close()
	})
	return ts
}

func (ts *testServer) do(method, path string, body interface{}) (*httptest.ResponseRecorder, utils.APIResponse) {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var resp utils.APIResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func dataField(t *testing.T, resp utils.APIResponse, key string) interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return data[key]
}

func TestStartMotor_AcceptedThenConflict(t *testing.T) {
	ts := newTestServer(t)

	w, resp := ts.do(http.MethodPost, "/api/v1/commissioning/motors", gin.H{"robot_part": "right arm", "device_name": "r_gripper"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	assert.NotEmpty(t, dataField(t, resp, "attempt_id"))
	assert.Nil(t, dataField(t, resp, "outcome"))

	w, resp = ts.do(http.MethodPost, "/api/v1/commissioning/motors", gin.H{"robot_part": "right arm", "device_name": "r_gripper"})
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, utils.CodeAttemptInProgress, resp.Error.Code)

	w, resp = ts.do(http.MethodGet, "/api/v1/commissioning/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	motors := dataField(t, resp, "motors").(map[string]interface{})
	assert.Equal(t, true, motors["busy"])

	close(ts.engine.gate)
}

func TestStartMotor_WaitReturnsFailureOutcomeWith200(t *testing.T) {
	ts := newTestServer(t)
	close(ts.engine.gate)

	w, resp := ts.do(http.MethodPost, "/api/v1/commissioning/motors?wait=true", gin.H{"robot_part": "bras droit", "device_name": "r_gripper"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	assert.Equal(t, "Attempt failed", resp.Message)

	outcome := dataField(t, resp, "outcome").(map[string]interface{})
	assert.Equal(t, string(model.OutcomeNoDeviceDetected), outcome["kind"])
	assert.Equal(t, "No motor detected.", outcome["detail"])
}

func TestStartMotor_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"missing fields", gin.H{"robot_part": "head"}, http.StatusBadRequest, utils.CodeValidation},
		{"unknown part", gin.H{"robot_part": "tail", "device_name": "x"}, http.StatusNotFound, utils.CodeUnknownPart},
		{"unknown device", gin.H{"robot_part": "right arm", "device_name": "r_nose"}, http.StatusNotFound, utils.CodeUnknownDevice},
		{"bad kind", gin.H{"robot_part": "right arm", "device_name": "r_gripper", "device_kind": "FIRMWARE_MODULE"}, http.StatusBadRequest, utils.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			w, resp := ts.do(http.MethodPost, "/api/v1/commissioning/motors", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestStartMotor_UnavailableAfterShutdown(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ts.service.Shutdown(ctx))

	w, resp := ts.do(http.MethodPost, "/api/v1/commissioning/motors", gin.H{"robot_part": "right arm", "device_name": "r_gripper"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	assert.False(t, resp.Success)
}

func TestStartModule(t *testing.T) {
	ts := newTestServer(t)

	w, resp := ts.do(http.MethodPost, "/api/v1/commissioning/modules?wait=1", gin.H{"module_name": "orbita"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	outcome := dataField(t, resp, "outcome").(map[string]interface{})
	assert.Equal(t, string(model.OutcomeSuccess), outcome["kind"])

	w, _ = ts.do(http.MethodPost, "/api/v1/commissioning/modules", gin.H{"module_name": "toaster"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttempts(t *testing.T) {
	ts := newTestServer(t)

	w, resp := ts.do(http.MethodPost, "/api/v1/commissioning/modules?wait=true", gin.H{"module_name": "gate"})
	require.Equal(t, http.StatusOK, w.Code)
	id := dataField(t, resp, "attempt_id").(string)

	w, resp = ts.do(http.MethodGet, "/api/v1/commissioning/attempts?device_kind=firmware_module", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), dataField(t, resp, "total"))

	w, resp = ts.do(http.MethodGet, "/api/v1/commissioning/attempts/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gate", dataField(t, resp, "device_name"))
	assert.Equal(t, string(model.OutcomeSuccess), dataField(t, resp, "outcome"))

	w, _ = ts.do(http.MethodGet, "/api/v1/commissioning/attempts/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(http.MethodGet, "/api/v1/commissioning/attempts/00000000-0000-0000-0000-000000000001", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = ts.do(http.MethodGet, "/api/v1/commissioning/attempts?device_kind=stepper", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalog(t *testing.T) {
	ts := newTestServer(t)

	w, resp := ts.do(http.MethodGet, "/api/v1/commissioning/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	parts := dataField(t, resp, "parts").([]interface{})
	assert.Len(t, parts, 3)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Checks["serial_port"].Status)
	assert.Equal(t, "disabled", health.Checks["database"].Status)

	w, _ = ts.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth_DegradedWithoutPort(t *testing.T) {
	cfg := &config.Config{}
	router := gin.New()
	NewHealthHandler(nil, staticPorts{}, cfg, zap.NewNop()).RegisterRoutes(router.Group(""))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "unavailable", health.Checks["serial_port"].Status)
}

func TestProgressWebSocket_ReceivesStartedAndOutcome(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ts.ws.GetConnectionStats().TotalConnections == 1 }, time.Second, 5*time.Millisecond)

	close(ts.engine.gate)
	w, _ := ts.do(http.MethodPost, "/api/v1/commissioning/motors?wait=true", gin.H{"robot_part": "right arm", "device_name": "r_gripper"})
	require.Equal(t, http.StatusOK, w.Code)

	var types []string
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg WebSocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v (got %v)", err, types)
		}
		types = append(types, msg.Type)
		if msg.Type == MessageOutcome {
			data := msg.Data.(map[string]interface{})
			outcome := data["outcome"].(map[string]interface{})
			assert.Equal(t, string(model.OutcomeNoDeviceDetected), outcome["kind"])
			break
		}
	}
	assert.Equal(t, MessageStarted, types[0])
}

func TestEventBus_CloseEndsSubscriptions(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	sub := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		bus.Start()
		close(done)
	}()

	bus.PublishAttemptEvent(model.AttemptEvent{Type: model.EventAttemptProgress, Progress: 3})
	bus.Close()
	bus.Close()
	bus.PublishAttemptEvent(model.AttemptEvent{Type: model.EventAttemptProgress, Progress: 4})

	var got []int
	for e := range sub {
		got = append(got, e.Progress)
	}
	assert.Equal(t, []int{3}, got)
	<-done

	_, open := <-bus.Subscribe()
	assert.False(t, open)
}
