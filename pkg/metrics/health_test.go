package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetRegistry() {
	registry = &componentRegistry{
		components: make(map[string]componentHealth),
		startedAt:  time.Now(),
	}
}

func TestRegisterComponentRecordsStatus(t *testing.T) {
	resetRegistry()

	RegisterComponent("cmdserver", true, "listening")

	comp, ok := registry.components["cmdserver"]
	require.True(t, ok)
	assert.True(t, comp.healthy)
	assert.Equal(t, "listening", comp.message)
}

func TestRegisterComponentOverwritesPriorReport(t *testing.T) {
	resetRegistry()

	RegisterComponent("raft", true, "")
	RegisterComponent("raft", false, "leader lost")

	comp := registry.components["raft"]
	assert.False(t, comp.healthy)
	assert.Equal(t, "leader lost", comp.message)
}

func TestReadinessReadyOnceAllCriticalComponentsHealthy(t *testing.T) {
	resetRegistry()

	RegisterComponent("raft", true, "")
	RegisterComponent("cmdserver", true, "")
	RegisterComponent("discovery", true, "")

	report := readiness()
	assert.Equal(t, "ready", report.Status)
	assert.Empty(t, report.Message)
}

func TestReadinessNotReadyWhenComponentMissing(t *testing.T) {
	resetRegistry()

	RegisterComponent("discovery", true, "")
	// raft and cmdserver never registered

	report := readiness()
	assert.Equal(t, "not_ready", report.Status)
	assert.NotEmpty(t, report.Message)
	assert.Equal(t, "not registered", report.Components["raft"])
}

func TestReadinessNotReadyWhenComponentUnhealthy(t *testing.T) {
	resetRegistry()

	RegisterComponent("raft", false, "no leader elected")
	RegisterComponent("cmdserver", true, "")
	RegisterComponent("discovery", true, "")

	report := readiness()
	assert.Equal(t, "not_ready", report.Status)
	assert.Equal(t, "not ready: no leader elected", report.Components["raft"])
}

func TestReadyHandlerReturns200WhenReady(t *testing.T) {
	resetRegistry()
	RegisterComponent("raft", true, "")
	RegisterComponent("cmdserver", true, "")
	RegisterComponent("discovery", true, "")

	w := httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var body readinessReport
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ready", body.Status)
}

func TestReadyHandlerReturns503WhenNotReady(t *testing.T) {
	resetRegistry()
	RegisterComponent("discovery", true, "")

	w := httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body readinessReport
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "not_ready", body.Status)
}

func TestLivenessHandlerAlwaysReturns200(t *testing.T) {
	resetRegistry()

	w := httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "alive", body["status"])
	assert.NotEmpty(t, body["uptime"])
}
