package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearair/nearair/internal/announce"
	"github.com/nearair/nearair/internal/api/handler"
	"github.com/nearair/nearair/internal/api/models"
	"github.com/nearair/nearair/internal/aqi"
	"github.com/nearair/nearair/internal/directory"
	"github.com/nearair/nearair/internal/orchestrator"
	"github.com/nearair/nearair/internal/provider/resilience"
	"github.com/nearair/nearair/internal/sensor"
	"github.com/nearair/nearair/pkg/geo"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fakeController struct {
	mu     sync.Mutex
	state  orchestrator.State
	resets int
}

func (c *fakeController) State() orchestrator.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeController) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Generation
}

func (c *fakeController) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	c.state.Generation++
	c.state.Phase = orchestrator.PhaseIdle
}

type fakeRegistry []resilience.Health

func (r fakeRegistry) Snapshot() []resilience.Health { return r }

type fakeCache directory.Status

func (c fakeCache) Status(context.Context) directory.Status { return directory.Status(c) }

func displayingState() orchestrator.State {
	distance := 1.25
	humidity := 48.0
	next := testNow.Add(10 * time.Minute)
	index := 57
	return orchestrator.State{
		Generation: 3,
		Phase:      orchestrator.PhaseDisplaying,
		Coordinate: &geo.Coordinate{Latitude: 37.77, Longitude: -122.42},
		Sensor:     &sensor.Summary{ID: "1234", Latitude: 37.78, Longitude: -122.41, Distance: &distance},
		Result: &aqi.Result{
			Index:         aqi.Index(57),
			Severity:      aqi.Classify(aqi.Index(57)),
			RawPM25:       20.1,
			CorrectedPM25: 14.9,
			Correction:    aqi.CorrectionEPA,
			Humidity:      &humidity,
			ChannelsUsed:  []string{"A", "B"},
		},
		Announcement: announce.Announcement{
			Generation: 3,
			Phase:      string(orchestrator.PhaseDisplaying),
			Headline:   "AQI 57: Moderate",
			AQI:        &index,
			At:         testNow,
		},
		UpdatedAt:   testNow,
		NextCycleAt: &next,
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestGetState(t *testing.T) {
	h := handler.NewCycleHandler(&fakeController{state: displayingState()}, announce.NewLatest(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetState(rec, httptest.NewRequest(http.MethodGet, "/v1/state", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[models.State](t, rec)
	assert.Equal(t, uint64(3), state.Generation)
	assert.Equal(t, "Displaying", state.Phase)
	assert.False(t, state.Halted)
	require.NotNil(t, state.Coordinate)
	assert.InDelta(t, 37.77, state.Coordinate.Lat, 1e-9)
	require.NotNil(t, state.Sensor)
	assert.Equal(t, "1234", state.Sensor.ID)
	assert.Contains(t, state.Sensor.MapURL, "select=1234")
	require.NotNil(t, state.AQI)
	require.NotNil(t, state.AQI.Index)
	assert.Equal(t, 57, *state.AQI.Index)
	assert.Equal(t, "epa", state.AQI.Correction)
	require.NotNil(t, state.Announcement)
	assert.Equal(t, "AQI 57: Moderate", state.Announcement.Headline)
	require.NotNil(t, state.NextCycleAt)
	assert.Equal(t, testNow.Add(10*time.Minute), state.NextCycleAt.Time())
}

func TestGetState_Halted(t *testing.T) {
	h := handler.NewCycleHandler(&fakeController{state: orchestrator.State{
		Generation: 1,
		Phase:      orchestrator.PhaseLocationDenied,
	}}, announce.NewLatest(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetState(rec, httptest.NewRequest(http.MethodGet, "/v1/state", http.NoBody))

	state := decode[models.State](t, rec)
	assert.True(t, state.Halted)
	assert.Nil(t, state.Sensor)
	assert.Nil(t, state.AQI)
	assert.Nil(t, state.Announcement)
	assert.Nil(t, state.NextCycleAt)
}

func TestGetAnnouncement_NoneYet(t *testing.T) {
	h := handler.NewCycleHandler(&fakeController{}, announce.NewLatest(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetAnnouncement(rec, httptest.NewRequest(http.MethodGet, "/v1/announcement", http.NoBody))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestGetAnnouncement(t *testing.T) {
	latest := announce.NewLatest()
	require.NoError(t, latest.Announce(context.Background(), displayingState().Announcement))
	h := handler.NewCycleHandler(&fakeController{}, latest, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetAnnouncement(rec, httptest.NewRequest(http.MethodGet, "/v1/announcement", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	a := decode[models.Announcement](t, rec)
	assert.Equal(t, uint64(3), a.Generation)
	assert.Equal(t, "AQI 57: Moderate", a.Headline)
	require.NotNil(t, a.AQI)
	assert.Equal(t, 57, *a.AQI)
	assert.Equal(t, testNow, a.At.Time())
}

func TestReset(t *testing.T) {
	controller := &fakeController{state: displayingState()}
	h := handler.NewCycleHandler(controller, announce.NewLatest(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Reset(rec, httptest.NewRequest(http.MethodPost, "/v1/reset", http.NoBody))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, controller.resets)
	accepted := decode[models.ResetAccepted](t, rec)
	assert.Equal(t, uint64(4), accepted.Generation)
	assert.Equal(t, "accepted", accepted.Status)
}

func TestHealthCheck(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{
		Version:   "1.2.3",
		BuildTime: "2026-03-01T00:00:00Z",
		Now:       func() time.Time { return testNow },
	})

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[models.Health](t, rec)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "1.2.3", health.Details["version"])
	assert.Equal(t, testNow, health.Time.Time())
}

func TestSystemStatus(t *testing.T) {
	success := testNow.Add(-time.Minute)
	failure := testNow.Add(-time.Second)

	tests := []struct {
		name       string
		phase      orchestrator.Phase
		cache      directory.Status
		providers  fakeRegistry
		overall    models.HealthStatus
		cacheState models.HealthStatus
	}{
		{
			name:  "all healthy",
			phase: orchestrator.PhaseDisplaying,
			cache: directory.Status{Present: true, Valid: true, Sensors: 12, SavedAt: testNow, ExpiresAt: testNow.Add(24 * time.Hour)},
			providers: fakeRegistry{
				{Name: "directory", State: "closed", Requests: 4, LastSuccessAt: &success},
			},
			overall:    models.HealthStatusOK,
			cacheState: models.HealthStatusOK,
		},
		{
			name:       "empty cache is fine",
			phase:      orchestrator.PhaseLocating,
			cache:      directory.Status{},
			overall:    models.HealthStatusOK,
			cacheState: models.HealthStatusOK,
		},
		{
			name:       "halted cycle degrades",
			phase:      orchestrator.PhaseFetchError,
			cache:      directory.Status{},
			overall:    models.HealthStatusDegraded,
			cacheState: models.HealthStatusOK,
		},
		{
			name:       "expired cache degrades",
			phase:      orchestrator.PhaseDisplaying,
			cache:      directory.Status{Present: true, Reason: "expired"},
			overall:    models.HealthStatusDegraded,
			cacheState: models.HealthStatusDegraded,
		},
		{
			name:  "open breaker fails",
			phase: orchestrator.PhaseDisplaying,
			cache: directory.Status{Present: true, Valid: true},
			providers: fakeRegistry{
				{Name: "directory", State: "closed"},
				{Name: "reading", State: "open", Failures: 5, LastFailureAt: &failure, LastError: "upstream returned 500"},
			},
			overall:    models.HealthStatusFail,
			cacheState: models.HealthStatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewOpsHandler(handler.OpsConfig{
				Controller: &fakeController{state: orchestrator.State{Phase: tt.phase}},
				Registry:   tt.providers,
				Cache:      fakeCache(tt.cache),
				Now:        func() time.Time { return testNow },
			})

			rec := httptest.NewRecorder()
			h.SystemStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))

			require.Equal(t, http.StatusOK, rec.Code)
			status := decode[models.SystemStatus](t, rec)
			assert.Equal(t, tt.overall, status.Status)

			require.Len(t, status.Subsystems, 2)
			assert.Equal(t, "cycle", status.Subsystems[0].Name)
			require.NotNil(t, status.Subsystems[0].Detail)
			assert.Equal(t, string(tt.phase), *status.Subsystems[0].Detail)
			assert.Equal(t, "directory-cache", status.Subsystems[1].Name)
			assert.Equal(t, tt.cacheState, status.Subsystems[1].Status)

			require.Len(t, status.Providers, len(tt.providers))
			for i, p := range status.Providers {
				assert.Equal(t, tt.providers[i].Name, p.Provider)
				assert.Equal(t, tt.providers[i].State, p.CircuitState)
			}
		})
	}
}

func TestSystemStatus_NoCollaborators(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{})

	rec := httptest.NewRecorder()
	h.SystemStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))

	status := decode[models.SystemStatus](t, rec)
	assert.Equal(t, models.HealthStatusOK, status.Status)
	assert.Empty(t, status.Subsystems)
	assert.Empty(t, status.Providers)
}
