package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Config"
	logger "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Logger"
	metrics "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Metrics"
	srsmodels "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Models"
	implementation "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Repository/Implementation"
)

var seededAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	engine  *gin.Engine
	repo    *implementation.InMemorySensorRepository
	metrics *metrics.Metrics
	clock   time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo, err := implementation.NewInMemorySensorRepository(implementation.DefaultSensors(seededAt))
	require.NoError(t, err)

	ts := &testServer{
		repo:    repo,
		metrics: metrics.NewMetrics(),
		clock:   seededAt,
	}
	ts.engine = New(Dependencies{
		Config: &config.Config{
			CORS: config.CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Origin", "Content-Type"},
				MaxAge:         60,
			},
		},
		Logger:     logger.NewNopLogger(),
		Metrics:    ts.metrics,
		SensorRepo: repo,
		Now:        func() time.Time { return ts.clock },
	})
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["message"]
}

func decodeSensor(t *testing.T, rec *httptest.ResponseRecorder) srsmodels.Sensor {
	t.Helper()
	var sensor srsmodels.Sensor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sensor))
	return sensor
}

func TestWelcome(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "API de supervision de capteurs environnementaux", decodeMessage(t, rec))
}

func TestListSensors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/sensors", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var sensors []srsmodels.Sensor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sensors))
	require.Len(t, sensors, 3)
	assert.Equal(t, "Temperature Sensor", sensors[0].Name)
	assert.Equal(t, "Humidity Sensor", sensors[1].Name)
	assert.Equal(t, "CO2 Sensor", sensors[2].Name)
}

func TestListSensorsUsesWireFieldNames(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/sensors", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, key := range []string{"id", "name", "value", "unit", "location", "lastUpdate"} {
		assert.Contains(t, raw[0], key)
	}
}

func TestGetSensorByID(t *testing.T) {
	ts := newTestServer(t)

	for _, id := range []int{1, 2, 3} {
		rec := ts.do(http.MethodGet, "/api/sensors/"+strconv.Itoa(id), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id, decodeSensor(t, rec).ID)
	}

	sensor := decodeSensor(t, ts.do(http.MethodGet, "/api/sensors/2", ""))
	assert.Equal(t, "Humidity Sensor", sensor.Name)
	assert.JSONEq(t, "45", string(sensor.Value))
	assert.Equal(t, "%", sensor.Unit)
	assert.Equal(t, "Bathroom", sensor.Location)

	// ids resolve from their leading integer
	for _, id := range []string{"1abc", "1.5"} {
		rec := ts.do(http.MethodGet, "/api/sensors/"+id, "")
		require.Equal(t, http.StatusOK, rec.Code, "id %s", id)
		assert.Equal(t, 1, decodeSensor(t, rec).ID)
	}
}

func TestGetSensorNotFound(t *testing.T) {
	ts := newTestServer(t)

	for _, id := range []string{"99", "0", "abc"} {
		rec := ts.do(http.MethodGet, "/api/sensors/"+id, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, "id %s", id)
		assert.Equal(t, "Capteur non trouvé", decodeMessage(t, rec))
	}
}

func TestUpdateSensorValue(t *testing.T) {
	ts := newTestServer(t)
	ts.clock = seededAt.Add(5 * time.Minute)

	rec := ts.do(http.MethodPost, "/api/sensors/1/data", `{"value": 23.1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	updated := decodeSensor(t, rec)
	assert.JSONEq(t, "23.1", string(updated.Value))
	assert.True(t, updated.LastUpdate.Equal(ts.clock))
	assert.False(t, updated.LastUpdate.Before(seededAt))

	stored := decodeSensor(t, ts.do(http.MethodGet, "/api/sensors/1", ""))
	assert.JSONEq(t, "23.1", string(stored.Value))
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.SensorUpdates.WithLabelValues("1", metrics.SourceHTTP)))
}

func TestUpdateSensorValueRequiresValue(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range []string{`{}`, `{"other": 1}`, "", `[1]`, `5`} {
		rec := ts.do(http.MethodPost, "/api/sensors/1/data", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Equal(t, "La valeur est requise", decodeMessage(t, rec))
	}

	stored := decodeSensor(t, ts.do(http.MethodGet, "/api/sensors/1", ""))
	assert.JSONEq(t, "22.5", string(stored.Value))
	assert.True(t, stored.LastUpdate.Equal(seededAt))
}

func TestUpdateSensorValueStoresAnyJSONValue(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"numeric string", `{"value": "23.1"}`, `"23.1"`},
		{"bool", `{"value": true}`, `true`},
		{"null", `{"value": null}`, `null`},
		{"object", `{"value": {"c": 21, "f": 69.8}}`, `{"c": 21, "f": 69.8}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			rec := ts.do(http.MethodPost, "/api/sensors/1/data", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tt.want, string(decodeSensor(t, rec).Value))

			stored := decodeSensor(t, ts.do(http.MethodGet, "/api/sensors/1", ""))
			assert.JSONEq(t, tt.want, string(stored.Value))
		})
	}

	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/api/sensors/99/data", `{"value": "x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Capteur non trouvé", decodeMessage(t, rec))
}

func TestUpdateSensorValueRejectsMalformedJSON(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/sensors/1/data", `{"value": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Corps de requête JSON invalide", decodeMessage(t, rec))
}

func TestUpdateChecksValueBeforeID(t *testing.T) {
	ts := newTestServer(t)

	missing := ts.do(http.MethodPost, "/api/sensors/99/data", `{}`)
	assert.Equal(t, http.StatusBadRequest, missing.Code)

	unknown := ts.do(http.MethodPost, "/api/sensors/99/data", `{"value": 1}`)
	assert.Equal(t, http.StatusNotFound, unknown.Code)
	assert.Equal(t, "Capteur non trouvé", decodeMessage(t, unknown))
}

func TestListCountIsStableAcrossUpdates(t *testing.T) {
	ts := newTestServer(t)

	ts.do(http.MethodPost, "/api/sensors/1/data", `{"value": 1}`)
	ts.do(http.MethodPost, "/api/sensors/3/data", `{"value": 2}`)
	ts.do(http.MethodPost, "/api/sensors/7/data", `{"value": 3}`)

	var sensors []srsmodels.Sensor
	require.NoError(t, json.Unmarshal(ts.do(http.MethodGet, "/api/sensors", "").Body.Bytes(), &sensors))
	assert.Len(t, sensors, 3)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/unknown", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route non trouvée", decodeMessage(t, rec))
}

func TestCORSHeaders(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/sensors", nil)
	req.Header.Set("Origin", "http://dashboard.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	live := ts.do(http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, live.Code)

	ready := ts.do(http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, ready.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(ready.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, float64(3), body["sensors"])
	assert.Equal(t, false, body["mqtt"])

	ts.do(http.MethodGet, "/api/sensors/1", "")
	scrape := ts.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, scrape.Code)
	assert.Contains(t, scrape.Body.String(), `sensor_registry_http_requests_total{method="GET",route="/api/sensors/:id",status="200"} 1`)
}
