// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scanserver

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/scanstat/internal/monitoring"
	"github.com/Thermoquad/scanstat/pkg/rangefinder"
	"github.com/Thermoquad/scanstat/pkg/rplidar"
	"github.com/Thermoquad/scanstat/pkg/scanstore"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// openSimulatedDriver opens a driver on a simulated 4x3 m room
func openSimulatedDriver(t *testing.T) *rangefinder.Driver {
	t.Helper()
	sim := rplidar.NewSimulator(1)
	sim.Room = rplidar.RectangularRoom(4, 3)

	cfg := rangefinder.DefaultConfig()
	cfg.PollInterval = 2 * time.Millisecond
	d := rangefinder.NewDriver(cfg, func() (rplidar.Transport, error) { return sim, nil },
		rangefinder.WithSettleDelay(0))
	require.NoError(t, d.Open())
	t.Cleanup(func() { d.Close() })

	require.Eventually(t, func() bool {
		stats, err := d.Statistics()
		return err == nil && stats.Scans >= 2
	}, 5*time.Second, 5*time.Millisecond)
	return d
}

func do(t *testing.T, r http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// decode unmarshals the envelope and its data into data
func decode(t *testing.T, w *httptest.ResponseRecorder, data any) ApiResponse {
	t.Helper()
	var raw struct {
		ApiResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.ApiResponse
}

func TestHealth(t *testing.T) {
	r := NewEngine(NewServer(rangefinder.NewDriver(rangefinder.DefaultConfig(), nil), nil))
	w := do(t, r, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decode(t, w, nil).Status)
}

func TestClosedSensor(t *testing.T) {
	r := NewEngine(NewServer(rangefinder.NewDriver(rangefinder.DefaultConfig(), nil), nil))

	for _, path := range []string{"/api/scan", "/api/scan.png", "/api/statistics", "/chart"} {
		w := do(t, r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		resp := decode(t, w, nil)
		assert.Equal(t, "error", resp.Status, path)
		assert.Equal(t, "sensor is not open", resp.Error, path)
	}

	var status StatusResponse
	w := do(t, r, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &status)
	assert.Equal(t, "closed", status.State)

	var info InfoResponse
	w = do(t, r, http.MethodGet, "/api/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &info)
	assert.Equal(t, rangefinder.GenericDeviceInfo, info.Description)
	assert.Nil(t, info.Model)
}

func TestClosedAfterOpen(t *testing.T) {
	d := openSimulatedDriver(t)
	r := NewEngine(NewServer(d, nil))
	require.NoError(t, d.Close())

	for _, path := range []string{"/api/scan", "/api/scan.png", "/api/statistics", "/chart"} {
		w := do(t, r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Equal(t, "sensor is not open", decode(t, w, nil).Error, path)
	}
	assert.Equal(t, rangefinder.StatusStandby, d.GetDeviceStatus())

	_, err := d.GetMeasurementData()
	assert.NoError(t, err, "the driver itself keeps the last scan")
}

func TestScan(t *testing.T) {
	d := openSimulatedDriver(t)
	r := NewEngine(NewServer(d, nil))

	var scan ScanResponse
	w := do(t, r, http.MethodGet, "/api/scan", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &scan)

	assert.Equal(t, 1.0, scan.Resolution)
	assert.Equal(t, 360.0, scan.MaxAngle)
	require.Len(t, scan.Ranges, 360)
	for i, d := range scan.Ranges {
		require.NotNil(t, d, "bucket %d", i)
		assert.InDelta(t, 2.0, *d, 0.51, "bucket %d", i)
	}
	assert.Equal(t, rangefinder.StatusInUse, d.GetDeviceStatus())
}

func TestScanPNGAndChart(t *testing.T) {
	r := NewEngine(NewServer(openSimulatedDriver(t), nil))

	w := do(t, r, http.MethodGet, "/api/scan.png", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = do(t, r, http.MethodGet, "/chart?refresh=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "5", w.Header().Get("Refresh"))
	assert.Contains(t, w.Body.String(), "RPLIDAR Scan")

	w = do(t, r, http.MethodGet, "/chart?refresh=0", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Refresh"))

	w = do(t, r, http.MethodGet, "/chart?refresh=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInfoAndStatistics(t *testing.T) {
	r := NewEngine(NewServer(openSimulatedDriver(t), nil))

	var info InfoResponse
	w := do(t, r, http.MethodGet, "/api/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &info)
	require.NotNil(t, info.Model)
	assert.Equal(t, uint8(24), *info.Model)
	assert.Equal(t, "1.29", info.Firmware)
	assert.Equal(t, "5343414E535441540001020304050607", info.SerialNumber)
	assert.True(t, strings.HasPrefix(info.Description, "model 24"))

	var stats StatisticsResponse
	w = do(t, r, http.MethodGet, "/api/statistics", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &stats)
	assert.GreaterOrEqual(t, stats.Revolutions, uint64(2))
	assert.Positive(t, stats.Samples)
	assert.Zero(t, stats.Desyncs)
	assert.False(t, math.IsNaN(stats.SampleRate))
}

func TestRange(t *testing.T) {
	d := openSimulatedDriver(t)
	r := NewEngine(NewServer(d, nil))

	var rng RangeResponse
	w := do(t, r, http.MethodGet, "/api/range", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &rng)
	assert.Equal(t, RangeResponse{Min: 0.1, Max: 2.5}, rng)

	w = do(t, r, http.MethodPut, "/api/range", `{"min": 0.2, "max": 8}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	lo, hi := d.GetDistanceRange()
	assert.Equal(t, 0.2, lo)
	assert.Equal(t, 8.0, hi)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"min": `},
		{"missing max", `{"min": 0.2}`},
		{"inverted", `{"min": 3, "max": 1}`},
		{"negative", `{"min": -1, "max": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPut, "/api/range", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "error", decode(t, w, nil).Status)
		})
	}
	lo, hi = d.GetDistanceRange()
	assert.Equal(t, 0.2, lo)
	assert.Equal(t, 8.0, hi)
}

func TestSessions(t *testing.T) {
	store, err := scanstore.Open(filepath.Join(t.TempDir(), "scans.db"))
	require.NoError(t, err)
	defer store.Close()

	sess, err := store.StartSession(scanstore.Session{Source: "simulator", MaxAngle: 4, Resolution: 1})
	require.NoError(t, err)
	require.NoError(t, store.RecordScan(sess.ID, 0, time.Now(), []float64{1, 0, 2, 0}, rplidar.Statistics{}))

	r := NewEngine(NewServer(rangefinder.NewDriver(rangefinder.DefaultConfig(), nil), store))

	var sessions []scanstore.Session
	w := do(t, r, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, sess.ID, sessions[0].ID)

	var summary struct {
		Session  scanstore.Session `json:"session"`
		Coverage float64           `json:"coverage"`
	}
	w = do(t, r, http.MethodGet, "/api/sessions/"+sess.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &summary)
	assert.Equal(t, 1, summary.Session.Scans)
	assert.Equal(t, 0.5, summary.Coverage)

	w = do(t, r, http.MethodGet, "/api/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessions_NoStore(t *testing.T) {
	r := NewEngine(NewServer(rangefinder.NewDriver(rangefinder.DefaultConfig(), nil), nil))
	w := do(t, r, http.MethodGet, "/api/sessions", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	r := NewEngine(NewServer(rangefinder.NewDriver(rangefinder.DefaultConfig(), nil), nil))

	req := httptest.NewRequest(http.MethodOptions, "/api/range", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
