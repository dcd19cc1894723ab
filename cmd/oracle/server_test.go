package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/dice-oracle/internal/logging"
	"github.com/R3E-Network/dice-oracle/internal/metrics"
	"github.com/R3E-Network/dice-oracle/internal/relay"
)

type stubLoop struct {
	state relay.State
	last  *relay.Cycle
}

func (s stubLoop) State() relay.State { return s.state }

func (s stubLoop) LastCycle() (relay.Cycle, bool) {
	if s.last == nil {
		return relay.Cycle{}, false
	}
	return *s.last, true
}

func TestHealth(t *testing.T) {
	router := newRouter(statusInfo{loop: stubLoop{}}, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name  string
		loop  stubLoop
		state string
		cycle bool
	}{
		{name: "idle without history", loop: stubLoop{state: relay.StateIdle}, state: "idle"},
		{
			name: "processing with last cycle",
			loop: stubLoop{
				state: relay.StateProcessing,
				last:  &relay.Cycle{ID: "c1", At: time.Unix(0, 0).UTC(), Dice: 4, Source: "local", Outcome: metrics.OutcomeSuccess},
			},
			state: "processing",
			cycle: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(statusInfo{loop: tt.loop, contract: "0xc0", oracle: "0x0a"}, nil, nil)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp statusResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.state, resp.State)
			assert.Equal(t, "0xc0", resp.Contract)
			assert.Equal(t, "0x0a", resp.Oracle)
			if tt.cycle {
				require.NotNil(t, resp.LastCycle)
				assert.Equal(t, uint8(4), resp.LastCycle.Dice)
				assert.Equal(t, "local", resp.LastCycle.Source)
			} else {
				assert.Nil(t, resp.LastCycle)
			}
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	collector := metrics.NewCollector("oracle")
	collector.RecordRequest()
	router := newRouter(statusInfo{loop: stubLoop{}}, collector.Handler(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "oracle_contract_requests_detected_total 1")
}

func TestRouter_RejectsWrongMethod(t *testing.T) {
	router := newRouter(statusInfo{loop: stubLoop{}}, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Service: "oracle", Level: "debug", Format: "json", Output: &buf})
	router := newRouter(statusInfo{loop: stubLoop{}}, nil, logger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "/health", entry["path"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
}
