package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsflatd/internal/adminapi/models"
	"dnsflatd/internal/health"
	"dnsflatd/internal/statestore"
	"dnsflatd/internal/upstream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandler(t *testing.T, store *statestore.Store) *Handler {
	t.Helper()
	registry := upstream.NewRegistry([]upstream.Entry{{Name: "up1"}}, 16)
	monitor := health.NewMonitor(registry, upstream.NewClient(), health.Config{FailureThreshold: 1, RecoveryThreshold: 1}, nil)
	monitor.ObserveQueryOutcome("up1", upstream.OutcomeSuccess)
	return New(registry, monitor, nil, store, nil)
}

func performRequest(h *Handler, method string, handler func(*Handler) gin.HandlerFunc, target string) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET(target, handler(h))
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthReturnsOK(t *testing.T) {
	h := newTestHandler(t, nil)
	w := performRequest(h, http.MethodGet, func(h *Handler) gin.HandlerFunc { return h.Health }, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	var body models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestStatsIncludesConfiguredUpstreams(t *testing.T) {
	h := newTestHandler(t, nil)
	w := performRequest(h, http.MethodGet, func(h *Handler) gin.HandlerFunc { return h.Stats }, "/stats")

	assert.Equal(t, http.StatusOK, w.Code)
	var body models.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Upstreams, 1)
	assert.Equal(t, "up1", body.Upstreams[0].Name)
	assert.Equal(t, "healthy", body.Upstreams[0].State)
}

func TestHistoryReturnsEmptyWhenStoreDisabled(t *testing.T) {
	h := newTestHandler(t, nil)
	w := performRequest(h, http.MethodGet, func(h *Handler) gin.HandlerFunc { return h.History }, "/stats/history")

	assert.Equal(t, http.StatusOK, w.Code)
	var body models.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Entries)
}

func TestHistoryReturnsStoredSnapshots(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(dir + "/history.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.WriteSnapshots(context.Background(), []statestore.Snapshot{
		{CapturedAt: time.Now(), UpstreamName: "up1", State: "healthy", Samples: 4, SuccessRate: 1, MeanLatencyMs: 2, InFlight: 0},
	}))

	h := newTestHandler(t, store)
	w := performRequest(h, http.MethodGet, func(h *Handler) gin.HandlerFunc { return h.History }, "/stats/history")

	assert.Equal(t, http.StatusOK, w.Code)
	var body models.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "up1", body.Entries[0].UpstreamName)
}

func TestHistoryRespectsLimitQueryParam(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(dir + "/history.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.WriteSnapshots(ctx, []statestore.Snapshot{
			{CapturedAt: time.Now().Add(time.Duration(i) * time.Second), UpstreamName: "up1", State: "healthy", Samples: i, SuccessRate: 1, MeanLatencyMs: 1, InFlight: 0},
		}))
	}

	h := newTestHandler(t, store)
	r := gin.New()
	r.GET("/stats/history", h.History)
	req := httptest.NewRequest(http.MethodGet, "/stats/history?limit=1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body models.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Entries, 1)
}
