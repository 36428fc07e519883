package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gotify-desk/deskd/internal/cache"
	"github.com/gotify-desk/deskd/internal/common/config"
	"github.com/gotify-desk/deskd/internal/event"
	"github.com/gotify-desk/deskd/internal/message"
	"github.com/gotify-desk/deskd/internal/notify"
	"github.com/gotify-desk/deskd/internal/settings"
	"github.com/gotify-desk/deskd/internal/stream"
)

type testEnv struct {
	router *gin.Engine
	cache  *cache.Cache
	store  *settings.FileStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	bus := event.NewBus(logger)
	store, err := settings.NewFileStore(logger, t.TempDir())
	require.NoError(t, err)
	c := cache.NewCache(logger, t.TempDir(), store.DesiredCacheLimit, bus)
	gate := notify.NewGate(logger, store, notify.NewZapNotifier(logger))

	cfg := config.StreamConfig{
		ConnectTimeout: 5, SyncInterval: 3600, LivenessCheckInterval: 3600,
		LivenessIdle: 90, LivenessPingGrace: 30, BackoffInitial: 1, BackoffMax: 30,
	}
	sup := stream.NewSupervisor(logger, cfg, stream.NewState(bus), store,
		c, message.NewMetaMap(), bus, gate)

	return &testEnv{
		router: NewRouter(logger, sup, c, store, bus),
		cache:  c,
		store:  store,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListMessages(t *testing.T) {
	env := newTestEnv(t)
	env.cache.UpsertFront(message.Message{ID: 1, Title: "hello"})

	w := env.do(t, http.MethodGet, "/api/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var msgs []message.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Title)
}

func TestDeleteMessage(t *testing.T) {
	env := newTestEnv(t)
	env.cache.UpsertFront(message.Message{ID: 5})
	env.cache.UpsertFront(message.Message{ID: 6})

	w := env.do(t, http.MethodDelete, "/api/messages/5", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var remaining []message.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &remaining))
	require.Len(t, remaining, 1)
	assert.Equal(t, int64(6), remaining[0].ID)
}

func TestDeleteMessage_BadID(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodDelete, "/api/messages/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartStream_WithoutSettingsFails(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/stream/start", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestSettings_RoundTrip(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/settings", gin.H{
		"base_url":    "https://gotify.example.com/",
		"token":       "secret",
		"cache_limit": 50,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var view settings.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "https://gotify.example.com", view.BaseURL)
	assert.True(t, view.HasToken)
	assert.Equal(t, 50, view.CacheLimit)
	assert.NotContains(t, w.Body.String(), "secret", "the token must never be echoed")

	w = env.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestSettings_RejectsBadBaseURL(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPut, "/api/settings", gin.H{
		"base_url": "ftp://nope",
		"token":    "tok",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPauseAndResume(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/pause", gin.H{"minutes": 15})
	require.Equal(t, http.StatusOK, w.Code)
	stored, err := env.store.Read()
	require.NoError(t, err)
	assert.Equal(t, settings.PauseMode15m, stored.PauseMode)

	w = env.do(t, http.MethodPost, "/api/pause", gin.H{"minutes": 0})
	require.Equal(t, http.StatusOK, w.Code)
	stored, err = env.store.Read()
	require.NoError(t, err)
	assert.Equal(t, settings.PauseModeForever, stored.PauseMode)

	w = env.do(t, http.MethodPost, "/api/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stored, err = env.store.Read()
	require.NoError(t, err)
	assert.Nil(t, stored.PauseUntil)
}

func TestCheckConnection(t *testing.T) {
	env := newTestEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Gotify-Key") != "candidate" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	w := env.do(t, http.MethodPost, "/api/settings/test", gin.H{
		"base_url": srv.URL,
		"token":    "candidate",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/settings/test", gin.H{
		"base_url": srv.URL,
		"token":    "wrong",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = env.do(t, http.MethodPost, "/api/settings/test", gin.H{
		"base_url": "ftp://nope",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiagnostics(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/diagnostics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var d stream.Diagnostics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, string(stream.PhaseDisconnected), d.ConnectionState)
	assert.False(t, d.ShouldRun)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "deskd_")
}
