package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tankpit-bot/internal/bot"
)

type fakeController struct {
	mu      sync.Mutex
	running bool
	ctx     context.Context
}

func (c *fakeController) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return bot.ErrAlreadyRunning
	}
	c.running, c.ctx = true, ctx
	return nil
}

func (c *fakeController) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return bot.ErrNotRunning
	}
	c.running = false
	return nil
}

func (c *fakeController) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

type staticStatus struct{ status bot.BotStatus }

func (s staticStatus) Status() bot.BotStatus { return s.status }

type fixture struct {
	srv      *Server
	ctrl     *fakeController
	settings *bot.SettingsStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	settings, err := bot.NewSettingsStore(bot.DefaultSettings(), nil)
	require.NoError(t, err)
	ctrl := &fakeController{}
	srv := NewServer(Options{
		Context:    context.Background(),
		Controller: ctrl,
		Settings:   settings,
		Status:     staticStatus{bot.BotStatus{CurrentFuel: 77, ShieldsActive: true, Status: "Monitoring"}},
		Socket: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	})
	return fixture{srv: srv, ctrl: ctrl, settings: settings}
}

func (f fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/api/bot/start", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.True(t, f.ctrl.Running())
	assert.NoError(t, f.ctrl.ctx.Err(), "loop context outlives the request")

	rec, body = f.do(t, http.MethodPost, "/api/bot/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, _ = f.do(t, http.MethodPost, "/api/bot/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.ctrl.Running())

	rec, body = f.do(t, http.MethodPost, "/api/bot/stop", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, bot.ErrNotRunning.Error(), body["message"])
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.ctrl.running = true

	rec, body := f.do(t, http.MethodGet, "/api/bot/status", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["running"])
	assert.Equal(t, 77.0, body["current_fuel"])
	assert.Equal(t, true, body["shields_active"])
	assert.Equal(t, "Monitoring", body["status"])
	settings := body["settings"].(map[string]any)
	assert.Equal(t, 25.0, settings["refuel_threshold"])
}

func TestSettings_Update(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/api/bot/settings", `{"refuel_threshold": 35, "target_player": "ally"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	got := f.settings.Get()
	assert.Equal(t, 35, got.RefuelThreshold)
	assert.Equal(t, 10, got.ShieldThreshold, "omitted fields keep their value")
	assert.Equal(t, "ally", got.TargetPlayer)

	rec, body = f.do(t, http.MethodGet, "/api/bot/settings", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 35.0, body["refuel_threshold"])
}

func TestSettings_RejectsInvalid(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/api/bot/settings", `{"shield_threshold": 30, "refuel_threshold": 25}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "shield_threshold")
	assert.Equal(t, bot.DefaultSettings(), f.settings.Get())
}

func TestSettings_Malformed(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/api/bot/settings", `{"refuel_threshold": "lots"`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, bot.DefaultSettings(), f.settings.Get())
}

func TestRouting(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/api/bot/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = f.do(t, http.MethodOptions, "/api/bot/settings", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = f.do(t, http.MethodGet, "/api/ws/bot-status", "")
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
