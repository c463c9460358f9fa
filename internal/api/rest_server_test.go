package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/annel0/arena-combat/internal/app"
	"github.com/annel0/arena-combat/internal/auth"
	"github.com/annel0/arena-combat/internal/combat"
	"github.com/annel0/arena-combat/internal/config"
	"github.com/annel0/arena-combat/internal/logging"
	"github.com/annel0/arena-combat/internal/storage"
	"github.com/annel0/arena-combat/internal/weapon"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type harness struct {
	t      *testing.T
	arena  *app.Arena
	server *RestServer
	token  string
}

func newHarness(t *testing.T, keys ...string) *harness {
	t.Helper()
	arena, err := app.Build(config.Default(), nil)
	require.NoError(t, err)

	codec, err := storage.NewCodec()
	require.NoError(t, err)
	repo := storage.NewMemorySnapshotRepo(codec)
	t.Cleanup(func() { repo.Close() })

	issuer, err := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour, keys)
	require.NoError(t, err)

	server := NewRestServer(Config{Simulation: arena.Simulation, Repo: repo, Issuer: issuer})
	return &harness{t: t, arena: arena, server: server}
}

func (h *harness) do(method, path string, body interface{}) (*httptest.ResponseRecorder, response) {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	w := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(w, req)

	var resp response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (h *harness) spawn(typ weapon.Type) weapon.Handle {
	h.t.Helper()
	w, resp := h.do(http.MethodPost, "/api/weapons", map[string]interface{}{
		"type":     typ,
		"position": map[string]float64{"x": 0, "y": 1, "z": 0},
	})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	var state weapon.InstanceState
	require.NoError(h.t, json.Unmarshal(resp.Data, &state))
	return state.Handle
}

func (h *harness) ticks(n int) {
	for i := 0; i < n; i++ {
		h.arena.Simulation.Tick(0.02)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	w, _ := h.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w, _ = h.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rest_api_http_request_duration_seconds")
}

func TestFireThroughAPIHitsDummy(t *testing.T) {
	h := newHarness(t)
	handle := h.spawn(weapon.SniperRifle)

	w, resp := h.do(http.MethodPost, fmt.Sprintf("/api/weapons/%d/fire", handle), nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, resp.Success)

	h.ticks(10)

	_, resp = h.do(http.MethodGet, "/api/targets", nil)
	var targets []combat.TargetState
	require.NoError(t, json.Unmarshal(resp.Data, &targets))
	require.Len(t, targets, 1)
	assert.InDelta(t, 35.0, targets[0].Health, 1e-9)

	_, resp = h.do(http.MethodGet, fmt.Sprintf("/api/weapons/%d", handle), nil)
	var state weapon.InstanceState
	require.NoError(t, json.Unmarshal(resp.Data, &state))
	assert.Equal(t, 4, state.Ammo)
}

func TestWeaponErrors(t *testing.T) {
	h := newHarness(t)

	w, _ := h.do(http.MethodPost, "/api/weapons/abc/fire", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = h.do(http.MethodPost, "/api/weapons/999/reload", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, h.arena.Simulation.PendingIntents(), "неизвестный хэндл не попадает в очередь")

	w, _ = h.do(http.MethodPost, "/api/weapons", map[string]string{"type": "Railgun"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = h.do(http.MethodPost, "/api/weapons", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = h.do(http.MethodDelete, "/api/weapons/7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMoveAndDestroyWeapon(t *testing.T) {
	h := newHarness(t)
	handle := h.spawn(weapon.Pistol)

	w, resp := h.do(http.MethodPut, fmt.Sprintf("/api/weapons/%d/move", handle), map[string]interface{}{
		"position": map[string]float64{"x": 3, "y": 1, "z": 2},
		"euler":    map[string]float64{"x": 0, "y": 90, "z": 0},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var state weapon.InstanceState
	require.NoError(t, json.Unmarshal(resp.Data, &state))
	assert.Equal(t, 3.0, state.Rest.Position.X)

	w, _ = h.do(http.MethodDelete, fmt.Sprintf("/api/weapons/%d", handle), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	_, resp = h.do(http.MethodGet, "/api/weapons", nil)
	assert.JSONEq(t, "[]", string(resp.Data))
}

func TestSnapshotSaveRestore(t *testing.T) {
	h := newHarness(t)
	handle := h.spawn(weapon.Pistol)

	w, _ := h.do(http.MethodPost, "/api/snapshots/round-1", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, _ = h.do(http.MethodDelete, fmt.Sprintf("/api/weapons/%d", handle), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, h.arena.Simulation.States())

	w, _ = h.do(http.MethodPost, "/api/snapshots/round-1/restore", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, found := h.arena.Simulation.GetState(handle)
	assert.True(t, found, "оружие вернулось из снимка")

	_, resp := h.do(http.MethodGet, "/api/snapshots", nil)
	assert.JSONEq(t, `["round-1"]`, string(resp.Data))

	w, _ = h.do(http.MethodPost, "/api/snapshots/missing/restore", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = h.do(http.MethodDelete, "/api/snapshots/round-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatsEndpoints(t *testing.T) {
	h := newHarness(t)

	w, resp := h.do(http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(resp.Data), `"simulation"`)

	w, _ = h.do(http.MethodGet, "/api/stats/weapons", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "Name\tType\t"))

	_, resp = h.do(http.MethodGet, "/api/definitions", nil)
	var defs []weapon.Definition
	require.NoError(t, json.Unmarshal(resp.Data, &defs))
	assert.Len(t, defs, len(weapon.DefaultDefinitions()))
}

func TestAuthFlow(t *testing.T) {
	h := newHarness(t, "ops:secret")

	w, _ := h.do(http.MethodGet, "/api/weapons", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = h.do(http.MethodPost, "/api/auth/token", map[string]string{"api_key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp := h.do(http.MethodPost, "/api/auth/token", map[string]string{"api_key": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	var token TokenResponse
	require.NoError(t, json.Unmarshal(resp.Data, &token))
	require.NotEmpty(t, token.Token)

	h.token = token.Token
	w, _ = h.do(http.MethodGet, "/api/weapons", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	h.spawn(weapon.MetalBat)
}

func TestTokenEndpointWithoutKeys(t *testing.T) {
	h := newHarness(t)
	w, _ := h.do(http.MethodPost, "/api/auth/token", map[string]string{"api_key": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShieldEndpoints(t *testing.T) {
	h := newHarness(t)
	sniper := h.spawn(weapon.SniperRifle)
	w, resp := h.do(http.MethodPost, "/api/weapons", map[string]interface{}{
		"type":     weapon.RiotShield,
		"position": map[string]float64{"x": 0, "y": 1, "z": 5},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var shield weapon.InstanceState
	require.NoError(t, json.Unmarshal(resp.Data, &shield))

	w, _ = h.do(http.MethodPost, fmt.Sprintf("/api/weapons/%d/shield/raise", shield.Handle), nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	w, _ = h.do(http.MethodPost, fmt.Sprintf("/api/weapons/%d/fire", sniper), nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	h.ticks(2)

	_, resp = h.do(http.MethodGet, "/api/targets", nil)
	var targets []combat.TargetState
	require.NoError(t, json.Unmarshal(resp.Data, &targets))
	require.Len(t, targets, 1)
	assert.Equal(t, 100.0, targets[0].Health, "манекен за щитом цел")

	_, resp = h.do(http.MethodGet, fmt.Sprintf("/api/weapons/%d", shield.Handle), nil)
	require.NoError(t, json.Unmarshal(resp.Data, &shield))
	require.NotNil(t, shield.Shield)
	assert.True(t, shield.Shield.Active)
	assert.InDelta(t, 60.0, shield.Shield.Durability, 1e-9)

	w, _ = h.do(http.MethodPost, fmt.Sprintf("/api/weapons/%d/shield/lower", shield.Handle), nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	h.ticks(1)
	state, _ := h.arena.Simulation.GetState(shield.Handle)
	assert.False(t, state.Shield.Active)

	w, _ = h.do(http.MethodPost, "/api/weapons/999/shield/raise", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = h.do(http.MethodPost, "/api/weapons/abc/shield/lower", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetTargetsEndpoint(t *testing.T) {
	h := newHarness(t)
	sniper := h.spawn(weapon.SniperRifle)
	h.do(http.MethodPost, fmt.Sprintf("/api/weapons/%d/fire", sniper), nil)
	h.ticks(10)
	require.InDelta(t, 35.0, h.arena.Targets[0].State().Health, 1e-9)

	w, resp := h.do(http.MethodPost, "/api/targets/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Reset   int                  `json:"reset"`
		Targets []combat.TargetState `json:"targets"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.Equal(t, 1, out.Reset)
	require.Len(t, out.Targets, 1)
	assert.Equal(t, 100.0, out.Targets[0].Health)
	assert.Zero(t, out.Targets[0].Hits)
}

func TestLoggerAdminEndpoints(t *testing.T) {
	h := newHarness(t)
	logger := logging.GetServerLogger()
	console, file := logger.Levels()
	t.Cleanup(func() { logger.SetLevels(console, file) })

	w, resp := h.do(http.MethodGet, "/api/admin/loggers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var levels []LoggerLevels
	require.NoError(t, json.Unmarshal(resp.Data, &levels))
	var names []string
	for _, l := range levels {
		names = append(names, l.Component)
	}
	assert.Contains(t, names, "server")
	assert.Contains(t, names, "simulation")

	w, resp = h.do(http.MethodPut, "/api/admin/loggers/server", map[string]string{"console": "warn"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var changed LoggerLevels
	require.NoError(t, json.Unmarshal(resp.Data, &changed))
	assert.Equal(t, logging.WARN.String(), changed.Console)
	assert.Equal(t, file.String(), changed.File, "пустое поле не меняет порог")
	gotConsole, _ := logger.Levels()
	assert.Equal(t, logging.WARN, gotConsole)

	w, _ = h.do(http.MethodPut, "/api/admin/loggers/server", map[string]string{"console": "loud"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = h.do(http.MethodPut, "/api/admin/loggers/nope", map[string]string{"console": "info"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
