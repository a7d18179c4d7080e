package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/api"
	"github.com/dgnsrekt/cargoviz-realtime/internal/config"
	"github.com/dgnsrekt/cargoviz-realtime/internal/dashboard"
	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
	"github.com/dgnsrekt/cargoviz-realtime/internal/ws"
)

type fakeSession struct{ ok bool }

func (f fakeSession) User() (model.User, bool) {
	return model.User{ID: "user-1", OrganizationID: "org-1"}, f.ok
}

type fakeConn struct{}

func (fakeConn) State() ws.State  { return ws.StateConnected }
func (fakeConn) Err() error       { return nil }
func (fakeConn) Attempts() int    { return 0 }
func (fakeConn) Endpoint() string { return "wss://push.example/ws" }

type testEnv struct {
	handler http.Handler
	th      *ws.Throttler
}

func newTestEnv(t *testing.T, loggedIn bool) *testEnv {
	t.Helper()

	th := ws.NewThrottler(ws.ThrottlerConfig{Window: 0, HistorySize: 50}, nil)
	t.Cleanup(th.Close)

	svc := dashboard.NewService(api.NewMockClient(nil), fakeSession{ok: loggedIn}, ws.NewRouter(th), fakeConn{}, nil)
	if loggedIn {
		require.NoError(t, svc.Refresh(context.Background()))
	}

	return &testEnv{
		handler: NewRouter(NewHandlers(svc, nil), nil, nil),
		th:      th,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(t, http.MethodOptions, "/cargo", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestStatusAndSummary(t *testing.T) {
	env := newTestEnv(t, true)

	status := decodeBody[dashboard.Status](t, env.do(t, http.MethodGet, "/status", ""))
	assert.True(t, status.Connected)
	assert.Equal(t, ws.StateConnected, status.State)

	sum := decodeBody[dashboard.Summary](t, env.do(t, http.MethodGet, "/summary", ""))
	assert.Equal(t, 3, sum.TotalCargo)
	assert.Equal(t, 3, sum.Zones)
}

func TestListCargoReflectsPushEvents(t *testing.T) {
	env := newTestEnv(t, true)

	ts := time.Now().Add(time.Hour).UnixMilli()
	env.th.HandleFrame([]byte(fmt.Sprintf(`{"type":"cargo_status","cargoId":"cargo-3","status":"Placed","timestamp":%d}`, ts)))

	resp := decodeBody[cargoResponse](t, env.do(t, http.MethodGet, "/cargo?status=Placed", ""))
	assert.Equal(t, 2, resp.Count)
	for _, c := range resp.Cargo {
		assert.Equal(t, model.StatusPlaced, c.Status)
	}
}

func TestUpdateCargoStatus(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPut, "/cargo/cargo-2/status", `{"status":"Conflict"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.StatusConflict, decodeBody[model.Cargo](t, rec).Status)

	rec = env.do(t, http.MethodPut, "/cargo/cargo-2/status", `{"status":"Lost"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/cargo/missing/status", `{"status":"Placed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAndDeleteCargo(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/cargo", `{"name":"Drum D-001","type":"Drum","zone":"area-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[model.Cargo](t, rec)
	assert.Equal(t, "org-1", created.OrganizationID)

	rec = env.do(t, http.MethodDelete, "/cargo/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	resp := decodeBody[cargoResponse](t, env.do(t, http.MethodGet, "/cargo", ""))
	assert.Equal(t, 3, resp.Count)
}

func TestCreateCargoRejectsBadBody(t *testing.T) {
	env := newTestEnv(t, true)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/cargo", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/cargo", `{"type":"Drum"}`).Code)
}

func TestAreas(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/areas", `{"name":"Overflow","coordinates":[[0,0],[0,0.001],[0.001,0.001],[0.001,0]]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[model.Area](t, rec)
	assert.Greater(t, created.Area, 0.0)

	rec = env.do(t, http.MethodPatch, "/areas/"+created.ID, `{"name":"Overflow North"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Overflow North", decodeBody[model.Area](t, rec).Name)

	rec = env.do(t, http.MethodPost, "/areas", `{"name":"Line","coordinates":[[0,0],[1,1]]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeBody[areasResponse](t, env.do(t, http.MethodGet, "/areas", ""))
	assert.Equal(t, 4, resp.Count)
}

func TestEventsByKind(t *testing.T) {
	env := newTestEnv(t, true)

	env.th.HandleFrame([]byte(`{"type":"convoy_update","convoyId":"convoy-1","status":"moving","vehicles":["truck-1"],"timestamp":1}`))
	env.th.HandleFrame([]byte(`{"type":"vehicle_location","vehicleId":"truck-1","location":[47.6,-122.3],"timestamp":2}`))
	env.th.HandleFrame([]byte(`{"type":"crane_alarm","timestamp":3}`))

	all := decodeBody[struct{ Count int }](t, env.do(t, http.MethodGet, "/events", ""))
	assert.Equal(t, 3, all.Count)

	unknown := decodeBody[struct{ Count int }](t, env.do(t, http.MethodGet, "/events?kind=unknown", ""))
	assert.Equal(t, 1, unknown.Count)

	convoy := decodeBody[struct{ Count int }](t, env.do(t, http.MethodGet, "/convoys/convoy-1/messages", ""))
	assert.Equal(t, 2, convoy.Count)

	vehicles := decodeBody[map[string]ws.VehicleLocation](t, env.do(t, http.MethodGet, "/vehicles", ""))
	require.Contains(t, vehicles, "truck-1")
	assert.Equal(t, model.Point{47.6, -122.3}, vehicles["truck-1"].Location)
}

func TestRefreshWithoutSession(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodPost, "/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMaskQuerySecrets(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"kind=cargo_status", "kind=cargo_status"},
		{"token=abcdefgh&kind=x", "kind=x&token=abcd****"},
		{"token=abc", "token=****"},
	}
	for _, tt := range tests {
		if got := maskQuerySecrets(tt.in); got != tt.want {
			t.Errorf("maskQuerySecrets(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type windowRecorder struct{ windows []time.Duration }

func (w *windowRecorder) SetWindow(d time.Duration) { w.windows = append(w.windows, d) }

func TestReloader_AppliesLiveSettings(t *testing.T) {
	initial := config.Config{
		Realtime: config.RealtimeConfig{ThrottleMs: 200, Endpoint: "wss://a/ws"},
		Logging:  config.LoggingConfig{Level: "info"},
	}
	rec := &windowRecorder{}
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	rl := NewReloader(initial, rec, &level, nil)

	next := initial
	next.Realtime.ThrottleMs = 500
	next.Logging.Level = "debug"
	next.Realtime.Endpoint = "wss://b/ws"
	rl.Apply(&next)

	assert.Equal(t, []time.Duration{500 * time.Millisecond}, rec.windows)
	assert.Equal(t, zap.DebugLevel, level.Level())

	st := rl.Status()
	assert.Equal(t, 1, st.Reloads)
	assert.Equal(t, 500, st.ThrottleMs)
	assert.Equal(t, []string{"realtime.endpoint"}, st.RestartPending)
}

func TestReloader_UnchangedWindowIsNotReapplied(t *testing.T) {
	initial := config.Config{Realtime: config.RealtimeConfig{ThrottleMs: 200}}
	rec := &windowRecorder{}
	rl := NewReloader(initial, rec, nil, nil)

	next := initial
	rl.Apply(&next)

	assert.Empty(t, rec.windows)
	assert.Empty(t, rl.Status().RestartPending)
}

func TestReloadEndpoint(t *testing.T) {
	th := ws.NewThrottler(ws.DefaultThrottlerConfig(), nil)
	t.Cleanup(th.Close)
	svc := dashboard.NewService(api.NewMockClient(nil), fakeSession{}, ws.NewRouter(th), fakeConn{}, nil)

	rl := NewReloader(config.Config{Realtime: config.RealtimeConfig{ThrottleMs: 200}}, th, nil, nil)
	h := NewRouter(NewHandlers(svc, nil), rl, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reload", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 200, decodeBody[ReloadStatus](t, rec).ThrottleMs)
}
