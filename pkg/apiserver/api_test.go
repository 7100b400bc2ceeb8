package apiserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"vpnshield/pkg/assessor"
	"vpnshield/pkg/catalog"
	"vpnshield/pkg/config"
	"vpnshield/pkg/ippool"
	"vpnshield/pkg/scheduler"
	"vpnshield/pkg/session"
	"vpnshield/pkg/telemetry"

	"github.com/stretchr/testify/require"
)

type testEnv struct {
	sched *scheduler.Manual
	ctrl  *session.Controller
	svc   *Service
}

func newTestEnv(t *testing.T, cfg config.APIConfig) *testEnv {
	t.Helper()

	pool, err := ippool.NewStatic([]string{"104.23.11.45"})
	require.NoError(t, err)

	sched := scheduler.NewManual(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	ctrl := session.New(session.Options{
		Scheduler: sched,
		Allocator: pool,
		Assessor:  assessor.New(nil),
		Generator: telemetry.NewRandomGenerator(100, 150, 20, 50),
	})
	t.Cleanup(ctrl.Close)

	svc, err := New(cfg, ctrl, catalog.Default())
	require.NoError(t, err)

	return &testEnv{sched: sched, ctrl: ctrl, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	w := httptest.NewRecorder()
	e.svc.ServeHTTP(w, httptest.NewRequest(method, path, reader))
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ApiError {
	t.Helper()
	var apiErr ApiError
	require.NoError(t, json.NewDecoder(w.Body).Decode(&apiErr))
	return apiErr
}

func TestServers(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	w := env.do(t, http.MethodGet, "/servers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ServersResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Servers, 6)
	require.Equal(t, "us-ny", resp.Servers[0].ID)
}

func TestSelectAndToggle(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	w := env.do(t, http.MethodPost, "/session/select", &SelectRequest{EndpointID: "us-ny"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/session/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp SessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, session.Connecting, resp.Session.State)
	require.Equal(t, "New York, NY", resp.Location)

	w = env.do(t, http.MethodPost, "/session/select", &SelectRequest{EndpointID: "us-la"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "INVALID_TRANSITION", decodeError(t, w).Result)

	env.sched.Advance(2500 * time.Millisecond)
	env.sched.Advance(3 * time.Second)

	w = env.do(t, http.MethodGet, "/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = SessionResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, session.Connected, resp.Session.State)
	require.Equal(t, "104.23.11.45", resp.Session.AssignedAddress)
	require.Equal(t, uint64(3), resp.Session.ElapsedSeconds)
	require.Equal(t, 3, resp.Summary.Count)
	require.GreaterOrEqual(t, resp.Summary.AvgDownloadMbps, 100.0)

	w = env.do(t, http.MethodPost, "/session/toggle", &ToggleRequest{})
	require.Equal(t, http.StatusOK, w.Code)
	resp = SessionResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, session.Disconnecting, resp.Session.State)
}

func TestToggleWithoutEndpoint(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	w := env.do(t, http.MethodPost, "/session/toggle", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "NO_ENDPOINT", decodeError(t, w).Result)
}

func TestToggleWithEndpoint(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	w := env.do(t, http.MethodPost, "/session/toggle", &ToggleRequest{EndpointID: "us-sea"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "us-sea", env.ctrl.Snapshot().Endpoint.ID)

	w = env.do(t, http.MethodPost, "/session/toggle", &ToggleRequest{EndpointID: "eu-nowhere"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSelectInvalid(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	w := env.do(t, http.MethodPost, "/session/select", &SelectRequest{EndpointID: "eu-nowhere"})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "ENDPOINT_NOT_FOUND", decodeError(t, w).Result)

	w = httptest.NewRecorder()
	env.svc.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/session/select", strings.NewReader("{")))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToggleAfterClose(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	env.ctrl.Close()

	w := env.do(t, http.MethodPost, "/session/toggle", &ToggleRequest{EndpointID: "us-ny"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestClientAuth(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{
		Clients: []config.ClientRecord{{Username: "cli", Password: "secret"}},
	})

	w := env.do(t, http.MethodGet, "/session", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/session", nil)
	r.SetBasicAuth("cli", "wrong")
	w = httptest.NewRecorder()
	env.svc.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	r = httptest.NewRequest(http.MethodGet, "/session", nil)
	r.SetBasicAuth("cli", "secret")
	w = httptest.NewRecorder()
	env.svc.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestWatch(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	server := httptest.NewServer(env.svc)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/session/watch", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readSnapshot := func() session.Snapshot {
		line, err := reader.ReadBytes('\n')
		require.NoError(t, err)
		var snap session.Snapshot
		require.NoError(t, json.Unmarshal(line, &snap))
		return snap
	}

	first := readSnapshot()
	require.Equal(t, session.Disconnected, first.State)
	require.Nil(t, first.Endpoint)

	ep, ok := catalog.Default().Get("us-chi")
	require.True(t, ok)
	require.True(t, env.ctrl.Select(ep))
	require.NoError(t, env.ctrl.ToggleConnection(nil))

	selected := readSnapshot()
	require.Equal(t, "us-chi", selected.Endpoint.ID)
	connecting := readSnapshot()
	require.Equal(t, session.Connecting, connecting.State)
	require.Equal(t, assessor.StatusAnalyzing, connecting.Assessment.Status)
}

func TestWatchQueueCountsSkippedSnapshots(t *testing.T) {
	q := newWatchQueue("127.0.0.1", 2)
	for gen := uint64(1); gen <= 5; gen++ {
		q.Notify(session.Snapshot{Generation: gen})
	}

	require.Equal(t, uint64(3), q.dropped.Load())
	require.Equal(t, uint64(1), (<-q.ch).Generation)
	require.Equal(t, uint64(2), (<-q.ch).Generation)

	q.Notify(session.Snapshot{Generation: 6})
	require.Equal(t, uint64(6), (<-q.ch).Generation)
	require.Equal(t, uint64(3), q.dropped.Load())
}

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{
		ServerName: "shield-test",
		Admins:     []config.AdminRecord{{Username: "admin", Password: "pass"}},
	})

	w := env.do(t, http.MethodGet, "/admin/dashboard", nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/admin/login", w.Header().Get("Location"))

	login := func(password string) *httptest.ResponseRecorder {
		form := url.Values{"username": {"admin"}, "password": {password}}
		r := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		env.svc.ServeHTTP(w, r)
		return w
	}

	w = login("wrong")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Invalid username or password")

	w = login("pass")
	require.Equal(t, http.StatusSeeOther, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, accessTokenCookie, cookies[0].Name)

	r := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	r.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	env.svc.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "shield-test")
	require.Contains(t, w.Body.String(), "Signed in as admin")

	r = httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	r.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: "garbage"})
	w = httptest.NewRecorder()
	env.svc.ServeHTTP(w, r)
	require.Equal(t, http.StatusSeeOther, w.Code)
}
