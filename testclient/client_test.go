package testclient

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vpnshield/pkg/apiserver"
	"vpnshield/pkg/assessor"
	"vpnshield/pkg/catalog"
	"vpnshield/pkg/config"
	"vpnshield/pkg/ippool"
	"vpnshield/pkg/scheduler"
	"vpnshield/pkg/session"
	"vpnshield/pkg/telemetry"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg config.APIConfig) (*httptest.Server, *session.Controller, *scheduler.Manual) {
	t.Helper()

	pool, err := ippool.NewStatic([]string{"203.0.113.5"})
	require.NoError(t, err)

	sched := scheduler.NewManual(time.Unix(1700000000, 0))
	ctrl := session.New(session.Options{
		Scheduler: sched,
		Allocator: pool,
		Assessor:  assessor.New(nil),
		Generator: telemetry.NewRandomGenerator(100, 150, 20, 50),
	})

	svc, err := apiserver.New(cfg, ctrl, catalog.Default())
	require.NoError(t, err)

	server := httptest.NewServer(svc)
	t.Cleanup(func() {
		server.Close()
		ctrl.Close()
	})
	return server, ctrl, sched
}

func TestParseServer(t *testing.T) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	base, err := parseServer("unix:/run/vpnshield.sock", transport)
	require.NoError(t, err)
	require.Equal(t, "http://unix", base.String())
	require.NotNil(t, transport.DialContext)

	base, err = parseServer("https://127.0.0.1:7400/", transport)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7400", base.Host)

	_, err = parseServer("ftp://example.com", transport)
	require.Error(t, err)
}

func TestServers(t *testing.T) {
	server, _, _ := newTestServer(t, config.APIConfig{})
	c, err := New(Options{Server: server.URL})
	require.NoError(t, err)

	servers, err := c.Servers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 6)

	var out bytes.Buffer
	require.NoError(t, PrintServers(context.Background(), c, &out))
	require.Contains(t, out.String(), "us-mia")
	require.Contains(t, out.String(), "Miami, FL")
}

func TestToggleAndSession(t *testing.T) {
	server, _, sched := newTestServer(t, config.APIConfig{})
	c, err := New(Options{Server: server.URL})
	require.NoError(t, err)
	ctx := context.Background()

	err = c.Select(ctx, "nowhere")
	require.True(t, IsResult(err, "ENDPOINT_NOT_FOUND"))

	require.NoError(t, c.Select(ctx, "us-dal"))

	resp, err := c.Toggle(ctx, "")
	require.NoError(t, err)
	require.Equal(t, session.Connecting, resp.Session.State)
	require.Equal(t, "Dallas, TX", resp.Location)

	sched.Advance(2500 * time.Millisecond)

	resp, err = c.Session(ctx)
	require.NoError(t, err)
	require.Equal(t, session.Connected, resp.Session.State)
	require.Equal(t, "203.0.113.5", resp.Session.AssignedAddress)
}

func TestToggleWaitsForConnected(t *testing.T) {
	server, ctrl, sched := newTestServer(t, config.APIConfig{})
	c, err := New(Options{Server: server.URL})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- Toggle(context.Background(), c, "us-ny", true)
	}()

	require.Eventually(t, func() bool {
		return ctrl.State() == session.Connecting
	}, time.Second, 5*time.Millisecond)
	sched.Advance(2500 * time.Millisecond)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("toggle did not return")
	}
	require.Equal(t, session.Connected, ctrl.State())
}

func TestUnauthorized(t *testing.T) {
	server, _, _ := newTestServer(t, config.APIConfig{
		Clients: []config.ClientRecord{{Username: "cli", Password: "secret"}},
	})

	c, err := New(Options{Server: server.URL})
	require.NoError(t, err)
	_, err = c.Servers(context.Background())
	require.True(t, IsResult(err, "UNAUTHORIZED"))

	c, err = New(Options{Server: server.URL, Username: "cli", Password: "secret"})
	require.NoError(t, err)
	_, err = c.Servers(context.Background())
	require.NoError(t, err)
}

func TestFormatSnapshot(t *testing.T) {
	ep, ok := catalog.Default().Get("us-ny")
	require.True(t, ok)

	line := FormatSnapshot(session.Snapshot{State: session.Disconnected})
	require.Contains(t, line, "Disconnected")
	require.Contains(t, line, session.PlaceholderAddress)

	line = FormatSnapshot(session.Snapshot{
		State:           session.Connected,
		Endpoint:        &ep,
		ElapsedSeconds:  75,
		AssignedAddress: "104.23.11.45",
		RecentSamples:   []telemetry.Sample{{DownloadMbps: 120.5, UploadMbps: 30}},
		Event:           &session.Event{Kind: session.EventAssignmentFailed, Message: "pool exhausted"},
	})
	require.Contains(t, line, "New York, NY")
	require.Contains(t, line, "00:01:15")
	require.Contains(t, line, "120.5")
	require.Contains(t, line, "! pool exhausted")
}
