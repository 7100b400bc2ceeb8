package assessor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"vpnshield/pkg/config"

	"github.com/stretchr/testify/require"
)

type failingBackend struct{}

func (failingBackend) Assess(context.Context, Request) (Assessment, error) {
	return Assessment{}, ErrAssessmentUnavailable
}

type staticBackend struct {
	a Assessment
}

func (b staticBackend) Assess(context.Context, Request) (Assessment, error) {
	return b.a, nil
}

func TestAssessFallbackOnFailure(t *testing.T) {
	a := New(failingBackend{}).Assess(context.Background(), "New York", "NY")

	require.Equal(t, StatusSecure, a.Status)
	require.Contains(t, a.Summary, "New York")
	require.Equal(t, "AES-256-GCM", a.EncryptionScheme)
	require.True(t, a.MaskingActive)
}

func TestAssessFallbackOnInvalidAssessment(t *testing.T) {
	a := New(staticBackend{a: Assessment{Status: "great", Summary: "ok"}}).Assess(context.Background(), "Miami", "FL")
	require.Equal(t, Fallback("Miami"), a)

	a = New(staticBackend{a: Assessment{Status: StatusSecure}}).Assess(context.Background(), "Miami", "FL")
	require.Equal(t, Fallback("Miami"), a)
}

func TestAssessUnconfigured(t *testing.T) {
	a := New(nil).Assess(context.Background(), "Seattle", "WA")
	require.Equal(t, StatusVulnerable, a.Status)
	require.False(t, a.MaskingActive)
}

func TestAssessPassesThrough(t *testing.T) {
	want := Assessment{Status: StatusVulnerable, Summary: "Weak peering.", EncryptionScheme: "ChaCha20-Poly1305"}
	a := New(staticBackend{a: want}).Assess(context.Background(), "Dallas", "TX")
	require.Equal(t, want, a)
}

func newBackendServer(t *testing.T, handler http.HandlerFunc) *HTTPBackend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTPBackend(config.AssessorConfig{URL: server.URL}, "test-key")
}

func TestHTTPBackend(t *testing.T) {
	backend := newBackendServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, Request{City: "Chicago", Region: "IL"}, req)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"Secure","summary":"Chicago peering is solid.","encryption":"AES-256-GCM","masking":"Active"}`))
	})

	a, err := backend.Assess(context.Background(), Request{City: "Chicago", Region: "IL"})
	require.NoError(t, err)
	require.Equal(t, Assessment{
		Status:           StatusSecure,
		Summary:          "Chicago peering is solid.",
		EncryptionScheme: "AES-256-GCM",
		MaskingActive:    true,
	}, a)
}

func TestHTTPBackendBoolMasking(t *testing.T) {
	backend := newBackendServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"vulnerable","summary":"Open resolver nearby.","encryption":"AES-128-GCM","masking":false}`))
	})

	a, err := backend.Assess(context.Background(), Request{City: "Miami", Region: "FL"})
	require.NoError(t, err)
	require.Equal(t, StatusVulnerable, a.Status)
	require.False(t, a.MaskingActive)
}

func TestHTTPBackendFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"result":"INTERNAL_SERVER_ERROR","error":"model overloaded"}`))
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":`))
		}},
		{"unknown status", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"maybe","summary":"x","encryption":"x","masking":"Active"}`))
		}},
		{"bad masking", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"secure","summary":"x","encryption":"x","masking":"sometimes"}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackendServer(t, tt.handler)

			_, err := backend.Assess(context.Background(), Request{City: "Seattle", Region: "WA"})
			require.ErrorIs(t, err, ErrAssessmentUnavailable)

			a := New(backend).Assess(context.Background(), "Seattle", "WA")
			require.Equal(t, Fallback("Seattle"), a)
		})
	}
}

func TestHTTPBackendUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	backend := NewHTTPBackend(config.AssessorConfig{URL: url}, "k")
	_, err := backend.Assess(context.Background(), Request{City: "Dallas"})
	require.True(t, errors.Is(err, ErrAssessmentUnavailable))
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "Secure", StatusSecure.String())
	require.Equal(t, "Analyzing", Analyzing().Status.String())
	require.Equal(t, "Unknown", Status("x").String())
}
