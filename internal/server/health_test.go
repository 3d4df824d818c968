package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxbuckets/internal/gmail"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func serveHealth(t *testing.T, h *HealthChecker, path string) (int, HealthResponse) {
	t.Helper()
	mux := http.NewServeMux()
	h.RegisterHealthEndpoints(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker(nil, fakePinger{err: errors.New("db gone")})
	h.SetReady(false)

	code, resp := serveHealth(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
}

func TestHealthChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		pingErr    error
		shutdown   bool
		wantCode   int
		wantChecks map[string]string
	}{
		{
			name:       "ready",
			ready:      true,
			wantCode:   http.StatusOK,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "ok", "store": "ok"},
		},
		{
			name:       "not ready",
			ready:      false,
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"ready": "not ready", "shutdown": "ok", "store": "ok"},
		},
		{
			name:       "store down",
			ready:      true,
			pingErr:    errors.New("database is locked"),
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "ok", "store": "unavailable"},
		},
		{
			name:       "shutting down",
			ready:      true,
			shutdown:   true,
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"ready": "ok", "shutdown": "shutting down", "store": "ok"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := NewServerContext(context.Background(), &fakeTokens{}, gmail.Options{})
			t.Cleanup(func() { _ = sc.Shutdown() })
			if tt.shutdown {
				require.NoError(t, sc.Shutdown())
			}

			h := NewHealthChecker(sc, fakePinger{err: tt.pingErr})
			h.SetReady(tt.ready)
			assert.Equal(t, tt.ready, h.IsReady())

			code, resp := serveHealth(t, h, "/readyz")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantChecks, resp.Checks)
		})
	}
}

func TestHealthChecker_Detailed(t *testing.T) {
	h := NewHealthChecker(nil, nil)

	mux := http.NewServeMux()
	h.RegisterHealthEndpoints(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DetailedHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Store)
	assert.NotEmpty(t, resp.Uptime)
	assert.Zero(t, resp.GmailClients)
}

func TestHTTPServer_RoutesHealthAndAPI(t *testing.T) {
	api := NewAPI(APIConfig{Inbox: &fakeInbox{}})
	srv, err := NewHTTPServer(HTTPServerConfig{API: api, Health: NewHealthChecker(nil, fakePinger{})})
	require.NoError(t, err)

	for _, path := range []string{"/healthz", "/readyz", "/api/threads"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	require.NoError(t, srv.Shutdown(context.Background()))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewHTTPServer_RequiresAPI(t *testing.T) {
	_, err := NewHTTPServer(HTTPServerConfig{})
	assert.Error(t, err)
}
