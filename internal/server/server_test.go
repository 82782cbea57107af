package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackzampolin/scanline/internal/config"
	"github.com/jackzampolin/scanline/internal/home"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mockSettings() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Pipeline.Engine = "mock"
	cfg.Workers.Count = 1
	cfg.Tracker.SweepInterval = 0
	return cfg
}

func testHome(t *testing.T) *home.Dir {
	t.Helper()
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}
	return h
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantAddr string
		wantErr  bool
	}{
		{
			name:     "defaults from settings",
			cfg:      Config{Settings: mockSettings()},
			wantAddr: "127.0.0.1:8080",
		},
		{
			name:     "explicit host and port",
			cfg:      Config{Host: "0.0.0.0", Port: "9999", Settings: mockSettings()},
			wantAddr: "0.0.0.0:9999",
		},
		{
			name: "invalid settings",
			cfg: Config{Settings: func() *config.Config {
				c := mockSettings()
				c.Pipeline.Engine = "abacus"
				return c
			}()},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Home = testHome(t)
			tt.cfg.Logger = quietLogger()
			srv, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if srv.Addr() != tt.wantAddr {
				t.Errorf("Addr() = %q, want %q", srv.Addr(), tt.wantAddr)
			}
			if srv.IsRunning() {
				t.Error("IsRunning() = true before Start")
			}
			if srv.redisManager != nil {
				t.Error("redis manager created with redis disabled")
			}
		})
	}
}

func TestServer_RoutesBeforeStart(t *testing.T) {
	srv, err := New(Config{Home: testHome(t), Settings: mockSettings(), Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusServiceUnavailable},
		{http.MethodGet, "/status", http.StatusOK},
		{http.MethodGet, "/api/documents", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/events", http.StatusServiceUnavailable},
		{http.MethodPost, "/api/pages", http.StatusServiceUnavailable},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusServiceUnavailable && tt.path != "/ready" &&
				!strings.Contains(rec.Body.String(), "not fully initialized") {
				t.Errorf("body = %s", rec.Body)
			}
		})
	}
}

func TestServer_EndpointsRegistered(t *testing.T) {
	srv, err := New(Config{Home: testHome(t), Settings: mockSettings(), Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	routes := map[string]bool{}
	for _, ep := range srv.Endpoints().Endpoints() {
		method, path, _ := ep.Route()
		routes[method+" "+path] = true
	}
	for _, want := range []string{
		"POST /api/pages",
		"POST /api/documents",
		"POST /api/preflight",
		"GET /api/documents/{id}",
		"GET /api/documents/{id}/pdf",
		"DELETE /api/documents/{id}",
		"GET /api/events",
	} {
		if !routes[want] {
			t.Errorf("route %q not registered", want)
		}
	}
}

func TestServer_KillCleanupBeforeStart(t *testing.T) {
	srv, err := New(Config{Home: testHome(t), Settings: mockSettings(), Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if n := srv.KillCleanup(); n != 0 {
		t.Errorf("KillCleanup() = %d, want 0", n)
	}
}
