package redisbox

import (
	"context"
	"testing"
	"time"

	"github.com/jackzampolin/scanline/internal/analytics"
	"github.com/jackzampolin/scanline/internal/testutil"
)

func TestDockerConfig_Defaults(t *testing.T) {
	if DefaultContainerName != "scanline-redis" {
		t.Errorf("unexpected default container name: %s", DefaultContainerName)
	}
	if DefaultImage != "redis:7-alpine" {
		t.Errorf("unexpected default image: %s", DefaultImage)
	}
	if DefaultPort != "6379" {
		t.Errorf("unexpected default port: %s", DefaultPort)
	}
}

func TestGenerateContainerName(t *testing.T) {
	tests := []struct {
		name     string
		homePath string
		want     string
	}{
		{"empty path", "", "scanline-redis-e3b0c442"}, // sha256("")[:8]
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateContainerName(tt.homePath)
			if got != tt.want {
				t.Errorf("GenerateContainerName(%q) = %q, want %q", tt.homePath, got, tt.want)
			}
		})
	}

	t.Run("deterministic", func(t *testing.T) {
		if GenerateContainerName("/home/a/.scanline") != GenerateContainerName("/home/a/.scanline") {
			t.Error("not deterministic")
		}
	})

	t.Run("unique per path", func(t *testing.T) {
		if GenerateContainerName("/home/a/.scanline") == GenerateContainerName("/home/b/.scanline") {
			t.Error("names collide")
		}
	})

	t.Run("length", func(t *testing.T) {
		if got := GenerateContainerName("/x"); len(got) != len(ContainerNamePrefix)+8 {
			t.Errorf("length = %d", len(got))
		}
	})
}

func TestNewDockerManager_ContainerNaming(t *testing.T) {
	tests := []struct {
		name         string
		cfg          DockerConfig
		wantContName string
	}{
		{
			name:         "explicit container name takes precedence",
			cfg:          DockerConfig{ContainerName: "my-redis", HomePath: "/home/test/.scanline"},
			wantContName: "my-redis",
		},
		{
			name:         "generates name from home path when no explicit name",
			cfg:          DockerConfig{HomePath: "/home/test/.scanline"},
			wantContName: GenerateContainerName("/home/test/.scanline"),
		},
		{
			name:         "falls back to default when no name or home path",
			cfg:          DockerConfig{},
			wantContName: DefaultContainerName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, err := NewDockerManager(tt.cfg)
			if err != nil {
				t.Fatalf("NewDockerManager() error = %v", err)
			}
			defer mgr.Close()

			if mgr.ContainerName() != tt.wantContName {
				t.Errorf("ContainerName() = %q, want %q", mgr.ContainerName(), tt.wantContName)
			}
			if mgr.Addr() != "127.0.0.1:"+DefaultPort {
				t.Errorf("Addr() = %q", mgr.Addr())
			}
		})
	}
}

func TestDockerManager_Integration(t *testing.T) {
	_ = testutil.DockerClient(t)

	ctx := context.Background()
	port, err := testutil.FindFreePort()
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}

	mgr, err := NewDockerManager(DockerConfig{
		ContainerName: testutil.UniqueContainerName(t, "redis"),
		HostPort:      port,
		Labels:        testutil.ContainerLabels(t),
	})
	if err != nil {
		t.Fatalf("NewDockerManager() error = %v", err)
	}
	defer mgr.Close()

	t.Run("Start", func(t *testing.T) {
		if err := mgr.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		status, err := mgr.Status(ctx)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if status != StatusRunning {
			t.Errorf("expected status running, got %s", status)
		}
	})

	t.Run("Start_AlreadyRunning", func(t *testing.T) {
		if err := mgr.Start(ctx); err != nil {
			t.Errorf("Start() on running container should succeed: %v", err)
		}
	})

	t.Run("ValidateExisting", func(t *testing.T) {
		if err := mgr.ValidateExisting(ctx); err != nil {
			t.Errorf("ValidateExisting() error = %v", err)
		}
	})

	t.Run("AnalyticsStream", func(t *testing.T) {
		sink, err := analytics.NewRedisSink(ctx, analytics.RedisConfig{Addr: mgr.Addr(), Stream: "test:events"})
		if err != nil {
			t.Fatalf("NewRedisSink() error = %v", err)
		}
		defer sink.Close()

		e := analytics.Event{
			Name:       analytics.EventSuccessOriginal,
			Version:    analytics.SchemaVersion,
			Timestamp:  time.Now().UTC(),
			DocumentID: "doc-1",
			Attempt: &analytics.AttemptPayload{
				AttemptNumber:  1,
				InputSizeBytes: 1024,
				Success:        true,
				Confidence:     91,
			},
		}
		if err := sink.Emit(ctx, e); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
		got, err := sink.Read(ctx, 10)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(got) != 1 || got[0].Name != analytics.EventSuccessOriginal || got[0].DocumentID != "doc-1" {
			t.Errorf("Read() = %+v", got)
		}
	})

	t.Run("Stop", func(t *testing.T) {
		if err := mgr.Stop(ctx); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		status, _ := mgr.Status(ctx)
		if status != StatusStopped {
			t.Errorf("expected status stopped, got %s", status)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		if err := mgr.Remove(ctx); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		status, _ := mgr.Status(ctx)
		if status != StatusNotFound {
			t.Errorf("expected status not_found, got %s", status)
		}
	})
}
