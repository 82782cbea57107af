package testutil

import (
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"TestServer", "testserver"},
		{"TestServer/sub_test", "testserver-sub-test"},
		{"Test with spaces & symbols!", "testwithspacessymbols"},
		{strings.Repeat("a", 50), strings.Repeat("a", 30)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := sanitizeName(tt.in); got != tt.want {
				t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUniqueContainerName(t *testing.T) {
	a := UniqueContainerName(t, "redis")
	b := UniqueContainerName(t, "redis")
	if a == b {
		t.Errorf("names not unique: %s", a)
	}
	if !strings.HasPrefix(a, "scanline-test-redis-testuniquecontainername-") {
		t.Errorf("name = %q", a)
	}
	if got := ContainerLabels(t)[CleanupLabel]; got != t.Name() {
		t.Errorf("label = %q, want %q", got, t.Name())
	}
}

func TestFindFreePort(t *testing.T) {
	port, err := FindFreePort()
	if err != nil {
		t.Fatalf("FindFreePort() error = %v", err)
	}
	if port == "" || port == "0" {
		t.Errorf("port = %q", port)
	}
}
