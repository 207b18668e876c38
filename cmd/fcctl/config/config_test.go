package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"FCCTL_SOCKET", "FCCTL_TIMEOUT", "FCCTL_RATE_LIMIT_CAPACITY", "FCCTL_RATE_LIMIT_MODE", "OTEL_ENABLED", "OTEL_SERVICE_NAME"} {
		unsetenv(t, k)
	}

	cfg := Load()
	assert.Equal(t, "/run/firecracker.socket", cfg.Socket)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 0, cfg.RateLimitCapacity)
	assert.Equal(t, "wait", cfg.RateLimitMode)
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, "fcctl", cfg.OtelServiceName)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FCCTL_SOCKET", "unix:///tmp/vm.sock")
	t.Setenv("FCCTL_TIMEOUT", "250ms")
	t.Setenv("FCCTL_RATE_LIMIT_CAPACITY", "5")
	t.Setenv("FCCTL_RATE_LIMIT_MODE", "reject")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := Load()
	assert.Equal(t, "unix:///tmp/vm.sock", cfg.Socket)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, 5, cfg.RateLimitCapacity)
	assert.Equal(t, "reject", cfg.RateLimitMode)
	assert.True(t, cfg.OtelEnabled)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FCCTL_TIMEOUT", "soon")
	t.Setenv("FCCTL_RATE_LIMIT_CAPACITY", "many")
	t.Setenv("OTEL_ENABLED", "maybe")

	cfg := Load()
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 0, cfg.RateLimitCapacity)
	assert.False(t, cfg.OtelEnabled)
}

func TestDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	unsetenv(t, "FCCTL_SOCKET")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FCCTL_SOCKET=/tmp/from-dotenv.sock\n"), 0o600))

	cfg := Load()
	assert.Equal(t, "/tmp/from-dotenv.sock", cfg.Socket)
}

// unsetenv removes key for the duration of the test. godotenv never
// overrides a variable that is present, even when empty.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
