package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.True(t, cfg.TLS.InsecureSkipVerify)
	assert.Equal(t, 5*time.Second, cfg.Probe.Timeout)
	assert.Equal(t, 4096, cfg.Dedup.Size)
	assert.Equal(t, 10*time.Minute, cfg.Dedup.TTL)
	assert.Equal(t, "/api/detections", cfg.History.DetectionsPath)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "safetynet", cfg.MQTT.BaseTopic)
	assert.False(t, cfg.MinIO.Enabled)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "safetynet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
mqtt:
  host: broker.local
  base_topic: plant/cams
probe:
  timeout: 3s
`), 0o644))

	t.Setenv("SAFETYNET_MQTT_HOST", "10.1.1.1")
	t.Setenv("SAFETYNET_TLS_INSECURE_SKIP_VERIFY", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "10.1.1.1", cfg.MQTT.Host)
	assert.Equal(t, "plant/cams", cfg.MQTT.BaseTopic)
	assert.Equal(t, 3*time.Second, cfg.Probe.Timeout)
	assert.False(t, cfg.TLS.InsecureSkipVerify)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SAFETYNET_REGISTRY_FILE=/data/cams.yaml\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SAFETYNET_REGISTRY_FILE") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/data/cams.yaml", cfg.Registry.File)
}

func TestValidateRejectsBadValues(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SAFETYNET_LOG_LEVEL", "loud")
	_, err := Load("")
	assert.Error(t, err)
}
