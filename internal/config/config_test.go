package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plant "plantwatch/internal/plant/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PLANTWATCH_CONFIG", "HTTP_ADDR", "DATABASE_URL", "PG_DSN", "DATA_SOURCE",
		"HISTORY_BACKEND", "HISTORY_PATH", "ALARMS_PATH", "ROTATION_INTERVAL",
		"FETCH_TIMEOUT", "ALIGN_TICKS", "AUTH_JWT_SECRET", "JWT_SECRET", "MQTT_BROKER", "MQTT_QOS",
	} {
		t.Setenv(key, "")
	}
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, BackendMemory, cfg.DataSource)
	assert.Equal(t, BackendFile, cfg.HistoryBackend)
	assert.Equal(t, 5*time.Second, cfg.RotationInterval)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Len(t, cfg.ThresholdRules(), 7)
}

func TestLoadYAMLThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "plantwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9090"
rotation_interval: 10s
history_path: /var/lib/plantwatch/history.json
rules:
  - instrument: temperatura-09
    lower: 19
    upper: 24
    page: AHU 09
    element: (Ret. Temp.)
    label: Temperature
    unit: °C
seed_rows:
  - temperatura-09: 21.5
    humedad-09: 0
notify:
  mqtt:
    broker: tcp://localhost:1883
`), 0o644))
	t.Setenv("PLANTWATCH_CONFIG", path)
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("FETCH_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.RotationInterval)
	assert.Equal(t, 2*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "/var/lib/plantwatch/history.json", cfg.HistoryPath)
	assert.Equal(t, "tcp://localhost:1883", cfg.Notify.MQTT.Broker)
	assert.Equal(t, "plantwatch/alerts/{page}", cfg.Notify.MQTT.Topic)

	rules := cfg.ThresholdRules()
	require.Len(t, rules, 1)
	assert.Equal(t, 19.0, *rules[0].Lower)

	seed := cfg.Seed()
	require.Len(t, seed, 1)
	assert.True(t, seed[0].Get(plant.KeyTemperature).IsPresent())
	assert.False(t, seed[0].Get(plant.KeyHumidity).IsPresent())
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_SOURCE", BackendPostgres)
	_, err := Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("HISTORY_BACKEND", "s3")
	_, err = Load()
	assert.Error(t, err)

	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - instrument: x\n"), 0o644))
	t.Setenv("PLANTWATCH_CONFIG", path)
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLANTWATCH_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte("ROTATION_INTERVAL=3s\n"), 0o644))
	os.Unsetenv("ROTATION_INTERVAL")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.RotationInterval)
}
