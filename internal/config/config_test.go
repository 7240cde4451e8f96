package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := config.New()

	require.Equal(t, time.Minute, c.GetCheckInterval())
	require.Equal(t, 5*time.Minute, c.GetWarningThreshold())
	require.Equal(t, 30*time.Minute, c.GetIdleTimeout())
	require.Equal(t, 3*time.Second, c.GetBootstrapTimeout())
	require.Equal(t, 3, c.GetMaxRetries())
	require.Equal(t, time.Second, c.GetRetryBaseDelay())
	require.Equal(t, 10*time.Second, c.GetRetryMaxDelay())
	require.Equal(t, config.TransportMemory, c.GetBusTransport())
	require.Equal(t, ":8080", c.GetHTTPAddr())
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_name: Kids Tab
bus:
  transport: kafka
  kafka_brokers: ["k1:9092", "k2:9092"]
session:
  check_interval: 30s
retry:
  max_retries: 5
`), 0o600))

	t.Setenv("SESSION_IDLE_TIMEOUT", "10m")
	t.Setenv("KAFKA_TOPIC", "tabs")

	c, err := config.Load("", path)
	require.NoError(t, err)
	require.Equal(t, "Kids Tab", c.GetAppName())
	require.Equal(t, config.TransportKafka, c.GetBusTransport())
	require.Equal(t, []string{"k1:9092", "k2:9092"}, c.GetKafkaBrokers())
	require.Equal(t, "tabs", c.GetKafkaTopic())
	require.Equal(t, 30*time.Second, c.GetCheckInterval())
	require.Equal(t, 10*time.Minute, c.GetIdleTimeout())
	require.Equal(t, 5, c.GetMaxRetries())
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("BUS_CHANNEL=classroom\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("BUS_CHANNEL") })

	c, err := config.Load(path, "")
	require.NoError(t, err)
	require.Equal(t, "classroom", c.GetBusChannel())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load("", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
