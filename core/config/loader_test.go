package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "nowcast.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "checklist file: /tmp/checklist.yaml\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Zmq.Host)
	assert.Equal(t, 5555, cfg.Zmq.Ports.Manager)
	assert.Equal(t, "/tmp/checklist.yaml", cfg.ChecklistFile)
}

func TestLoadConfigStoresItsOwnPath(t *testing.T) {
	path := writeConfig(t, "checklist file: /tmp/checklist.yaml\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.NotEqual(t, cfg.ChecklistFile, cfg.ConfigFile)
}

func TestLoadConfigEnvSubstitution(t *testing.T) {
	require.NoError(t, os.Setenv("NOWCAST_TEST_CHECKLIST_DIR", "/srv/nowcast"))
	defer os.Unsetenv("NOWCAST_TEST_CHECKLIST_DIR")

	path := writeConfig(t, "checklist file: $(NOWCAST.ENV.NOWCAST_TEST_CHECKLIST_DIR)/checklist.yaml\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/nowcast/checklist.yaml", cfg.ChecklistFile)
}

func TestLoadConfigMissingEnvVarFails(t *testing.T) {
	os.Unsetenv("NOWCAST_TEST_DOES_NOT_EXIST")
	path := writeConfig(t, "checklist file: $(NOWCAST.ENV.NOWCAST_TEST_DOES_NOT_EXIST)\n")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigWorkerRegistry(t *testing.T) {
	path := writeConfig(t, `
message registry:
  next workers module: /usr/local/bin/dispatch-example
  workers:
    sleep:
      checklist key: sleep
      success: worker ran successfully
      failure: worker failed
  manager:
    ack: message acknowledged
    unregistered worker: message from unregistered worker
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/dispatch-example", cfg.MessageRegistry.NextWorkersModule)
	require.Contains(t, cfg.MessageRegistry.Workers, "sleep")
	assert.Equal(t, "sleep", cfg.MessageRegistry.Workers["sleep"].ChecklistKey)
	assert.Equal(t, "worker ran successfully", cfg.MessageRegistry.Workers["sleep"].MessageTypes["success"])
	assert.Equal(t, "message acknowledged", cfg.MessageRegistry.Manager["ack"])
}
