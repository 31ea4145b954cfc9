package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const validYAML = `
entry_url: "https://example.com/app"
spec_file: "spec.js"
stop_on_violation: true
scratch_dir: "/tmp/bombadil"
browser:
  headless: true
  no_sandbox: false
  width: 1280
  height: 720
  warmup_timeout: "5s"
edge_map:
  size: 65536
log:
  level: "info"
  console:
    enabled: true
    format: "console"
  file:
    enabled: false
    path: ""
    format: "json"
    rotation:
      max_size: 100
      max_age: 7
      max_backups: 3
      compress: true
metrics:
  enabled: false
  listen: ""
  path: "/metrics"
trace:
  enabled: false
  dir: ""
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	mgr, err := Load(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/app", mgr.Config().EntryURL)
	assert.Equal(t, 65536, mgr.Config().EdgeMap.Size)
}

func TestLoad_MissingEntryURLIsHardError(t *testing.T) {
	path := writeConfig(t, `
spec_file: "spec.js"
edge_map:
  size: 65536
`)
	_, err := Load(path, zap.NewNop())
	assert.ErrorContains(t, err, "entry_url is required")
}

func TestLoad_NonPowerOfTwoEdgeMapIsHardError(t *testing.T) {
	path := writeConfig(t, `
entry_url: "https://example.com"
spec_file: "spec.js"
edge_map:
  size: 100
`)
	_, err := Load(path, zap.NewNop())
	assert.ErrorContains(t, err, "power of two")
}

func TestLoad_UnknownFieldIsRejected(t *testing.T) {
	path := writeConfig(t, validYAML+"\nbogus_field: true\n")
	_, err := Load(path, zap.NewNop())
	assert.Error(t, err)
}

func TestLoad_RedisEnvOverridesPassword(t *testing.T) {
	path := writeConfig(t, validYAML+"\nredis:\n  addr: \"localhost:6379\"\n  db: 0\n")
	t.Setenv("BOMBADIL_REDIS_PASSWORD", "from-env")
	mgr, err := Load(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "from-env", mgr.Config().Redis.Password)
}
