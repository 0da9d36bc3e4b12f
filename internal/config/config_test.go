package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 10, cfg.Limits.MaxIterations)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coachd.yaml")
	data := `
llm:
  model: gemini-2.5-pro
  timeout: 90s
limits:
  max_iterations: 5
store:
  path: /tmp/coach-test.db
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 5, cfg.Limits.MaxIterations)
	assert.Equal(t, "/tmp/coach-test.db", cfg.Store.Path)
	// Untouched sections keep their defaults.
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadRejectsInvalidLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coachd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits:\n  max_iterations: -1\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coachd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateEmptyPaths(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.Addr = ""
	assert.Error(t, cfg.Validate())
}
