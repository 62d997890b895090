package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, float64(0), cfg.Server.SubmitRate)
	assert.Equal(t, 3, cfg.Jobs.MaxConcurrent)
	assert.Equal(t, 10*time.Second, cfg.Jobs.TerminateGrace)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobforge.yaml")
	content := `
data_dir: ` + filepath.Join(dir, "data") + `
server:
  port: 9090
  submit_rate: 2.5
jobs:
  max_concurrent: 8
  terminate_grace: 45s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2.5, cfg.Server.SubmitRate)
	assert.Equal(t, 8, cfg.Jobs.MaxConcurrent)
	assert.Equal(t, 45*time.Second, cfg.Jobs.TerminateGrace)
	assert.Equal(t, "debug", cfg.Logging.Level)

	assert.Equal(t, filepath.Join(dir, "data", "jobs"), cfg.JobsDir())
	assert.Equal(t, filepath.Join(dir, "data", "state"), cfg.StateDir())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644))

	t.Setenv("JOBFORGE_SERVER_PORT", "7070")
	t.Setenv("JOBFORGE_JOBS_TERMINATE_GRACE", "5s")
	t.Setenv("JOBFORGE_DATA_DIR", dir)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Jobs.TerminateGrace)
	assert.Equal(t, dir, cfg.DataDir)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
