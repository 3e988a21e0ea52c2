package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadFromFilesDefaults(t *testing.T) {
	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 8085, config.Server.Port)
	assert.Equal(t, 8080, config.Worker.Port)
	assert.Equal(t, "@every 5m", config.Orchestrator.SweepSchedule)
	assert.Equal(t, 50, config.Orchestrator.WelcomeCredits)
	assert.Equal(t, []string{"server", "location", "set-cookie"}, config.Report.HeaderAllowList)
	assert.True(t, config.Worker.Headless)
}

func TestLoadFromFilesLaterFileWins(t *testing.T) {
	base := writeConfig(t, "base.toml", `
[server]
port = 9000

[orchestrator]
worker_url = "http://worker:8080"
stale_threshold = "10m"
`)
	override := writeConfig(t, "override.toml", `
[orchestrator]
stale_threshold = "2m"

[worker]
max_sessions = 4
`)

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "http://worker:8080", config.Orchestrator.WorkerURL)
	assert.Equal(t, "2m", config.Orchestrator.StaleThreshold)
	assert.Equal(t, 4, config.Worker.MaxSessions)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "linkprobe.toml", `
[orchestrator]
worker_url = "http://from-file"
`)
	t.Setenv("LINKPROBE_WORKER_URL", "http://from-env")
	t.Setenv("LINKPROBE_SERVER_PORT", "7000")
	t.Setenv("LINKPROBE_LOG_OUTPUT", "stdout, file ,")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env", config.Orchestrator.WorkerURL)
	assert.Equal(t, 7000, config.Server.Port)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
}

func TestLegacyWorkerEnvNames(t *testing.T) {
	t.Setenv("BROWSER_WORKER_URL", "http://legacy")
	t.Setenv("BROWSER_WORKER_SECRET", "s3cret")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, "http://legacy", config.Orchestrator.WorkerURL)
	assert.Equal(t, "s3cret", config.Orchestrator.WorkerToken)
	assert.Equal(t, "s3cret", config.Worker.SharedSecret)
}

func TestFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 9999, "0.0.0.0")
	ApplyWorkerFlagOverrides(config, 0, "")

	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 8080, config.Worker.Port)
}

func TestInvalidScheduleRejected(t *testing.T) {
	path := writeConfig(t, "bad.toml", `
[orchestrator]
sweep_schedule = "every five minutes"
`)
	_, err := LoadFromFiles(path)
	assert.Error(t, err)

	assert.NoError(t, ValidateSchedule("*/5 * * * *"))
	assert.NoError(t, ValidateSchedule("@every 1m"))
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 2*time.Minute, ParseDuration("2m", time.Second))
	assert.Equal(t, time.Second, ParseDuration("", time.Second))
	assert.Equal(t, time.Second, ParseDuration("soon", time.Second))
	assert.Equal(t, time.Second, ParseDuration("-5s", time.Second))
}
