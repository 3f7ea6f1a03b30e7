package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	originalDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	// Runtime defaults
	assert.Equal(t, "cross-platform", cfg.Runtime.Backend)
	assert.Equal(t, "work-stealing", cfg.Runtime.Strategy)
	assert.Equal(t, 4, cfg.Runtime.WorkerThreads)
	assert.Equal(t, 256, cfg.Runtime.MaxTasksPerLoop)
	assert.Equal(t, 100*time.Millisecond, cfg.Runtime.IdleTimeout)

	// Work-stealing defaults
	assert.True(t, cfg.WorkStealing.Enabled)
	assert.Equal(t, 1, cfg.WorkStealing.StealThreshold)
	assert.Equal(t, 2, cfg.WorkStealing.MaxStealAttempts)
	assert.Equal(t, 4, cfg.WorkStealing.MaxTasksPerSteal)
	assert.Equal(t, time.Millisecond, cfg.WorkStealing.MinStealInterval)
	assert.Equal(t, 50*time.Millisecond, cfg.WorkStealing.MaxStealInterval)
	assert.Equal(t, time.Second, cfg.WorkStealing.RebalanceInterval)

	// Affinity defaults
	assert.Equal(t, "none", cfg.Affinity.Mode)
	assert.False(t, cfg.Affinity.IsolateMainThread)

	// Recovery defaults
	assert.False(t, cfg.Recovery.Enabled)
	assert.Equal(t, "mmap", cfg.Recovery.Backend)
	assert.Equal(t, uint32(5), cfg.Recovery.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Recovery.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Recovery.MaxRecoveryAge)
	assert.Equal(t, 2*time.Second, cfg.Recovery.RetryBackoff)
	assert.Equal(t, 2.0, cfg.Recovery.BackoffMultiplier)
	assert.Equal(t, 5*time.Minute, cfg.Recovery.MaxRetryDelay)
	assert.Equal(t, 10*time.Minute, cfg.Recovery.IdempotencyWindow)
	assert.False(t, cfg.Recovery.ResumePendingOnCrash)

	// Journal defaults
	assert.Equal(t, int64(64<<20), cfg.Journal.MaxFileSize)
	assert.Equal(t, 32, cfg.Journal.MaxFiles)
	assert.False(t, cfg.Journal.CompressOldFiles)

	// Server defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8081, cfg.Server.AdminPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)

	// Metrics defaults
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	// Auth defaults
	assert.False(t, cfg.Auth.Enabled)

	// Logging defaults
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_WithEnvVars(t *testing.T) {
	originalDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	os.Setenv("STELLANE_RUNTIME_BACKEND", "readiness-linux")
	os.Setenv("STELLANE_RUNTIME_WORKERTHREADS", "8")
	os.Setenv("STELLANE_RECOVERY_ENABLED", "true")
	os.Setenv("STELLANE_RECOVERY_TIMEOUT", "45sec")
	defer func() {
		os.Unsetenv("STELLANE_RUNTIME_BACKEND")
		os.Unsetenv("STELLANE_RUNTIME_WORKERTHREADS")
		os.Unsetenv("STELLANE_RECOVERY_ENABLED")
		os.Unsetenv("STELLANE_RECOVERY_TIMEOUT")
	}()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "readiness-linux", cfg.Runtime.Backend)
	assert.Equal(t, 8, cfg.Runtime.WorkerThreads)
	assert.True(t, cfg.Recovery.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Recovery.Timeout)
}

func TestLoad_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := tmpDir + "/stellane.toml"

	configContent := `
loglevel = "warn"

[runtime]
backend = "completion-linux"
strategy = "affinity"

[server]
host = "127.0.0.1"
port = 9090

[recovery]
enabled = true
maxattempts = 3
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "completion-linux", cfg.Runtime.Backend)
	assert.Equal(t, "affinity", cfg.Runtime.Strategy)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Recovery.Enabled)
	assert.Equal(t, uint32(3), cfg.Recovery.MaxAttempts)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_InvalidBackendRejected(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := tmpDir + "/stellane.toml"
	require.NoError(t, os.WriteFile(configPath, []byte(`
[runtime]
backend = "not-a-backend"
`), 0644))

	_, err := LoadFromFile(configPath)
	require.Error(t, err)
}

func TestLoad_InvalidStrategyRejected(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := tmpDir + "/stellane.toml"
	require.NoError(t, os.WriteFile(configPath, []byte(`
[runtime]
strategy = "not-a-strategy"
`), 0644))

	_, err := LoadFromFile(configPath)
	require.Error(t, err)
}

func TestServerConfig_Fields(t *testing.T) {
	cfg := ServerConfig{
		Host:         "localhost",
		Port:         8080,
		AdminPort:    8081,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 8081, cfg.AdminPort)
}

func TestRecoveryConfig_Fields(t *testing.T) {
	cfg := RecoveryConfig{
		Enabled:           true,
		Backend:           "mmap",
		Path:              "./data/journal",
		MaxAttempts:       5,
		Timeout:           30 * time.Second,
		BackoffMultiplier: 2.0,
	}

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "mmap", cfg.Backend)
	assert.Equal(t, uint32(5), cfg.MaxAttempts)
}

func TestWorkStealingConfig_Fields(t *testing.T) {
	cfg := WorkStealingConfig{
		Enabled:          true,
		StealThreshold:   2,
		MaxStealAttempts: 3,
		MaxTasksPerSteal: 8,
	}

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 2, cfg.StealThreshold)
	assert.Equal(t, 3, cfg.MaxStealAttempts)
}

func TestAffinityConfig_Fields(t *testing.T) {
	cfg := AffinityConfig{
		Mode:          "numa-aware",
		WorkerCoreMap: map[int][]int{0: {0, 1}},
		ExcludedCores: []int{7},
	}

	assert.Equal(t, "numa-aware", cfg.Mode)
	assert.Equal(t, []int{0, 1}, cfg.WorkerCoreMap[0])
}

func TestJournalConfig_Fields(t *testing.T) {
	cfg := JournalConfig{
		MaxFileSize:      32 << 20,
		MaxFiles:         16,
		CompressOldFiles: true,
	}

	assert.Equal(t, int64(32<<20), cfg.MaxFileSize)
	assert.Equal(t, 16, cfg.MaxFiles)
	assert.True(t, cfg.CompressOldFiles)
}
