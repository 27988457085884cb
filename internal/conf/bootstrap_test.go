package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// Test defaults applied with no config file
func TestNewBootstrap_Defaults(t *testing.T) {
	bc, err := NewBootstrap("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", bc.Server.Http.Addr)
	assert.Equal(t, ":9000", bc.Server.Grpc.Addr)

	d := bc.Resilience.Defaults
	assert.Equal(t, int32(5), d.FailureThreshold)
	assert.Equal(t, 30*time.Second, d.RecoveryTimeout.AsDuration())
	assert.Equal(t, int32(3), d.HalfOpenMaxCalls)
	assert.Equal(t, int32(3), d.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, d.BaseDelay.AsDuration())
	assert.Equal(t, 5*time.Second, d.MaxDelay.AsDuration())
	assert.Equal(t, 2.0, d.BackoffMultiplier)
	assert.True(t, d.Jitter)
	assert.Equal(t, 10*time.Second, d.Timeout.AsDuration())

	assert.Equal(t, 30*time.Second, bc.Resilience.HealthSweepInterval.AsDuration())
	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)
}

// Test loading per-service policy overrides from a config file
func TestNewBootstrap_ServiceOverrides(t *testing.T) {
	path := writeConfig(t, `
resilience:
  defaults:
    failure_threshold: 4
  services:
    billing-db:
      failure_threshold: 2
      recovery_timeout: 15s
      enable_fallback: true
    report-export:
      max_retries: 7
`)

	bc, err := NewBootstrap(path)
	require.NoError(t, err)

	assert.Equal(t, int32(4), bc.Resilience.Defaults.FailureThreshold)

	require.Contains(t, bc.Resilience.Services, "billing-db")
	billing := bc.Resilience.Services["billing-db"]
	assert.Equal(t, int32(2), billing.FailureThreshold)
	assert.Equal(t, 15*time.Second, billing.RecoveryTimeout.AsDuration())
	assert.True(t, billing.EnableFallback)

	require.Contains(t, bc.Resilience.Services, "report-export")
	export := bc.Resilience.Services["report-export"]
	assert.Equal(t, int32(7), export.MaxRetries)
	// Fields the override leaves unset resolve from the defaults at load time.
	assert.Equal(t, int32(4), export.FailureThreshold)
	assert.Equal(t, int32(3), billing.MaxRetries)
}

// Test overrides inherit unset fields and keep explicit zero-values
func TestNewBootstrap_OverrideFieldResolution(t *testing.T) {
	path := writeConfig(t, `
resilience:
  defaults:
    jitter: true
    enable_fallback: true
    max_retries: 3
  services:
    billing-db:
      failure_threshold: 2
    report-export:
      max_retries: 0
      jitter: false
`)

	bc, err := NewBootstrap(path)
	require.NoError(t, err)

	billing := bc.Resilience.Services["billing-db"]
	require.NotNil(t, billing)
	assert.Equal(t, int32(2), billing.FailureThreshold)
	assert.True(t, billing.Jitter, "jitter must inherit from the defaults")
	assert.True(t, billing.EnableFallback)
	assert.Equal(t, int32(3), billing.MaxRetries)
	assert.Equal(t, 30*time.Second, billing.RecoveryTimeout.AsDuration())

	export := bc.Resilience.Services["report-export"]
	require.NotNil(t, export)
	assert.Equal(t, int32(0), export.MaxRetries, "explicit max_retries: 0 must disable retries")
	assert.False(t, export.Jitter, "explicit jitter: false must win over the defaults")
	assert.Equal(t, int32(5), export.FailureThreshold)
}

// Test environment variables override file values
func TestNewBootstrap_EnvOverride(t *testing.T) {
	t.Setenv("GUARDLANE_LOG_LEVEL", "debug")
	t.Setenv("GUARDLANE_DATA_REDIS_ADDR", "redis.internal:6380")

	bc, err := NewBootstrap("")
	require.NoError(t, err)

	assert.Equal(t, "debug", bc.Log.Level)
	assert.Equal(t, "redis.internal:6380", bc.Data.Redis.Addr)
}

// Test the MYSQL_DSN alias
func TestNewBootstrap_MySQLDSNAlias(t *testing.T) {
	t.Setenv("MYSQL_DSN", "user:pass@tcp(db:3306)/guardlane")

	bc, err := NewBootstrap("")
	require.NoError(t, err)

	assert.Equal(t, "user:pass@tcp(db:3306)/guardlane", bc.Data.Database.Source)
}

// Test validation rejects nonsensical policies
func TestNewBootstrap_Validation(t *testing.T) {
	path := writeConfig(t, `
resilience:
  defaults:
    failure_threshold: 0
    backoff_multiplier: 0.5
`)

	_, err := NewBootstrap(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure_threshold")
	assert.Contains(t, err.Error(), "backoff_multiplier")
}

// Test a missing config file path errors out
func TestNewBootstrap_MissingFile(t *testing.T) {
	_, err := NewBootstrap("/does/not/exist.yaml")
	assert.Error(t, err)
}
