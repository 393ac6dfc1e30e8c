package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every AIBROKER_ env var that Load() reads.
var allConfigKeys = []string{
	"AIBROKER_LISTEN_ADDR",
	"AIBROKER_DB_PATH",
	"AIBROKER_SECRET_KEY",
	"AIBROKER_JWT_SECRET",
	"AIBROKER_POLICY_PATH",
	"AIBROKER_PROVIDER_TIMEOUT",
	"AIBROKER_RESET_SCHEDULE",
	"AIBROKER_QUOTA_RETENTION_DAYS",
}

const validKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// isolateConfigEnv saves and unsets all AIBROKER_ env vars so tests don't
// inherit values from the host environment (e.g. a running dev server).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("AIBROKER_SECRET_KEY", validKeyHex)
	t.Setenv("AIBROKER_JWT_SECRET", "jwt-test-secret")
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)
	t.Setenv("AIBROKER_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("AIBROKER_DB_PATH", "/tmp/test.db")
	t.Setenv("AIBROKER_POLICY_PATH", "/etc/aibroker/policy.yaml")
	t.Setenv("AIBROKER_PROVIDER_TIMEOUT", "45s")
	t.Setenv("AIBROKER_RESET_SCHEDULE", "30 0 * * *")
	t.Setenv("AIBROKER_QUOTA_RETENTION_DAYS", "7")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Len(t, cfg.SecretKey, 32)
	assert.Equal(t, []byte("jwt-test-secret"), cfg.JWTSecret)
	assert.Equal(t, "/etc/aibroker/policy.yaml", cfg.PolicyPath)
	assert.Equal(t, 45*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "30 0 * * *", cfg.ResetSchedule)
	assert.Equal(t, 7, cfg.QuotaRetentionDays)
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "aibroker.db", cfg.DBPath)
	assert.Empty(t, cfg.PolicyPath)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "0 0 * * *", cfg.ResetSchedule)
	assert.Equal(t, 30, cfg.QuotaRetentionDays)
}

func TestLoad_MissingSecretKey(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("AIBROKER_JWT_SECRET", "jwt-test-secret")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "AIBROKER_SECRET_KEY"))
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("AIBROKER_SECRET_KEY", validKeyHex)

	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "AIBROKER_JWT_SECRET"))
}

func TestLoad_InvalidSecretKey(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("AIBROKER_JWT_SECRET", "jwt-test-secret")

	t.Setenv("AIBROKER_SECRET_KEY", "not-hex-at-all")
	_, err := Load()
	require.Error(t, err)

	// Valid hex but wrong length.
	t.Setenv("AIBROKER_SECRET_KEY", "deadbeef")
	_, err = Load()
	require.Error(t, err)
}

func TestLoad_InvalidProviderTimeout(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)

	t.Setenv("AIBROKER_PROVIDER_TIMEOUT", "soon")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("AIBROKER_PROVIDER_TIMEOUT", "-5s")
	_, err = Load()
	require.Error(t, err)
}

func TestLoad_InvalidRetentionDays(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)

	t.Setenv("AIBROKER_QUOTA_RETENTION_DAYS", "zero")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("AIBROKER_QUOTA_RETENTION_DAYS", "0")
	_, err = Load()
	require.Error(t, err)
}
