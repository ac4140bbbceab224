package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "APP_ENV", "STORE_BACKEND", "RPC_URL", "CONTRACT_ADDRESS", "MIRROR_TIMEOUT", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 30*time.Second, cfg.MirrorTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.False(t, cfg.MirrorEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("MIRROR_TIMEOUT", "5s")
	t.Setenv("MIRROR_MAX_RETRIES", "notanumber")
	t.Setenv("PRIVATE_KEY", "0xdeadbeef")
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("CONTRACT_ADDRESS", "0x0000000000000000000000000000000000000001")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, 5*time.Second, cfg.MirrorTimeout)
	assert.Equal(t, 3, cfg.MirrorMaxRetries)
	assert.Equal(t, "deadbeef", cfg.PrivateKey)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.True(t, cfg.MirrorEnabled())
	assert.True(t, cfg.IsProduction())
}

func TestFromEnv_UnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sheets")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheets")
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	require.NoError(t, os.Unsetenv("CHECKIN_RATE_PER_MIN"))
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CHECKIN_RATE_PER_MIN=7\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("CHECKIN_RATE_PER_MIN")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.CheckInRatePerMin)
}
