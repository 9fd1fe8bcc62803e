package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithRequiredSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")
	t.Setenv("DATABASE_PASSWORD", "pw")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8083, cfg.Server.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "pw", cfg.Database.Password)
	assert.Equal(t, "test-secret", cfg.JWT.SecretKey)
	assert.Equal(t, "08:00", cfg.Scheduling.BusinessOpen)
	assert.Equal(t, "20:00", cfg.Scheduling.BusinessClose)
	assert.Equal(t, 30, cfg.Scheduling.MaxDaysAhead)
	assert.Equal(t, []int{60, 120}, cfg.Scheduling.AllowedDurations)
	assert.Equal(t, 60, cfg.Scheduling.SlotGranularity)

	hours, err := cfg.Scheduling.BusinessHours()
	require.NoError(t, err)
	assert.Equal(t, 480, hours.Start)
	assert.Equal(t, 1200, hours.End)
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("STORE_DRIVER", StoreDriverMemory)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret key is required")
}

func TestLoad_HeaderModeMemoryStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", StoreDriverMemory)
	t.Setenv("AUTH_MODE", AuthModeHeader)
	t.Setenv("PORT", "9191")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, AuthModeHeader, cfg.Auth.Mode)
}

func TestLoad_PostgresRequiresPassword(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database password is required")

	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db?sslmode=disable")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/db?sslmode=disable", cfg.Database.URL)
}

func TestLoad_SecretsFromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "s")
	t.Setenv("DATABASE_PASSWORD", "db-secret")
	t.Setenv("REDIS_PASSWORD", "redis-secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "db-secret", cfg.Database.Password)
	assert.Equal(t, "redis-secret", cfg.Redis.Password)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  password: from-file
redis:
  password: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "db-secret", cfg.Database.Password, "environment wins over the file")
	assert.Equal(t, "redis-secret", cfg.Redis.Password)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
store:
  driver: memory
auth:
  mode: header
scheduling:
  business_open: "09:00"
  business_close: "17:00"
  allowed_durations: [30, 60]
  max_days_ahead: 14
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, []int{30, 60}, cfg.Scheduling.AllowedDurations)
	assert.Equal(t, 14, cfg.Scheduling.MaxDaysAhead)
}

func TestLoadFile_InvalidBusinessHours(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
store:
  driver: memory
auth:
  mode: header
scheduling:
  business_open: "20:00"
  business_close: "08:00"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid business hours")
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 62, cfg.Scheduling.MaxCalendarDays)
	assert.Equal(t, "booking-notifications", cfg.Redis.NotificationChannel)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}
