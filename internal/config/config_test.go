package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 9090\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, "lumarush_high_scores", cfg.Platform.LeaderboardID)
	require.Equal(t, 5000, cfg.Platform.HTTPTimeoutMs)
	require.Equal(t, 5*time.Second, cfg.Platform.HTTPTimeout())
	require.Equal(t, 24*time.Hour, cfg.Session.TokenTTL)
	require.Equal(t, "lumarush-scores", cfg.Kafka.Topic)
}

func TestLoad_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "redis.internal:6379")
	path := writeConfigFile(t, "redis:\n  addr: ${TEST_REDIS_ADDR}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
}

func TestLoad_EnvOverridesPlatformSection(t *testing.T) {
	t.Setenv("LUMARUSH_LEADERBOARD_ID", "lumarush_tournament")
	t.Setenv("TPX_PLATFORM_AUTH_URL", "https://platform.example/auth")
	t.Setenv("TPX_PLATFORM_EVENT_URL", "https://platform.example/events")
	t.Setenv("TPX_PLATFORM_API_KEY", "secret-key")
	t.Setenv("TPX_HTTP_TIMEOUT_MS", "2500")
	t.Setenv("LUMARUSH_JWT_SECRET", "env-secret")

	path := writeConfigFile(t, "platform:\n  leaderboard_id: from_file\n  http_timeout_ms: 1000\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "lumarush_tournament", cfg.Platform.LeaderboardID)
	require.Equal(t, "https://platform.example/auth", cfg.Platform.AuthURL)
	require.Equal(t, "https://platform.example/events", cfg.Platform.EventURL)
	require.Equal(t, "secret-key", cfg.Platform.APIKey)
	require.Equal(t, 2500, cfg.Platform.HTTPTimeoutMs)
	require.Equal(t, 2500*time.Millisecond, cfg.Platform.HTTPTimeout())
	require.Equal(t, "env-secret", cfg.Session.JWTSecret)
}

func TestLoad_InvalidTimeoutEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("TPX_HTTP_TIMEOUT_MS", "not-a-number")
	path := writeConfigFile(t, "platform: {}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5000, cfg.Platform.HTTPTimeoutMs)
}

func TestLoad_NegativeTimeoutFallsBackToDefault(t *testing.T) {
	t.Setenv("TPX_HTTP_TIMEOUT_MS", "-100")
	path := writeConfigFile(t, "platform: {}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5000, cfg.Platform.HTTPTimeoutMs)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [broken\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "lumarush_high_scores", cfg.Platform.LeaderboardID)
	require.True(t, cfg.Sync.Enabled)
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "lumarush",
		Password: "pw",
		Database: "leaderboard",
	}
	require.Equal(t,
		"postgres://lumarush:pw@db.internal:5432/leaderboard?sslmode=disable",
		cfg.ConnectionString(),
	)
}
