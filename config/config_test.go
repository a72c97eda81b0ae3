package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/namwodah/depot/config"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := config.FromEnv[config.Default]()
	require.NoError(t, err)

	require.Equal(t, "info", cfg.LoggingLevel())
	require.Equal(t, 20, cfg.GetDatabasePoolSize())
	require.Equal(t, 30, cfg.GetDatabaseMaxOverflow())
	require.Equal(t, time.Hour, cfg.GetDatabasePoolRecycle())
	require.Equal(t, 30*time.Second, cfg.GetDatabaseAcquireTimeout())
	require.True(t, cfg.CanDatabasePrePing())
	require.False(t, cfg.DoDatabaseMigrate())
	require.False(t, cfg.DoDatabaseReconcile())
	require.False(t, cfg.CanDatabaseTraceQueries())
	require.Equal(t, 200*time.Millisecond, cfg.GetDatabaseSlowQueryLogThreshold())
	require.Equal(t, 100, cfg.GetCapacity())
	require.Equal(t, 1, cfg.GetCount())
	require.Equal(t, time.Second, cfg.GetExpiryDuration())
}

func TestFromEnvReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://depot:pw@localhost:5432/depot")
	t.Setenv("DATABASE_POOL_SIZE", "5")
	t.Setenv("DATABASE_MAX_OVERFLOW", "2")
	t.Setenv("DATABASE_POOL_RECYCLE", "10m")
	t.Setenv("DATABASE_POOL_PRE_PING", "false")
	t.Setenv("DATABASE_MIGRATE", "true")
	t.Setenv("DATABASE_SLOW_QUERY_THRESHOLD", "1s")

	cfg, err := config.FromEnv[config.Default]()
	require.NoError(t, err)

	require.Equal(t, "postgres://depot:pw@localhost:5432/depot", cfg.GetDatabaseURL())
	require.Equal(t, 5, cfg.GetDatabasePoolSize())
	require.Equal(t, 2, cfg.GetDatabaseMaxOverflow())
	require.Equal(t, 10*time.Minute, cfg.GetDatabasePoolRecycle())
	require.False(t, cfg.CanDatabasePrePing())
	require.True(t, cfg.DoDatabaseMigrate())
	require.Equal(t, time.Second, cfg.GetDatabaseSlowQueryLogThreshold())
}

func TestFillEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	var cfg config.Default
	require.NoError(t, config.FillEnv(&cfg))
	require.Equal(t, "debug", cfg.LoggingLevel())
}

func TestUnparseableDurationsFallBack(t *testing.T) {
	cfg := config.Default{
		DatabaseSlowQueryLogThreshold: "not-a-duration",
		WorkerPoolExpiryDuration:      "nope",
	}

	require.Equal(t, config.DefaultSlowQueryThreshold, cfg.GetDatabaseSlowQueryLogThreshold())
	require.Equal(t, time.Second, cfg.GetExpiryDuration())
}

func TestConfigContextRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := &config.Default{LogLevel: "warn"}
	ctx := config.ToContext(context.Background(), cfg)

	got := config.FromContext[*config.Default](ctx)
	require.NotNil(t, got)
	require.Equal(t, "warn", got.LoggingLevel())

	missing := config.FromContext[*config.Default](context.Background())
	require.Nil(t, missing)
}
