package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, ":50051", cfg.GRPCAddress)
	require.Equal(t, DriverMySQL, cfg.StoreDriver)
	require.Equal(t, 50, cfg.MySQLMaxOpenConns)
	require.Equal(t, 5*time.Minute, cfg.MySQLConnMaxLifetime)
	require.Empty(t, cfg.RedisAddr)
	require.Equal(t, 30*time.Second, cfg.SeatCacheTTL)
	require.Equal(t, 5*time.Second, cfg.LockWaitTimeout)
	require.Equal(t, 3, cfg.TxMaxAttempts)
	require.Equal(t, 50*time.Millisecond, cfg.TxRetryBackoff)
	require.True(t, cfg.MigrateOnStart)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("LOCK_WAIT_TIMEOUT", "250ms")
	t.Setenv("TX_MAX_ATTEMPTS", "5")
	t.Setenv("MIGRATE_ON_START", "false")

	cfg, err := Parse()
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.StoreDriver)
	require.Equal(t, "cache:6379", cfg.RedisAddr)
	require.Equal(t, 250*time.Millisecond, cfg.LockWaitTimeout)
	require.Equal(t, 5, cfg.TxMaxAttempts)
	require.False(t, cfg.MigrateOnStart)
}

func TestParseRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown driver", "STORE_DRIVER", "sqlite"},
		{"bad duration", "SEAT_CACHE_TTL", "soon"},
		{"zero attempts", "TX_MAX_ATTEMPTS", "0"},
		{"postgres without url", "STORE_DRIVER", "postgres"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Parse()
			require.Error(t, err)
		})
	}
}
