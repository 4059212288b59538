package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, 24*time.Hour, cfg.Ledger.StaleHoldThreshold)
	require.Equal(t, 10*time.Minute, cfg.Ledger.SweepInterval)
	require.True(t, cfg.Payout.CoinRateCents.Equal(decimal.NewFromInt(5)))
	require.True(t, cfg.Payout.PlatformFeeRate.Equal(decimal.RequireFromString("0.2")))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STALE_HOLD_THRESHOLD", "12h")
	t.Setenv("SWEEP_INTERVAL", "5m")
	t.Setenv("PAYOUT_COIN_RATE_CENTS", "2.5")

	cfg := Load()

	require.Equal(t, "9000", cfg.Server.Port)
	require.Equal(t, 12*time.Hour, cfg.Ledger.StaleHoldThreshold)
	require.Equal(t, 5*time.Minute, cfg.Ledger.SweepInterval)
	require.True(t, cfg.Payout.CoinRateCents.Equal(decimal.RequireFromString("2.5")))
}

func TestLoadIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("STALE_HOLD_THRESHOLD", "yesterday")
	t.Setenv("DB_MAX_OPEN_CONNS", "lots")

	cfg := Load()

	require.Equal(t, 24*time.Hour, cfg.Ledger.StaleHoldThreshold)
	require.Equal(t, 50, cfg.Database.MaxOpenConns)
}
