package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PAYMENT_CAPTURE_TIMEOUT", "")
	t.Setenv("CART_TTL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Payment.CaptureTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.Cart.TTL)
	assert.Equal(t, "usd", cfg.Payment.Currency)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PAYMENT_CAPTURE_TIMEOUT", "3s")
	t.Setenv("CART_TTL", "48h")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Payment.CaptureTimeout)
	assert.Equal(t, 48*time.Hour, cfg.Cart.TTL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 7, cfg.Database.MaxOpenConns)
}

func TestLoadRejectsUnknownExporter(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "zipkin")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadIgnoresMalformedDuration(t *testing.T) {
	t.Setenv("CART_SWEEP_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Cart.SweepInterval)
}
