package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 10, cfg.Sessions.MaxSessions)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.IdleTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.SweepInterval)
	assert.Equal(t, 30*time.Second, cfg.Proxy.Timeout)
	assert.Equal(t, 5, cfg.Proxy.MaxRedirects)
	assert.False(t, cfg.Proxy.AllowPrivate)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("MAX_SESSIONS", "25")
	t.Setenv("SESSION_IDLE_TIMEOUT", "10m")
	t.Setenv("PROXY_ALLOW_PRIVATE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 25, cfg.Sessions.MaxSessions)
	assert.Equal(t, 10*time.Minute, cfg.Sessions.IdleTimeout)
	assert.True(t, cfg.Proxy.AllowPrivate)
}

func TestLoadRejectsMalformed(t *testing.T) {
	t.Setenv("SESSION_IDLE_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestDefaultMatchesEnvDefaults(t *testing.T) {
	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), loaded)
}
