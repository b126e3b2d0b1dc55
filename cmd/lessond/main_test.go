package main

import (
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/lessons/internal/notify"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresSigningKey(t *testing.T) {
	t.Setenv("LESSOND_JWT_SIGNING_KEY", "")
	cmd := newRootCommand()
	require.NoError(t, cmd.ParseFlags([]string{}))
	cfg := &runtimeConfig{}
	require.Error(t, loadConfig(cmd, cfg))
}

func TestLoadConfigReadsFlagsAndEnvironment(t *testing.T) {
	t.Setenv("LESSOND_JWT_SIGNING_KEY", "env-secret")
	t.Setenv("LESSOND_NOTIFY_QUEUE_SIZE", "7")
	cmd := newRootCommand()
	require.NoError(t, cmd.ParseFlags([]string{
		"--database-url", "sqlite:///var/lib/lessons.db",
		"--listen-addr", ":9090",
		"--allowed-origins", "https://a.test, https://b.test",
		"--request-timeout", "3s",
	}))
	cfg := &runtimeConfig{}
	require.NoError(t, loadConfig(cmd, cfg))

	require.Equal(t, "sqlite:///var/lib/lessons.db", cfg.DatabaseURL)
	require.Equal(t, defaultEnvironment, cfg.Environment)
	require.Equal(t, ":9090", cfg.HTTP.ListenAddr)
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.HTTP.AllowedOrigins)
	require.Equal(t, "env-secret", cfg.HTTP.SessionSigningKey)
	require.Equal(t, 3*time.Second, cfg.HTTP.RequestTimeout)
	require.Equal(t, notify.ModeLog, cfg.Notify.Mode)
	require.Equal(t, 7, cfg.Notify.QueueSize)
}

func TestLoadConfigRejectsIncompleteSendgrid(t *testing.T) {
	t.Setenv("LESSOND_SENDGRID_API_KEY", "")
	cmd := newRootCommand()
	require.NoError(t, cmd.ParseFlags([]string{
		"--jwt-signing-key", "secret",
		"--notifier", "sendgrid",
	}))
	require.Error(t, loadConfig(cmd, &runtimeConfig{}))
}
