package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "nextbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 60*time.Second, cfg.Dispatch.Period)
	assert.False(t, cfg.Thinger.Enabled())
	assert.False(t, cfg.SMS.Enabled())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
registry: /etc/nextbus/stations.json
log:
  format: json
storage:
  backend: sqlite
  directory: /var/lib/nextbus
timetable:
  headers:
    referer: https://ctpcj.ro/
  timeout: 5s
  ttl: 12h
dispatch:
  period: 30s
thinger:
  user: someone
sms:
  account_sid: AC123
  from: "+100"
  to: "+200"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/nextbus/stations.json", cfg.Registry)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/nextbus", cfg.Storage.Directory)
	assert.Equal(t, map[string]string{"referer": "https://ctpcj.ro/"}, cfg.Timetable.Headers)
	assert.Equal(t, 5*time.Second, cfg.Timetable.Timeout)
	assert.Equal(t, 12*time.Hour, cfg.Timetable.TTL)
	assert.Equal(t, 2, cfg.Timetable.Retries)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.Period)
	assert.Equal(t, "someone", cfg.Thinger.User)
	assert.Equal(t, Default().Thinger.URLTemplate, cfg.Thinger.URLTemplate)
	assert.Equal(t, "+100", cfg.SMS.From)
	assert.NoError(t, cfg.Validate())

	// Secrets come from the environment
	assert.False(t, cfg.Thinger.Enabled())
	assert.False(t, cfg.SMS.Enabled())
	cfg.ApplyEnv(func(key string) string {
		return map[string]string{
			EnvThingerToken:    "thinger-token",
			EnvTwilioAuthToken: "twilio-token",
		}[key]
	})
	assert.Equal(t, "thinger-token", cfg.Thinger.Token)
	assert.Equal(t, "twilio-token", cfg.SMS.AuthToken)
	assert.True(t, cfg.Thinger.Enabled())
	assert.True(t, cfg.SMS.Enabled())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "dispatch: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "dispatch:\n  period: soon"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"zero period", func(c *Config) { c.Dispatch.Period = 0 }},
		{"negative retries", func(c *Config) { c.Timetable.Retries = -1 }},
		{"too many retries", func(c *Config) { c.Timetable.Retries = 40 }},
		{"too many thinger retries", func(c *Config) { c.Thinger.Retries = 11 }},
		{"cache path without ttl", func(c *Config) { c.Timetable.CachePath = "cache.json" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Storage.Backend = "postgres"
	cfg.Storage.DSN = "postgres://localhost/nextbus"
	assert.NoError(t, cfg.Validate())
}

func TestApplyFlags(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: sqlite
dispatch:
  period: 30s
timetable:
  headers:
    referer: https://ctpcj.ro/
`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--period", "5s",
		"--timetable-header", "user-agent=nextbus",
		"--registry", "other.json",
	}))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.ApplyFlags(fs))

	// Set flags win over the file
	assert.Equal(t, 5*time.Second, cfg.Dispatch.Period)
	assert.Equal(t, "other.json", cfg.Registry)
	assert.Equal(t, map[string]string{
		"referer":    "https://ctpcj.ro/",
		"user-agent": "nextbus",
	}, cfg.Timetable.Headers)

	// Unset flags leave the file's values alone
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
}
