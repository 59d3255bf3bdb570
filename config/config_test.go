package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnv(vars map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 6*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "hours", cfg.Charge.Policy)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	// GIVEN: A document that only sets a few keys
	// WHEN: Parsing over the defaults
	// THEN: Set keys change and the rest keep their default

	cfg := Default()
	err := Parse([]byte(`
server:
  port: 9090
scheduler:
  interval: 90s
charge:
  policy: weights
  weights: {heavy: 70}
log:
  format: json
`), &cfg)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Scheduler.Interval)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "weights", cfg.Charge.Policy)
	assert.Equal(t, 70, cfg.Charge.Weights["heavy"])
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "workload.db", cfg.Database.Path)
	assert.NoError(t, cfg.Validate())
}

func TestParse_Empty(t *testing.T) {
	cfg := Default()
	require.NoError(t, Parse([]byte("  \n"), &cfg))
	assert.Equal(t, Default().Server, cfg.Server)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, fakeEnv(map[string]string{
		"WORKLOAD_PORT":               "7000",
		"WORKLOAD_DB":                 ":memory:",
		"WORKLOAD_SCHEDULER_ENABLED":  "false",
		"WORKLOAD_SCHEDULER_INTERVAL": "1m",
		"WORKLOAD_CHARGE_POLICY":      "weights",
		"WORKLOAD_REQUIRE_CAPACITY":   "true",
		"WORKLOAD_JWT_SECRET":         "s3cret",
		"WORKLOAD_TOKEN_TTL":          "2h",
		"WORKLOAD_SCORING_ENDPOINT":   "http://scoring:8000",
		"WORKLOAD_LOG_LEVEL":          "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "weights", cfg.Charge.Policy)
	assert.True(t, cfg.Charge.RequireCapacity)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "http://scoring:8000", cfg.Scoring.Endpoint)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnv_ReportsFirstBadValue(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, fakeEnv(map[string]string{
		"WORKLOAD_PORT":      "eighty",
		"WORKLOAD_TOKEN_TTL": "forever",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKLOAD_PORT")
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"db path", func(c *Config) { c.Database.Path = " " }},
		{"interval", func(c *Config) { c.Scheduler.Interval = 0 }},
		{"secret", func(c *Config) { c.Auth.Secret = "" }},
		{"ttl", func(c *Config) { c.Auth.TokenTTL = -time.Second }},
		{"policy", func(c *Config) { c.Charge.Policy = "tshirt" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	// A disabled scheduler does not need an interval.
	cfg := Default()
	cfg.Scheduler.Enabled = false
	cfg.Scheduler.Interval = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workload.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: ./data/test.db\n"), 0o600))

	t.Setenv("WORKLOAD_PORT", "8181")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./data/test.db", cfg.Database.Path)
	assert.Equal(t, 8181, cfg.Server.Port)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
