package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DefaultsAreValid(t *testing.T) {
	require.NoError(t, Validate(DefaultConfig()))
}

func TestValidate_Sync(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"interval too short", func(c *Config) { c.Sync.Interval = "10ms" }, "interval: must be >="},
		{"interval unparsable", func(c *Config) { c.Sync.Interval = "fast" }, "interval: invalid duration"},
		{"negative batch", func(c *Config) { c.Sync.BatchSize = -1 }, "batch_size"},
		{"shutdown too short", func(c *Config) { c.Sync.ShutdownTimeout = "1ms" }, "shutdown_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Remote(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative failure rate", func(c *Config) { c.Remote.FailureRate = -0.1 }, "failure_rate"},
		{"failure rate above one", func(c *Config) { c.Remote.FailureRate = 1.01 }, "failure_rate"},
		{"negative rate limit", func(c *Config) { c.Remote.RateLimit = -1 }, "rate_limit"},
		{"latency above ceiling", func(c *Config) { c.Remote.MaxLatency = "2m" }, "max_latency"},
		{"negative latency", func(c *Config) { c.Remote.MinLatency = "-1s" }, "min_latency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_FailureRateBounds(t *testing.T) {
	for _, rate := range []float64{0, 1} {
		cfg := DefaultConfig()
		cfg.Remote.FailureRate = rate
		assert.NoError(t, Validate(cfg), "failure_rate %g", rate)
	}
}

func TestValidate_Logging(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.LogFormat = "xml"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_format")
}

func TestValidateResolved_EmptyDBPath(t *testing.T) {
	err := ValidateResolved(&Resolved{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db_path")
}

func TestPIDPath(t *testing.T) {
	assert.Equal(t, "/var/lib/edgeledger/edgeledger.pid", PIDPath("/var/lib/edgeledger/edge.db"))
	assert.Empty(t, PIDPath(""))
}
