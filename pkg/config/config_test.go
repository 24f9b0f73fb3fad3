package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validScalerConfig() ScalerConfig {
	return ScalerConfig{
		MinReplicas:        1,
		MaxReplicas:        5,
		ScaleUpThreshold:   5,
		ScaleDownThreshold: 0,
		PollInterval:       30 * time.Second,
		CooldownPeriod:     120 * time.Second,
		QueueNamePrefix:    "bull",
		QueueName:          "jobs",
		ServiceName:        "worker",
		ProjectName:        "stack",
		ComposeFile:        "/app/docker-compose.yml",
	}
}

func TestScalerConfigValidate(t *testing.T) {
	assert.NoError(t, validScalerConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*ScalerConfig)
		field  string
	}{
		{"zero min replicas", func(c *ScalerConfig) { c.MinReplicas = 0 }, "min-replicas"},
		{"negative min replicas", func(c *ScalerConfig) { c.MinReplicas = -1 }, "min-replicas"},
		{"max below min", func(c *ScalerConfig) { c.MaxReplicas = 0 }, "max-replicas"},
		{"negative up threshold", func(c *ScalerConfig) { c.ScaleUpThreshold = -1 }, "scale-up-threshold"},
		{"negative down threshold", func(c *ScalerConfig) { c.ScaleDownThreshold = -1 }, "scale-down-threshold"},
		{"inverted thresholds", func(c *ScalerConfig) { c.ScaleUpThreshold = 1; c.ScaleDownThreshold = 3 }, "scale-down-threshold"},
		{"zero poll interval", func(c *ScalerConfig) { c.PollInterval = 0 }, "polling-interval"},
		{"negative cooldown", func(c *ScalerConfig) { c.CooldownPeriod = -time.Second }, "cooldown-period"},
		{"missing queue name", func(c *ScalerConfig) { c.QueueName = "" }, "queue-name"},
		{"missing service name", func(c *ScalerConfig) { c.ServiceName = "" }, "service-name"},
		{"missing project name", func(c *ScalerConfig) { c.ProjectName = "" }, "project-name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validScalerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestEqualBoundsAndThresholdsAreValid(t *testing.T) {
	cfg := validScalerConfig()
	cfg.MinReplicas = 3
	cfg.MaxReplicas = 3
	cfg.ScaleUpThreshold = 4
	cfg.ScaleDownThreshold = 4
	assert.NoError(t, cfg.Validate())
}

func TestOpTimeoutShorterThanPollInterval(t *testing.T) {
	intervals := []time.Duration{
		time.Second,
		2 * time.Second,
		5 * time.Second,
		30 * time.Second,
		5 * time.Minute,
	}
	for _, interval := range intervals {
		cfg := validScalerConfig()
		cfg.PollInterval = interval
		timeout := cfg.OpTimeout()
		assert.Greater(t, timeout, time.Duration(0), "interval %s", interval)
		assert.Less(t, timeout, interval, "interval %s", interval)
		assert.LessOrEqual(t, timeout, 10*time.Second, "interval %s", interval)
	}
}

func TestMonitorConfigValidate(t *testing.T) {
	cfg := MonitorConfig{
		QueueNamePrefix: "bull",
		QueueName:       "jobs",
		PollInterval:    5 * time.Second,
		DetailedEvery:   12,
	}
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.PollInterval = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.QueueName = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.DetailedEvery = 0
	assert.Error(t, bad.Validate())
}

func TestRedisConfig(t *testing.T) {
	cfg := RedisConfig{Host: "redis", Port: 6379}
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "redis:6379", cfg.Addr())

	cfg.Port = 0
	assert.Error(t, cfg.Validate())
	cfg.Port = 70000
	assert.Error(t, cfg.Validate())
}
