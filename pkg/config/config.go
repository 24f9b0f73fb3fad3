package config

import (
	"fmt"
	"time"
)

// RedisConfig holds the connection settings for the Redis instance that
// backs the job queue.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TLS      bool
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (r RedisConfig) Validate() error {
	if r.Port < 1 || r.Port > 65535 {
		return &ValidationError{Field: "redis-port", Reason: "must be between 1 and 65535"}
	}
	return nil
}

// ScalerConfig is the full configuration of the autoscaling controller.
// It is immutable after load; Validate must pass before anything connects.
type ScalerConfig struct {
	MinReplicas        int
	MaxReplicas        int
	ScaleUpThreshold   int
	ScaleDownThreshold int

	PollInterval   time.Duration
	CooldownPeriod time.Duration

	QueueNamePrefix string
	QueueName       string

	// Compose deployment the worker service lives in.
	ServiceName string
	ProjectName string
	ComposeFile string
}

// MonitorConfig configures the queue observer process.
type MonitorConfig struct {
	QueueNamePrefix string
	QueueName       string
	PollInterval    time.Duration

	// DetailedEvery controls how many poll cycles pass between detailed
	// stats reports.
	DetailedEvery int
}

// ValidationError reports a configuration field that violates an invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (c ScalerConfig) Validate() error {
	if c.MinReplicas < 1 {
		return &ValidationError{Field: "min-replicas", Reason: "must be at least 1"}
	}
	if c.MaxReplicas < c.MinReplicas {
		return &ValidationError{Field: "max-replicas", Reason: "must be >= min-replicas"}
	}
	if c.ScaleUpThreshold < 0 {
		return &ValidationError{Field: "scale-up-threshold", Reason: "must be >= 0"}
	}
	if c.ScaleDownThreshold < 0 {
		return &ValidationError{Field: "scale-down-threshold", Reason: "must be >= 0"}
	}
	if c.ScaleDownThreshold > c.ScaleUpThreshold {
		return &ValidationError{Field: "scale-down-threshold", Reason: "must be <= scale-up-threshold"}
	}
	if c.PollInterval <= 0 {
		return &ValidationError{Field: "polling-interval", Reason: "must be positive"}
	}
	if c.CooldownPeriod < 0 {
		return &ValidationError{Field: "cooldown-period", Reason: "must be >= 0"}
	}
	if c.QueueName == "" {
		return &ValidationError{Field: "queue-name", Reason: "is required"}
	}
	if c.ServiceName == "" {
		return &ValidationError{Field: "service-name", Reason: "is required"}
	}
	if c.ProjectName == "" {
		return &ValidationError{Field: "project-name", Reason: "is required"}
	}
	return nil
}

// OpTimeout returns the timeout applied to a single queue or orchestrator
// round-trip. It is always shorter than the poll interval so a stuck call
// cannot starve the next cycle.
func (c ScalerConfig) OpTimeout() time.Duration {
	t := c.PollInterval / 2
	if t > 10*time.Second {
		t = 10 * time.Second
	}
	if t < time.Second && c.PollInterval > time.Second {
		t = time.Second
	}
	return t
}

func (c MonitorConfig) Validate() error {
	if c.PollInterval <= 0 {
		return &ValidationError{Field: "polling-interval", Reason: "must be positive"}
	}
	if c.QueueName == "" {
		return &ValidationError{Field: "queue-name", Reason: "is required"}
	}
	if c.DetailedEvery < 1 {
		return &ValidationError{Field: "detailed-every", Reason: "must be at least 1"}
	}
	return nil
}

func (c MonitorConfig) OpTimeout() time.Duration {
	t := c.PollInterval / 2
	if t > 10*time.Second {
		t = 10 * time.Second
	}
	if t < time.Second && c.PollInterval > time.Second {
		t = time.Second
	}
	return t
}
